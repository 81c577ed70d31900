package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Redis-list-backed Queue (LPUSH producer, BRPOP consumer)
// shared by all instances of a deployment.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// defaultKey names the queue list. It sits outside the cache store's
// "usedby:" namespace so keyspace scans over a shared database never list
// the queue.
const defaultKey = "usedby-queue"

// NewRedisQueue connects to Redis and verifies the connection. The queue
// lives in the list named key.
func NewRedisQueue(ctx context.Context, addr, password string, db int, key string) (*RedisQueue, error) {
	if key == "" {
		key = defaultKey
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) Send(ctx context.Context, msg Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Receive blocks in short BRPOP intervals so context cancellation is
// noticed within a second.
func (q *RedisQueue) Receive(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vals, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		// BRPOP returns [key, value].
		return decode([]byte(vals[1]))
	}
}

func (q *RedisQueue) Close() error { return q.client.Close() }

var _ Queue = (*RedisQueue)(nil)
