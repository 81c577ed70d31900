// Package queue moves refresh work out of the request path. A cache miss
// enqueues a message; workers drain the queue, run the pipeline, and write
// the results back to the cache.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is one unit of refresh work.
type Message struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	Name       string    `json:"name"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewMessage builds a refresh message for a package.
func NewMessage(platform, name string) Message {
	return Message{
		ID:         uuid.NewString(),
		Platform:   platform,
		Name:       name,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is the work-queue contract. Send never blocks on consumers;
// Receive blocks until a message arrives, the context ends, or the queue
// closes.
type Queue interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

func encode(msg Message) ([]byte, error) { return json.Marshal(msg) }

func decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
