package cache

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a MongoDB-backed Store. Each entry is one document keyed
// by _id, so List can page with a simple _id range scan.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// MongoConfig configures a MongoStore.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type mongoDoc struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value,omitempty"`
	Meta      *Metadata  `bson:"meta,omitempty"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty"`
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Database == "" {
		cfg.Database = "usedby"
	}
	if cfg.Collection == "" {
		cfg.Collection = "entries"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) ([]byte, *Metadata, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if doc.expired() {
		return nil, nil, ErrNotFound
	}
	return doc.Value, doc.Meta, nil
}

func (s *MongoStore) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key},
		options.FindOne().SetProjection(bson.M{"meta": 1, "expiresAt": 1})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.expired() {
		return nil, ErrNotFound
	}
	return doc.Meta, nil
}

func (s *MongoStore) Put(ctx context.Context, key string, value []byte, meta *Metadata) error {
	doc := mongoDoc{Key: key, Value: value, Meta: meta}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) PutMetadata(ctx context.Context, key string, meta *Metadata) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{"meta": meta}})
	return err
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// List pages through keys in _id order, projecting out value bodies. The
// cursor is the last key of the previous page.
func (s *MongoStore) List(ctx context.Context, cursor string, limit int) (*ListPage, error) {
	filter := bson.M{}
	if cursor != "" {
		filter["_id"] = bson.M{"$gt": cursor}
	}
	opts := options.Find().
		SetSort(bson.M{"_id": 1}).
		SetProjection(bson.M{"meta": 1, "expiresAt": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	page := &ListPage{}
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		if doc.expired() {
			continue
		}
		page.Keys = append(page.Keys, KeyInfo{Key: doc.Key, Meta: doc.Meta})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(page.Keys) == limit {
		page.Cursor = page.Keys[len(page.Keys)-1].Key
	}
	return page, nil
}

// Acquire wins by inserting the key; a duplicate-key error means another
// holder has it. Expired lock documents are cleared first since MongoDB has
// no per-document TTL precise enough for short advisory locks.
func (s *MongoStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": key, "expiresAt": bson.M{"$lt": now}})
	if err != nil {
		return false, err
	}

	expires := now.Add(ttl)
	_, err = s.coll.InsertOne(ctx, mongoDoc{Key: key, ExpiresAt: &expires})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (d *mongoDoc) expired() bool {
	return d.ExpiresAt != nil && time.Now().After(*d.ExpiresAt)
}

var _ Store = (*MongoStore)(nil)
