package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection is the collection holding cache documents.
const MongoCollection = "request_cache"

// cacheDoc is the persisted form of an Entry. Results hold raw JSON text per
// sub-key.
type cacheDoc struct {
	Key       string            `bson:"_id"`
	CreatedAt time.Time         `bson:"createdAt"`
	ExpireAt  time.Time         `bson:"expireAt"`
	Results   map[string]string `bson:"results"`
}

func toDoc(e Entry) cacheDoc {
	d := cacheDoc{Key: e.Key, CreatedAt: e.CreatedAt.UTC(), ExpireAt: e.ExpiresAt.UTC(), Results: make(map[string]string, len(e.Results))}
	for k, v := range e.Results {
		d.Results[k] = string(v)
	}
	return d
}

func fromDoc(d cacheDoc) (Entry, error) {
	e := Entry{Key: d.Key, CreatedAt: d.CreatedAt, ExpiresAt: d.ExpireAt, Results: make(map[string]json.RawMessage, len(d.Results))}
	for k, v := range d.Results {
		if !json.Valid([]byte(v)) {
			return Entry{}, errors.Mark(errors.Newf("result %q of %s", k, d.Key), ErrCorruptEntry)
		}
		e.Results[k] = json.RawMessage(v)
	}
	return e, nil
}

// MongoBackend stores entries as documents keyed by the request key.
type MongoBackend struct {
	coll *mongo.Collection
}

// NewMongoClient connects and pings within a bounded time.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping")
	}
	return client, nil
}

// NewMongoBackend uses the request_cache collection of db and indexes
// expireAt for operators.
func NewMongoBackend(ctx context.Context, db *mongo.Database) (*MongoBackend, error) {
	coll := db.Collection(MongoCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "expireAt", Value: 1}}})
	if err != nil {
		return nil, errors.Wrap(err, "index expireAt")
	}
	return &MongoBackend{coll: coll}, nil
}

func (m *MongoBackend) Name() string { return "mongo" }

func (m *MongoBackend) Load(ctx context.Context, key string) (Entry, bool, error) {
	var d cacheDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e, err := fromDoc(d)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (m *MongoBackend) Save(ctx context.Context, e Entry) error {
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": e.Key}, toDoc(e), options.Replace().SetUpsert(true))
	return err
}

func (m *MongoBackend) Delete(ctx context.Context, key string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
