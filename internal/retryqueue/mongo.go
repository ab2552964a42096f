package retryqueue

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/netguru/repolib/pkg/api"
)

// MongoQueue is a durable queue stored in a MongoDB collection.
//
// Collection schema:
//
//	{
//	  _id:         string,    // dedup key
//	  seq:         int64,     // sequence of the latest Add
//	  request_id:  string,
//	  kind:        string,
//	  payload:     []byte,    // gob-encoded request
//	  enqueued_at: time.Time,
//	}
//
// The sequence is kept in a companion "<collection>_counters" collection.
type MongoQueue[T any] struct {
	coll     *mongo.Collection
	counters *mongo.Collection
	key      KeyFunc[T]
}

var _ Queue[string] = (*MongoQueue[string])(nil)

type mongoQueueDoc struct {
	Key        string    `bson:"_id"`
	Seq        int64     `bson:"seq"`
	RequestID  string    `bson:"request_id"`
	Kind       string    `bson:"kind"`
	Payload    []byte    `bson:"payload"`
	EnqueuedAt time.Time `bson:"enqueued_at"`
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "repolib", collName to "retry_queue".
func NewMongoQueue[T any](client *mongo.Client, dbName, collName string, key KeyFunc[T]) *MongoQueue[T] {
	if dbName == "" {
		dbName = "repolib"
	}
	if collName == "" {
		collName = "retry_queue"
	}
	db := client.Database(dbName)
	return &MongoQueue[T]{
		coll:     db.Collection(collName),
		counters: db.Collection(collName + "_counters"),
		key:      keyFuncOrDefault(key),
	}
}

func (q *MongoQueue[T]) Key(r api.Request[T]) string { return q.key(r) }

func (q *MongoQueue[T]) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := q.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": q.coll.Name()},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func (q *MongoQueue[T]) Add(ctx context.Context, r api.Request[T]) (bool, error) {
	if err := checkQueueable(r); err != nil {
		return false, err
	}
	payload, err := encodeRequest(r)
	if err != nil {
		return false, err
	}
	seq, err := q.nextSeq(ctx)
	if err != nil {
		return false, fmt.Errorf("retryqueue: next sequence: %w", err)
	}

	doc := mongoQueueDoc{
		Key:        q.key(r),
		Seq:        seq,
		RequestID:  r.ID(),
		Kind:       string(r.Kind()),
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	upsert := options.Replace().SetUpsert(true)
	res, err := q.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, upsert)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent Add inserted the key first
		res, err = q.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, upsert)
	}
	if err != nil {
		return false, fmt.Errorf("retryqueue: add %s: %w", r.ID(), err)
	}
	return res.MatchedCount == 0, nil
}

func (q *MongoQueue[T]) Remove(ctx context.Context, r api.Request[T]) error {
	if _, err := q.coll.DeleteOne(ctx, bson.M{"_id": q.key(r)}); err != nil {
		return fmt.Errorf("retryqueue: remove %s: %w", r.ID(), err)
	}
	return nil
}

func (q *MongoQueue[T]) List(ctx context.Context) ([]api.Request[T], error) {
	cur, err := q.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("retryqueue: list: %w", err)
	}
	defer cur.Close(ctx)

	var out []api.Request[T]
	for cur.Next(ctx) {
		var doc mongoQueueDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		r, err := decodeRequest[T](doc.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, cur.Err()
}

func (q *MongoQueue[T]) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Len(ctx)
	return n == 0, err
}

func (q *MongoQueue[T]) Len(ctx context.Context) (int, error) {
	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("retryqueue: count: %w", err)
	}
	return int(n), nil
}
