package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/netguru/repolib/pkg/api"
)

// MongoSource is a DataSource backed by a MongoDB collection.
//
// Document schema:
//
//	{
//	  _id:    string,          // entity id
//	  seq:    int64,           // insertion sequence
//	  data:   string,          // JSON-encoded entity
//	  fields: document,        // top-level JSON fields, for parameter queries
//	}
type MongoSource[T any] struct {
	coll     *mongo.Collection
	counters *mongo.Collection
	id       api.IDFunc[T]
}

var _ api.DataSource[map[string]any] = (*MongoSource[map[string]any])(nil)

type mongoEntityDoc struct {
	ID     string         `bson:"_id"`
	Seq    int64          `bson:"seq"`
	Data   string         `bson:"data"`
	Fields map[string]any `bson:"fields,omitempty"`
}

// NewMongoSource creates a MongoSource.
// dbName defaults to "repolib", collName to "entities".
func NewMongoSource[T any](client *mongo.Client, dbName, collName string, id api.IDFunc[T]) *MongoSource[T] {
	if dbName == "" {
		dbName = "repolib"
	}
	if collName == "" {
		collName = "entities"
	}
	db := client.Database(dbName)
	return &MongoSource[T]{
		coll:     db.Collection(collName),
		counters: db.Collection(collName + "_counters"),
		id:       id,
	}
}

func (s *MongoSource[T]) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": s.coll.Name()},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func (s *MongoSource[T]) filter(q api.Query) (bson.M, error) {
	switch q := q.(type) {
	case api.AllQuery:
		return bson.M{}, nil
	case api.IDQuery:
		return bson.M{"_id": q.ID}, nil
	case api.ParamsQuery:
		if err := checkParamNames(q.Params); err != nil {
			return nil, err
		}
		f := bson.M{}
		for k, v := range q.Params {
			f["fields."+k] = normalize(v)
		}
		return f, nil
	case nil:
		return nil, api.ErrNilQuery
	default:
		return nil, unsupportedQuery(q)
	}
}

func (s *MongoSource[T]) Create(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		data, err := encodeEntity(entity)
		if err != nil {
			yield(zero, err)
			return
		}
		id := s.id(entity)
		seq, err := s.nextSeq(ctx)
		if err != nil {
			yield(zero, fmt.Errorf("persistence: next sequence: %w", err))
			return
		}
		_, err = s.coll.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{
				"$set":         bson.M{"data": string(data), "fields": fieldsOf(data)},
				"$setOnInsert": bson.M{"seq": seq},
			},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			yield(zero, fmt.Errorf("persistence: create %q: %w", id, err))
			return
		}
		yield(entity, nil)
	}
}

func (s *MongoSource[T]) Update(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		data, err := encodeEntity(entity)
		if err != nil {
			yield(zero, err)
			return
		}
		id := s.id(entity)
		res, err := s.coll.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$set": bson.M{"data": string(data), "fields": fieldsOf(data)}},
		)
		if err != nil {
			yield(zero, fmt.Errorf("persistence: update %q: %w", id, err))
			return
		}
		if res.MatchedCount == 0 {
			yield(zero, notFound(id))
			return
		}
		yield(entity, nil)
	}
}

func (s *MongoSource[T]) find(ctx context.Context, f bson.M) ([]T, error) {
	cur, err := s.coll.Find(ctx, f, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("persistence: find: %w", err)
	}
	defer cur.Close(ctx)

	var out []T
	for cur.Next(ctx) {
		var doc mongoEntityDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		v, err := decodeEntity[T]([]byte(doc.Data))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := cur.Err(); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	return out, nil
}

func (s *MongoSource[T]) Delete(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		f, err := s.filter(q)
		if err != nil {
			yield(zero, err)
			return
		}
		removed, err := s.find(ctx, f)
		if err != nil {
			yield(zero, err)
			return
		}
		if _, err := s.coll.DeleteMany(ctx, f); err != nil {
			yield(zero, fmt.Errorf("persistence: delete: %w", err))
			return
		}
		api.FromSlice(removed)(yield)
	}
}

func (s *MongoSource[T]) Fetch(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		f, err := s.filter(q)
		if err != nil {
			yield(zero, err)
			return
		}
		found, err := s.find(ctx, f)
		if err != nil {
			yield(zero, err)
			return
		}
		api.FromSlice(found)(yield)
	}
}
