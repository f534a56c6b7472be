package blobstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoBlob struct {
	Path        string    `bson:"_id"`
	Data        []byte    `bson:"data,omitempty"`
	ContentType string    `bson:"contentType"`
	Size        int64     `bson:"size"`
	Generation  int64     `bson:"generation"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// MongoStore keeps one document per object, keyed by path.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	clock      func() time.Time
}

// OpenMongoStore connects to uri and uses database.collection.
func OpenMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo store: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo store: ping: %w", err)
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		clock:      time.Now,
	}, nil
}

func (m *MongoStore) url(p string) string {
	return "mongodb://" + m.collection.Database().Name() + "/" + m.collection.Name() + "/" + p
}

func (m *MongoStore) attrsFrom(b mongoBlob) Attrs {
	return Attrs{
		Path:        b.Path,
		URL:         m.url(b.Path),
		Size:        b.Size,
		ContentType: b.ContentType,
		Generation:  b.Generation,
		Updated:     b.UpdatedAt,
	}
}

// Head implements Store.
func (m *MongoStore) Head(ctx context.Context, p string) (Attrs, error) {
	var b mongoBlob
	opts := options.FindOne().SetProjection(bson.M{"data": 0})
	err := m.collection.FindOne(ctx, bson.M{"_id": p}, opts).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Attrs{}, ErrNotFound
	}
	if err != nil {
		return Attrs{}, fmt.Errorf("mongo store: head %s: %w", p, err)
	}
	return m.attrsFrom(b), nil
}

// Read implements Store.
func (m *MongoStore) Read(ctx context.Context, p string) ([]byte, Attrs, error) {
	var b mongoBlob
	err := m.collection.FindOne(ctx, bson.M{"_id": p}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, Attrs{}, ErrNotFound
	}
	if err != nil {
		return nil, Attrs{}, fmt.Errorf("mongo store: read %s: %w", p, err)
	}
	if b.Data == nil {
		b.Data = []byte{}
	}
	return b.Data, m.attrsFrom(b), nil
}

// Put implements Store.
func (m *MongoStore) Put(ctx context.Context, p string, data []byte, opts ...PutOption) (Attrs, error) {
	o := ApplyPutOptions(p, opts)
	now := m.clock().UTC().Truncate(time.Millisecond)

	if o.HasCondition && o.IfGeneration == 0 {
		b := mongoBlob{
			Path:        p,
			Data:        data,
			ContentType: o.ContentType,
			Size:        int64(len(data)),
			Generation:  1,
			UpdatedAt:   now,
		}
		if _, err := m.collection.InsertOne(ctx, b); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return Attrs{}, ErrPreconditionFailed
			}
			return Attrs{}, fmt.Errorf("mongo store: put %s: %w", p, err)
		}
		return m.attrsFrom(b), nil
	}

	filter := bson.M{"_id": p}
	if o.HasCondition {
		filter["generation"] = o.IfGeneration
	}
	update := bson.M{
		"$set": bson.M{
			"data":        data,
			"contentType": o.ContentType,
			"size":        int64(len(data)),
			"updatedAt":   now,
		},
		"$inc": bson.M{"generation": int64(1)},
	}
	fo := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetUpsert(!o.HasCondition).
		SetProjection(bson.M{"data": 0})

	var b mongoBlob
	err := m.collection.FindOneAndUpdate(ctx, filter, update, fo).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Attrs{}, ErrPreconditionFailed
	}
	if err != nil {
		return Attrs{}, fmt.Errorf("mongo store: put %s: %w", p, err)
	}
	return m.attrsFrom(b), nil
}

// List implements Store.
func (m *MongoStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetProjection(bson.M{"data": 0})
	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo store: list %s: %w", prefix, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	out := []Attrs{}
	for cursor.Next(ctx) {
		var b mongoBlob
		if err := cursor.Decode(&b); err != nil {
			return nil, fmt.Errorf("mongo store: list %s: %w", prefix, err)
		}
		out = append(out, m.attrsFrom(b))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo store: list %s: %w", prefix, err)
	}
	return out, nil
}

// Close implements Store.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
