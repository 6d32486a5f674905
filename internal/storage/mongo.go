package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"sophosia/internal/domain"
)

const mongoCollection = "docs"

// MongoStore is a DocStore on a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ domain.DocStore = (*MongoStore)(nil)

type mongoDoc struct {
	ID         string `bson:"_id"`
	Rev        string `bson:"rev"`
	DataType   string `bson:"dataType"`
	DocumentID string `bson:"projectId"`
	PageNumber int    `bson:"pageNumber"`
	Kind       string `bson:"kind"`
	Body       string `bson:"body"`
	Deleted    bool   `bson:"deleted"`
	UpdatedAt  int64  `bson:"updatedAt"`
}

// OpenMongo connects to uri and uses the docs collection of database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(database).Collection(mongoCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "dataType", Value: 1}, {Key: "projectId", Value: 1}}},
		{Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "updatedAt", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return &MongoStore{client: client, coll: coll}, nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) Get(ctx context.Context, id string) (*domain.Doc, error) {
	var md mongoDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": id, "deleted": false}).Decode(&md)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("get %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return md.toDoc(), nil
}

func (m *MongoStore) Put(ctx context.Context, doc *domain.Doc) (string, error) {
	var cur mongoDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&cur)
	exists := err == nil
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}

	switch {
	case !exists && doc.Rev != "":
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrNotFound)
	case exists && !cur.Deleted && cur.Rev != doc.Rev:
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
	case exists && cur.Deleted && doc.Rev != "" && cur.Rev != doc.Rev:
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
	}

	next := fromDoc(doc)
	next.Rev = nextRev(cur.Rev)
	next.UpdatedAt = time.Now().UTC().UnixMilli()

	if !exists {
		if _, err := m.coll.InsertOne(ctx, next); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
			}
			return "", fmt.Errorf("put %s: %w", doc.ID, err)
		}
		return next.Rev, nil
	}

	res, err := m.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID, "rev": cur.Rev}, next)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	if res.MatchedCount == 0 {
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
	}
	return next.Rev, nil
}

func (m *MongoStore) Remove(ctx context.Context, id, rev string) error {
	res, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": id, "rev": rev, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "rev": nextRev(rev), "updatedAt": time.Now().UTC().UnixMilli()}},
	)
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := m.Get(ctx, id); errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("remove %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("remove %s: %w", id, domain.ErrConflict)
}

func (m *MongoStore) Find(ctx context.Context, sel domain.Selector) ([]domain.Doc, error) {
	filter := bson.M{"deleted": false}
	if sel.DataType != "" {
		filter["dataType"] = sel.DataType
	}
	if sel.DocumentID != "" {
		filter["projectId"] = sel.DocumentID
	}
	if sel.PageNumber != 0 {
		filter["pageNumber"] = sel.PageNumber
	}
	if len(sel.Kinds) > 0 {
		filter["kind"] = bson.M{"$in": sel.Kinds}
	}
	if len(sel.IDs) > 0 {
		filter["_id"] = bson.M{"$in": sel.IDs}
	}

	cursor, err := m.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "pageNumber", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Doc
	for cursor.Next(ctx) {
		var md mongoDoc
		if err := cursor.Decode(&md); err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		out = append(out, *md.toDoc())
	}
	return out, cursor.Err()
}

func (m *MongoStore) Compact(ctx context.Context, before time.Time) (int, error) {
	res, err := m.coll.DeleteMany(ctx, bson.M{"deleted": true, "updatedAt": bson.M{"$lt": before.UTC().UnixMilli()}})
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	return int(res.DeletedCount), nil
}

func fromDoc(d *domain.Doc) mongoDoc {
	return mongoDoc{
		ID:         d.ID,
		Rev:        d.Rev,
		DataType:   d.DataType,
		DocumentID: d.DocumentID,
		PageNumber: d.PageNumber,
		Kind:       d.Kind,
		Body:       string(d.Body),
	}
}

func (md mongoDoc) toDoc() *domain.Doc {
	return &domain.Doc{
		ID:         md.ID,
		Rev:        md.Rev,
		DataType:   md.DataType,
		DocumentID: md.DocumentID,
		PageNumber: md.PageNumber,
		Kind:       md.Kind,
		Body:       []byte(md.Body),
		UpdatedAt:  time.UnixMilli(md.UpdatedAt).UTC(),
	}
}
