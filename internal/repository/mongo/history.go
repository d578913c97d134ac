package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"swarmstream/internal/domain"
)

type streamEventDoc struct {
	ContentID   string `bson:"contentId"`
	Name        string `bson:"name"`
	Kind        string `bson:"kind"`
	OpenStreams int    `bson:"openStreams"`
	At          int64  `bson:"at"`
}

// HistoryRepository persists stream lifecycle events. History is an audit
// trail, not a source of truth; the lifecycle never reads it back.
type HistoryRepository struct {
	collection *mongo.Collection
}

func NewHistoryRepository(client *mongo.Client, dbName, collectionName string) *HistoryRepository {
	return &HistoryRepository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *HistoryRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "at", Value: -1}}},
		{Keys: bson.D{{Key: "contentId", Value: 1}, {Key: "at", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *HistoryRepository) Record(ctx context.Context, ev domain.StreamEvent) error {
	_, err := r.collection.InsertOne(ctx, toEventDoc(ev))
	return err
}

func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.StreamEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []streamEventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	events := make([]domain.StreamEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, fromEventDoc(doc))
	}
	return events, nil
}

func toEventDoc(ev domain.StreamEvent) streamEventDoc {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return streamEventDoc{
		ContentID:   string(ev.ID),
		Name:        ev.Name,
		Kind:        string(ev.Kind),
		OpenStreams: ev.OpenStreams,
		At:          at.Unix(),
	}
}

func fromEventDoc(doc streamEventDoc) domain.StreamEvent {
	return domain.StreamEvent{
		ID:          domain.ContentID(doc.ContentID),
		Name:        doc.Name,
		Kind:        domain.EventKind(doc.Kind),
		OpenStreams: doc.OpenStreams,
		At:          time.Unix(doc.At, 0).UTC(),
	}
}
