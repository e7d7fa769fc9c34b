// internal/output/mongodb.go
package output

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/record"
)

// DefaultMongoTimeout bounds connecting and each bulk write.
const DefaultMongoTimeout = 30 * time.Second

// mongoDocument is the stored shape of a record.
type mongoDocument struct {
	record.Record `bson:",inline"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

// MongoDBWriter upserts records into a collection keyed by
// (country, source_url).
type MongoDBWriter struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	now        func() time.Time
}

// NewMongoDBWriter connects, pings and ensures the unique key index.
func NewMongoDBWriter(ctx context.Context, cfg config.MongoConfig) (*MongoDBWriter, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("MongoDB connection string is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("MongoDB database name is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "events"
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultMongoTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(10).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "country", Value: 1}, {Key: "source_url", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("country_source_url"),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &MongoDBWriter{
		client:     client,
		collection: collection,
		timeout:    DefaultMongoTimeout,
		now:        time.Now,
	}, nil
}

// Write replaces or inserts one document per record in a single unordered
// bulk write.
func (mw *MongoDBWriter) Write(records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mw.timeout)
	defer cancel()

	_, err := mw.collection.BulkWrite(ctx, upsertModels(records, mw.now().UTC()),
		options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}
	return nil
}

func upsertModels(records []record.Record, now time.Time) []mongo.WriteModel {
	models := make([]mongo.WriteModel, len(records))
	for i, r := range records {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "country", Value: r.Country}, {Key: "source_url", Value: r.SourceURL}}).
			SetReplacement(mongoDocument{Record: r, UpdatedAt: now}).
			SetUpsert(true)
	}
	return models
}

// Close disconnects from MongoDB.
func (mw *MongoDBWriter) Close() error {
	if mw.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := mw.client.Disconnect(ctx)
	mw.client = nil
	return err
}
