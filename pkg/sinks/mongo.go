package sinks

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/utils"
)

// Mongo inserts each record as a document into one collection.
type Mongo struct {
	cfg        config.SinkConfig
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongo(cfg config.SinkConfig) *Mongo {
	if cfg.Collection == "" {
		cfg.Collection = "hl7_messages"
	}
	return &Mongo{cfg: cfg}
}

func (m *Mongo) Setup(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.cfg.URI))
	if err != nil {
		return fmt.Errorf("mongo sink: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongo sink: ping: %w", err)
	}
	m.client = client
	m.collection = client.Database(m.cfg.Database).Collection(m.cfg.Collection)
	return nil
}

func (m *Mongo) StoreBatch(ctx context.Context, batch []utils.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if m.collection == nil {
		return fmt.Errorf("mongo sink: Setup was not called")
	}
	docs := make([]any, 0, len(batch))
	for _, rec := range batch {
		docs = append(docs, rec)
	}
	_, err := m.collection.InsertMany(ctx, docs)
	return err
}

func (m *Mongo) StoreSingle(ctx context.Context, rec utils.Record) error {
	return m.StoreBatch(ctx, []utils.Record{rec})
}

func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(context.Background())
}

var _ contracts.Loader = (*Mongo)(nil)
