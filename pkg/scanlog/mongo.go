package scanlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// CollectionName is the MongoDB collection holding scan logs.
const CollectionName = "scan_logs"

// Mongo stores logs in a MongoDB collection, one document per scan.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type logDocument struct {
	ScanID    string    `bson:"scan_id"`
	Log       string    `bson:"log"`
	CreatedAt time.Time `bson:"created_at"`
}

// NewMongo connects to uri and ensures the scan_id index exists.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(CollectionName)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "scan_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create scan_id index: %w", err)
	}
	return &Mongo{client: client, coll: coll}, nil
}

func (m *Mongo) Put(ctx context.Context, scanID, text string) error {
	doc := logDocument{ScanID: scanID, Log: Truncate(text), CreatedAt: time.Now().UTC()}
	_, err := m.coll.ReplaceOne(ctx, bson.M{"scan_id": scanID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store log of scan %s: %w", scanID, err)
	}
	return nil
}

func (m *Mongo) Get(ctx context.Context, scanID string) (*model.ScanLog, error) {
	var doc logDocument
	err := m.coll.FindOne(ctx, bson.M{"scan_id": scanID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, bErrors.New(bErrors.ErrCodeNotFound, "log of scan %s not found", scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("get log of scan %s: %w", scanID, err)
	}
	return &model.ScanLog{ScanID: doc.ScanID, Log: doc.Log, CreatedAt: doc.CreatedAt.UTC()}, nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
