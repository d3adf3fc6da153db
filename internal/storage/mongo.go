package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"stockalert/internal/alert"
	logx "stockalert/pkg/logx"
)

const (
	collUsers        = "users"
	collInventory    = "inventory_items"
	collTransactions = "transactions"
)

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    logx.Logger
}

type mongoUser struct {
	ID          bson.RawValue      `bson:"_id"`
	Name        string             `bson:"name"`
	Email       string             `bson:"email"`
	Active      bool               `bson:"active"`
	Preferences *alert.Preferences `bson:"preferences,omitempty"`
}

type mongoItem struct {
	Name       string     `bson:"name"`
	Quantity   int        `bson:"quantity"`
	ExpiryDate *time.Time `bson:"expiryDate,omitempty"`
	Active     bool       `bson:"active"`
}

func openMongo(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	database := strings.TrimSpace(cfg.Database)
	if database == "" {
		database = "inventory"
	}
	client, err := mongo.Connect(
		options.Client().
			ApplyURI(cfg.DSN).
			SetConnectTimeout(10 * time.Second).
			SetMaxPoolSize(8).
			SetRetryReads(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Debug("mongo store opened", logx.String("database", database))
	return &mongoStore{client: client, db: client.Database(database), log: log}, nil
}

func (s *mongoStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *mongoStore) ListRecipients(ctx context.Context) ([]alert.Recipient, error) {
	filter := bson.D{
		{Key: "active", Value: true},
		{Key: "preferences", Value: bson.D{{Key: "$type", Value: "object"}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.db.Collection(collUsers).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []mongoUser
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]alert.Recipient, 0, len(docs))
	for _, d := range docs {
		out = append(out, alert.Recipient{
			ID:          mongoID(d.ID),
			Name:        d.Name,
			Email:       d.Email,
			Active:      d.Active,
			Preferences: d.Preferences,
		})
	}
	return out, nil
}

func (s *mongoStore) LowStockItems(ctx context.Context, below, limit int) ([]alert.InventoryItem, error) {
	filter := bson.D{
		{Key: "active", Value: true},
		{Key: "quantity", Value: bson.D{{Key: "$lt", Value: below}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "quantity", Value: 1}, {Key: "name", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findItems(ctx, filter, opts)
}

func (s *mongoStore) ExpiringItems(ctx context.Context, from, to time.Time, limit int) ([]alert.InventoryItem, error) {
	filter := bson.D{
		{Key: "active", Value: true},
		{Key: "expiryDate", Value: bson.D{{Key: "$gt", Value: from}, {Key: "$lt", Value: to}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "expiryDate", Value: 1}, {Key: "name", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findItems(ctx, filter, opts)
}

func (s *mongoStore) CountTransactionsSince(ctx context.Context, since time.Time) (int, error) {
	n, err := s.db.Collection(collTransactions).CountDocuments(ctx,
		bson.D{{Key: "createdAt", Value: bson.D{{Key: "$gte", Value: since}}}})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *mongoStore) findItems(ctx context.Context, filter bson.D, opts *options.FindOptionsBuilder) ([]alert.InventoryItem, error) {
	cur, err := s.db.Collection(collInventory).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []mongoItem
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]alert.InventoryItem, 0, len(docs))
	for _, d := range docs {
		it := alert.InventoryItem{Name: d.Name, Quantity: d.Quantity, Active: d.Active}
		if d.ExpiryDate != nil {
			it.ExpiryDate = *d.ExpiryDate
		}
		out = append(out, it)
	}
	return out, nil
}

func mongoID(v bson.RawValue) string {
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	return v.String()
}
