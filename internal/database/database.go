// internal/database/database.go
package database

import (
	"context"
	"fmt"
	"time"

	"thoth/internal/config"
	"thoth/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type MongoDB struct {
	Client    *mongo.Client
	Posts     *mongo.Collection
	Bookmarks *mongo.Collection
	Profiles  *mongo.Collection
	Events    *mongo.Collection
	Intents   *mongo.Collection
}

func NewMongoDB(ctx context.Context, uri, dbName string) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	utils.Logger.Info("connected to MongoDB", zap.String("database", dbName))

	db := client.Database(dbName)
	m := &MongoDB{
		Client:    client,
		Posts:     db.Collection("posts"),
		Bookmarks: db.Collection("bookmarks"),
		Profiles:  db.Collection("profiles"),
		Events:    db.Collection("events"),
		Intents:   db.Collection("intents"),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		m.Posts: {
			{Keys: bson.D{{Key: "author.id", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "originalPostId", Value: 1}}},
		},
		m.Bookmarks: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "bookmarkedAt", Value: -1}}},
		},
		m.Profiles: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		m.Events: {
			{Keys: bson.D{{Key: "date", Value: 1}}},
		},
		m.Intents: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// Open returns the Store selected by cfg.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		utils.Logger.Warn("using in-memory document store; data is lost on restart")
		return NewMemoryStore(), nil
	case "mongodb":
		return NewMongoDB(ctx, cfg.URI, cfg.Name)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

func dbError(message string, err error) error {
	return utils.NewAppError(utils.ErrDatabase, message, err)
}

// updated maps an update result to NotFound when nothing matched.
func updated(res *mongo.UpdateResult, err error, what, id string) error {
	if err != nil {
		return dbError("failed to update "+what, err)
	}
	if res.MatchedCount == 0 {
		return utils.NewNotFoundError(what, id)
	}
	return nil
}

func nowMillis() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
