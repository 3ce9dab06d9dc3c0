package database

import (
	"context"
	"time"

	"thoth/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoDB) SaveIntent(ctx context.Context, intent *models.Intent) error {
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = nowMillis()
	}
	if intent.Status == "" {
		intent.Status = models.IntentPending
	}
	if _, err := m.Intents.InsertOne(ctx, intent); err != nil {
		return dbError("failed to save intent", err)
	}
	return nil
}

func (m *MongoDB) CompleteIntent(ctx context.Context, id string) error {
	res, err := m.Intents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":      models.IntentDone,
		"completedAt": nowMillis(),
	}})
	return updated(res, err, "intent", id)
}

func (m *MongoDB) FailIntent(ctx context.Context, id, reason string, final bool) error {
	set := bson.M{"error": reason}
	if final {
		set["status"] = models.IntentFailed
	}
	res, err := m.Intents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": set,
		"$inc": bson.M{"attempts": 1},
	})
	return updated(res, err, "intent", id)
}

func (m *MongoDB) ListPendingIntents(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Intent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	filter := bson.M{"status": models.IntentPending}
	if !createdBefore.IsZero() {
		filter["createdAt"] = bson.M{"$lte": createdBefore}
	}
	cursor, err := m.Intents.Find(ctx, filter, opts)
	if err != nil {
		return nil, dbError("failed to query intents", err)
	}
	defer cursor.Close(ctx)

	var intents []*models.Intent
	if err := cursor.All(ctx, &intents); err != nil {
		return nil, dbError("failed to decode intents", err)
	}
	return intents, nil
}
