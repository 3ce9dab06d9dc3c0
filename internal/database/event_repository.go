package database

import (
	"context"
	"errors"
	"time"

	"thoth/internal/models"
	"thoth/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoDB) SaveEvent(ctx context.Context, event *models.Event) error {
	event.CreatedAt = nowMillis()
	if event.Participants == nil {
		event.Participants = []string{}
	}
	if event.Interested == nil {
		event.Interested = []string{}
	}
	if _, err := m.Events.InsertOne(ctx, event); err != nil {
		return dbError("failed to save event", err)
	}
	return nil
}

func (m *MongoDB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := m.Events.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFoundError("event", id)
	}
	if err != nil {
		return nil, dbError("failed to get event", err)
	}
	return &event, nil
}

func (m *MongoDB) ListEvents(ctx context.Context, from time.Time, limit int) ([]*models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.Events.Find(ctx, bson.M{"date": bson.M{"$gte": from}}, opts)
	if err != nil {
		return nil, dbError("failed to query events", err)
	}
	defer cursor.Close(ctx)

	var events []*models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, dbError("failed to decode events", err)
	}
	if events == nil {
		events = []*models.Event{}
	}
	return events, nil
}

// AddParticipant joins a user only while the participant list is below the cap.
func (m *MongoDB) AddParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	filter := bson.M{
		"_id":          eventID,
		"participants": bson.M{"$ne": userID},
		"$or": bson.A{
			bson.M{"maxParticipants": bson.M{"$exists": false}},
			bson.M{"maxParticipants": 0},
			bson.M{"$expr": bson.M{"$lt": bson.A{bson.M{"$size": "$participants"}, "$maxParticipants"}}},
		},
	}
	res, err := m.Events.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"participants": userID}})
	if err != nil {
		return false, dbError("failed to join event", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	event, err := m.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	return event.HasParticipant(userID), nil
}

func (m *MongoDB) RemoveParticipant(ctx context.Context, eventID, userID string) error {
	res, err := m.Events.UpdateOne(ctx, bson.M{"_id": eventID}, bson.M{"$pull": bson.M{"participants": userID}})
	return updated(res, err, "event", eventID)
}

func (m *MongoDB) SetInterest(ctx context.Context, eventID, userID string, interested bool) error {
	op := "$pull"
	if interested {
		op = "$addToSet"
	}
	res, err := m.Events.UpdateOne(ctx, bson.M{"_id": eventID}, bson.M{op: bson.M{"interested": userID}})
	return updated(res, err, "event", eventID)
}
