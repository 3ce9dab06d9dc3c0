package database

import (
	"context"
	"errors"

	"thoth/internal/models"
	"thoth/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoDB) SaveProfile(ctx context.Context, profile *models.Profile) error {
	now := nowMillis()
	profile.CreatedAt, profile.UpdatedAt = now, now
	if profile.Connections == nil {
		profile.Connections = []string{}
	}
	if profile.DeviceTokens == nil {
		profile.DeviceTokens = []string{}
	}

	if _, err := m.Profiles.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewAppError(utils.ErrDuplicate, "email or username already registered", err)
		}
		return dbError("failed to save profile", err)
	}
	return nil
}

func (m *MongoDB) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return m.findProfile(ctx, bson.M{"_id": id}, id)
}

func (m *MongoDB) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return m.findProfile(ctx, bson.M{"email": email}, email)
}

func (m *MongoDB) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	return m.findProfile(ctx, bson.M{"username": username}, username)
}

func (m *MongoDB) findProfile(ctx context.Context, filter bson.M, key string) (*models.Profile, error) {
	var profile models.Profile
	err := m.Profiles.FindOne(ctx, filter).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFoundError("profile", key)
	}
	if err != nil {
		return nil, dbError("failed to get profile", err)
	}
	return &profile, nil
}

func (m *MongoDB) UpdateProfile(ctx context.Context, id string, patch models.ProfilePatch) error {
	set := bson.M{"updatedAt": nowMillis()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Avatar != nil {
		set["avatar"] = *patch.Avatar
	}
	if patch.Bio != nil {
		set["bio"] = *patch.Bio
	}
	res, err := m.Profiles.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return updated(res, err, "profile", id)
}

func (m *MongoDB) AddConnection(ctx context.Context, userID, targetID string) error {
	return m.updateProfileArray(ctx, userID, "$addToSet", "connections", targetID)
}

func (m *MongoDB) RemoveConnection(ctx context.Context, userID, targetID string) error {
	return m.updateProfileArray(ctx, userID, "$pull", "connections", targetID)
}

func (m *MongoDB) GetConnections(ctx context.Context, userID string) ([]string, error) {
	var doc struct {
		Connections []string `bson:"connections"`
	}
	opts := options.FindOne().SetProjection(bson.M{"connections": 1})
	err := m.Profiles.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFoundError("profile", userID)
	}
	if err != nil {
		return nil, dbError("failed to get connections", err)
	}
	if doc.Connections == nil {
		return []string{}, nil
	}
	return doc.Connections, nil
}

func (m *MongoDB) AddDeviceToken(ctx context.Context, userID, token string) error {
	return m.updateProfileArray(ctx, userID, "$addToSet", "deviceTokens", token)
}

func (m *MongoDB) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	return m.updateProfileArray(ctx, userID, "$pull", "deviceTokens", token)
}

func (m *MongoDB) updateProfileArray(ctx context.Context, userID, op, field, value string) error {
	update := bson.M{
		op:     bson.M{field: value},
		"$set": bson.M{"updatedAt": nowMillis()},
	}
	res, err := m.Profiles.UpdateOne(ctx, bson.M{"_id": userID}, update)
	return updated(res, err, "profile", userID)
}
