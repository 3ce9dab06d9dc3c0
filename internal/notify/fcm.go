package notify

import (
	"context"

	"thoth/internal/models"
	"thoth/internal/utils"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DeviceTokens is the profile-store slice FCM delivery needs.
type DeviceTokens interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	RemoveDeviceToken(ctx context.Context, userID, token string) error
}

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMNotifier pushes to every device a user registered and forgets tokens
// Firebase reports as unregistered.
type FCMNotifier struct {
	client multicastSender
	tokens DeviceTokens
}

func NewFCMNotifier(ctx context.Context, credentialsPath string, tokens DeviceTokens) (*FCMNotifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrUpstream, "failed to init Firebase app", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrUpstream, "failed to get messaging client", err)
	}
	utils.Logger.Info("firebase messaging client initialized")
	return &FCMNotifier{client: client, tokens: tokens}, nil
}

func (f *FCMNotifier) Notify(ctx context.Context, recipientID string, n Notification) error {
	profile, err := f.tokens.GetProfile(ctx, recipientID)
	if err != nil {
		return err
	}
	if len(profile.DeviceTokens) == 0 {
		return nil
	}

	message := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: n.Title(),
			Body:  n.Body(),
		},
		Data:   n.Data(),
		Tokens: profile.DeviceTokens,
	}
	response, err := f.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return utils.NewAppError(utils.ErrUpstream, "multicast send failed", err)
	}

	utils.Logger.Debug("fcm multicast sent",
		zap.String("recipient", recipientID),
		zap.Int("success", response.SuccessCount),
		zap.Int("failure", response.FailureCount))

	for i, resp := range response.Responses {
		if resp.Success || i >= len(profile.DeviceTokens) {
			continue
		}
		token := profile.DeviceTokens[i]
		if messaging.IsUnregistered(resp.Error) {
			if err := f.tokens.RemoveDeviceToken(ctx, recipientID, token); err != nil {
				utils.Logger.Warn("failed to prune dead device token", zap.String("recipient", recipientID), zap.Error(err))
			}
			continue
		}
		utils.Logger.Warn("fcm token delivery failed", zap.String("recipient", recipientID), zap.Error(resp.Error))
	}
	return nil
}
