package notify

import (
	"context"
	"encoding/json"
)

// DirectSender delivers a payload to every live session of a user.
type DirectSender interface {
	SendDirectMessage(userID, topic string, payload []byte)
}

// TopicNotices is the websocket topic notifications are published on.
const TopicNotices = "notices"

// HubNotifier pushes notifications to the author's open websocket sessions.
type HubNotifier struct {
	Hub DirectSender
}

type hubEnvelope struct {
	Type         string       `json:"type"`
	Notification Notification `json:"notification"`
}

func (h HubNotifier) Notify(ctx context.Context, recipientID string, n Notification) error {
	payload, err := json.Marshal(hubEnvelope{Type: "notification", Notification: n})
	if err != nil {
		return err
	}
	h.Hub.SendDirectMessage(recipientID, TopicNotices, payload)
	return nil
}
