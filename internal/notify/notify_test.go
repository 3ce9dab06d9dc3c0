package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"thoth/internal/models"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*models.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTokens) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}

type fakeSender struct {
	sent     *messaging.MulticastMessage
	response *messaging.BatchResponse
	err      error
}

func (f *fakeSender) SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.sent = message
	return f.response, f.err
}

type recordingHub struct {
	userID, topic string
	payload       []byte
}

func (r *recordingHub) SendDirectMessage(userID, topic string, payload []byte) {
	r.userID, r.topic, r.payload = userID, topic, payload
}

func TestNotificationText(t *testing.T) {
	n := Notification{Kind: KindLike, ActorName: "Bia", Excerpt: "Prova de cálculo"}
	assert.Equal(t, "New like", n.Title())
	assert.Equal(t, "Bia liked your post: Prova de cálculo", n.Body())
	assert.Equal(t, "like", n.Data()["kind"])

	assert.Equal(t, "abc…", Excerpt("abcdef", 3))
	assert.Equal(t, "abc", Excerpt("abc", 3))
}

func TestFCMSkipsUsersWithoutDevices(t *testing.T) {
	tokens := new(mockTokens)
	tokens.On("GetProfile", mock.Anything, "u1").Return(&models.Profile{ID: "u1"}, nil)
	sender := &fakeSender{}

	f := &FCMNotifier{client: sender, tokens: tokens}
	require.NoError(t, f.Notify(context.Background(), "u1", Notification{Kind: KindLike}))
	assert.Nil(t, sender.sent)
}

func TestFCMPrunesUnregisteredTokens(t *testing.T) {
	tokens := new(mockTokens)
	tokens.On("GetProfile", mock.Anything, "u1").
		Return(&models.Profile{ID: "u1", DeviceTokens: []string{"good", "stale"}}, nil)
	sender := &fakeSender{response: &messaging.BatchResponse{
		SuccessCount: 1,
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			{Success: true, MessageID: "m1"},
			{Success: false, Error: errors.New("some transient failure")},
		},
	}}

	f := &FCMNotifier{client: sender, tokens: tokens}
	require.NoError(t, f.Notify(context.Background(), "u1", Notification{Kind: KindRepost, ActorName: "Caio"}))

	require.NotNil(t, sender.sent)
	assert.Equal(t, []string{"good", "stale"}, sender.sent.Tokens)
	assert.Equal(t, "New repost", sender.sent.Notification.Title)
	// A transient failure keeps the token.
	tokens.AssertNotCalled(t, "RemoveDeviceToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestFCMSendFailureIsUpstreamError(t *testing.T) {
	tokens := new(mockTokens)
	tokens.On("GetProfile", mock.Anything, "u1").
		Return(&models.Profile{ID: "u1", DeviceTokens: []string{"t"}}, nil)
	f := &FCMNotifier{client: &fakeSender{err: errors.New("network")}, tokens: tokens}

	assert.Error(t, f.Notify(context.Background(), "u1", Notification{Kind: KindLike}))
}

func TestHubNotifierAndMulti(t *testing.T) {
	hub := &recordingHub{}
	m := Multi{Noop{}, HubNotifier{Hub: hub}}

	require.NoError(t, m.Notify(context.Background(), "u9", Notification{Kind: KindLike, PostID: "p1"}))
	assert.Equal(t, "u9", hub.userID)
	assert.Equal(t, TopicNotices, hub.topic)

	var env map[string]any
	require.NoError(t, json.Unmarshal(hub.payload, &env))
	assert.Equal(t, "notification", env["type"])
}
