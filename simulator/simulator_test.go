package simulator

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"thoth/internal/database"
	"thoth/internal/engine"
	"thoth/internal/handlers"
	"thoth/internal/middleware"
	"thoth/internal/notify"
	"thoth/internal/resolve"
	"thoth/internal/utils"
	"thoth/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngineServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := database.NewMemoryStore()
	metrics := utils.NewMetricsCollector()
	hub := websocket.NewHub()
	go hub.Run(ctx)

	svc := engine.NewServices(store, notify.HubNotifier{Hub: hub}, nil, nil, metrics)
	eng := engine.NewEngine(actor.NewActorSystem(), svc, metrics, engine.Options{RequestTimeout: 2 * time.Second})
	t.Cleanup(eng.Stop)

	s := &handlers.Server{
		Engine:   eng,
		Metrics:  metrics,
		Auth:     middleware.NewAuth("sim-secret", time.Hour),
		Hub:      hub,
		Resolver: svc.Resolver,
		Posts:    store,
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestSimulationAgainstEngine(t *testing.T) {
	srv := newEngineServer(t)

	cfg := DefaultConfig()
	cfg.NumUsers = 4
	cfg.EngineURL = srv.URL
	cfg.TickInterval = 20 * time.Millisecond
	cfg.PostFrequency = 3600 * 50 // roughly one post per user per tick
	cfg.InteractionFrequency = 3600 * 50
	cfg.DisconnectRate = 0

	sim := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	require.NoError(t, sim.Run(ctx))

	m := sim.GetMetrics()
	assert.Equal(t, 4, m.TotalUsers)
	assert.Positive(t, m.TotalPosts)
	assert.Positive(t, m.Likes+m.Bookmarks+m.Reposts+m.InFlightRejected)
}

func TestDuplicateRepostIsCountedNotRolledBack(t *testing.T) {
	srv := newEngineServer(t)
	sim := New(SimConfig{NumUsers: 2, EngineURL: srv.URL})
	ctx := context.Background()
	require.NoError(t, sim.createUsers(ctx))
	require.Len(t, sim.users, 2)
	author, reader := sim.users[0], sim.users[1]

	require.NoError(t, sim.client.do(ctx, "POST", "/user/connections", reader.Token, map[string]string{"targetId": author.ID}, nil))
	require.NoError(t, sim.client.do(ctx, "POST", "/posts", author.Token, map[string]string{"content": "repost me"}, nil))

	cards, err := sim.loadFeed(ctx, reader)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, resolve.StateOriginal, cards[0].State)

	sim.repost(ctx, reader, cards[0])
	sim.repost(ctx, reader, cards[0])

	m := sim.GetMetrics()
	assert.Equal(t, 1, m.Reposts)
	assert.Equal(t, 1, m.DuplicateReposts)
	assert.Zero(t, m.RolledBack)
	assert.True(t, reader.controller.State(cards[0].Targets.Like).Reposted)
}

func TestDecodeErrorKeepsCode(t *testing.T) {
	err := decodeError(409, []byte(`{"code":"DUPLICATE","error":"already reposted"}`))
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicate))

	err = decodeError(500, []byte("oops"))
	assert.True(t, utils.IsErrorCode(err, utils.ErrUpstream))
}
