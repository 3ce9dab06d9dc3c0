package engine

import (
	"context"
	"testing"
	"time"

	"thoth/internal/database"
	"thoth/internal/engine/actors"
	"thoth/internal/models"
	"thoth/internal/posts"
	"thoth/internal/resolve"
	"thoth/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ana = models.Identity{UID: "u-ana", Name: "Ana", Username: "ana"}

func newTestEngine(t *testing.T, timeout time.Duration) (*Engine, *database.MemoryStore) {
	t.Helper()
	store := database.NewMemoryStore()
	require.NoError(t, store.SaveProfile(context.Background(), &models.Profile{
		ID: ana.UID, Name: ana.Name, Username: ana.Username, Email: "ana@uni.example",
	}))
	metrics := utils.NewMetricsCollector()
	e := NewEngine(actor.NewActorSystem(), NewServices(store, nil, nil, nil, metrics), metrics, Options{RequestTimeout: timeout})
	t.Cleanup(e.Stop)
	return e, store
}

func TestAskReturnsResultsAndAppErrors(t *testing.T) {
	e, _ := newTestEngine(t, time.Second)

	result, err := e.Ask(e.GetPostActor(), &actors.CreatePostMsg{Actor: ana, Post: posts.NewPost{Content: "hi"}})
	require.NoError(t, err)
	post := result.(*models.Post)

	result, err = e.Ask(e.GetFeedActor(), &actors.GetFeedMsg{Viewer: ana, Filter: models.FilterAll})
	require.NoError(t, err)
	cards := result.([]*resolve.Card)
	require.Len(t, cards, 1)
	assert.Equal(t, post.ID, cards[0].ID)

	_, err = e.Ask(e.GetPostActor(), &actors.CreatePostMsg{Actor: ana, Post: posts.NewPost{Content: "  "}})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	result, err = e.Ask(e.GetProfileActor(), &actors.GetIdentityMsg{UserID: ana.UID})
	require.NoError(t, err)
	assert.Equal(t, "Ana", result.(models.Identity).Name)
}

func TestAskTimesOutWhenActorNeverAnswers(t *testing.T) {
	e, _ := newTestEngine(t, 100*time.Millisecond)

	_, err := e.Ask(e.GetEventActor(), "not a message the actor knows")
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout))
}
