package actors

import (
	"context"
	"testing"
	"time"

	"thoth/internal/api"
	"thoth/internal/database"
	"thoth/internal/events"
	"thoth/internal/feed"
	"thoth/internal/models"
	"thoth/internal/posts"
	"thoth/internal/profiles"
	"thoth/internal/resolve"
	"thoth/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	ana = models.Identity{UID: "u-ana", Name: "Ana", Username: "ana"}
	bia = models.Identity{UID: "u-bia", Name: "Bia", Username: "bia"}
)

func spawn(system *actor.ActorSystem, producer func() actor.Actor) *actor.PID {
	return system.Root.Spawn(actor.PropsFromProducer(producer))
}

func ask(t *testing.T, system *actor.ActorSystem, pid *actor.PID, msg interface{}) interface{} {
	t.Helper()
	result, err := system.Root.RequestFuture(pid, msg, 5*time.Second).Result()
	require.NoError(t, err)
	return result
}

func newPostActor(store *database.MemoryStore) func() actor.Actor {
	return func() actor.Actor {
		return NewPostActor(posts.NewService(store, nil, nil).WithRepairMinAge(0), resolve.NewResolver(store, store, store),
			utils.NewMetricsCollector(), time.Second, 0)
	}
}

func TestProfileActorRegisterAndLogin(t *testing.T) {
	system := actor.NewActorSystem()
	svc := profiles.NewService(database.NewMemoryStore(), nil).WithBcryptCost(bcrypt.MinCost)
	pid := spawn(system, func() actor.Actor { return NewProfileActor(svc, utils.NewMetricsCollector(), time.Second) })

	result := ask(t, system, pid, &RegisterUserMsg{Registration: profiles.Registration{
		Username: "testuser", Name: "Test User", Email: "test@example.com", Password: "password123",
	}})
	profile, ok := result.(*models.Profile)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, "testuser", profile.Username)

	login, ok := ask(t, system, pid, &LoginMsg{Email: "test@example.com", Password: "password123"}).(*api.LoginResponse)
	require.True(t, ok)
	assert.True(t, login.Success)
	assert.Equal(t, profile.ID, login.UserID)

	bad, ok := ask(t, system, pid, &LoginMsg{Email: "test@example.com", Password: "wrongpassword"}).(*api.LoginResponse)
	require.True(t, ok)
	assert.False(t, bad.Success)
	assert.Equal(t, "Invalid credentials", bad.Error)

	dup := ask(t, system, pid, &RegisterUserMsg{Registration: profiles.Registration{
		Username: "other", Name: "Other", Email: "TEST@example.com", Password: "password123",
	}})
	appErr, ok := dup.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrDuplicate, appErr.Code)
}

func TestPostActorRepostResolvesToRoot(t *testing.T) {
	system := actor.NewActorSystem()
	store := database.NewMemoryStore()
	pid := spawn(system, newPostActor(store))

	orig := ask(t, system, pid, &CreatePostMsg{Actor: ana, Post: posts.NewPost{Content: "hello"}}).(*models.Post)
	wrapper := ask(t, system, pid, &RepostMsg{Actor: bia, PostID: orig.ID}).(*models.Post)
	assert.Equal(t, orig.ID, wrapper.OriginalPostID)

	liked := ask(t, system, pid, &LikePostMsg{Actor: ana, PostID: wrapper.ID, Liked: true}).(*InteractionResult)
	assert.Equal(t, orig.ID, liked.TargetID)

	card := ask(t, system, pid, &GetPostMsg{Viewer: ana, PostID: wrapper.ID}).(*resolve.Card)
	assert.Equal(t, resolve.StateResolved, card.State)
	assert.Equal(t, 1, card.Post.Likes)
	assert.True(t, card.Viewer.Liked)
	assert.Equal(t, wrapper.ID, card.Targets.Delete)

	assert.Equal(t, 2, ask(t, system, pid, &GetCountsMsg{}))
}

func TestPostActorRespondsWithAppErrors(t *testing.T) {
	system := actor.NewActorSystem()
	store := database.NewMemoryStore()
	pid := spawn(system, newPostActor(store))

	orig := ask(t, system, pid, &CreatePostMsg{Actor: ana, Post: posts.NewPost{Content: "mine"}}).(*models.Post)

	appErr, ok := ask(t, system, pid, &DeletePostMsg{Actor: bia, PostID: orig.ID}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrForbidden, appErr.Code)

	appErr, ok = ask(t, system, pid, &GetPostMsg{Viewer: bia, PostID: "missing"}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	_, ok = ask(t, system, pid, &DeletePostMsg{Actor: ana, PostID: orig.ID}).(*Ack)
	assert.True(t, ok)
}

func TestPostActorRepairMsg(t *testing.T) {
	system := actor.NewActorSystem()
	store := database.NewMemoryStore()
	ctx := context.Background()
	pid := spawn(system, newPostActor(store))

	orig := ask(t, system, pid, &CreatePostMsg{Actor: ana, Post: posts.NewPost{Content: "root"}}).(*models.Post)
	// A claim whose wrapper was never written.
	_, err := store.AddRepostRef(ctx, orig.ID, models.RepostRef{UID: bia.UID, Name: bia.Name})
	require.NoError(t, err)
	require.NoError(t, store.SaveIntent(ctx, &models.Intent{
		ID: "i-1", Kind: models.IntentRepost, PostID: "never-written", RootID: orig.ID, ActorID: bia.UID,
	}))

	report := ask(t, system, pid, &RepairMsg{}).(posts.RepairReport)
	assert.Equal(t, posts.RepairReport{Repaired: 1}, report)

	root, err := store.GetPost(ctx, orig.ID)
	require.NoError(t, err)
	assert.Empty(t, root.RepostedBy)
}

func TestPostActorRepairsUnderSteadyTraffic(t *testing.T) {
	system := actor.NewActorSystem()
	store := database.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveIntent(ctx, &models.Intent{
		ID: "i-1", Kind: models.IntentDeletePost, PostID: "already-gone", ActorID: ana.UID,
	}))

	pid := spawn(system, func() actor.Actor {
		return NewPostActor(posts.NewService(store, nil, nil).WithRepairMinAge(0), resolve.NewResolver(store, store, store),
			utils.NewMetricsCollector(), time.Second, 50*time.Millisecond)
	})

	// Keep the mailbox busy more often than the repair interval.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				system.Root.Send(pid, &GetCountsMsg{})
			}
		}
	}()

	assert.Eventually(t, func() bool {
		pending, err := store.ListPendingIntents(ctx, time.Time{}, 10)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeedActorResolvesAndSnapshotsBookmarks(t *testing.T) {
	system := actor.NewActorSystem()
	store := database.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []models.Identity{ana, bia} {
		require.NoError(t, store.SaveProfile(ctx, &models.Profile{ID: id.UID, Name: id.Name, Username: id.Username, Email: id.Username + "@uni.example"}))
	}
	require.NoError(t, store.AddConnection(ctx, ana.UID, bia.UID))

	svc := posts.NewService(store, nil, nil)
	resolver := resolve.NewResolver(store, store, store)
	pid := spawn(system, func() actor.Actor {
		return NewFeedActor(feed.NewQuery(store, nil, nil), resolver, utils.NewMetricsCollector(), time.Second)
	})

	p, err := svc.CreatePost(ctx, bia, posts.NewPost{Content: "from bia"})
	require.NoError(t, err)
	_, err = svc.ToggleBookmark(ctx, ana, p.ID, true)
	require.NoError(t, err)

	cards := ask(t, system, pid, &GetFeedMsg{Viewer: ana, Filter: models.FilterAll}).([]*resolve.Card)
	require.Len(t, cards, 1)
	assert.True(t, cards[0].Viewer.Bookmarked)

	// The bookmark keeps the content it was saved with.
	newContent := "edited"
	require.NoError(t, svc.UpdatePost(ctx, bia, p.ID, models.PostPatch{Content: &newContent}))
	saved := ask(t, system, pid, &GetFeedMsg{Viewer: ana, Filter: models.FilterBookmarks}).([]*resolve.Card)
	require.Len(t, saved, 1)
	assert.Equal(t, "from bia", saved[0].Post.Content)
}

func TestEventActorJoinRespectsCapacity(t *testing.T) {
	system := actor.NewActorSystem()
	store := database.NewMemoryStore()
	pid := spawn(system, func() actor.Actor {
		return NewEventActor(events.NewService(store), utils.NewMetricsCollector(), time.Second)
	})

	event := ask(t, system, pid, &CreateEventMsg{Actor: ana, Event: events.NewEvent{
		Title: "Study group", Type: models.EventEstudo, Date: time.Now().Add(24 * time.Hour), MaxParticipants: 1,
	}}).(*models.Event)

	joined := ask(t, system, pid, &JoinEventMsg{Actor: ana, EventID: event.ID}).(*models.Event)
	assert.Equal(t, []string{ana.UID}, joined.Participants)

	appErr, ok := ask(t, system, pid, &JoinEventMsg{Actor: bia, EventID: event.ID}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrForbidden, appErr.Code)

	list := ask(t, system, pid, &ListEventsMsg{}).([]*models.Event)
	assert.Len(t, list, 1)
}
