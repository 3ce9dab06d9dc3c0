package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"thoth/internal/models"
	"thoth/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickClock struct {
	t time.Time
}

func (c *tickClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore() *MemoryStore {
	s := NewMemoryStore()
	clock := &tickClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s.SetClock(clock.now)
	return s
}

func newPost(id, authorID string) *models.Post {
	return &models.Post{
		ID:       id,
		Author:   models.Author{ID: authorID, Name: "Author " + authorID},
		Content:  "content of " + id,
		PostType: models.PostTypeGeneral,
	}
}

func TestInsertPostAssignsTimestampsAndEmptySets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	p := newPost("p1", "u1")
	require.NoError(t, s.InsertPost(ctx, p))

	got, err := s.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.Equal(t, 0, got.Likes)
	assert.Equal(t, []string{}, got.LikedBy)
	assert.Equal(t, []models.RepostRef{}, got.RepostedBy)

	err = s.InsertPost(ctx, newPost("p1", "u1"))
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicate))
}

func TestInsertPostRejectsMalformedUnion(t *testing.T) {
	s := newTestStore()
	p := newPost("r1", "u1")
	p.OriginalPostID = "p1"

	err := s.InsertPost(context.Background(), p)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestSetLikeKeepsCounterAndMembershipTogether(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.InsertPost(ctx, newPost("p1", "u1")))

	changed, err := s.SetLike(ctx, "p1", "u2", true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SetLike(ctx, "p1", "u2", true)
	require.NoError(t, err)
	assert.False(t, changed, "second like is a no-op")

	got, _ := s.GetPost(ctx, "p1")
	assert.Equal(t, 1, got.Likes)
	assert.Equal(t, []string{"u2"}, got.LikedBy)

	changed, err = s.SetLike(ctx, "p1", "u2", false)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.SetLike(ctx, "p1", "u2", false)
	require.NoError(t, err)
	assert.False(t, changed)

	got, _ = s.GetPost(ctx, "p1")
	assert.Equal(t, 0, got.Likes)
	assert.Empty(t, got.LikedBy)

	_, err = s.SetLike(ctx, "missing", "u2", true)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestRepostRefsAreUniquePerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.InsertPost(ctx, newPost("p1", "u1")))

	added, err := s.AddRepostRef(ctx, "p1", models.RepostRef{UID: "u2", Name: "B"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddRepostRef(ctx, "p1", models.RepostRef{UID: "u2", Name: "B renamed"})
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, s.RemoveRepostRef(ctx, "p1", "u2"))
	got, _ := s.GetPost(ctx, "p1")
	assert.Empty(t, got.RepostedBy)
}

func TestFindPostsByAuthorsCapAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertPost(ctx, newPost(fmt.Sprintf("p%d", i), fmt.Sprintf("u%d", i%2))))
	}

	posts, err := s.FindPostsByAuthors(ctx, []string{"u0"}, 0)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "p4", posts[0].ID, "newest first")
	assert.Equal(t, "p0", posts[2].ID)

	posts, err = s.FindPostsByAuthors(ctx, []string{"u0", "u1"}, 2)
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	ids := make([]string, MaxInValues+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
	}
	_, err = s.FindPostsByAuthors(ctx, ids, 10)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	_, err = s.FindPostsByAuthors(ctx, ids[:MaxInValues], 10)
	assert.NoError(t, err)
}

func TestFindRepostsAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	root := newPost("p1", "u1")
	require.NoError(t, s.InsertPost(ctx, root))

	ts := root.CreatedAt
	wrapper := newPost("r1", "u2")
	wrapper.OriginalPostID = "p1"
	wrapper.OriginalAuthor = &root.Author
	wrapper.OriginalTimestamp = &ts
	require.NoError(t, s.InsertPost(ctx, wrapper))

	reposts, err := s.FindReposts(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, reposts, 1)
	assert.Equal(t, "r1", reposts[0].ID)

	content := "edited"
	require.NoError(t, s.UpdatePost(ctx, "p1", models.PostPatch{Content: &content}))
	got, _ := s.GetPost(ctx, "p1")
	assert.Equal(t, "edited", got.Content)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	blank := ""
	err = s.UpdatePost(ctx, "p1", models.PostPatch{Content: &blank})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	err = s.UpdatePost(ctx, "nope", models.PostPatch{Content: &content})
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestWatchPostDeliversChangesThenDeletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore()
	require.NoError(t, s.InsertPost(ctx, newPost("p1", "u1")))

	events, err := s.WatchPost(ctx, "p1")
	require.NoError(t, err)

	first := <-events
	require.NotNil(t, first.Post)
	assert.Equal(t, 0, first.Post.Likes)

	_, err = s.SetLike(ctx, "p1", "u2", true)
	require.NoError(t, err)
	second := <-events
	require.NotNil(t, second.Post)
	assert.Equal(t, 1, second.Post.Likes)

	require.NoError(t, s.DeletePost(ctx, "p1"))
	last := <-events
	assert.True(t, last.Deleted)
	assert.Nil(t, last.Post)

	_, open := <-events
	assert.False(t, open, "channel closes after deletion")
}

func TestWatchPostMissingAndCancel(t *testing.T) {
	s := newTestStore()
	events, err := s.WatchPost(context.Background(), "ghost")
	require.NoError(t, err)
	ev := <-events
	assert.True(t, ev.Deleted)
	_, open := <-events
	assert.False(t, open)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.InsertPost(ctx, newPost("p1", "u1")))
	events, err = s.WatchPost(ctx, "p1")
	require.NoError(t, err)
	<-events
	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestBookmarksNewestFirstAndIndependent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.PutBookmark(ctx, &models.Bookmark{ID: "p1", UserID: "u1", Content: "one"}))
	require.NoError(t, s.PutBookmark(ctx, &models.Bookmark{ID: "p2", UserID: "u1", Content: "two"}))
	require.NoError(t, s.PutBookmark(ctx, &models.Bookmark{ID: "p1", UserID: "u2", Content: "other user"}))

	list, err := s.ListBookmarks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].ID)
	assert.Equal(t, "p1", list[1].ID)

	require.NoError(t, s.DeleteBookmark(ctx, "u1", "p1"))
	list, _ = s.ListBookmarks(ctx, "u1")
	assert.Len(t, list, 1)

	err = s.DeleteBookmark(ctx, "u1", "p1")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestProfilesAndConnections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.SaveProfile(ctx, &models.Profile{ID: "u1", Username: "ana", Name: "Ana", Email: "ana@uni.br"}))

	err := s.SaveProfile(ctx, &models.Profile{ID: "u2", Username: "ana", Name: "Other", Email: "x@uni.br"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicate))

	require.NoError(t, s.AddConnection(ctx, "u1", "u3"))
	require.NoError(t, s.AddConnection(ctx, "u1", "u2"))
	require.NoError(t, s.AddConnection(ctx, "u1", "u3"))
	conns, err := s.GetConnections(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2"}, conns)

	require.NoError(t, s.RemoveConnection(ctx, "u1", "u3"))
	conns, _ = s.GetConnections(ctx, "u1")
	assert.Equal(t, []string{"u2"}, conns)

	p, err := s.GetProfileByEmail(ctx, "ANA@uni.br")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)

	name := "Ana Clara"
	require.NoError(t, s.UpdateProfile(ctx, "u1", models.ProfilePatch{Name: &name}))
	p, _ = s.GetProfile(ctx, "u1")
	assert.Equal(t, "Ana Clara", p.Name)
}

func TestEventCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.SaveEvent(ctx, &models.Event{ID: "e1", Title: "Workshop", Type: models.EventWorkshop, Date: time.Now(), CreatorID: "u1", MaxParticipants: 1}))

	joined, err := s.AddParticipant(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.True(t, joined)

	joined, err = s.AddParticipant(ctx, "e1", "u2")
	require.NoError(t, err)
	assert.False(t, joined, "event is full")

	joined, err = s.AddParticipant(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.True(t, joined, "rejoining is idempotent")

	require.NoError(t, s.SetInterest(ctx, "e1", "u2", true))
	e, _ := s.GetEvent(ctx, "e1")
	assert.Equal(t, []string{"u2"}, e.Interested)
}

func TestIntentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.SaveIntent(ctx, &models.Intent{ID: "i1", Kind: models.IntentDeletePost, PostID: "p1"}))
	require.NoError(t, s.SaveIntent(ctx, &models.Intent{ID: "i2", Kind: models.IntentRepost, PostID: "r1"}))

	pending, err := s.ListPendingIntents(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "i1", pending[0].ID)

	require.NoError(t, s.CompleteIntent(ctx, "i1"))
	require.NoError(t, s.FailIntent(ctx, "i2", "boom", false))
	pending, _ = s.ListPendingIntents(ctx, time.Time{}, 0)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, s.FailIntent(ctx, "i2", "boom", true))
	pending, _ = s.ListPendingIntents(ctx, time.Time{}, 0)
	assert.Empty(t, pending)
}

func TestListPendingIntentsHonoursCutoff(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveIntent(ctx, &models.Intent{ID: "old", Kind: models.IntentRepost, CreatedAt: base}))
	require.NoError(t, s.SaveIntent(ctx, &models.Intent{ID: "fresh", Kind: models.IntentRepost, CreatedAt: base.Add(time.Minute)}))

	pending, err := s.ListPendingIntents(ctx, base.Add(30*time.Second), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "old", pending[0].ID)

	pending, _ = s.ListPendingIntents(ctx, time.Time{}, 0)
	assert.Len(t, pending, 2)
}
