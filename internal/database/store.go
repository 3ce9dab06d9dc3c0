package database

import (
	"context"
	"fmt"
	"time"

	"thoth/internal/models"
	"thoth/internal/utils"
)

// MaxInValues is the most author ids a single allow-list query accepts.
const MaxInValues = 30

// PostEvent is one push from a live post subscription. Post is nil when Deleted.
type PostEvent struct {
	PostID  string
	Post    *models.Post
	Deleted bool
}

// PostStore is the post half of the document store. Every mutation touches a
// single document; membership arrays and their counters move in one update.
type PostStore interface {
	// InsertPost assigns createdAt/updatedAt and writes a new document.
	InsertPost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// UpdatePost shallow-merges patch and bumps updatedAt.
	UpdatePost(ctx context.Context, id string, patch models.PostPatch) error
	DeletePost(ctx context.Context, id string) error
	// SetLike adds or removes userID from likedBy together with the likes
	// counter. changed is false when the membership already matched.
	SetLike(ctx context.Context, postID, userID string, liked bool) (changed bool, err error)
	// AddRepostRef appends ref unless ref.UID is already present.
	AddRepostRef(ctx context.Context, postID string, ref models.RepostRef) (added bool, err error)
	RemoveRepostRef(ctx context.Context, postID, userID string) error
	// FindPostsByAuthors returns posts by any of authorIDs, newest first. At
	// most MaxInValues ids are accepted.
	FindPostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]*models.Post, error)
	FindReposts(ctx context.Context, originalID string) ([]*models.Post, error)
	// WatchPost emits the current state and then every change of one post. The
	// channel closes after a deletion or when ctx ends.
	WatchPost(ctx context.Context, id string) (<-chan PostEvent, error)
	CountPosts(ctx context.Context) (int64, error)
}

type BookmarkStore interface {
	// PutBookmark writes the snapshot keyed by (userID, bookmark.ID) and stamps bookmarkedAt.
	PutBookmark(ctx context.Context, bookmark *models.Bookmark) error
	DeleteBookmark(ctx context.Context, userID, postID string) error
	// ListBookmarks returns the user's snapshots, newest bookmark first.
	ListBookmarks(ctx context.Context, userID string) ([]*models.Bookmark, error)
}

type ProfileStore interface {
	SaveProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, id string, patch models.ProfilePatch) error
	AddConnection(ctx context.Context, userID, targetID string) error
	RemoveConnection(ctx context.Context, userID, targetID string) error
	// GetConnections returns connection ids in the order they were made.
	GetConnections(ctx context.Context, userID string) ([]string, error)
	AddDeviceToken(ctx context.Context, userID, token string) error
	RemoveDeviceToken(ctx context.Context, userID, token string) error
}

type EventStore interface {
	SaveEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	// ListEvents returns events dated at or after from, soonest first.
	ListEvents(ctx context.Context, from time.Time, limit int) ([]*models.Event, error)
	// AddParticipant joins userID unless the event is full. joined is true if
	// the user is a participant afterwards.
	AddParticipant(ctx context.Context, eventID, userID string) (joined bool, err error)
	RemoveParticipant(ctx context.Context, eventID, userID string) error
	SetInterest(ctx context.Context, eventID, userID string, interested bool) error
}

type IntentStore interface {
	SaveIntent(ctx context.Context, intent *models.Intent) error
	CompleteIntent(ctx context.Context, id string) error
	// FailIntent records an attempt error. final marks the intent failed so it
	// is no longer listed as pending.
	FailIntent(ctx context.Context, id, reason string, final bool) error
	// ListPendingIntents returns pending intents created no later than createdBefore,
	// oldest first. A zero createdBefore lists all of them.
	ListPendingIntents(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Intent, error)
}

// Store is the full document-store contract.
type Store interface {
	PostStore
	BookmarkStore
	ProfileStore
	EventStore
	IntentStore
	Close(ctx context.Context) error
}

func tooManyAuthors(n int) error {
	return utils.NewAppError(utils.ErrInvalidInput,
		fmt.Sprintf("allow-list query accepts at most %d author ids, got %d", MaxInValues, n), nil)
}

func normalizePost(post *models.Post) {
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if post.Images == nil {
		post.Images = []string{}
	}
	if post.LikedBy == nil {
		post.LikedBy = []string{}
	}
	if post.RepostedBy == nil {
		post.RepostedBy = []models.RepostRef{}
	}
}

// checkPost validates a document crossing the store boundary.
func checkPost(post *models.Post, inbound bool) error {
	if err := models.ValidatePost(post); err != nil {
		if inbound {
			return utils.NewAppError(utils.ErrInvalidInput, "invalid post document", err)
		}
		return utils.NewAppError(utils.ErrDatabase, "malformed post document "+post.ID, err)
	}
	return nil
}
