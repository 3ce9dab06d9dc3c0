// Package resolve turns stored posts into display cards. A repost card shows
// the live state of its root original and disappears when the original is
// deleted.
package resolve

import (
	"context"
	"time"

	"thoth/internal/database"
	"thoth/internal/models"
	"thoth/internal/utils"

	"go.uber.org/zap"
)

type State string

const (
	StateOriginal State = "original"
	// StatePending is a repost whose original has not been read yet; it
	// shows the wrapper's copy of the content.
	StatePending  State = "pending"
	StateResolved State = "resolved"
	StateHidden   State = "hidden"
)

// Targets are the document ids each action writes to.
type Targets struct {
	Like     string `json:"like"`
	Bookmark string `json:"bookmark"`
	Delete   string `json:"delete"`
}

type ViewerState struct {
	Liked      bool `json:"liked"`
	Bookmarked bool `json:"bookmarked"`
	Reposted   bool `json:"reposted"`
	CanDelete  bool `json:"canDelete"`
}

// Reposter is the "X reposted" sub-header of a repost card.
type Reposter struct {
	Author models.Author `json:"author"`
	At     time.Time     `json:"at"`
}

type Card struct {
	ID       string       `json:"id"`
	State    State        `json:"state"`
	Post     *models.Post `json:"post,omitempty"`
	Reposter *Reposter    `json:"reposter,omitempty"`
	Targets  Targets      `json:"targets"`
	Viewer   ViewerState  `json:"viewer"`
}

func (c *Card) Hidden() bool {
	return c.State == StateHidden
}

type PostSource interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
	WatchPost(ctx context.Context, id string) (<-chan database.PostEvent, error)
}

// ProfileSource looks up live profiles by user id.
type ProfileSource interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

type BookmarkSource interface {
	ListBookmarks(ctx context.Context, userID string) ([]*models.Bookmark, error)
}

type Resolver struct {
	posts     PostSource
	profiles  ProfileSource
	bookmarks BookmarkSource
}

// NewResolver builds a resolver. profiles and bookmarks may be nil; cards then
// show snapshot authors and no bookmark state.
func NewResolver(posts PostSource, profiles ProfileSource, bookmarks BookmarkSource) *Resolver {
	return &Resolver{posts: posts, profiles: profiles, bookmarks: bookmarks}
}

// lookup memoises reads for one resolution pass.
type lookup struct {
	r          *Resolver
	viewer     models.Identity
	roots      map[string]*models.Post
	profiles   map[string]*models.Profile
	bookmarked map[string]bool
}

func (r *Resolver) newLookup(ctx context.Context, viewer models.Identity) (*lookup, error) {
	l := &lookup{
		r:          r,
		viewer:     viewer,
		roots:      make(map[string]*models.Post),
		profiles:   make(map[string]*models.Profile),
		bookmarked: make(map[string]bool),
	}
	if r.bookmarks != nil && !viewer.IsZero() {
		bookmarks, err := r.bookmarks.ListBookmarks(ctx, viewer.UID)
		if err != nil {
			return nil, err
		}
		for _, b := range bookmarks {
			l.bookmarked[b.ID] = true
		}
	}
	return l, nil
}

// root returns the original a repost points at, or nil when it is gone.
func (l *lookup) root(ctx context.Context, id string) (*models.Post, error) {
	if p, ok := l.roots[id]; ok {
		return p, nil
	}
	p, err := l.r.posts.GetPost(ctx, id)
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		p, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.roots[id] = p
	return p, nil
}

func (l *lookup) author(ctx context.Context, snapshot models.Author) models.Author {
	if l.r.profiles == nil || snapshot.ID == l.viewer.UID {
		return DisplayAuthor(snapshot, nil, l.viewer)
	}
	live, ok := l.profiles[snapshot.ID]
	if !ok {
		p, err := l.r.profiles.GetProfile(ctx, snapshot.ID)
		if err != nil && !utils.IsErrorCode(err, utils.ErrNotFound) {
			utils.Logger.Warn("live profile lookup failed, showing snapshot",
				zap.String("userId", snapshot.ID), zap.Error(err))
		}
		live = p
		l.profiles[snapshot.ID] = live
	}
	return DisplayAuthor(snapshot, live, l.viewer)
}

func (l *lookup) card(ctx context.Context, post *models.Post) (*Card, error) {
	if !post.IsRepost() {
		return l.originalCard(ctx, post), nil
	}
	root, err := l.root(ctx, post.OriginalPostID)
	if err != nil {
		return nil, err
	}
	return l.repostCard(ctx, post, root), nil
}

func (l *lookup) originalCard(ctx context.Context, post *models.Post) *Card {
	display := post.Clone()
	display.Author = l.author(ctx, post.Author)
	return &Card{
		ID:    post.ID,
		State: StateOriginal,
		Post:  display,
		Targets: Targets{
			Like:     post.TargetID(models.ActionLike),
			Bookmark: post.TargetID(models.ActionBookmark),
			Delete:   post.TargetID(models.ActionDelete),
		},
		Viewer: ViewerState{
			Liked:      post.LikedByUser(l.viewer.UID),
			Bookmarked: l.bookmarked[post.ID],
			Reposted:   post.RepostedByUser(l.viewer.UID),
			CanDelete:  !l.viewer.IsZero() && post.Author.ID == l.viewer.UID,
		},
	}
}

// repostCard combines the wrapper with its root. A nil root hides the card.
func (l *lookup) repostCard(ctx context.Context, wrapper, root *models.Post) *Card {
	if root == nil {
		return &Card{ID: wrapper.ID, State: StateHidden}
	}
	display := root.Clone()
	display.Author = l.author(ctx, root.Author)
	return &Card{
		ID:       wrapper.ID,
		State:    StateResolved,
		Post:     display,
		Reposter: &Reposter{Author: l.author(ctx, wrapper.Author), At: wrapper.CreatedAt},
		Targets: Targets{
			Like:     root.ID,
			Bookmark: root.ID,
			Delete:   wrapper.ID,
		},
		Viewer: ViewerState{
			Liked:      root.LikedByUser(l.viewer.UID),
			Bookmarked: l.bookmarked[root.ID],
			Reposted:   root.RepostedByUser(l.viewer.UID),
			CanDelete:  !l.viewer.IsZero() && wrapper.Author.ID == l.viewer.UID,
		},
	}
}

// pendingCard renders a repost from the wrapper's own copy while the
// original is being read.
func (l *lookup) pendingCard(ctx context.Context, wrapper *models.Post) *Card {
	display := wrapper.Clone()
	display.ID = wrapper.OriginalPostID
	display.OriginalPostID = ""
	display.OriginalAuthor, display.OriginalTimestamp = nil, nil
	if wrapper.OriginalAuthor != nil {
		display.Author = l.author(ctx, *wrapper.OriginalAuthor)
	}
	if wrapper.OriginalTimestamp != nil {
		display.CreatedAt = *wrapper.OriginalTimestamp
	}
	return &Card{
		ID:       wrapper.ID,
		State:    StatePending,
		Post:     display,
		Reposter: &Reposter{Author: l.author(ctx, wrapper.Author), At: wrapper.CreatedAt},
		Targets: Targets{
			Like:     wrapper.TargetID(models.ActionLike),
			Bookmark: wrapper.TargetID(models.ActionBookmark),
			Delete:   wrapper.TargetID(models.ActionDelete),
		},
		Viewer: ViewerState{
			Bookmarked: l.bookmarked[wrapper.OriginalPostID],
			CanDelete:  !l.viewer.IsZero() && wrapper.Author.ID == l.viewer.UID,
		},
	}
}

// Resolve builds the card for one post. A repost whose original is gone
// yields a hidden card, not an error.
func (r *Resolver) Resolve(ctx context.Context, viewer models.Identity, post *models.Post) (*Card, error) {
	l, err := r.newLookup(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return l.card(ctx, post)
}

// ResolveAll builds cards for a feed page, keeping order and dropping hidden
// cards. Each original and each author profile is read once per call.
func (r *Resolver) ResolveAll(ctx context.Context, viewer models.Identity, posts []*models.Post) ([]*Card, error) {
	l, err := r.newLookup(ctx, viewer)
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		if !p.IsRepost() {
			l.roots[p.ID] = p
		}
	}

	cards := make([]*Card, 0, len(posts))
	for _, p := range posts {
		c, err := l.card(ctx, p)
		if err != nil {
			return nil, err
		}
		if c.Hidden() {
			continue
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Snapshot renders stored posts without live lookups, for historical views
// such as bookmarks.
func Snapshot(viewer models.Identity, posts []*models.Post) []*Card {
	cards := make([]*Card, 0, len(posts))
	for _, p := range posts {
		c := &Card{
			ID:    p.ID,
			State: StateOriginal,
			Post:  p.Clone(),
			Targets: Targets{
				Like:     p.TargetID(models.ActionLike),
				Bookmark: p.TargetID(models.ActionBookmark),
				Delete:   p.TargetID(models.ActionDelete),
			},
			Viewer: ViewerState{
				Liked:      p.LikedByUser(viewer.UID),
				Bookmarked: true,
				CanDelete:  !viewer.IsZero() && p.Author.ID == viewer.UID,
			},
		}
		cards = append(cards, c)
	}
	return cards
}
