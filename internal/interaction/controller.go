// Package interaction keeps the optimistic like/bookmark/repost state of one
// signed-in session and reconciles it with the server.
package interaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"thoth/internal/models"
	"thoth/internal/resolve"
	"thoth/internal/utils"

	"go.uber.org/zap"
)

// Mutator issues the remote half of a toggle. Each call is one mutation.
type Mutator interface {
	Like(ctx context.Context, actor models.Identity, postID string, liked bool) error
	Bookmark(ctx context.Context, actor models.Identity, postID string, bookmarked bool) error
	Repost(ctx context.Context, actor models.Identity, postID string) error
}

// PostState is what the session currently shows for one root post.
type PostState struct {
	Liked      bool `json:"liked"`
	Likes      int  `json:"likes"`
	Bookmarked bool `json:"bookmarked"`
	Reposted   bool `json:"reposted"`
}

// Notice reports a toggle that was rolled back.
type Notice struct {
	PostID  string
	Action  models.Action
	Message string
	Err     error
	At      time.Time
}

type flightKey struct {
	postID string
	action models.Action
}

const noticeBuffer = 16

type Controller struct {
	actor   models.Identity
	mutator Mutator

	mu       sync.Mutex
	states   map[string]PostState
	inFlight map[flightKey]struct{}
	notices  chan Notice
}

func NewController(actor models.Identity, mutator Mutator) *Controller {
	return &Controller{
		actor:    actor,
		mutator:  mutator,
		states:   make(map[string]PostState),
		inFlight: make(map[flightKey]struct{}),
		notices:  make(chan Notice, noticeBuffer),
	}
}

// Seed records the server's view of a card. Cards for the same root share
// one state. A post with a toggle in flight keeps its optimistic value.
func (c *Controller) Seed(card *resolve.Card) {
	if card == nil || card.Hidden() || card.Post == nil {
		return
	}
	target := card.Targets.Like

	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.states[target]
	if !c.busyLocked(target, models.ActionLike) {
		st.Liked = card.Viewer.Liked
		st.Likes = card.Post.Likes
	}
	if !c.busyLocked(target, models.ActionBookmark) {
		st.Bookmarked = card.Viewer.Bookmarked
	}
	if !c.busyLocked(target, models.ActionRepost) {
		st.Reposted = card.Viewer.Reposted
	}
	c.states[target] = st
}

func (c *Controller) State(postID string) PostState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[postID]
}

// Notices delivers rollback notices. Notices are dropped when nobody reads.
func (c *Controller) Notices() <-chan Notice {
	return c.notices
}

func (c *Controller) busyLocked(postID string, action models.Action) bool {
	_, ok := c.inFlight[flightKey{postID, action}]
	return ok
}

// begin claims the (postID, action) slot and applies flip to the state.
func (c *Controller) begin(postID string, action models.Action, flip func(*PostState)) (PostState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := flightKey{postID, action}
	if _, busy := c.inFlight[key]; busy {
		return c.states[postID], utils.NewAppError(utils.ErrInFlight,
			fmt.Sprintf("%s already in progress", action), nil)
	}
	c.inFlight[key] = struct{}{}
	st := c.states[postID]
	flip(&st)
	c.states[postID] = st
	return st, nil
}

// finish releases the slot, undoing the flip when err is non-nil.
func (c *Controller) finish(postID string, action models.Action, err error, undo func(*PostState)) PostState {
	c.mu.Lock()
	delete(c.inFlight, flightKey{postID, action})
	if err != nil {
		st := c.states[postID]
		undo(&st)
		c.states[postID] = st
	}
	st := c.states[postID]
	c.mu.Unlock()

	if err != nil {
		c.notify(postID, action, err)
	}
	return st
}

func (c *Controller) notify(postID string, action models.Action, err error) {
	n := Notice{
		PostID:  postID,
		Action:  action,
		Message: fmt.Sprintf("could not %s this post", action),
		Err:     err,
		At:      time.Now(),
	}
	utils.Logger.Debug("toggle rolled back",
		zap.String("postId", postID),
		zap.String("action", string(action)),
		zap.Error(err))
	select {
	case c.notices <- n:
	default:
	}
}

// ToggleLike flips the like on the card's like target.
func (c *Controller) ToggleLike(ctx context.Context, card *resolve.Card) (PostState, error) {
	target := card.Targets.Like
	var liked bool
	delta := 0
	st, err := c.begin(target, models.ActionLike, func(s *PostState) {
		s.Liked = !s.Liked
		liked = s.Liked
		delta = 1
		if !liked {
			delta = -1
		}
		s.Likes += delta
	})
	if err != nil {
		return st, err
	}

	err = c.mutator.Like(ctx, c.actor, target, liked)
	return c.finish(target, models.ActionLike, err, func(s *PostState) {
		s.Liked = !liked
		s.Likes -= delta
	}), err
}

// ToggleBookmark flips the bookmark on the card's bookmark target.
func (c *Controller) ToggleBookmark(ctx context.Context, card *resolve.Card) (PostState, error) {
	target := card.Targets.Bookmark
	var bookmarked bool
	st, err := c.begin(target, models.ActionBookmark, func(s *PostState) {
		s.Bookmarked = !s.Bookmarked
		bookmarked = s.Bookmarked
	})
	if err != nil {
		return st, err
	}

	err = c.mutator.Bookmark(ctx, c.actor, target, bookmarked)
	return c.finish(target, models.ActionBookmark, err, func(s *PostState) {
		s.Bookmarked = !bookmarked
	}), err
}

// Repost reposts the card's root. Once the session has reposted a root the
// action is disabled and returns DUPLICATE without a remote call.
func (c *Controller) Repost(ctx context.Context, card *resolve.Card) (PostState, error) {
	target := card.Targets.Like
	c.mu.Lock()
	already := c.states[target].Reposted
	c.mu.Unlock()
	if already {
		return c.State(target), utils.NewAppError(utils.ErrDuplicate, "already reposted", nil)
	}

	st, err := c.begin(target, models.ActionRepost, func(s *PostState) {
		s.Reposted = true
	})
	if err != nil {
		return st, err
	}

	err = c.mutator.Repost(ctx, c.actor, target)
	if utils.IsErrorCode(err, utils.ErrDuplicate) {
		// The server already holds a repost by this user.
		return c.finish(target, models.ActionRepost, nil, nil), err
	}
	return c.finish(target, models.ActionRepost, err, func(s *PostState) {
		s.Reposted = false
	}), err
}
