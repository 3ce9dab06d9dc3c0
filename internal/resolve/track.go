package resolve

import (
	"context"

	"thoth/internal/models"
)

// Track streams the card for post as its target changes. For a repost the
// first card is pending (built from the wrapper's copy), followed by one
// resolved card per change of the root original. When the watched post is
// deleted a hidden card is sent and the channel closes. The channel also
// closes when ctx ends.
func (r *Resolver) Track(ctx context.Context, viewer models.Identity, post *models.Post) (<-chan *Card, error) {
	l, err := r.newLookup(ctx, viewer)
	if err != nil {
		return nil, err
	}

	watchID := post.ID
	if post.IsRepost() {
		watchID = post.OriginalPostID
	}
	events, err := r.posts.WatchPost(ctx, watchID)
	if err != nil {
		return nil, err
	}

	out := make(chan *Card, 1)
	go func() {
		defer close(out)

		send := func(c *Card) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if post.IsRepost() && !send(l.pendingCard(ctx, post)) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Deleted {
					send(&Card{ID: post.ID, State: StateHidden})
					return
				}
				// Profiles are re-read per change so renames show up.
				l.profiles = make(map[string]*models.Profile)
				var c *Card
				if post.IsRepost() {
					c = l.repostCard(ctx, post, ev.Post)
				} else {
					c = l.originalCard(ctx, ev.Post)
				}
				if !send(c) {
					return
				}
			}
		}
	}()
	return out, nil
}
