package interaction

import (
	"context"

	"thoth/internal/models"
	"thoth/internal/posts"
)

// ServiceMutator applies toggles in-process through the post service.
type ServiceMutator struct {
	Posts *posts.Service
}

func (m ServiceMutator) Like(ctx context.Context, actor models.Identity, postID string, liked bool) error {
	_, err := m.Posts.ToggleLike(ctx, actor, postID, liked)
	return err
}

func (m ServiceMutator) Bookmark(ctx context.Context, actor models.Identity, postID string, bookmarked bool) error {
	_, err := m.Posts.ToggleBookmark(ctx, actor, postID, bookmarked)
	return err
}

func (m ServiceMutator) Repost(ctx context.Context, actor models.Identity, postID string) error {
	_, err := m.Posts.Repost(ctx, actor, postID)
	return err
}
