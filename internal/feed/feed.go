// Package feed answers which posts a viewer sees.
package feed

import (
	"context"
	"time"

	"thoth/internal/config"
	"thoth/internal/database"
	"thoth/internal/models"
	"thoth/internal/utils"

	"go.uber.org/zap"
)

// Store is what the feed reads from.
type Store interface {
	FindPostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]*models.Post, error)
	ListBookmarks(ctx context.Context, userID string) ([]*models.Bookmark, error)
	GetConnections(ctx context.Context, userID string) ([]string, error)
}

type Query struct {
	store   Store
	cfg     config.FeedConfig
	metrics *utils.MetricsCollector
}

func NewQuery(store Store, cfg *config.FeedConfig, metrics *utils.MetricsCollector) *Query {
	c := *config.DefaultFeedConfig()
	if cfg != nil {
		c = *cfg
	}
	// The store cannot take a longer allow-list than this.
	if c.AllowListCap <= 0 || c.AllowListCap > database.MaxInValues {
		c.AllowListCap = database.MaxInValues
	}
	if c.Limit <= 0 {
		c.Limit = config.DefaultFeedConfig().Limit
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &Query{store: store, cfg: c, metrics: metrics}
}

// AllowList returns the author ids whose posts viewerID sees: the viewer
// first, then connections in the order they were made, truncated to the cap.
// Connections past the cap are dropped.
func (q *Query) AllowList(ctx context.Context, viewerID string) ([]string, error) {
	connections, err := q.store.GetConnections(ctx, viewerID)
	if err != nil && !utils.IsErrorCode(err, utils.ErrNotFound) {
		return nil, err
	}

	seen := map[string]bool{viewerID: true}
	ids := []string{viewerID}
	for _, id := range connections {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if len(ids) > q.cfg.AllowListCap {
		utils.Logger.Warn("feed allow-list truncated",
			zap.String("viewer", viewerID),
			zap.Int("authors", len(ids)),
			zap.Int("dropped", len(ids)-q.cfg.AllowListCap))
		ids = ids[:q.cfg.AllowListCap]
	}
	return ids, nil
}

// GetFeedPosts returns posts by the viewer and their connections, newest
// first, at most Limit of them.
func (q *Query) GetFeedPosts(ctx context.Context, viewerID string) (posts []*models.Post, err error) {
	start := time.Now()
	defer func() {
		q.metrics.AddOperationLatency("feed", time.Since(start))
		q.metrics.RecordOutcome("feed", err)
	}()

	if viewerID == "" {
		return nil, utils.NewUnauthorizedError("sign in to see the feed")
	}
	authors, err := q.AllowList(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return q.store.FindPostsByAuthors(ctx, authors, q.cfg.Limit)
}

// GetBookmarkedPosts returns the viewer's bookmark snapshots as posts, most
// recently bookmarked first. There is no cap.
func (q *Query) GetBookmarkedPosts(ctx context.Context, viewerID string) ([]*models.Post, error) {
	if viewerID == "" {
		return nil, utils.NewUnauthorizedError("sign in to see bookmarks")
	}
	bookmarks, err := q.store.ListBookmarks(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	posts := make([]*models.Post, 0, len(bookmarks))
	for _, b := range bookmarks {
		posts = append(posts, b.AsPost())
	}
	return posts, nil
}

// Filter narrows an already fetched feed by post type. FilterAll and
// FilterBookmarks return posts unchanged; bookmarks are a separate fetch.
func Filter(posts []*models.Post, filter models.FeedFilter) []*models.Post {
	postType, ok := filter.PostType()
	if !ok {
		return posts
	}
	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if p.PostType == postType {
			out = append(out, p)
		}
	}
	return out
}

// Load fetches what a feed tab shows.
func (q *Query) Load(ctx context.Context, viewerID string, filter models.FeedFilter) ([]*models.Post, error) {
	if filter == models.FilterBookmarks {
		return q.GetBookmarkedPosts(ctx, viewerID)
	}
	posts, err := q.GetFeedPosts(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return Filter(posts, filter), nil
}
