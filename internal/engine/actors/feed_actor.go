package actors

import (
	"time"

	"thoth/internal/feed"
	"thoth/internal/models"
	"thoth/internal/resolve"
	"thoth/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// GetFeedMsg asks for the viewer's feed tab, resolved for display.
type GetFeedMsg struct {
	Viewer models.Identity
	Filter models.FeedFilter
}

// FeedActor loads feed tabs and resolves them into cards.
type FeedActor struct {
	query    *feed.Query
	resolver *resolve.Resolver
	metrics  *utils.MetricsCollector
	timeout  time.Duration
}

func NewFeedActor(query *feed.Query, resolver *resolve.Resolver, metrics *utils.MetricsCollector, timeout time.Duration) actor.Actor {
	return &FeedActor{
		query:    query,
		resolver: resolver,
		metrics:  metrics,
		timeout:  timeout,
	}
}

func (a *FeedActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		utils.Logger.Info("FeedActor started")
	case *GetFeedMsg:
		a.handleGetFeed(context, msg)
	default:
		utils.Logger.Debug("FeedActor: unknown message", zap.String("type", typeName(msg)))
	}
}

func (a *FeedActor) handleGetFeed(context actor.Context, msg *GetFeedMsg) {
	startTime := time.Now()
	ctx, cancel := operationContext(a.timeout)
	defer cancel()

	posts, err := a.query.Load(ctx, msg.Viewer.UID, msg.Filter)
	if err != nil {
		respond(context, nil, err)
		return
	}

	var cards []*resolve.Card
	if msg.Filter == models.FilterBookmarks {
		// Bookmarks are saved copies and render as stored.
		cards = resolve.Snapshot(msg.Viewer, posts)
	} else {
		cards, err = a.resolver.ResolveAll(ctx, msg.Viewer, posts)
	}

	a.metrics.AddOperationLatency("resolve_feed", time.Since(startTime))
	respond(context, cards, err)
}
