package actors

import (
	"time"

	"thoth/internal/models"
	"thoth/internal/posts"
	"thoth/internal/resolve"
	"thoth/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// Message types for Post operations
type (
	CreatePostMsg struct {
		Actor models.Identity
		Post  posts.NewPost
	}

	UpdatePostMsg struct {
		Actor  models.Identity
		PostID string
		Patch  models.PostPatch
	}

	DeletePostMsg struct {
		Actor  models.Identity
		PostID string
	}

	LikePostMsg struct {
		Actor  models.Identity
		PostID string
		Liked  bool
	}

	BookmarkPostMsg struct {
		Actor      models.Identity
		PostID     string
		Bookmarked bool
	}

	RepostMsg struct {
		Actor  models.Identity
		PostID string
	}

	// GetPostMsg resolves one post for display to Viewer.
	GetPostMsg struct {
		Viewer models.Identity
		PostID string
	}

	RepairMsg struct{}

	// repairTick is the scheduled trigger; unlike RepairMsg it expects no reply.
	repairTick struct{}
)

// InteractionResult reports which document a toggle was written to.
type InteractionResult struct {
	PostID   string `json:"postId"`
	TargetID string `json:"targetId"`
	Active   bool   `json:"active"`
}

// PostActor serialises post commands and resolves single posts. Every
// repairInterval it replays pending intents, between commands.
type PostActor struct {
	posts          *posts.Service
	resolver       *resolve.Resolver
	metrics        *utils.MetricsCollector
	timeout        time.Duration
	repairInterval time.Duration
	stopRepair     scheduler.CancelFunc
}

func NewPostActor(svc *posts.Service, resolver *resolve.Resolver, metrics *utils.MetricsCollector, timeout, repairInterval time.Duration) actor.Actor {
	return &PostActor{
		posts:          svc,
		resolver:       resolver,
		metrics:        metrics,
		timeout:        timeout,
		repairInterval: repairInterval,
	}
}

func (a *PostActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		utils.Logger.Info("PostActor started")
		if a.repairInterval > 0 {
			a.stopRepair = scheduler.NewTimerScheduler(context).
				SendRepeatedly(a.repairInterval, a.repairInterval, context.Self(), &repairTick{})
		}
	case *actor.Stopping:
		utils.Logger.Info("PostActor stopping")
		if a.stopRepair != nil {
			a.stopRepair()
		}
	case *repairTick:
		a.repair()
	case *CreatePostMsg:
		a.handleCreatePost(context, msg)
	case *UpdatePostMsg:
		a.handleUpdatePost(context, msg)
	case *DeletePostMsg:
		a.handleDeletePost(context, msg)
	case *LikePostMsg:
		a.handleLike(context, msg)
	case *BookmarkPostMsg:
		a.handleBookmark(context, msg)
	case *RepostMsg:
		a.handleRepost(context, msg)
	case *GetPostMsg:
		a.handleGetPost(context, msg)
	case *RepairMsg:
		report, err := a.repair()
		respond(context, report, err)
	case *GetCountsMsg:
		ctx, cancel := operationContext(a.timeout)
		defer cancel()
		count, err := a.posts.CountPosts(ctx)
		respond(context, int(count), err)
	default:
		utils.Logger.Debug("PostActor: unknown message", zap.String("type", typeName(msg)))
	}
}

func (a *PostActor) handleCreatePost(context actor.Context, msg *CreatePostMsg) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	post, err := a.posts.CreatePost(ctx, msg.Actor, msg.Post)
	respond(context, post, err)
}

func (a *PostActor) handleUpdatePost(context actor.Context, msg *UpdatePostMsg) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	if err := a.posts.UpdatePost(ctx, msg.Actor, msg.PostID, msg.Patch); err != nil {
		respond(context, nil, err)
		return
	}
	post, err := a.posts.GetPost(ctx, msg.PostID)
	respond(context, post, err)
}

func (a *PostActor) handleDeletePost(context actor.Context, msg *DeletePostMsg) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	err := a.posts.DeletePost(ctx, msg.Actor, msg.PostID)
	if utils.IsErrorCode(err, utils.ErrPartialFailure) {
		utils.Logger.Warn("delete left pending intent", zap.String("postId", msg.PostID), zap.Error(err))
	}
	respond(context, &Ack{}, err)
}

func (a *PostActor) handleLike(context actor.Context, msg *LikePostMsg) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	target, err := a.posts.ToggleLike(ctx, msg.Actor, msg.PostID, msg.Liked)
	respond(context, &InteractionResult{PostID: msg.PostID, TargetID: target, Active: msg.Liked}, err)
}

func (a *PostActor) handleBookmark(context actor.Context, msg *BookmarkPostMsg) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	target, err := a.posts.ToggleBookmark(ctx, msg.Actor, msg.PostID, msg.Bookmarked)
	respond(context, &InteractionResult{PostID: msg.PostID, TargetID: target, Active: msg.Bookmarked}, err)
}

func (a *PostActor) handleRepost(context actor.Context, msg *RepostMsg) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	wrapper, err := a.posts.Repost(ctx, msg.Actor, msg.PostID)
	respond(context, wrapper, err)
}

func (a *PostActor) handleGetPost(context actor.Context, msg *GetPostMsg) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	post, err := a.posts.GetPost(ctx, msg.PostID)
	if err != nil {
		respond(context, nil, err)
		return
	}
	card, err := a.resolver.Resolve(ctx, msg.Viewer, post)
	if err == nil && card.Hidden() {
		err = utils.NewNotFoundError("post", msg.PostID)
	}
	respond(context, card, err)
}

func (a *PostActor) repair() (posts.RepairReport, error) {
	startTime := time.Now()
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	report, err := a.posts.Repair(ctx)
	if err != nil {
		utils.Logger.Warn("intent repair failed", zap.Error(err))
	}
	a.metrics.AddOperationLatency("repair", time.Since(startTime))
	return report, err
}
