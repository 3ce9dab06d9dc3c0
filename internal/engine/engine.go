package engine

import (
	"time"

	"thoth/internal/cache"
	"thoth/internal/config"
	"thoth/internal/database"
	"thoth/internal/engine/actors"
	"thoth/internal/events"
	"thoth/internal/feed"
	"thoth/internal/notify"
	"thoth/internal/posts"
	"thoth/internal/profiles"
	"thoth/internal/resolve"
	"thoth/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Services are the domain services the actors drive.
type Services struct {
	Posts    *posts.Service
	Feed     *feed.Query
	Resolver *resolve.Resolver
	Profiles *profiles.Service
	Events   *events.Service
}

// Options tune the engine. Zero values select defaults.
type Options struct {
	RequestTimeout time.Duration
	RepairInterval time.Duration
}

// Engine coordinates communication between actors
type Engine struct {
	context      *actor.RootContext
	postActor    *actor.PID
	feedActor    *actor.PID
	profileActor *actor.PID
	eventActor   *actor.PID
	timeout      time.Duration
}

func NewEngine(system *actor.ActorSystem, svc Services, metrics *utils.MetricsCollector, opts Options) *Engine {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = actors.DefaultOperationTimeout
	}
	context := system.Root

	// Each actor gets slightly less time for its store work than callers wait
	// for the reply, so a slow store surfaces as TIMEOUT rather than ACTOR_TIMEOUT.
	work := opts.RequestTimeout * 9 / 10

	postPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return actors.NewPostActor(svc.Posts, svc.Resolver, metrics, work, opts.RepairInterval)
	}))
	feedPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return actors.NewFeedActor(svc.Feed, svc.Resolver, metrics, work)
	}))
	profilePID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return actors.NewProfileActor(svc.Profiles, metrics, work)
	}))
	eventPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return actors.NewEventActor(svc.Events, metrics, work)
	}))

	return &Engine{
		context:      context,
		postActor:    postPID,
		feedActor:    feedPID,
		profileActor: profilePID,
		eventActor:   eventPID,
		timeout:      opts.RequestTimeout,
	}
}

func (e *Engine) GetPostActor() *actor.PID {
	return e.postActor
}

func (e *Engine) GetFeedActor() *actor.PID {
	return e.feedActor
}

func (e *Engine) GetProfileActor() *actor.PID {
	return e.profileActor
}

func (e *Engine) GetEventActor() *actor.PID {
	return e.eventActor
}

// Ask sends msg to pid and waits for the reply. An *utils.AppError reply is
// returned as the error; a reply that never arrives becomes ACTOR_TIMEOUT.
func (e *Engine) Ask(pid *actor.PID, msg interface{}) (interface{}, error) {
	result, err := e.context.RequestFuture(pid, msg, e.timeout).Result()
	if err != nil {
		utils.Logger.Warn("actor request failed", zap.String("actor", pid.Id), zap.Error(err))
		return nil, utils.NewActorTimeoutError(pid.Id)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

// Stop stops every actor and waits for them to finish their current message.
func (e *Engine) Stop() {
	for _, pid := range []*actor.PID{e.postActor, e.feedActor, e.profileActor, e.eventActor} {
		if err := e.context.StopFuture(pid).Wait(); err != nil {
			utils.Logger.Warn("actor did not stop cleanly", zap.String("actor", pid.Id), zap.Error(err))
		}
	}
}

// NewServices wires the domain services over one document store. profileCache
// may be nil, in which case cards read profiles straight from the store.
func NewServices(store database.Store, notifier notify.Notifier, profileCache *cache.Profiles, feedCfg *config.FeedConfig, metrics *utils.MetricsCollector) Services {
	var (
		profileSource resolve.ProfileSource = store
		invalidator   profiles.Invalidator
	)
	if profileCache != nil {
		profileSource = profileCache
		invalidator = profileCache
	}
	return Services{
		Posts:    posts.NewService(store, notifier, metrics),
		Feed:     feed.NewQuery(store, feedCfg, metrics),
		Resolver: resolve.NewResolver(store, profileSource, store),
		Profiles: profiles.NewService(store, invalidator),
		Events:   events.NewService(store),
	}
}
