package actors

import (
	"time"

	"thoth/internal/events"
	"thoth/internal/models"
	"thoth/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type (
	CreateEventMsg struct {
		Actor models.Identity
		Event events.NewEvent
	}

	GetEventMsg struct {
		EventID string
	}

	ListEventsMsg struct {
		Limit int
	}

	JoinEventMsg struct {
		Actor   models.Identity
		EventID string
	}

	LeaveEventMsg struct {
		Actor   models.Identity
		EventID string
	}

	SetInterestMsg struct {
		Actor      models.Identity
		EventID    string
		Interested bool
	}
)

type EventActor struct {
	events  *events.Service
	metrics *utils.MetricsCollector
	timeout time.Duration
}

func NewEventActor(svc *events.Service, metrics *utils.MetricsCollector, timeout time.Duration) actor.Actor {
	return &EventActor{events: svc, metrics: metrics, timeout: timeout}
}

func (a *EventActor) Receive(context actor.Context) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()

	switch msg := context.Message().(type) {
	case *actor.Started:
		utils.Logger.Info("EventActor started")
	case *CreateEventMsg:
		startTime := time.Now()
		event, err := a.events.Create(ctx, msg.Actor, msg.Event)
		a.metrics.AddOperationLatency("create_event", time.Since(startTime))
		respond(context, event, err)
	case *GetEventMsg:
		event, err := a.events.Get(ctx, msg.EventID)
		respond(context, event, err)
	case *ListEventsMsg:
		list, err := a.events.Upcoming(ctx, msg.Limit)
		respond(context, list, err)
	case *JoinEventMsg:
		event, err := a.events.Join(ctx, msg.Actor, msg.EventID)
		respond(context, event, err)
	case *LeaveEventMsg:
		event, err := a.events.Leave(ctx, msg.Actor, msg.EventID)
		respond(context, event, err)
	case *SetInterestMsg:
		event, err := a.events.SetInterest(ctx, msg.Actor, msg.EventID, msg.Interested)
		respond(context, event, err)
	default:
		utils.Logger.Debug("EventActor: unknown message", zap.String("type", typeName(msg)))
	}
}
