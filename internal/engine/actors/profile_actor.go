package actors

import (
	"strings"
	"time"

	"thoth/internal/api"
	"thoth/internal/models"
	"thoth/internal/profiles"
	"thoth/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Message types for account operations
type (
	RegisterUserMsg struct {
		Registration profiles.Registration
	}

	LoginMsg struct {
		Email    string
		Password string
	}

	GetUserProfileMsg struct {
		UserID string
	}

	// GetIdentityMsg loads the identity commands run under.
	GetIdentityMsg struct {
		UserID string
	}

	UpdateProfileMsg struct {
		UserID string
		Patch  models.ProfilePatch
	}

	ConnectUserMsg struct {
		UserID   string
		TargetID string
	}

	DisconnectUserMsg struct {
		UserID   string
		TargetID string
	}

	GetConnectionsMsg struct {
		UserID string
	}

	RegisterDeviceMsg struct {
		UserID string
		Token  string
	}
)

// ProfileActor owns account registration, login and the social graph.
type ProfileActor struct {
	profiles *profiles.Service
	metrics  *utils.MetricsCollector
	timeout  time.Duration
}

func NewProfileActor(svc *profiles.Service, metrics *utils.MetricsCollector, timeout time.Duration) actor.Actor {
	return &ProfileActor{profiles: svc, metrics: metrics, timeout: timeout}
}

func (a *ProfileActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		utils.Logger.Info("ProfileActor started")
	case *RegisterUserMsg:
		a.handleRegister(context, msg)
	case *LoginMsg:
		a.handleLogin(context, msg)
	case *GetUserProfileMsg:
		ctx, cancel := operationContext(a.timeout)
		defer cancel()
		profile, err := a.profiles.Get(ctx, msg.UserID)
		respond(context, profile, err)
	case *GetIdentityMsg:
		ctx, cancel := operationContext(a.timeout)
		defer cancel()
		identity, err := a.profiles.Identity(ctx, msg.UserID)
		respond(context, identity, err)
	case *UpdateProfileMsg:
		ctx, cancel := operationContext(a.timeout)
		defer cancel()
		profile, err := a.profiles.Update(ctx, msg.UserID, msg.Patch)
		respond(context, profile, err)
	case *ConnectUserMsg:
		ctx, cancel := operationContext(a.timeout)
		defer cancel()
		respond(context, &Ack{}, a.profiles.Connect(ctx, msg.UserID, msg.TargetID))
	case *DisconnectUserMsg:
		ctx, cancel := operationContext(a.timeout)
		defer cancel()
		respond(context, &Ack{}, a.profiles.Disconnect(ctx, msg.UserID, msg.TargetID))
	case *GetConnectionsMsg:
		ctx, cancel := operationContext(a.timeout)
		defer cancel()
		ids, err := a.profiles.Connections(ctx, msg.UserID)
		respond(context, ids, err)
	case *RegisterDeviceMsg:
		ctx, cancel := operationContext(a.timeout)
		defer cancel()
		respond(context, &Ack{}, a.profiles.RegisterDevice(ctx, msg.UserID, msg.Token))
	default:
		utils.Logger.Debug("ProfileActor: unknown message", zap.String("type", typeName(msg)))
	}
}

func (a *ProfileActor) handleRegister(context actor.Context, msg *RegisterUserMsg) {
	startTime := time.Now()
	ctx, cancel := operationContext(a.timeout)
	defer cancel()
	profile, err := a.profiles.Register(ctx, msg.Registration)
	a.metrics.AddOperationLatency("register_user", time.Since(startTime))
	respond(context, profile, err)
}

// handleLogin always answers with a LoginResponse; the token is minted by
// the HTTP layer, which owns the signing key.
func (a *ProfileActor) handleLogin(context actor.Context, msg *LoginMsg) {
	ctx, cancel := operationContext(a.timeout)
	defer cancel()

	profile, err := a.profiles.Authenticate(ctx, strings.TrimSpace(msg.Email), msg.Password)
	switch {
	case err == nil:
		context.Respond(&api.LoginResponse{Success: true, UserID: profile.ID})
	case utils.IsErrorCode(err, utils.ErrInvalidCredentials):
		context.Respond(&api.LoginResponse{Success: false, Error: "Invalid credentials"})
	default:
		respond(context, nil, err)
	}
}
