// Package profiles manages accounts, live profiles and connections.
package profiles

import (
	"context"
	"strings"

	"thoth/internal/database"
	"thoth/internal/models"
	"thoth/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Invalidator drops cached copies of a profile.
type Invalidator interface {
	Invalidate(ctx context.Context, id string)
}

type Service struct {
	store      database.ProfileStore
	cache      Invalidator
	bcryptCost int
}

func NewService(store database.ProfileStore, cache Invalidator) *Service {
	return &Service{store: store, cache: cache, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost overrides the hashing cost.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

type Registration struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

func (s *Service) Register(ctx context.Context, in Registration) (*models.Profile, error) {
	if len(in.Password) < minPasswordLength {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "password must have at least 8 characters", nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "password cannot be hashed", err)
	}

	profile := &models.Profile{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(in.Username),
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Avatar:       in.Avatar,
		PasswordHash: string(hash),
		Connections:  []string{},
		DeviceTokens: []string{},
	}
	if err := models.ValidateProfile(profile); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, err.Error(), err)
	}
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	utils.Logger.Info("profile registered", zap.String("userId", profile.ID), zap.String("username", profile.Username))
	return profile, nil
}

// Authenticate checks an email/password pair. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.Profile, error) {
	profile, err := s.store.GetProfileByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return nil, utils.NewAppError(utils.ErrInvalidCredentials, "invalid email or password", nil)
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidCredentials, "invalid email or password", nil)
	}
	return profile, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// Identity loads the acting identity for an authenticated user id.
func (s *Service) Identity(ctx context.Context, id string) (models.Identity, error) {
	profile, err := s.store.GetProfile(ctx, id)
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return models.Identity{}, utils.NewUnauthorizedError("account no longer exists")
	}
	if err != nil {
		return models.Identity{}, err
	}
	return profile.Identity(), nil
}

func (s *Service) Update(ctx context.Context, id string, patch models.ProfilePatch) (*models.Profile, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "name cannot be empty", nil)
	}
	if err := s.store.UpdateProfile(ctx, id, patch); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return s.store.GetProfile(ctx, id)
}

// Connect adds targetID to userID's connections. Connections are one-way.
func (s *Service) Connect(ctx context.Context, userID, targetID string) error {
	if userID == targetID {
		return utils.NewAppError(utils.ErrInvalidInput, "cannot connect to yourself", nil)
	}
	if _, err := s.store.GetProfile(ctx, targetID); err != nil {
		return err
	}
	return s.store.AddConnection(ctx, userID, targetID)
}

func (s *Service) Disconnect(ctx context.Context, userID, targetID string) error {
	return s.store.RemoveConnection(ctx, userID, targetID)
}

func (s *Service) Connections(ctx context.Context, userID string) ([]string, error) {
	return s.store.GetConnections(ctx, userID)
}

// RegisterDevice stores a push token for userID.
func (s *Service) RegisterDevice(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return utils.NewAppError(utils.ErrInvalidInput, "device token is required", nil)
	}
	return s.store.AddDeviceToken(ctx, userID, token)
}
