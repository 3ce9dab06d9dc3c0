// Package events manages campus events: creation, participation with an
// optional cap, and interest.
package events

import (
	"context"
	"strings"
	"time"

	"thoth/internal/database"
	"thoth/internal/models"
	"thoth/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultUpcomingLimit = 50

type NewEvent struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Type            models.EventType `json:"type"`
	Date            time.Time        `json:"date"`
	Location        string           `json:"location"`
	MaxParticipants int              `json:"maxParticipants,omitempty"`
}

type Service struct {
	store database.EventStore
	now   func() time.Time
}

func NewService(store database.EventStore) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Create(ctx context.Context, actor models.Identity, in NewEvent) (*models.Event, error) {
	if actor.IsZero() {
		return nil, utils.NewUnauthorizedError("sign in to create events")
	}
	if in.Date.IsZero() {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "event date is required", nil)
	}
	event := &models.Event{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Type:            in.Type,
		Date:            in.Date,
		Location:        in.Location,
		CreatorID:       actor.UID,
		Participants:    []string{},
		Interested:      []string{},
		MaxParticipants: in.MaxParticipants,
	}
	if err := models.ValidateEvent(event); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, err.Error(), err)
	}
	if err := s.store.SaveEvent(ctx, event); err != nil {
		return nil, err
	}
	utils.Logger.Info("event created", zap.String("eventId", event.ID), zap.String("type", string(event.Type)))
	return event, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// Join adds the actor as a participant. A full event answers FORBIDDEN;
// joining twice is a no-op.
func (s *Service) Join(ctx context.Context, actor models.Identity, eventID string) (*models.Event, error) {
	if actor.IsZero() {
		return nil, utils.NewUnauthorizedError("sign in to join events")
	}
	joined, err := s.store.AddParticipant(ctx, eventID, actor.UID)
	if err != nil {
		return nil, err
	}
	if !joined {
		return nil, utils.NewAppError(utils.ErrForbidden, "event is full", nil)
	}
	return s.store.GetEvent(ctx, eventID)
}

func (s *Service) Leave(ctx context.Context, actor models.Identity, eventID string) (*models.Event, error) {
	if err := s.store.RemoveParticipant(ctx, eventID, actor.UID); err != nil {
		return nil, err
	}
	return s.store.GetEvent(ctx, eventID)
}

func (s *Service) SetInterest(ctx context.Context, actor models.Identity, eventID string, interested bool) (*models.Event, error) {
	if actor.IsZero() {
		return nil, utils.NewUnauthorizedError("sign in to follow events")
	}
	if err := s.store.SetInterest(ctx, eventID, actor.UID, interested); err != nil {
		return nil, err
	}
	return s.store.GetEvent(ctx, eventID)
}

// Upcoming lists events from now on, soonest first.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	return s.store.ListEvents(ctx, s.now(), limit)
}
