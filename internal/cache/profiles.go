package cache

import (
	"context"
	"time"

	"thoth/internal/models"
	"thoth/internal/utils"

	"go.uber.org/zap"
)

type ProfileSource interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// Profiles is a read-through cache of live profiles for display. Cached
// profiles carry no secrets: the password hash and device tokens are not
// serialised.
type Profiles struct {
	source ProfileSource
	cache  Cache[models.Profile]
	ttl    time.Duration
}

func NewProfiles(source ProfileSource, cache Cache[models.Profile], ttl time.Duration) *Profiles {
	return &Profiles{source: source, cache: cache, ttl: ttl}
}

// GetProfile serves from the cache and falls back to the source. Cache
// errors are logged and never fail the lookup.
func (p *Profiles) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	cached, err := p.cache.Get(ctx, id)
	if err != nil {
		utils.Logger.Warn("profile cache read failed", zap.String("userId", id), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	profile, err := p.source.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	display := *profile
	display.PasswordHash = ""
	display.DeviceTokens = nil
	if err := p.cache.Set(ctx, id, &display, p.ttl); err != nil {
		utils.Logger.Warn("profile cache write failed", zap.String("userId", id), zap.Error(err))
	}
	return &display, nil
}

func (p *Profiles) Invalidate(ctx context.Context, id string) {
	if err := p.cache.Delete(ctx, id); err != nil {
		utils.Logger.Warn("profile cache invalidation failed", zap.String("userId", id), zap.Error(err))
	}
}
