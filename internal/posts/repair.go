package posts

import (
	"context"
	"fmt"
	"time"

	"thoth/internal/models"
	"thoth/internal/utils"

	"go.uber.org/zap"
)

// MaxRepairAttempts bounds how often Repair retries one intent before marking it failed.
const MaxRepairAttempts = 5

// DefaultRepairMinAge keeps Repair away from intents of operations that may
// still be in progress.
const DefaultRepairMinAge = 30 * time.Second

const repairBatch = 100

type RepairReport struct {
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
	Pending  int `json:"pending"`
}

// Repair replays every pending intent older than the repair minimum age. Each
// step is idempotent, so replaying an intent whose operation actually
// finished is harmless.
func (s *Service) Repair(ctx context.Context) (report RepairReport, err error) {
	intents, err := s.store.ListPendingIntents(ctx, s.now().Add(-s.repairMinAge), repairBatch)
	if err != nil {
		return report, err
	}

	for _, intent := range intents {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if rerr := s.replay(ctx, intent); rerr != nil {
			final := intent.Attempts+1 >= MaxRepairAttempts
			if ferr := s.store.FailIntent(ctx, intent.ID, rerr.Error(), final); ferr != nil {
				return report, ferr
			}
			if final {
				report.Failed++
			} else {
				report.Pending++
			}
			utils.Logger.Warn("intent replay failed",
				zap.String("intentId", intent.ID),
				zap.Int("attempt", intent.Attempts+1),
				zap.Bool("final", final),
				zap.Error(rerr))
			continue
		}
		if err := s.store.CompleteIntent(ctx, intent.ID); err != nil {
			return report, err
		}
		report.Repaired++
	}

	if len(intents) > 0 {
		utils.Logger.Info("intent repair pass finished",
			zap.Int("repaired", report.Repaired),
			zap.Int("pending", report.Pending),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *Service) replay(ctx context.Context, intent *models.Intent) error {
	switch intent.Kind {
	case models.IntentDeletePost:
		return s.runDelete(ctx, intent)
	case models.IntentRepost:
		return s.replayRepost(ctx, intent)
	default:
		return fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
}

// replayRepost converges a repost to either fully present or fully absent:
// a wrapper whose root is gone is deleted, a claim without a wrapper is released.
func (s *Service) replayRepost(ctx context.Context, intent *models.Intent) error {
	_, err := s.store.GetPost(ctx, intent.PostID)
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return s.releaseRepostRef(ctx, intent)
	}
	if err != nil {
		return err
	}

	_, err = s.store.AddRepostRef(ctx, intent.RootID, models.RepostRef{UID: intent.ActorID, Name: intent.ActorName})
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return ignoreNotFound(s.store.DeletePost(ctx, intent.PostID))
	}
	return err
}

// releaseRepostRef drops the actor from the root's repostedBy unless the actor
// holds another live repost of it, which owns the entry now.
func (s *Service) releaseRepostRef(ctx context.Context, intent *models.Intent) error {
	wrappers, err := s.store.FindReposts(ctx, intent.RootID)
	if err != nil {
		return err
	}
	for _, w := range wrappers {
		if w.ID != intent.PostID && w.Author.ID == intent.ActorID {
			utils.Logger.Debug("repost claim kept for newer wrapper",
				zap.String("intentId", intent.ID),
				zap.String("wrapperId", w.ID))
			return nil
		}
	}
	return ignoreNotFound(s.store.RemoveRepostRef(ctx, intent.RootID, intent.ActorID))
}
