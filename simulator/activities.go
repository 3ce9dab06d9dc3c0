package simulator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"thoth/internal/models"
	"thoth/internal/resolve"
	"thoth/internal/utils"

	"go.uber.org/zap"
)

var postTypes = []models.PostType{
	models.PostTypeGeneral, models.PostTypeStudy, models.PostTypeResource,
	models.PostTypeQuestion, models.PostTypeEvent,
}

var topics = []string{
	"calculus", "algorithms", "databases", "physics", "statistics",
	"compilers", "linear-algebra", "networks", "ethics", "thesis",
}

const numWorkers = 5

// runWorkers hands every online user to work once per tick until ctx ends.
func (s *Simulator) runWorkers(ctx context.Context, work func(context.Context, *SimulatedUser)) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	jobs := make(chan *SimulatedUser, s.config.NumUsers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range jobs {
				work(ctx, user)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			for _, user := range s.activeUsers() {
				select {
				case jobs <- user:
				default:
				}
			}
		}
	}
}

// perTick converts an hourly rate into a per-tick probability.
func (s *Simulator) perTick(perHour float64) float64 {
	return perHour / 3600.0 * s.config.TickInterval.Seconds()
}

func (s *Simulator) simulatePosts(ctx context.Context) {
	s.runWorkers(ctx, func(ctx context.Context, user *SimulatedUser) {
		if !s.chance(s.perTick(s.config.PostFrequency)) {
			return
		}
		topic := topics[s.intn(len(topics))]
		post := map[string]interface{}{
			"content":  fmt.Sprintf("%s notes from %s at %s", topic, user.Username, time.Now().Format(time.RFC3339)),
			"tags":     []string{topic},
			"postType": postTypes[s.intn(len(postTypes))],
		}
		if err := s.client.do(ctx, http.MethodPost, "/posts", user.Token, post, nil); err != nil {
			utils.Logger.Debug("create post failed", zap.String("user", user.Username), zap.Error(err))
			return
		}
		s.stats.add(func(st *SimulationStats) { st.TotalPosts++ })
	})
}

func (s *Simulator) simulateInteractions(ctx context.Context) {
	s.runWorkers(ctx, func(ctx context.Context, user *SimulatedUser) {
		if !s.chance(s.perTick(s.config.InteractionFrequency)) {
			return
		}
		cards, err := s.loadFeed(ctx, user)
		if err != nil || len(cards) == 0 {
			return
		}
		card := cards[s.intn(len(cards))]

		switch {
		case s.chance(s.config.RepostPercentage):
			s.repost(ctx, user, card)
		case s.chance(0.3):
			s.toggleBookmark(ctx, user, card)
		default:
			s.toggleLike(ctx, user, card)
		}
	})
}

// loadFeed fetches the user's feed and seeds their controller with it.
func (s *Simulator) loadFeed(ctx context.Context, user *SimulatedUser) ([]*resolve.Card, error) {
	var feed struct {
		Cards []*resolve.Card `json:"cards"`
	}
	if err := s.client.do(ctx, http.MethodGet, "/feed", user.Token, nil, &feed); err != nil {
		return nil, err
	}
	for _, c := range feed.Cards {
		user.controller.Seed(c)
	}
	return feed.Cards, nil
}

// toggleLike sometimes fires a second toggle while the first is still in
// flight, the way a double tap would.
func (s *Simulator) toggleLike(ctx context.Context, user *SimulatedUser, card *resolve.Card) {
	tries := 1
	if s.chance(s.config.DoubleTapRate) {
		tries = 2
	}
	var wg sync.WaitGroup
	for i := 0; i < tries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := user.controller.ToggleLike(ctx, card)
			s.countToggle(err, func(st *SimulationStats) { st.Likes++ })
		}()
	}
	wg.Wait()
}

func (s *Simulator) toggleBookmark(ctx context.Context, user *SimulatedUser, card *resolve.Card) {
	_, err := user.controller.ToggleBookmark(ctx, card)
	s.countToggle(err, func(st *SimulationStats) { st.Bookmarks++ })
}

func (s *Simulator) repost(ctx context.Context, user *SimulatedUser, card *resolve.Card) {
	if card.Viewer.CanDelete && card.State == resolve.StateOriginal {
		// Own posts are not reposted.
		return
	}
	_, err := user.controller.Repost(ctx, card)
	s.countToggle(err, func(st *SimulationStats) { st.Reposts++ })
}

func (s *Simulator) countToggle(err error, success func(*SimulationStats)) {
	s.stats.add(func(st *SimulationStats) {
		switch {
		case err == nil:
			success(st)
		case utils.IsErrorCode(err, utils.ErrInFlight):
			st.InFlightRejected++
		case utils.IsErrorCode(err, utils.ErrDuplicate):
			st.DuplicateReposts++
		default:
			st.RolledBack++
		}
	})
}

// LogMetrics writes the current metrics to the logger every interval until ctx ends.
func (s *Simulator) LogMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			utils.Logger.Info("simulation metrics",
				zap.Float64("requestsPerSecond", m.RequestsPerSecond),
				zap.Duration("averageLatency", m.AverageLatency),
				zap.Int("activeUsers", m.ActiveUsers),
				zap.Int("posts", m.TotalPosts),
				zap.Int("likes", m.Likes),
				zap.Int("bookmarks", m.Bookmarks),
				zap.Int("reposts", m.Reposts),
				zap.Int("inFlightRejected", m.InFlightRejected),
				zap.Int("duplicateReposts", m.DuplicateReposts),
				zap.Int("rolledBack", m.RolledBack),
				zap.Int("errors", m.ErrorCount))
		}
	}
}
