// Package simulator drives a running engine over HTTP with a population of
// users who connect, post and toggle likes, bookmarks and reposts through
// the interaction controller.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"thoth/internal/api"
	"thoth/internal/interaction"
	"thoth/internal/models"
	"thoth/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type SimConfig struct {
	NumUsers             int
	SimulationTime       time.Duration
	PostFrequency        float64 // posts per user per hour
	InteractionFrequency float64 // toggles per user per hour
	RepostPercentage     float64
	DoubleTapRate        float64 // share of likes fired twice without waiting
	DisconnectRate       float64
	ReconnectRate        float64
	ZipfS                float64
	TickInterval         time.Duration
	EngineURL            string
}

func DefaultConfig() SimConfig {
	return SimConfig{
		NumUsers:             10,
		SimulationTime:       time.Minute,
		PostFrequency:        120,
		InteractionFrequency: 600,
		RepostPercentage:     0.1,
		DoubleTapRate:        0.2,
		DisconnectRate:       0.01,
		ReconnectRate:        0.05,
		ZipfS:                1.07,
		TickInterval:         500 * time.Millisecond,
		EngineURL:            "http://localhost:8080",
	}
}

type SimulationStats struct {
	mu               sync.RWMutex
	StartTime        time.Time
	TotalRequests    int64
	SuccessRequests  int64
	FailedRequests   int64
	AverageLatency   time.Duration
	TotalPosts       int
	Likes            int
	Bookmarks        int
	Reposts          int
	InFlightRejected int
	DuplicateReposts int
	RolledBack       int
}

func (st *SimulationStats) recordRequest(start time.Time, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	latency := time.Since(start)
	st.TotalRequests++
	if err != nil {
		st.FailedRequests++
	} else {
		st.SuccessRequests++
	}
	total := st.AverageLatency * time.Duration(st.TotalRequests-1)
	st.AverageLatency = (total + latency) / time.Duration(st.TotalRequests)
}

func (st *SimulationStats) add(fn func(*SimulationStats)) {
	st.mu.Lock()
	fn(st)
	st.mu.Unlock()
}

// SimulatedUser is one signed-in session.
type SimulatedUser struct {
	ID          string
	Username    string
	Email       string
	Token       string
	IsConnected bool
	Connections []string
	controller  *interaction.Controller
}

type Simulator struct {
	config SimConfig
	stats  *SimulationStats
	client *apiClient
	users  []*SimulatedUser
	mu     sync.RWMutex
	rng    *rand.Rand
	rngMu  sync.Mutex
}

func New(config SimConfig) *Simulator {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	// rand.NewZipf needs s > 1.
	if config.ZipfS <= 1 {
		config.ZipfS = DefaultConfig().ZipfS
	}
	stats := &SimulationStats{StartTime: time.Now()}
	return &Simulator{
		config: config,
		stats:  stats,
		client: newAPIClient(config.EngineURL, stats),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulator) chance(p float64) bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < p
}

func (s *Simulator) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// Run sets up the population and then simulates activity until ctx ends.
func (s *Simulator) Run(ctx context.Context) error {
	utils.Logger.Info("starting simulation", zap.Int("users", s.config.NumUsers), zap.String("engine", s.config.EngineURL))

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.simulatePosts(ctx)
	}()
	go func() {
		defer wg.Done()
		s.simulateInteractions(ctx)
	}()
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()
	wg.Wait()
	return nil
}

func (s *Simulator) initialize(ctx context.Context) error {
	if err := s.createUsers(ctx); err != nil {
		return err
	}
	if len(s.users) == 0 {
		return fmt.Errorf("no users could be registered")
	}
	return s.connectUsers(ctx)
}

// createUsers registers and signs in every user with a small worker pool.
func (s *Simulator) createUsers(ctx context.Context) error {
	runID := time.Now().UnixNano()
	users := make([]*SimulatedUser, s.config.NumUsers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for i := range users {
		i := i
		g.Go(func() error {
			user := &SimulatedUser{
				Username:    fmt.Sprintf("user_%d_%d", runID%100000, i),
				Email:       fmt.Sprintf("user_%d_%d@sim.thoth", runID, i),
				IsConnected: true,
			}
			if err := s.registerUser(gctx, user); err != nil {
				utils.Logger.Warn("failed to register user", zap.String("username", user.Username), zap.Error(err))
				return nil
			}
			users[i] = user
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, u := range users {
		if u != nil {
			s.users = append(s.users, u)
		}
	}
	utils.Logger.Info("users created", zap.Int("count", len(s.users)))
	return nil
}

func (s *Simulator) registerUser(ctx context.Context, user *SimulatedUser) error {
	reg := map[string]string{
		"username": user.Username,
		"name":     user.Username,
		"email":    user.Email,
		"password": "testpass123",
	}
	if err := s.client.do(ctx, http.MethodPost, "/user/register", "", reg, nil); err != nil {
		return err
	}

	var login api.LoginResponse
	if err := s.client.do(ctx, http.MethodPost, "/user/login", "", api.LoginRequest{Email: user.Email, Password: "testpass123"}, &login); err != nil {
		return err
	}
	if !login.Success {
		return fmt.Errorf("login rejected: %s", login.Error)
	}
	user.ID = login.UserID
	user.Token = login.Token
	user.controller = interaction.NewController(models.Identity{UID: user.ID, Username: user.Username}, httpMutator{client: s.client, token: user.Token})
	return nil
}

// connectUsers gives each user a Zipf-distributed number of connections so a
// few accounts end up followed by most of the population.
func (s *Simulator) connectUsers(ctx context.Context) error {
	if len(s.users) < 2 {
		return nil
	}
	s.rngMu.Lock()
	zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(len(s.users)-1))
	s.rngMu.Unlock()

	for _, user := range s.users {
		s.rngMu.Lock()
		n := int(zipf.Uint64()) + 1
		s.rngMu.Unlock()
		for _, idx := range s.pickOthers(user, n) {
			target := s.users[idx]
			if err := s.client.do(ctx, http.MethodPost, "/user/connections", user.Token, api.ConnectionRequest{TargetID: target.ID}, nil); err != nil {
				utils.Logger.Debug("connect failed", zap.String("user", user.Username), zap.Error(err))
				continue
			}
			user.Connections = append(user.Connections, target.ID)
		}
	}
	return nil
}

// pickOthers favours low indexes, the accounts everyone follows.
func (s *Simulator) pickOthers(user *SimulatedUser, n int) []int {
	seen := map[int]bool{}
	var out []int
	for attempts := 0; len(out) < n && attempts < n*4; attempts++ {
		idx := s.intn(len(s.users))
		if s.chance(0.5) {
			idx = s.intn(1 + len(s.users)/4)
		}
		if seen[idx] || s.users[idx] == user {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}

func (s *Simulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			for _, user := range s.users {
				if user.IsConnected && s.chance(s.config.DisconnectRate) {
					user.IsConnected = false
				} else if !user.IsConnected && s.chance(s.config.ReconnectRate) {
					user.IsConnected = true
				}
			}
			s.mu.Unlock()
		}
	}
}

// activeUsers snapshots the users currently online.
func (s *Simulator) activeUsers() []*SimulatedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SimulatedUser, 0, len(s.users))
	for _, u := range s.users {
		if u.IsConnected {
			out = append(out, u)
		}
	}
	return out
}

// SimulationMetrics is a point-in-time copy of the stats.
type SimulationMetrics struct {
	TotalUsers        int
	ActiveUsers       int
	TotalPosts        int
	Likes             int
	Bookmarks         int
	Reposts           int
	InFlightRejected  int
	DuplicateReposts  int
	RolledBack        int
	AverageLatency    time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

func (s *Simulator) GetMetrics() SimulationMetrics {
	active := len(s.activeUsers())
	s.mu.RLock()
	total := len(s.users)
	s.mu.RUnlock()

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	elapsed := time.Since(s.stats.StartTime)
	return SimulationMetrics{
		TotalUsers:        total,
		ActiveUsers:       active,
		TotalPosts:        s.stats.TotalPosts,
		Likes:             s.stats.Likes,
		Bookmarks:         s.stats.Bookmarks,
		Reposts:           s.stats.Reposts,
		InFlightRejected:  s.stats.InFlightRejected,
		DuplicateReposts:  s.stats.DuplicateReposts,
		RolledBack:        s.stats.RolledBack,
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}
