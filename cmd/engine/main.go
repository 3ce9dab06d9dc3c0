package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"thoth/internal/cache"
	"thoth/internal/config"
	"thoth/internal/database"
	"thoth/internal/engine"
	"thoth/internal/genai"
	"thoth/internal/handlers"
	"thoth/internal/middleware"
	"thoth/internal/models"
	"thoth/internal/notify"
	"thoth/internal/storage"
	"thoth/internal/utils"
	"thoth/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds everything main has to shut down.
type app struct {
	handler http.Handler
	engine  *engine.Engine
	store   database.Store
	stopHub context.CancelFunc
	closers []io.Closer
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	utils.InitLogger(cfg.LogLevel, cfg.Debug)
	defer utils.SyncLogger()

	if cfg.UsesDevSecret() {
		utils.Logger.Warn("JWT_SECRET not set; using the development signing key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		utils.Logger.Fatal("failed to start", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Info("starting server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		utils.Logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Warn("http shutdown", zap.Error(err))
	}
	a.close(shutdownCtx)
}

// newApp wires config, store, cache, notifiers, services, actors and
// handlers into a single http.Handler.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	metrics := utils.NewMetricsCollector()

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{store: store}

	profileCache, redisClient, err := newProfileCache(ctx, cfg.Cache, store)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if redisClient != nil {
		a.closers = append(a.closers, redisClient)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	a.stopHub = stopHub
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	notifiers := notify.Multi{notify.HubNotifier{Hub: hub}}
	if path := cfg.Push.FirebaseCredentialsPath; path != "" {
		fcm, err := notify.NewFCMNotifier(ctx, path, store)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		notifiers = append(notifiers, fcm)
	}

	svc := engine.NewServices(store, notifiers, profileCache, cfg.Feed, metrics)
	svc.Posts.WithRepairMinAge(cfg.Server.RepairMinAge)
	a.engine = engine.NewEngine(actor.NewActorSystem(), svc, metrics, engine.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		RepairInterval: cfg.Server.RepairInterval,
	})

	uploader, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if c, ok := uploader.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	var ai *genai.Client
	if client := genai.New(cfg.AI, nil, metrics); client.Configured() {
		ai = client
	} else {
		utils.Logger.Warn("GEMINI_API_KEY not set; AI endpoints are disabled")
	}

	server := &handlers.Server{
		Engine:         a.engine,
		Metrics:        metrics,
		Auth:           middleware.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		CORS:           cfg.CORS,
		Hub:            hub,
		Resolver:       svc.Resolver,
		Posts:          store,
		AI:             ai,
		Uploader:       uploader,
		MetricsEnabled: cfg.Server.MetricsEnabled,
	}
	a.handler = withUploads(server.Routes(), uploader, cfg.Storage.PublicBaseURL)
	return a, nil
}

// newProfileCache returns the redis client too when one was opened, so it
// can be closed on shutdown.
func newProfileCache(ctx context.Context, cfg *config.CacheConfig, store database.Store) (*cache.Profiles, *redis.Client, error) {
	if cfg.RedisURL == "" {
		return cache.NewProfiles(store, cache.NewMemoryCache[models.Profile](), cfg.ProfileTTL), nil, nil
	}
	rc, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewProfiles(store, cache.NewRedisCache[models.Profile](rc, "thoth:profile"), cfg.ProfileTTL), rc, nil
}

// withUploads serves files written by the local uploader under the path of
// their public base URL. Other uploaders serve their own objects.
func withUploads(routes http.Handler, uploader storage.Uploader, publicBaseURL string) http.Handler {
	local, ok := uploader.(*storage.LocalUploader)
	if !ok {
		return routes
	}
	prefix := "/uploads"
	if u, err := url.Parse(publicBaseURL); err == nil && u.Path != "" && u.Path != "/" {
		prefix = strings.TrimRight(u.Path, "/")
	}

	mux := http.NewServeMux()
	mux.Handle(prefix+"/", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(local.Root()))))
	mux.Handle("/", routes)
	return mux
}

func (a *app) close(ctx context.Context) {
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.stopHub != nil {
		a.stopHub()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			utils.Logger.Warn("close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			utils.Logger.Warn("store close failed", zap.Error(err))
		}
	}
}
