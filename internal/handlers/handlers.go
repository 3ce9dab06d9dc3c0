package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"thoth/internal/api"
	"thoth/internal/compose"
	"thoth/internal/config"
	"thoth/internal/engine"
	"thoth/internal/engine/actors"
	"thoth/internal/genai"
	"thoth/internal/middleware"
	"thoth/internal/models"
	"thoth/internal/resolve"
	"thoth/internal/storage"
	"thoth/internal/utils"
	"thoth/internal/websocket"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxUploadMemory bounds the part of a multipart form held in memory.
const maxUploadMemory = 32 << 20

// Server holds all server dependencies, including the actor engine
type Server struct {
	Engine   *engine.Engine
	Metrics  *utils.MetricsCollector
	Auth     *middleware.Auth
	CORS     *config.CORSConfig
	Hub      *websocket.Hub
	Resolver *resolve.Resolver
	// Posts reads raw post documents for live tracking.
	Posts    resolve.PostSource
	AI       *genai.Client
	Uploader storage.Uploader
	Previews *compose.Previews

	MetricsEnabled bool

	upgrader ws.Upgrader
}

// Routes registers every endpoint and wraps them in CORS, auth and request metrics.
func (s *Server) Routes() http.Handler {
	if s.CORS == nil {
		s.CORS = config.DefaultCORSConfig()
	}
	if s.Previews == nil {
		s.Previews = compose.NewPreviews()
	}
	s.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(s.CORS, origin)
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth())
	if s.MetricsEnabled {
		mux.Handle("/metrics", s.Metrics.Handler())
	}

	mux.HandleFunc("/user/register", s.HandleUserRegistration())
	mux.HandleFunc("/user/login", s.HandleUserLogin())
	mux.HandleFunc("/user/profile", s.HandleUserProfile())
	mux.HandleFunc("/user/connections", s.HandleConnections())
	mux.HandleFunc("/user/devices", s.HandleDevices())

	mux.HandleFunc("/posts", s.HandlePosts())
	mux.HandleFunc("/posts/like", s.HandleLike())
	mux.HandleFunc("/posts/bookmark", s.HandleBookmark())
	mux.HandleFunc("/posts/repost", s.HandleRepost())
	mux.HandleFunc("/feed", s.HandleFeed())

	mux.HandleFunc("/events", s.HandleEvents())
	mux.HandleFunc("/events/join", s.HandleEventAction(eventJoin))
	mux.HandleFunc("/events/leave", s.HandleEventAction(eventLeave))
	mux.HandleFunc("/events/interest", s.HandleEventAction(eventInterest))

	mux.HandleFunc("/ai/chat", s.HandleChat())
	mux.HandleFunc("/ai/image", s.HandleImage())
	mux.HandleFunc("/ai/video", s.HandleVideo())
	mux.HandleFunc("/ai/voice", s.HandleVoice())

	mux.HandleFunc("/ws", s.HandleWebSocket())

	return middleware.CORS(s.CORS)(s.instrument(s.Auth.AuthMiddleware(mux)))
}

// identity loads the profile of the authenticated caller.
func (s *Server) identity(r *http.Request) (models.Identity, error) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		return models.Identity{}, utils.NewUnauthorizedError("missing user")
	}
	result, err := s.Engine.Ask(s.Engine.GetProfileActor(), &actors.GetIdentityMsg{UserID: userID})
	if err != nil {
		return models.Identity{}, err
	}
	return result.(models.Identity), nil
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Invalid request", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError answers with the HTTP status and JSON body for err.
func writeError(w http.ResponseWriter, err error) {
	code := utils.ErrorCode(err)
	status := utils.AppErrorToHTTPStatus(code)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		utils.Logger.Error("request failed", zap.String("code", code), zap.Error(err))
		if code == utils.ErrDatabase {
			message = "internal error"
		}
	}
	writeJSON(w, status, api.ErrorResponse{Code: code, Error: message})
}

// statusRecorder remembers the status code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Metrics.IncrementRequests()
		if rec.status >= http.StatusInternalServerError {
			s.Metrics.IncrementErrors()
		}
		s.Metrics.AddOperationLatency("http_request", time.Since(start))
	})
}
