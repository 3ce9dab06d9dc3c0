package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"thoth/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetUserIDFromContext(r.Context())
		w.Write([]byte(userID))
	})
}

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuth("secret", time.Hour)
	token, err := auth.GenerateToken("u-ana")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-ana", claims.UserID)
	assert.Equal(t, "u-ana", claims.Subject)

	_, err = NewAuth("other-secret", time.Hour).ValidateToken(token)
	assert.Error(t, err)

	_, err = auth.GenerateToken("")
	assert.Error(t, err)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	auth := NewAuth("secret", time.Minute)
	auth.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := auth.GenerateToken("u-ana")
	require.NoError(t, err)

	auth.now = time.Now
	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuth("secret", time.Hour)
	token, err := auth.GenerateToken("u-ana")
	require.NoError(t, err)
	h := auth.AuthMiddleware(echoUser())

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		path   string
		status int
		body   string
	}{
		{name: "bearer", path: "/feed", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, status: http.StatusOK, body: "u-ana"},
		{name: "missing", path: "/feed", setup: func(r *http.Request) {}, status: http.StatusUnauthorized},
		{name: "bad scheme", path: "/feed", setup: func(r *http.Request) { r.Header.Set("Authorization", "Token "+token) }, status: http.StatusUnauthorized},
		{name: "garbage", path: "/feed", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, status: http.StatusUnauthorized},
		{name: "unprotected", path: "/health", setup: func(r *http.Request) {}, status: http.StatusOK},
		{name: "query token on upgrade", path: "/ws?token=" + token, setup: func(r *http.Request) { r.Header.Set("Upgrade", "websocket") }, status: http.StatusOK, body: "u-ana"},
		{name: "query token without upgrade", path: "/feed?token=" + token, setup: func(r *http.Request) {}, status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.path, nil)
			tc.setup(r)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestCORSAnswersPreflightForAllowedOrigins(t *testing.T) {
	cfg := config.DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://thoth.example"}
	h := CORS(cfg)(echoUser())

	r := httptest.NewRequest(http.MethodOptions, "/posts", nil)
	r.Header.Set("Origin", "https://thoth.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://thoth.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, []string{"Origin"}, w.Header().Values("Vary"))

	r = httptest.NewRequest(http.MethodGet, "/posts", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	assert.True(t, OriginAllowed(config.DefaultCORSConfig(), "https://anywhere.example"))
}
