package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"thoth/internal/api"
	"thoth/internal/compose"
	"thoth/internal/database"
	"thoth/internal/engine"
	"thoth/internal/middleware"
	"thoth/internal/models"
	"thoth/internal/notify"
	"thoth/internal/resolve"
	"thoth/internal/storage"
	"thoth/internal/utils"
	"thoth/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	handler http.Handler
	store   *database.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := database.NewMemoryStore()
	metrics := utils.NewMetricsCollector()
	hub := websocket.NewHub()
	go hub.Run(ctx)

	svc := engine.NewServices(store, notify.HubNotifier{Hub: hub}, nil, nil, metrics)
	eng := engine.NewEngine(actor.NewActorSystem(), svc, metrics, engine.Options{RequestTimeout: 2 * time.Second})
	t.Cleanup(eng.Stop)

	uploader, err := storage.NewLocalUploader(t.TempDir(), "http://files.test")
	require.NoError(t, err)

	s := &Server{
		Engine:         eng,
		Metrics:        metrics,
		Auth:           middleware.NewAuth("test-secret", time.Hour),
		Hub:            hub,
		Resolver:       svc.Resolver,
		Posts:          store,
		Uploader:       uploader,
		Previews:       compose.NewPreviews(),
		MetricsEnabled: true,
	}
	return &testEnv{handler: s.Routes(), store: store}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

// signUp registers and logs in, returning the user id and token.
func (e *testEnv) signUp(t *testing.T, username string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/user/register", "", map[string]string{
		"username": username, "name": strings.ToUpper(username[:1]) + username[1:],
		"email": username + "@uni.example", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/user/login", "", api.LoginRequest{Email: username + "@uni.example", Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login api.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.True(t, login.Success)
	return login.UserID, login.Token
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRegisterLoginAndProfile(t *testing.T) {
	env := newTestEnv(t)
	id, token := env.signUp(t, "ana")

	w := env.do(t, http.MethodPost, "/user/login", "", api.LoginRequest{Email: "ana@uni.example", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decodeBody[api.LoginResponse](t, w).Error)

	w = env.do(t, http.MethodGet, "/user/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decodeBody[models.Profile](t, w)
	assert.Equal(t, id, profile.ID)
	assert.NotContains(t, w.Body.String(), "password")

	bio := "maths"
	w = env.do(t, http.MethodPut, "/user/profile", token, models.ProfilePatch{Bio: &bio})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "maths", decodeBody[models.Profile](t, w).Bio)

	w = env.do(t, http.MethodGet, "/user/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/user/devices", token, api.DeviceRequest{Token: "fcm-token"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPostsRepostLikeAndFeed(t *testing.T) {
	env := newTestEnv(t)
	anaID, anaToken := env.signUp(t, "ana")
	_, biaToken := env.signUp(t, "bia")

	w := env.do(t, http.MethodPost, "/user/connections", biaToken, api.ConnectionRequest{TargetID: anaID})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/posts", anaToken, map[string]interface{}{"content": "hello campus", "postType": "study"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orig := decodeBody[models.Post](t, w)

	w = env.do(t, http.MethodPost, "/posts/repost", biaToken, api.RepostRequest{PostID: orig.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wrapper := decodeBody[models.Post](t, w)

	w = env.do(t, http.MethodPost, "/posts/repost", biaToken, api.RepostRequest{PostID: orig.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, utils.ErrDuplicate, decodeBody[api.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodPost, "/posts/like", biaToken, api.LikeRequest{PostID: wrapper.ID, Liked: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"targetId":"`+orig.ID+`"`)

	w = env.do(t, http.MethodGet, "/feed", biaToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	feed := decodeBody[struct {
		Cards []*resolve.Card `json:"cards"`
	}](t, w)
	require.Len(t, feed.Cards, 2)
	for _, c := range feed.Cards {
		assert.Equal(t, 1, c.Post.Likes, "card %s shows the live original", c.ID)
		assert.True(t, c.Viewer.Liked)
	}

	w = env.do(t, http.MethodGet, "/feed?filter=question", biaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[struct {
		Cards []*resolve.Card `json:"cards"`
	}](t, w).Cards)

	w = env.do(t, http.MethodGet, "/feed?filter=bogus", biaToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/posts?id="+orig.ID, biaToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/posts?id="+orig.ID, anaToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/posts?id="+wrapper.ID, biaToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "cascade removed the repost")
}

func TestBookmarkAndEditPost(t *testing.T) {
	env := newTestEnv(t)
	_, anaToken := env.signUp(t, "ana")

	w := env.do(t, http.MethodPost, "/posts", anaToken, map[string]interface{}{"content": "first draft"})
	require.Equal(t, http.StatusCreated, w.Code)
	post := decodeBody[models.Post](t, w)

	w = env.do(t, http.MethodPost, "/posts/bookmark", anaToken, api.BookmarkRequest{PostID: post.ID, Bookmarked: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPatch, "/posts?id="+post.ID, anaToken, map[string]string{"content": "final"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "final", decodeBody[models.Post](t, w).Content)

	w = env.do(t, http.MethodGet, "/feed?filter=bookmarks", anaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cards := decodeBody[struct {
		Cards []*resolve.Card `json:"cards"`
	}](t, w).Cards
	require.Len(t, cards, 1)
	assert.Equal(t, "first draft", cards[0].Post.Content)
}

func multipartBody(t *testing.T, fields map[string]string, images map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestMultipartPublish(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "ana")

	body, contentType := multipartBody(t,
		map[string]string{"content": "slides attached", "tags": "calc, exam", "postType": "resource"},
		map[string][]byte{"slide.png": {0x89, 'P', 'N', 'G'}})
	r := httptest.NewRequest(http.MethodPost, "/posts", body)
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	post := decodeBody[models.Post](t, w)
	assert.Equal(t, []string{"calc", "exam"}, post.Tags)
	require.Len(t, post.Images, 1)
	assert.True(t, strings.HasPrefix(post.Images[0], "http://files.test/posts/"), post.Images[0])

	body, contentType = multipartBody(t, map[string]string{"content": strings.Repeat("x", 2001)}, nil)
	r = httptest.NewRequest(http.MethodPost, "/posts", body)
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"problems"`)
}

func TestEventsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	_, anaToken := env.signUp(t, "ana")
	_, biaToken := env.signUp(t, "bia")

	w := env.do(t, http.MethodPost, "/events", anaToken, map[string]interface{}{
		"title": "Workshop Go", "type": "workshop", "date": time.Now().Add(48 * time.Hour), "maxParticipants": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	event := decodeBody[models.Event](t, w)

	w = env.do(t, http.MethodPost, "/events/join", biaToken, api.EventActionRequest{EventID: event.ID})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/events/join", anaToken, api.EventActionRequest{EventID: event.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/events/interest", anaToken, api.EventActionRequest{EventID: event.ID, Interested: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[models.Event](t, w).Interested, 1)

	w = env.do(t, http.MethodGet, "/events", biaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[struct {
		Events []*models.Event `json:"events"`
	}](t, w).Events, 1)
}

func TestHealthMetricsAndAIWithoutBackend(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "ana")

	w := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "thoth_requests_total")

	w = env.do(t, http.MethodPost, "/ai/chat", token, map[string]string{"prompt": "hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = env.do(t, http.MethodPut, "/posts/like", token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWebSocketStreamsCardsAndNotices(t *testing.T) {
	env := newTestEnv(t)
	_, anaToken := env.signUp(t, "ana")
	_, biaToken := env.signUp(t, "bia")
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	w := env.do(t, http.MethodPost, "/posts", anaToken, map[string]interface{}{"content": "watch me"})
	require.Equal(t, http.StatusCreated, w.Code)
	orig := decodeBody[models.Post](t, w)
	w = env.do(t, http.MethodPost, "/posts/repost", biaToken, api.RepostRequest{PostID: orig.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	wrapper := decodeBody[models.Post](t, w)

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	biaConn, _, err := ws.DefaultDialer.Dial(base+"/ws?token="+biaToken+"&postId="+wrapper.ID, nil)
	require.NoError(t, err)
	defer biaConn.Close()
	anaConn, _, err := ws.DefaultDialer.Dial(base+"/ws?token="+anaToken, nil)
	require.NoError(t, err)
	defer anaConn.Close()

	var first cardMessage
	biaConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, biaConn.ReadJSON(&first))
	assert.Equal(t, resolve.StatePending, first.Card.State)

	// Give ana's session time to register before the like triggers a notice.
	time.Sleep(100 * time.Millisecond)
	w = env.do(t, http.MethodPost, "/posts/like", biaToken, api.LikeRequest{PostID: wrapper.ID, Liked: true})
	require.Equal(t, http.StatusOK, w.Code)

	deadline := time.Now().Add(3 * time.Second)
	for {
		var msg cardMessage
		biaConn.SetReadDeadline(deadline)
		require.NoError(t, biaConn.ReadJSON(&msg))
		if msg.Card != nil && msg.Card.Post != nil && msg.Card.Post.Likes == 1 {
			assert.Equal(t, resolve.StateResolved, msg.Card.State)
			break
		}
	}

	anaConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, notice, err := anaConn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(notice), `"kind":"like"`)
}
