package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		client := NewClient(hub, r.URL.Query().Get("user"), conn, "notices")
		hub.Attach(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDirectMessagesRespectTopics(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "u-ana")
	other := dial(t, srv, "u-bia")
	require.Eventually(t, func() bool { return hub.Connected("u-ana") == 1 && hub.Connected("u-bia") == 1 }, time.Second, 5*time.Millisecond)

	hub.SendDirectMessage("u-ana", "cards", []byte(`{"skip":true}`))
	hub.SendDirectMessage("u-ana", "notices", []byte(`{"n":1}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(msg))

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "messages only reach their target user")
}

func TestClosedConnectionUnregisters(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "u-ana")
	require.Eventually(t, func() bool { return hub.Connected("u-ana") == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Connected("u-ana") == 0 }, 2*time.Second, 10*time.Millisecond)

	// Sending to an offline user is a no-op.
	hub.SendDirectMessage("u-ana", "notices", []byte("{}"))
}

func TestEnqueueAfterDoneFails(t *testing.T) {
	c := NewClient(NewHub(), "u-ana", nil)
	assert.True(t, c.Enqueue([]byte("a")))
	c.closeOnce.Do(func() { close(c.done) })
	assert.False(t, c.Enqueue([]byte("b")))
}
