package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"thoth/internal/models"
	"thoth/internal/notify"
	"thoth/internal/resolve"
	"thoth/internal/utils"
	"thoth/internal/websocket"

	"go.uber.org/zap"
)

type cardMessage struct {
	Type string        `json:"type"`
	Card *resolve.Card `json:"card"`
}

// HandleWebSocket upgrades to a websocket that receives the caller's notices
// and, with ?postId=, live updates of that post's card. The token comes from
// the token query parameter, checked by the auth middleware.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var tracked *models.Post
		if postID := r.URL.Query().Get("postId"); postID != "" {
			tracked, err = s.Posts.GetPost(r.Context(), postID)
			if err != nil {
				writeError(w, err)
				return
			}
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			utils.Logger.Warn("websocket upgrade failed", zap.String("userId", me.UID), zap.Error(err))
			return
		}

		client := websocket.NewClient(s.Hub, me.UID, conn, notify.TopicNotices)
		if !s.Hub.Attach(client) {
			utils.Logger.Warn("websocket hub not running", zap.String("userId", me.UID))
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()

		if tracked != nil {
			go s.trackCard(client, me, tracked)
		}
	}
}

// trackCard streams card updates to client until it disconnects or the post is deleted.
func (s *Server) trackCard(client *websocket.Client, viewer models.Identity, post *models.Post) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-client.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	cards, err := s.Resolver.Track(ctx, viewer, post)
	if err != nil {
		utils.Logger.Warn("card tracking failed", zap.String("postId", post.ID), zap.Error(err))
		return
	}
	for card := range cards {
		payload, err := json.Marshal(cardMessage{Type: "card", Card: card})
		if err != nil {
			continue
		}
		if !client.Enqueue(payload) {
			utils.Logger.Debug("card update dropped", zap.String("postId", post.ID), zap.String("userId", viewer.UID))
		}
	}
}
