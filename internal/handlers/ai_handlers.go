package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"thoth/internal/api"
	"thoth/internal/genai"
	"thoth/internal/storage"
	"thoth/internal/utils"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const voiceWriteWait = 10 * time.Second

var errAIUnavailable = utils.NewAppError(utils.ErrUpstream, "AI backend is not configured", nil)

func (s *Server) HandleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if s.AI == nil {
			writeError(w, errAIUnavailable)
			return
		}
		var req genai.ChatRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		resp, err := s.AI.Chat(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) HandleImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if s.AI == nil {
			writeError(w, errAIUnavailable)
			return
		}
		var req api.ImageRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		img, err := s.AI.GenerateImage(r.Context(), req.Prompt, req.AspectRatio)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.MediaResponse{MIMEType: img.MIMEType, Data: img.Data})
	}
}

// HandleVideo runs a video job to completion. The result is stored and its
// URL returned; without storage the bytes are returned inline.
func (s *Server) HandleVideo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if s.AI == nil {
			writeError(w, errAIUnavailable)
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req genai.VideoRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		video, err := s.AI.GenerateVideo(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		if s.Uploader == nil {
			writeJSON(w, http.StatusOK, api.MediaResponse{MIMEType: video.MIMEType, Data: video.Data})
			return
		}
		objectPath := storage.ObjectPath(me.UID, uuid.NewString(), "video.mp4")
		url, err := s.Uploader.Upload(r.Context(), objectPath, bytes.NewReader(video.Data), int64(len(video.Data)), video.MIMEType)
		if err != nil {
			writeError(w, utils.NewAppError(utils.ErrUpstream, "failed to store video", err))
			return
		}
		writeJSON(w, http.StatusOK, api.MediaResponse{MIMEType: video.MIMEType, URL: url})
	}
}

// HandleVoice proxies a live audio conversation. The browser sends binary
// PCM frames; audio comes back as binary frames and transcripts as JSON.
func (s *Server) HandleVoice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.identity(r); err != nil {
			writeError(w, err)
			return
		}
		if s.AI == nil {
			writeError(w, errAIUnavailable)
			return
		}
		session, err := s.AI.DialLive(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		defer session.Close()

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			utils.Logger.Warn("voice upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		go func() {
			defer conn.Close()
			for ev := range session.Events() {
				conn.SetWriteDeadline(time.Now().Add(voiceWriteWait))
				var err error
				switch {
				case ev.Err != nil:
					payload, _ := json.Marshal(map[string]string{"type": "error", "error": ev.Err.Error()})
					err = conn.WriteMessage(ws.TextMessage, payload)
				case len(ev.Audio) > 0:
					err = conn.WriteMessage(ws.BinaryMessage, ev.Audio)
				default:
					payload, _ := json.Marshal(ev)
					err = conn.WriteMessage(ws.TextMessage, payload)
				}
				if err != nil {
					return
				}
			}
		}()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != ws.BinaryMessage {
				continue
			}
			if err := session.SendAudio(data); err != nil {
				utils.Logger.Debug("voice relay stopped", zap.Error(err))
				return
			}
		}
	}
}
