package handlers

import (
	"net/http"

	"thoth/internal/api"
	"thoth/internal/engine/actors"
	"thoth/internal/models"
	"thoth/internal/profiles"
	"thoth/internal/utils"

	"go.uber.org/zap"
)

// HandleUserRegistration handles requests to register a new user
func (s *Server) HandleUserRegistration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}

		var req profiles.Registration
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}

		result, err := s.Engine.Ask(s.Engine.GetProfileActor(), &actors.RegisterUserMsg{Registration: req})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

// HandleUserLogin handles requests to log in a user
func (s *Server) HandleUserLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}

		var req api.LoginRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}

		result, err := s.Engine.Ask(s.Engine.GetProfileActor(), &actors.LoginMsg{
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		loginResp := result.(*api.LoginResponse)
		if !loginResp.Success {
			writeJSON(w, http.StatusUnauthorized, loginResp)
			return
		}

		// Only generate token if login was successful
		token, err := s.Auth.GenerateToken(loginResp.UserID)
		if err != nil {
			utils.Logger.Error("failed to generate token", zap.String("userId", loginResp.UserID), zap.Error(err))
			http.Error(w, "Failed to generate auth token", http.StatusInternalServerError)
			return
		}
		loginResp.Token = token
		writeJSON(w, http.StatusOK, loginResp)
	}
}

// HandleUserProfile reads any profile (?id=, default self) or edits the caller's.
func (s *Server) HandleUserProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet, http.MethodPut) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var msg interface{}
		switch r.Method {
		case http.MethodGet:
			id := r.URL.Query().Get("id")
			if id == "" {
				id = me.UID
			}
			msg = &actors.GetUserProfileMsg{UserID: id}
		case http.MethodPut:
			var patch models.ProfilePatch
			if err := decode(r, &patch); err != nil {
				writeError(w, err)
				return
			}
			msg = &actors.UpdateProfileMsg{UserID: me.UID, Patch: patch}
		}

		result, err := s.Engine.Ask(s.Engine.GetProfileActor(), msg)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleConnections lists, adds or removes the caller's connections.
func (s *Server) HandleConnections() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if r.Method == http.MethodGet {
			result, err := s.Engine.Ask(s.Engine.GetProfileActor(), &actors.GetConnectionsMsg{UserID: me.UID})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"connections": result})
			return
		}

		req := api.ConnectionRequest{TargetID: r.URL.Query().Get("targetId")}
		if req.TargetID == "" {
			if err := decode(r, &req); err != nil {
				writeError(w, err)
				return
			}
		}
		if req.TargetID == "" {
			writeError(w, utils.NewAppError(utils.ErrInvalidInput, "targetId is required", nil))
			return
		}

		var msg interface{} = &actors.ConnectUserMsg{UserID: me.UID, TargetID: req.TargetID}
		if r.Method == http.MethodDelete {
			msg = &actors.DisconnectUserMsg{UserID: me.UID, TargetID: req.TargetID}
		}
		if _, err := s.Engine.Ask(s.Engine.GetProfileActor(), msg); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleDevices registers a push token for the caller.
func (s *Server) HandleDevices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req api.DeviceRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if _, err := s.Engine.Ask(s.Engine.GetProfileActor(), &actors.RegisterDeviceMsg{UserID: me.UID, Token: req.Token}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
