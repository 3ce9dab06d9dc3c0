package handlers

import (
	"net/http"
	"strconv"

	"thoth/internal/api"
	"thoth/internal/engine/actors"
	"thoth/internal/events"
	"thoth/internal/models"
	"thoth/internal/utils"
)

type eventAction int

const (
	eventJoin eventAction = iota
	eventLeave
	eventInterest
)

// HandleEvents lists upcoming events (or one with ?id=) and creates events.
func (s *Server) HandleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if r.Method == http.MethodPost {
			var req events.NewEvent
			if err := decode(r, &req); err != nil {
				writeError(w, err)
				return
			}
			result, err := s.Engine.Ask(s.Engine.GetEventActor(), &actors.CreateEventMsg{Actor: me, Event: req})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, result)
			return
		}

		var msg interface{}
		if id := r.URL.Query().Get("id"); id != "" {
			msg = &actors.GetEventMsg{EventID: id}
		} else {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			msg = &actors.ListEventsMsg{Limit: limit}
		}
		result, err := s.Engine.Ask(s.Engine.GetEventActor(), msg)
		if err != nil {
			writeError(w, err)
			return
		}
		if list, ok := result.([]*models.Event); ok {
			writeJSON(w, http.StatusOK, map[string]interface{}{"events": list})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleEventAction(action eventAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		me, err := s.identity(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req api.EventActionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.EventID == "" {
			writeError(w, utils.NewAppError(utils.ErrInvalidInput, "eventId is required", nil))
			return
		}

		var msg interface{}
		switch action {
		case eventJoin:
			msg = &actors.JoinEventMsg{Actor: me, EventID: req.EventID}
		case eventLeave:
			msg = &actors.LeaveEventMsg{Actor: me, EventID: req.EventID}
		case eventInterest:
			msg = &actors.SetInterestMsg{Actor: me, EventID: req.EventID, Interested: req.Interested}
		}
		result, err := s.Engine.Ask(s.Engine.GetEventActor(), msg)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
