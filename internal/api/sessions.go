package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/picobrewhouse/brewhouse-core/internal/session"
	"github.com/picobrewhouse/brewhouse-core/internal/timeseries"
)

// handleListSessions returns all sessions, optionally scoped to a device.
//
// Query parameters:
//   - device_id: filter by the device the session runs on
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")

	sessions, err := s.sessions.List(r.Context(), deviceID)
	if err != nil {
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// handleGetSession returns a single session by ID.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		writeInternalError(w, "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// handleRenameSession updates a session's display name.
func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	if err := s.sessions.Rename(r.Context(), id, req.Name); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		writeInternalError(w, "failed to rename session")
		return
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// handleDeleteSession removes a session and its recorded history.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		writeInternalError(w, "failed to delete session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// submitEventRequest is the body for POST /sessions/{id}/events.
type submitEventRequest struct {
	Event string `json:"event"`
}

// submitEventResponse reports the outcome of an accepted transition.
type submitEventResponse struct {
	SessionID     string `json:"session_id"`
	PreviousState string `json:"previous_state"`
	NewState      string `json:"new_state"`
}

// handleSubmitEvent pushes a lifecycle event through a session's state
// machine. A rejected transition is a conflict, not an internal failure:
// the session simply is not in a state (or not far enough through a
// timed phase) to accept the event.
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req submitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	event, err := session.ParseEvent(req.Event)
	if err != nil {
		writeBadRequest(w, "unrecognised event: "+req.Event)
		return
	}

	before, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		writeInternalError(w, "failed to get session")
		return
	}

	next, err := s.sessions.SubmitEvent(r.Context(), id, event)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTransitionRejected):
			writeConflict(w, ErrCodeTransitionRejected,
				"event "+string(event)+" not accepted in state "+string(next))
		case errors.Is(err, session.ErrStatusConflict):
			writeConflict(w, ErrCodeConflict, "session is being modified concurrently")
		case errors.Is(err, session.ErrSessionNotFound):
			writeNotFound(w, "session not found")
		default:
			writeInternalError(w, "failed to submit event")
		}
		return
	}

	writeJSON(w, http.StatusOK, submitEventResponse{
		SessionID:     id,
		PreviousState: string(before.Status),
		NewState:      string(next),
	})
}

// handleSessionTelemetry returns a session's telemetry stream in
// chronological order, flattened across storage buckets.
//
// Query parameters:
//   - kind: series to read (brewing, fermenting); defaults to brewing
func (s *Server) handleSessionTelemetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	kind := timeseries.KindBrewing
	if q := r.URL.Query().Get("kind"); q != "" {
		var err error
		if kind, err = timeseries.ParseKind(q); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		writeInternalError(w, "failed to get session")
		return
	}

	samples, err := s.sessions.Telemetry().ReadOrdered(r.Context(), id, kind)
	if err != nil {
		writeInternalError(w, "failed to read telemetry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"kind":       kind,
		"samples":    samples,
		"count":      len(samples),
	})
}
