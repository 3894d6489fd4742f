package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/picobrewhouse/brewhouse-core/internal/device"
)

// handleListDevices returns all devices, with an optional kind filter.
//
// Query parameters:
//   - kind: filter by device kind (brewer, fermenter)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	kind := device.Kind(r.URL.Query().Get("kind"))

	devices, err := s.registry.List(r.Context(), kind)
	if err != nil {
		if errors.Is(err, device.ErrInvalidKind) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// createDeviceRequest is the body for POST /devices.
type createDeviceRequest struct {
	SerialNumber string `json:"serialNumber"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
}

// handleCreateDevice registers a device ahead of its first protocol
// contact, optionally with a display name.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	kind, err := device.ParseKind(req.Kind)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	dev, err := s.registry.Register(r.Context(), req.SerialNumber, kind)
	if err != nil {
		if errors.Is(err, device.ErrInvalidSerial) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to create device")
		return
	}

	if req.Name != "" && req.Name != dev.Name {
		if err := s.registry.Rename(r.Context(), dev.ID, req.Name); err != nil {
			writeInternalError(w, "failed to name device")
			return
		}
		dev.Name = req.Name
	}

	writeJSON(w, http.StatusCreated, dev)
}

// renameRequest is the body for PATCH on devices and sessions.
type renameRequest struct {
	Name string `json:"name"`
}

// handleRenameDevice updates a device's display name.
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.Rename(r.Context(), id, req.Name); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidName):
			writeBadRequest(w, err.Error())
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		default:
			writeInternalError(w, "failed to rename device")
		}
		return
	}

	dev, err := s.registry.Get(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleAcknowledgeErrors marks all of a device's error reports as seen.
// Entries stay in the log; only the acknowledged flag flips.
func (s *Server) handleAcknowledgeErrors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.AcknowledgeErrors(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to acknowledge errors")
		return
	}

	dev, err := s.registry.Get(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}
