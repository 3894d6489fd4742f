package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Brewer device protocol. Appliances issue bare GET requests and
	// expect terse text bodies with HTTP 200, whatever happens.
	r.Route("/API/pico", func(r chi.Router) {
		r.Get("/register", s.handleBrewerRegister)
		r.Get("/picoChangeState", s.handleBrewerChangeState)
		r.Get("/checkFirmware", s.handleBrewerCheckFirmware)
		r.Get("/getFirmware", s.handleBrewerGetFirmware)
		r.Get("/getActionsNeeded", s.handleBrewerActionsNeeded)
		r.Get("/getSession", s.handleBrewerGetSession)
		r.Get("/log", s.handleBrewerLog)
		r.Get("/error", s.handleBrewerError)
		r.Get("/*", s.handleDeviceCatchAll)
	})

	// Fermenter device protocol
	r.Route("/API/PicoFerm", func(r chi.Router) {
		r.Get("/isRegistered", s.handleFermenterIsRegistered)
		r.Get("/checkFirmware", s.handleFermenterCheckFirmware)
		r.Get("/getFirmwareAddress", s.handleFermenterFirmwareAddress)
		r.Get("/getState", s.handleFermenterGetState)
		r.Get("/logDataSet", s.handleFermenterLogDataSet)
		r.Get("/*", s.handleDeviceCatchAll)
	})

	// Management API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleRenameDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/acknowledge-errors", s.handleAcknowledgeErrors)
			})
		})

		// Session endpoints
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Patch("/", s.handleRenameSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/events", s.handleSubmitEvent)
				r.Get("/telemetry", s.handleSessionTelemetry)
			})
		})

		// WebSocket event feed
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = "unavailable"
		} else {
			status["database"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, status)
}
