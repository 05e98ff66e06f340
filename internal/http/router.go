// Package http exposes the recording control API and the live transcript
// stream over HTTP.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"realtime-transcription-service/internal/app"
	"realtime-transcription-service/internal/service/device"
	"realtime-transcription-service/internal/service/session"
	"realtime-transcription-service/internal/service/transcript"
)

// Controller is the recording control surface served by the router.
type Controller interface {
	Start(ctx context.Context) (session.StartResult, error)
	Stop(ctx context.Context) (session.StopResult, error)
	Cancel(ctx context.Context) (session.StopResult, error)
	Status() session.Status
	Transcript() session.Transcript
	Subscribe(buffer int) (<-chan transcript.Update, func())
}

// DeviceLister enumerates capture devices for diagnostics.
type DeviceLister interface {
	List(ctx context.Context) ([]device.AudioDevice, error)
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	return newRouter(application.Coordinator, application.Resolver)
}

func newRouter(ctrl Controller, lister DeviceLister) http.Handler {
	h := &handlers{ctrl: ctrl, lister: lister}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/start-recording", h.startRecording)
		r.Post("/stop-recording", h.stopRecording)
		r.Post("/cancel", h.cancel)
		r.Get("/status", h.status)
		r.Get("/devices", h.devices)

		r.Route("/transcription", func(r chi.Router) {
			r.Get("/status", h.transcriptionStatus)
			r.Get("/text", h.transcriptionText)
			r.Get("/stream", h.stream)
		})
	})

	return r
}
