package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"realtime-transcription-service/internal/observability/metrics"
	"realtime-transcription-service/internal/service/device"
	"realtime-transcription-service/internal/service/session"
	"realtime-transcription-service/internal/service/transcript"
)

// envelope is the response body of every /api endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type handlers struct {
	ctrl   Controller
	lister DeviceLister
}

type startResponse struct {
	Message     string `json:"message"`
	IsRecording bool   `json:"isRecording"`
	session.StartResult
}

type stopResponse struct {
	Message     string `json:"message"`
	IsRecording bool   `json:"isRecording"`
	session.StopResult
}

type statusResponse struct {
	IsRecording bool `json:"isRecording"`
	session.Status
}

type transcriptionStatusResponse struct {
	State     session.State `json:"state"`
	Completed bool          `json:"completed"`
	Message   string        `json:"message"`
	Progress  int           `json:"progress"`
}

type transcriptionTextResponse struct {
	Transcript string               `json:"transcript"`
	Metadata   *transcript.Metadata `json:"metadata"`
	Refined    string               `json:"refined,omitempty"`
}

func (h *handlers) startRecording(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Start(r.Context())
	if err != nil {
		writeControlError(w, "start", err)
		return
	}
	writeData(w, "start", startResponse{
		Message:     "recording started",
		IsRecording: true,
		StartResult: res,
	})
}

func (h *handlers) stopRecording(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Stop(r.Context())
	if err != nil {
		writeControlError(w, "stop", err)
		return
	}
	writeData(w, "stop", stopResponse{
		Message:    "recording stopped",
		StopResult: res,
	})
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Cancel(r.Context())
	if err != nil {
		writeControlError(w, "cancel", err)
		return
	}
	writeData(w, "cancel", stopResponse{
		Message:    "processing cancelled",
		StopResult: res,
	})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.Status()
	writeData(w, "status", statusResponse{
		IsRecording: st.State == session.StateProcessing,
		Status:      st,
	})
}

func (h *handlers) transcriptionStatus(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.Status()
	msg := "no transcription started"
	switch st.State {
	case session.StateProcessing:
		msg = "transcription in progress"
	case session.StateCompleted:
		msg = "transcription completed"
	case session.StateCancelled:
		msg = "transcription cancelled"
	}
	writeData(w, "transcription_status", transcriptionStatusResponse{
		State:     st.State,
		Completed: st.State == session.StateCompleted,
		Message:   msg,
		Progress:  st.Progress,
	})
}

func (h *handlers) transcriptionText(w http.ResponseWriter, r *http.Request) {
	t := h.ctrl.Transcript()
	if t.Text == "" {
		writeError(w, "transcription_text", http.StatusNotFound, "no transcription available yet")
		return
	}
	writeData(w, "transcription_text", transcriptionTextResponse{
		Transcript: t.Text,
		Metadata:   t.Metadata,
		Refined:    t.Refined,
	})
}

func (h *handlers) devices(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		writeError(w, "devices", http.StatusServiceUnavailable, "device listing unavailable")
		return
	}
	devs, err := h.lister.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Listing devices failed")
		writeError(w, "devices", http.StatusServiceUnavailable, err.Error())
		return
	}
	if devs == nil {
		devs = []device.AudioDevice{}
	}
	writeData(w, "devices", devs)
}

// statusFor maps control errors onto HTTP status codes.
func statusFor(err error) int {
	var de *device.DeviceError
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotProcessing):
		return http.StatusBadRequest
	case errors.As(err, &de):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeControlError(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Msg("Control operation failed")
	}
	writeError(w, op, code, err.Error())
}

func writeData(w http.ResponseWriter, op string, data any) {
	writeJSON(w, op, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, op string, code int, msg string) {
	writeJSON(w, op, code, envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, op string, code int, body envelope) {
	metrics.DefaultMetrics.RecordControlCall("http", op, strconv.Itoa(code))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Str("op", op).Msg("Failed to write response")
	}
}
