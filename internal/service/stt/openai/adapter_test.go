package openai

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"realtime-transcription-service/internal/service/stt"
)

const verboseResponse = `{
  "task": "transcribe",
  "language": "english",
  "duration": 3.0,
  "text": "Hello team. (music) Let's begin.",
  "segments": [
    {"id": 0, "start": 0.0, "end": 1.0, "text": " Hello team.", "no_speech_prob": 0.1},
    {"id": 1, "start": 1.0, "end": 2.0, "text": " (music)", "no_speech_prob": 0.9},
    {"id": 2, "start": 2.0, "end": 3.0, "text": " Let's begin.", "no_speech_prob": 0.3}
  ]
}`

func newTestServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wavBytes(t *testing.T) []byte {
	t.Helper()
	b, err := stt.EncodeWAV(make([]int16, 1600), 1, 16000, t.TempDir())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without api key")
	}
}

func TestTranscribe_VADFiltersNonSpeech(t *testing.T) {
	var path, model, language string
	srv := newTestServer(t, http.StatusOK, verboseResponse, func(r *http.Request) {
		path = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			model = r.FormValue("model")
			language = r.FormValue("language")
		}
	})

	a, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := a.Transcribe(context.Background(), wavBytes(t), stt.Options{BeamWidth: 5, Language: "en", VADEnabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if path != "/v1/audio/transcriptions" {
		t.Errorf("unexpected path %q", path)
	}
	if model != "whisper-1" {
		t.Errorf("expected default model whisper-1, got %q", model)
	}
	if language != "en" {
		t.Errorf("expected language hint en, got %q", language)
	}
	if res.Text != "Hello team. Let's begin." {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Language != "en" {
		t.Errorf("expected language en, got %q", res.Language)
	}
	if math.Abs(res.LanguageProbability-0.8) > 1e-6 {
		t.Errorf("expected probability 0.8, got %v", res.LanguageProbability)
	}
	if res.DurationSeconds != 3 {
		t.Errorf("expected duration 3, got %v", res.DurationSeconds)
	}
}

func TestTranscribe_WithoutVADKeepsAllSegments(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, verboseResponse, nil)
	a, _ := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})

	res, err := a.Transcribe(context.Background(), wavBytes(t), stt.Options{BeamWidth: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Text, "(music)") {
		t.Errorf("expected all segments without VAD, got %q", res.Text)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	srv := newTestServer(t, http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"requests"}}`, nil)
	a, _ := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})

	_, err := a.Transcribe(context.Background(), wavBytes(t), stt.Options{BeamWidth: 5})
	var ee *stt.EngineError
	if !errors.As(err, &ee) || ee.Provider != "openai" {
		t.Errorf("expected openai EngineError, got %v", err)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	a, _ := New(Config{APIKey: "test"})

	if _, err := a.Transcribe(context.Background(), nil, stt.Options{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"english": "en",
		"German":  "de",
		"en":      "en",
		"":        "",
		"klingon": "klingon",
	}
	for in, want := range tests {
		if got := normalizeLanguage(in); got != want {
			t.Errorf("normalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
