// Package stt defines the transcription engine capability consumed by the
// realtime pipeline.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Options tunes a single transcription call.
type Options struct {
	// BeamWidth is the decoder search width. Interim windows use a smaller
	// beam than the final pass.
	BeamWidth int
	// Language is an ISO-639-1 hint; empty means auto-detect.
	Language        string
	VADEnabled      bool
	VADMinSilenceMs int
}

// Result is the recognized text of one self-contained audio unit.
type Result struct {
	Text                string
	Language            string
	LanguageProbability float64
	DurationSeconds     float64
}

// Empty reports whether the result carries no recognizable text.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Engine transcribes a self-contained audio unit (a WAV container).
// Implementations must be safe for sequential reuse across windows.
type Engine interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe returns the recognized text for audio.
	Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error)
}

// ErrEmptyAudio is returned for audio units with no samples.
var ErrEmptyAudio = errors.New("empty audio")

// EngineError wraps a failure of one transcription call.
type EngineError struct {
	Provider string
	Err      error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s engine: %v", e.Provider, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError wraps err unless it is already an *EngineError.
func NewEngineError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Provider: provider, Err: err}
}
