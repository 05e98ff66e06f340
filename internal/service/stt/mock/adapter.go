// Package mock provides a transcription engine for running without cloud
// credentials or an acoustic model. It recognizes silence (returns empty
// text) and otherwise cycles through scripted utterances.
package mock

import (
	"context"
	"sync"
	"time"

	"realtime-transcription-service/internal/service/stt"
)

// SimulatedUtterance is the scripted result for one non-silent window.
type SimulatedUtterance struct {
	Text        string
	Language    string
	Probability float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{Text: "Let's get started with the weekly sync.", Language: "en", Probability: 0.97},
	{Text: "The release is blocked on the migration review.", Language: "en", Probability: 0.94},
	{Text: "Can you share the dashboard after the call?", Language: "en", Probability: 0.96},
	{Text: "I think we should move the deadline to Friday.", Language: "en", Probability: 0.91},
	{Text: "Thanks everyone, see you next week.", Language: "en", Probability: 0.98},
}

// DefaultSilenceThreshold is the normalized RMS below which audio is
// treated as silence.
const DefaultSilenceThreshold = 0.01

// Adapter implements stt.Engine with scripted responses.
type Adapter struct {
	mu               sync.Mutex
	utterances       []SimulatedUtterance
	next             int
	calls            int
	latency          time.Duration
	silenceThreshold float64
}

// Option configures the mock engine.
type Option func(*Adapter)

// WithUtterances replaces the scripted utterances.
func WithUtterances(u ...SimulatedUtterance) Option {
	return func(a *Adapter) { a.utterances = u }
}

// WithLatency delays every call to simulate model inference time.
func WithLatency(d time.Duration) Option {
	return func(a *Adapter) { a.latency = d }
}

// WithSilenceThreshold overrides DefaultSilenceThreshold.
func WithSilenceThreshold(v float64) Option {
	return func(a *Adapter) { a.silenceThreshold = v }
}

// New creates a new mock engine.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		utterances:       DefaultUtterances,
		silenceThreshold: DefaultSilenceThreshold,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return "mock" }

// Transcribe returns the next scripted utterance for audible audio and an
// empty result for silence (when VAD is on) or undecodable input.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, opts stt.Options) (stt.Result, error) {
	pcm, err := stt.DecodeWAV(audio)
	if err != nil {
		return stt.Result{}, stt.NewEngineError(a.Name(), err)
	}

	if a.latency > 0 {
		select {
		case <-time.After(a.latency):
		case <-ctx.Done():
			return stt.Result{}, stt.NewEngineError(a.Name(), ctx.Err())
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++

	res := stt.Result{DurationSeconds: pcm.DurationSeconds()}
	if (opts.VADEnabled && pcm.RMS() < a.silenceThreshold) || len(a.utterances) == 0 {
		return res, nil
	}

	utt := a.utterances[a.next%len(a.utterances)]
	a.next++

	res.Text = utt.Text
	res.Language = utt.Language
	if opts.Language != "" {
		res.Language = opts.Language
	}
	res.LanguageProbability = utt.Probability
	return res, nil
}

// Calls returns how many transcriptions were requested.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
