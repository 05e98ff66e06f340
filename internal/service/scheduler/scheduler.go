// Package scheduler transcribes the windows produced by a capture session
// and feeds the results into the session transcript.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"realtime-transcription-service/internal/models"
	"realtime-transcription-service/internal/observability/logging"
	"realtime-transcription-service/internal/observability/metrics"
	"realtime-transcription-service/internal/service/capture"
	"realtime-transcription-service/internal/service/stt"
	"realtime-transcription-service/internal/service/transcript"
)

const (
	passInterim = "interim"
	passFinal   = "final"
	passRefine  = "refine"
)

// Publisher receives one event per appended window.
type Publisher interface {
	PublishWindow(ctx context.Context, key string, event any) error
}

// Config tunes window transcription.
type Config struct {
	Interim       stt.Options   // used for full windows
	Final         stt.Options   // used for the final partial window and the archive
	WindowTimeout time.Duration // per engine call, 0 = unbounded
	RefineArchive bool
	QueueSize     int
	TempDir       string
}

// DefaultConfig returns the default interim and final passes.
func DefaultConfig() Config {
	return Config{
		Interim: stt.Options{
			BeamWidth:       5,
			VADEnabled:      true,
			VADMinSilenceMs: 500,
		},
		Final: stt.Options{
			BeamWidth:       10,
			VADEnabled:      true,
			VADMinSilenceMs: 500,
		},
		WindowTimeout: 60 * time.Second,
		QueueSize:     32,
	}
}

// Stats counts window outcomes for one session.
type Stats struct {
	Scheduled int
	Appended  int
	Empty     int
	Failed    int
	Dropped   int
}

// Scheduler is a capture.WindowHandler. A single worker transcribes windows
// in the order they were handed off.
type Scheduler struct {
	sessionID string
	engine    stt.Engine
	acc       *transcript.Accumulator
	pub       Publisher
	cfg       Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	closed bool
	queue  chan capture.Chunk
	done   chan struct{}

	flushOnce sync.Once
	flushErr  error

	scheduled atomic.Int64
	appended  atomic.Int64
	empty     atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// New starts the worker for one session. pub may be nil.
func New(sessionID string, engine stt.Engine, acc *transcript.Accumulator, pub Publisher, cfg Config) *Scheduler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	s := &Scheduler{
		sessionID: sessionID,
		engine:    engine,
		acc:       acc,
		pub:       pub,
		cfg:       cfg,
		logger:    logging.WithSession("scheduler", sessionID),
		metrics:   metrics.DefaultMetrics,
		queue:     make(chan capture.Chunk, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// OnWindowReady queues a full window without blocking the capture loop.
// Windows arriving after Flush or Close, or while QueueSize windows are
// already waiting, are dropped and counted. The archive still holds their
// audio.
func (s *Scheduler) OnWindowReady(c capture.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.drop(c, "Window arrived after flush, dropped")
		return
	}
	select {
	case s.queue <- c:
		s.scheduled.Add(1)
	default:
		s.drop(c, "Transcription queue full, window dropped")
	}
}

func (s *Scheduler) drop(c capture.Chunk, msg string) {
	s.dropped.Add(1)
	s.metrics.RecordWindowDropped()
	s.logger.Warn().Uint64("windowSeq", c.Seq).Int("queueSize", s.cfg.QueueSize).Msg(msg)
}

func (s *Scheduler) run() {
	defer close(s.done)
	for c := range s.queue {
		s.process(context.Background(), c, s.cfg.Interim, passInterim)
	}
}

// process transcribes one window and appends a non-empty result. Failures
// are contained to the window.
func (s *Scheduler) process(ctx context.Context, c capture.Chunk, opts stt.Options, pass string) {
	logger := logging.WithWindow(s.sessionID, c.Seq)

	audio, err := stt.EncodeWAV(c.Samples, c.Channels, c.SampleRate, s.cfg.TempDir)
	if err != nil {
		s.fail(logger, err)
		return
	}

	res, err := s.transcribe(ctx, audio, opts, pass)
	if err != nil {
		s.fail(logger, err)
		return
	}
	if res.DurationSeconds == 0 {
		res.DurationSeconds = c.Duration().Seconds()
	}

	if !s.acc.Append(res) {
		s.empty.Add(1)
		s.metrics.RecordWindowOutcome("empty")
		logger.Debug().Str("pass", pass).Msg("Window produced no speech")
		return
	}
	s.appended.Add(1)
	s.metrics.RecordWindowOutcome("appended")
	s.metrics.RecordAppend()

	logger.Info().
		Str("pass", pass).
		Str("language", res.Language).
		Int("chars", len(res.Text)).
		Msg("Window transcribed")

	s.publish(ctx, c.Seq, res, pass == passFinal)
}

func (s *Scheduler) fail(logger zerolog.Logger, err error) {
	s.failed.Add(1)
	s.metrics.RecordWindowOutcome("failed")
	logger.Error().Err(err).Msg("Window transcription failed, treated as empty")
}

// transcribe runs one bounded engine call. A panicking engine is reported as
// an error.
func (s *Scheduler) transcribe(ctx context.Context, audio []byte, opts stt.Options, pass string) (res stt.Result, err error) {
	provider := s.engine.Name()
	if s.cfg.WindowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WindowTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordEngineError(provider, "panic")
			res, err = stt.Result{}, stt.NewEngineError(provider, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	res, err = s.engine.Transcribe(ctx, audio, opts)
	s.metrics.RecordEngineCall(provider, pass, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordEngineError(provider, errorType(err))
		return stt.Result{}, stt.NewEngineError(provider, err)
	}
	return res, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, stt.ErrEmptyAudio):
		return "empty_audio"
	default:
		return "engine"
	}
}

func (s *Scheduler) publish(ctx context.Context, seq uint64, res stt.Result, final bool) {
	if s.pub == nil {
		return
	}
	ev := models.TranscriptWindow{
		EventType:           models.EventTypeWindow,
		SessionID:           s.sessionID,
		Timestamp:           time.Now().UnixMilli(),
		Seq:                 seq,
		Text:                res.Text,
		Language:            res.Language,
		LanguageProbability: res.LanguageProbability,
		DurationSeconds:     res.DurationSeconds,
		Final:               final,
	}
	if err := s.pub.PublishWindow(ctx, s.sessionID, ev); err != nil {
		s.logger.Error().Err(err).Uint64("windowSeq", seq).Msg("Failed to publish window")
	}
}

// Flush closes intake, waits for queued windows, then transcribes the final
// partial window with the final pass so that it is appended last. With
// archive refinement enabled the whole archive is transcribed as well and
// stored as the refined transcript. Flush runs once.
//
// Cancellation of ctx does not cut the flush short: every queued window and
// the final window are still transcribed, each bounded by WindowTimeout, and
// the worker has exited when Flush returns.
func (s *Scheduler) Flush(ctx context.Context, final capture.Chunk, archivePath string) error {
	s.flushOnce.Do(func() {
		s.flushErr = s.flush(ctx, final, archivePath)
	})
	return s.flushErr
}

func (s *Scheduler) flush(ctx context.Context, final capture.Chunk, archivePath string) error {
	ctx = context.WithoutCancel(ctx)
	s.Close()
	<-s.done

	if !final.Empty() {
		s.process(ctx, final, s.cfg.Final, passFinal)
	}

	if s.cfg.RefineArchive && archivePath != "" {
		if err := s.refine(ctx, archivePath); err != nil {
			s.logger.Error().Err(err).Msg("Archive refinement failed")
			return err
		}
	}

	st := s.Stats()
	s.logger.Info().
		Int("scheduled", st.Scheduled).
		Int("appended", st.Appended).
		Int("empty", st.Empty).
		Int("failed", st.Failed).
		Int("dropped", st.Dropped).
		Msg("Scheduler flushed")
	return nil
}

func (s *Scheduler) refine(ctx context.Context, archivePath string) error {
	audio, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	res, err := s.transcribe(ctx, audio, s.cfg.Final, passRefine)
	if err != nil {
		return fmt.Errorf("refine archive: %w", err)
	}
	s.acc.SetRefined(res.Text)
	s.logger.Info().Int("chars", len(res.Text)).Msg("Archive refined")
	return nil
}

// Close stops intake without a final flush. The worker drains what was
// already queued. It is used when the capture never started.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

// Stats returns the window outcome counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Scheduled: int(s.scheduled.Load()),
		Appended:  int(s.appended.Load()),
		Empty:     int(s.empty.Load()),
		Failed:    int(s.failed.Load()),
		Dropped:   int(s.dropped.Load()),
	}
}
