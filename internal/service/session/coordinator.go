package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"realtime-transcription-service/internal/models"
	"realtime-transcription-service/internal/observability/logging"
	"realtime-transcription-service/internal/observability/metrics"
	"realtime-transcription-service/internal/service/capture"
	"realtime-transcription-service/internal/service/device"
	"realtime-transcription-service/internal/service/scheduler"
	"realtime-transcription-service/internal/service/stt"
	"realtime-transcription-service/internal/service/transcript"
)

// ModeRealtime is the only processing mode.
const ModeRealtime = "realtime"

// DeviceResolver picks the capture device for a new session.
type DeviceResolver interface {
	Resolve(ctx context.Context) (device.AudioDevice, error)
}

// Publisher receives window and session-final events.
type Publisher interface {
	PublishWindow(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// Config holds per-session settings.
type Config struct {
	Capture   capture.Options
	Scheduler scheduler.Config
}

// StartResult is returned by a successful Start.
type StartResult struct {
	SessionID  string `json:"sessionId"`
	DeviceName string `json:"deviceName"`
}

// StopResult is returned by Stop and Cancel.
type StopResult struct {
	SessionID        string  `json:"sessionId"`
	DurationSeconds  float64 `json:"durationSeconds"`
	TranscriptLength int     `json:"transcriptLength"`
	JoinTimedOut     bool    `json:"joinTimedOut,omitempty"`
}

// Status is a side-effect free view of the coordinator.
type Status struct {
	State         State                `json:"state"`
	Mode          string               `json:"mode"`
	Progress      int                  `json:"progress"`
	HasTranscript bool                 `json:"hasTranscript"`
	Metadata      *transcript.Metadata `json:"metadata"`
	SessionID     string               `json:"sessionId,omitempty"`
	DeviceName    string               `json:"deviceName,omitempty"`
	Windows       int                  `json:"windows"`
}

// Transcript is the current session text.
type Transcript struct {
	Text     string               `json:"text"`
	Metadata *transcript.Metadata `json:"metadata"`
	Refined  string               `json:"refined,omitempty"`
}

// Coordinator owns the processing state and at most one active recording
// session. Start, Stop and Cancel are serialized; Status and Transcript
// never wait for them.
type Coordinator struct {
	resolver  DeviceResolver
	opener    capture.Opener
	engine    stt.Engine
	pub       Publisher
	cfg       Config
	acc       *transcript.Accumulator
	lifecycle *Lifecycle
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	newID     func() string

	control sync.Mutex

	mu         sync.RWMutex
	active     *capture.Session
	sched      *scheduler.Scheduler
	sessionID  string
	deviceName string
	windows    int
}

// NewCoordinator creates an idle coordinator. pub may be nil.
func NewCoordinator(resolver DeviceResolver, opener capture.Opener, engine stt.Engine, pub Publisher, cfg Config) *Coordinator {
	return &Coordinator{
		resolver:  resolver,
		opener:    opener,
		engine:    engine,
		pub:       pub,
		cfg:       cfg,
		acc:       transcript.New(),
		lifecycle: NewLifecycle(),
		logger:    logging.WithComponent("coordinator"),
		metrics:   metrics.DefaultMetrics,
		newID:     func() string { return uuid.NewString() },
	}
}

// Start resolves a device and begins a new session. It is refused with
// ErrBusy while a session is processing, including while a Stop is still
// tearing it down. A device failure leaves the state and the previous
// transcript untouched.
func (c *Coordinator) Start(ctx context.Context) (StartResult, error) {
	if err := c.lifecycle.CheckBegin("start"); err != nil {
		return StartResult{}, c.rejectStart(err)
	}

	c.control.Lock()
	defer c.control.Unlock()

	if err := c.lifecycle.CheckBegin("start"); err != nil {
		return StartResult{}, c.rejectStart(err)
	}

	dev, err := c.resolver.Resolve(ctx)
	if err != nil {
		c.metrics.RecordRejected("start", "device")
		c.logger.Error().Err(err).Msg("No capture device available")
		return StartResult{}, fmt.Errorf("start recording: %w", err)
	}

	id := c.newID()
	c.acc.Reset()

	var pub scheduler.Publisher
	if c.pub != nil {
		pub = c.pub
	}
	sched := scheduler.New(id, c.engine, c.acc, pub, c.cfg.Scheduler)
	sess, err := capture.Start(ctx, id, dev, c.opener, sched, c.cfg.Capture)
	if err != nil {
		sched.Close()
		c.metrics.RecordRejected("start", "capture")
		c.logger.Error().Err(err).Str("deviceName", dev.Name).Msg("Capture failed to start")
		return StartResult{}, fmt.Errorf("start recording: %w", &device.DeviceError{
			Attempts: []*device.StrategyError{{Strategy: "open", Err: err}},
		})
	}

	if err := c.lifecycle.Begin("start"); err != nil {
		// Unreachable while control is held.
		sess.Stop(ctx)
		return StartResult{}, err
	}

	c.mu.Lock()
	c.active = sess
	c.sched = sched
	c.sessionID = id
	c.deviceName = dev.Name
	c.windows = 0
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	c.logger.Info().
		Str("sessionId", id).
		Str("deviceId", dev.ID).
		Str("deviceName", dev.Name).
		Str("capability", string(dev.Capability)).
		Msg("Recording started")

	return StartResult{SessionID: id, DeviceName: dev.Name}, nil
}

func (c *Coordinator) rejectStart(err error) error {
	c.metrics.RecordRejected("start", "busy")
	c.logger.Warn().Err(err).Msg("Start rejected")
	return err
}

// Stop ends the processing session and transitions to completed. It
// returns after every captured window, the final partial one included, has
// been transcribed. Cancelling ctx does not abort the teardown.
func (c *Coordinator) Stop(ctx context.Context) (StopResult, error) {
	return c.finish(ctx, "stop", StateCompleted)
}

// Cancel performs the same teardown as Stop and transitions to cancelled.
// Text appended so far is kept.
func (c *Coordinator) Cancel(ctx context.Context) (StopResult, error) {
	return c.finish(ctx, "cancel", StateCancelled)
}

func (c *Coordinator) finish(ctx context.Context, op string, to State) (StopResult, error) {
	c.control.Lock()
	defer c.control.Unlock()

	if err := c.lifecycle.CheckProcessing(op); err != nil {
		c.metrics.RecordRejected(op, "not_processing")
		c.logger.Warn().Err(err).Msg("Control operation rejected")
		return StopResult{}, err
	}
	ctx = context.WithoutCancel(ctx)

	c.mu.RLock()
	sess := c.active
	sched := c.sched
	id := c.sessionID
	deviceName := c.deviceName
	c.mu.RUnlock()

	sum := sess.Stop(ctx)
	st := sched.Stats()

	if err := c.lifecycle.Finish(op, to); err != nil {
		return StopResult{}, err
	}

	c.mu.Lock()
	c.active = nil
	c.sched = nil
	c.windows = sum.Windows
	c.mu.Unlock()

	snap := c.acc.Snapshot()
	res := StopResult{
		SessionID:        id,
		DurationSeconds:  sum.AudioSeconds,
		TranscriptLength: utf8.RuneCountInString(snap.Text),
		JoinTimedOut:     sum.JoinTimedOut,
	}

	c.metrics.RecordSessionEnd(to.String(), sum.AudioSeconds)
	c.publishFinal(ctx, to, id, deviceName, snap, sum)

	logger := logging.WithSession("coordinator", id)
	ev := logger.Info()
	if sum.LoopErr != nil {
		ev = logger.Warn().AnErr("loopErr", sum.LoopErr)
	}
	ev.Str("state", to.String()).
		Float64("durationSeconds", res.DurationSeconds).
		Int("transcriptLength", res.TranscriptLength).
		Int("windows", sum.Windows).
		Int("appended", st.Appended).
		Int("failedWindows", st.Failed).
		Bool("joinTimedOut", sum.JoinTimedOut).
		Msg("Recording finished")

	return res, nil
}

func (c *Coordinator) publishFinal(ctx context.Context, to State, id, deviceName string, snap transcript.Snapshot, sum capture.Summary) {
	if c.pub == nil {
		return
	}
	ev := models.SessionFinal{
		EventType:    models.EventTypeFinal,
		SessionID:    id,
		Timestamp:    time.Now().UnixMilli(),
		State:        to.String(),
		DeviceName:   deviceName,
		Text:         snap.Text,
		Refined:      c.acc.Refined(),
		AudioSeconds: sum.AudioSeconds,
		Windows:      sum.Windows,
	}
	if snap.Metadata != nil {
		ev.Language = snap.Metadata.Language
	}
	if err := c.pub.PublishFinal(ctx, id, ev); err != nil {
		c.logger.Error().Err(err).Str("sessionId", id).Msg("Failed to publish session final")
	}
}

// Status returns the current state and transcript summary.
func (c *Coordinator) Status() Status {
	state := c.lifecycle.State()
	snap := c.acc.Snapshot()

	c.mu.RLock()
	defer c.mu.RUnlock()

	windows := c.windows
	if c.active != nil {
		windows = c.active.Windows()
	}
	return Status{
		State:         state,
		Mode:          ModeRealtime,
		Progress:      state.Progress(),
		HasTranscript: snap.HasText(),
		Metadata:      snap.Metadata,
		SessionID:     c.sessionID,
		DeviceName:    c.deviceName,
		Windows:       windows,
	}
}

// Transcript returns the accumulated text of the current or last session.
func (c *Coordinator) Transcript() Transcript {
	snap := c.acc.Snapshot()
	return Transcript{
		Text:     snap.Text,
		Metadata: snap.Metadata,
		Refined:  c.acc.Refined(),
	}
}

// Subscribe streams transcript appends. The cancel function must be called.
func (c *Coordinator) Subscribe(buffer int) (<-chan transcript.Update, func()) {
	return c.acc.Subscribe(buffer)
}

// Shutdown stops a processing session, if any, so that its final window is
// transcribed and its archive removed.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.lifecycle.State() != StateProcessing {
		return nil
	}
	if _, err := c.Stop(ctx); err != nil && !errors.Is(err, ErrNotProcessing) {
		return err
	}
	return nil
}
