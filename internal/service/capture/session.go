package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"realtime-transcription-service/internal/observability/logging"
	"realtime-transcription-service/internal/observability/metrics"
	"realtime-transcription-service/internal/service/device"
)

// ErrMaxDuration is reported when a session reaches Options.MaxDuration of
// captured audio and the loop stops on its own.
var ErrMaxDuration = errors.New("maximum session duration reached")

// Options controls the capture loop.
type Options struct {
	BufferSeconds            int           // tumbling window length
	FramesPerRead            int           // frames per blocking device read
	JoinTimeout              time.Duration // bound on waiting for the loop to exit
	TempDir                  string        // archive directory
	MaxDuration              time.Duration // 0 = unlimited
	MaxConsecutiveReadErrors int           // 0 = unlimited
}

// DefaultOptions returns the default capture settings.
func DefaultOptions() Options {
	return Options{
		BufferSeconds:            3,
		FramesPerRead:            1024,
		JoinTimeout:              2 * time.Second,
		MaxConsecutiveReadErrors: 50,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BufferSeconds <= 0 {
		o.BufferSeconds = d.BufferSeconds
	}
	if o.FramesPerRead <= 0 {
		o.FramesPerRead = d.FramesPerRead
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = d.JoinTimeout
	}
	return o
}

// Summary describes a stopped session.
type Summary struct {
	SessionID      string
	Device         device.AudioDevice
	StartedAt      time.Time
	StoppedAt      time.Time
	FramesCaptured int64
	AudioSeconds   float64
	Windows        int // full windows handed off
	FinalFrames    int // frames in the flushed partial window
	Overflows      int
	ReadErrors     int
	JoinTimedOut   bool
	LoopErr        error // why the loop exited before Stop, if it did
	FlushErr       error
}

// Session owns one active capture: the device stream, the archive file and
// the capture goroutine.
type Session struct {
	id        string
	dev       device.AudioDevice
	startedAt time.Time
	opts      Options
	handler   WindowHandler
	stream    Stream
	archive   *archive
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	cancel context.CancelFunc
	done   chan struct{}

	frames  atomic.Int64
	windows atomic.Int64

	// Owned by the capture loop until done is closed.
	window        []int16
	seq           uint64
	overflows     int
	readErrors    int
	loopErr       error
	archiveFailed bool

	mu        sync.Mutex
	exited    bool
	abandoned bool

	stopOnce sync.Once
	summary  Summary
}

// Start opens the archive and the device stream and launches the capture
// loop. The loop is not bound to ctx; it runs until Stop.
func Start(ctx context.Context, id string, dev device.AudioDevice, opener Opener, handler WindowHandler, opts Options) (*Session, error) {
	if err := dev.Validate(); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}
	opts = opts.withDefaults()

	arc, err := newArchive(opts.TempDir, id, dev.Channels, dev.SampleRate)
	if err != nil {
		return nil, err
	}

	stream, err := opener.Open(ctx, dev, opts.FramesPerRead)
	if err != nil {
		_ = arc.remove()
		return nil, fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		dev:       dev,
		startedAt: time.Now(),
		opts:      opts,
		handler:   handler,
		stream:    stream,
		archive:   arc,
		logger:    logging.WithDevice(id, dev.ID, dev.Name),
		metrics:   metrics.DefaultMetrics,
		cancel:    cancel,
		done:      make(chan struct{}),
		window:    make([]int16, 0, opts.BufferSeconds*dev.SampleRate*dev.Channels+opts.FramesPerRead*dev.Channels),
	}

	s.logger.Info().
		Int("channels", dev.Channels).
		Int("sampleRate", dev.SampleRate).
		Int("bufferSeconds", opts.BufferSeconds).
		Str("archive", arc.path).
		Msg("Capture started")

	go s.run(loopCtx)
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Device returns the device being captured.
func (s *Session) Device() device.AudioDevice { return s.dev }

// StartedAt returns the capture start time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Windows returns the number of full windows handed off so far.
func (s *Session) Windows() int { return int(s.windows.Load()) }

// AudioSeconds returns the seconds of audio captured so far.
func (s *Session) AudioSeconds() float64 {
	return float64(s.frames.Load()) / float64(s.dev.SampleRate)
}

// IsActive reports whether the capture loop is still running.
func (s *Session) IsActive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) run(ctx context.Context) {
	defer s.exit()

	channels := s.dev.Channels
	buf := make([]int16, s.opts.FramesPerRead*channels)
	windowSamples := s.opts.BufferSeconds * s.dev.SampleRate * channels
	var maxFrames int64
	if s.opts.MaxDuration > 0 {
		maxFrames = int64(s.opts.MaxDuration.Seconds() * float64(s.dev.SampleRate))
	}
	consecutive := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.stream.Read(buf); err != nil {
			if !IsOverflow(err) {
				s.readErrors++
				consecutive++
				s.metrics.RecordReadError()
				s.logger.Warn().Err(err).Int("consecutive", consecutive).Msg("Device read failed, frame dropped")
				if s.opts.MaxConsecutiveReadErrors > 0 && consecutive >= s.opts.MaxConsecutiveReadErrors {
					s.loopErr = fmt.Errorf("%d consecutive read errors: %w", consecutive, err)
					s.logger.Error().Err(s.loopErr).Msg("Capture loop giving up")
					return
				}
				continue
			}
			s.overflows++
			s.metrics.RecordOverflow()
			s.logger.Debug().Err(err).Msg("Input overflow tolerated")
		}
		consecutive = 0

		s.archiveFrame(buf)
		s.window = append(s.window, buf...)
		s.frames.Add(int64(s.opts.FramesPerRead))
		s.metrics.RecordFrames(s.opts.FramesPerRead)

		for len(s.window) >= windowSamples {
			full := s.window[:windowSamples:windowSamples]
			rest := make([]int16, len(s.window)-windowSamples, cap(s.window))
			copy(rest, s.window[windowSamples:])
			s.window = rest
			s.handOff(full)
		}

		if maxFrames > 0 && s.frames.Load() >= maxFrames {
			s.loopErr = ErrMaxDuration
			s.logger.Warn().Dur("maxDuration", s.opts.MaxDuration).Msg("Capture reached maximum duration")
			return
		}
	}
}

func (s *Session) archiveFrame(frame []int16) {
	if s.archiveFailed {
		return
	}
	if err := s.archive.write(frame); err != nil {
		s.archiveFailed = true
		s.metrics.RecordArchiveError()
		s.logger.Error().Err(err).Msg("Archive write failed, archive disabled for this session")
	}
}

func (s *Session) handOff(samples []int16) {
	s.seq++
	s.windows.Add(1)
	s.metrics.RecordWindowScheduled()
	s.handler.OnWindowReady(Chunk{
		Seq:        s.seq,
		Samples:    samples,
		Channels:   s.dev.Channels,
		SampleRate: s.dev.SampleRate,
	})
}

// exit runs on the capture goroutine. The stream is released here and only
// here. If Stop already gave up waiting, the archive is deleted here too.
func (s *Session) exit() {
	if err := s.stream.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Closing device stream failed")
	}

	s.mu.Lock()
	s.exited = true
	abandoned := s.abandoned
	s.mu.Unlock()
	close(s.done)

	if abandoned {
		if err := s.archive.remove(); err != nil {
			s.logger.Error().Err(err).Msg("Removing abandoned archive failed")
		}
		s.logger.Warn().Int("discardedSamples", len(s.window)).Msg("Late capture loop exit after join timeout")
	}
}

// Stop signals the loop, waits up to JoinTimeout for it to exit and flushes
// the remaining partial window through the handler before returning. The
// archive is deleted after the flush on every path. Stop is idempotent.
func (s *Session) Stop(ctx context.Context) Summary {
	s.stopOnce.Do(func() {
		s.summary = s.stop(ctx)
	})
	return s.summary
}

func (s *Session) stop(ctx context.Context) Summary {
	s.cancel()
	joined := s.join()

	sum := Summary{
		SessionID:      s.id,
		Device:         s.dev,
		StartedAt:      s.startedAt,
		FramesCaptured: s.frames.Load(),
		AudioSeconds:   s.AudioSeconds(),
		Windows:        s.Windows(),
		JoinTimedOut:   !joined,
	}

	if !joined {
		s.metrics.RecordJoinTimeout()
		s.logger.Warn().Dur("joinTimeout", s.opts.JoinTimeout).Msg("Capture loop did not exit in time, abandoning it")
		// The loop still owns the partial window and the archive.
		sum.FlushErr = s.handler.Flush(ctx, Chunk{}, "")
		sum.StoppedAt = time.Now()
		return sum
	}

	sum.Overflows = s.overflows
	sum.ReadErrors = s.readErrors
	sum.LoopErr = s.loopErr

	defer func() {
		if err := s.archive.remove(); err != nil {
			s.logger.Error().Err(err).Msg("Removing archive failed")
		}
	}()

	archivePath := ""
	if err := s.archive.close(); err != nil {
		s.metrics.RecordArchiveError()
		s.logger.Error().Err(err).Msg("Finalizing archive failed")
	} else if !s.archiveFailed {
		archivePath = s.archive.path
	}

	final := Chunk{
		Seq:        s.seq + 1,
		Samples:    s.window,
		Channels:   s.dev.Channels,
		SampleRate: s.dev.SampleRate,
	}
	s.window = nil
	sum.FinalFrames = final.Frames()

	sum.FlushErr = s.handler.Flush(ctx, final, archivePath)
	if sum.FlushErr != nil {
		s.logger.Error().Err(sum.FlushErr).Msg("Final flush failed")
	}

	sum.StoppedAt = time.Now()
	s.logger.Info().
		Float64("audioSeconds", sum.AudioSeconds).
		Int("windows", sum.Windows).
		Int("finalFrames", sum.FinalFrames).
		Int("overflows", sum.Overflows).
		Int("readErrors", sum.ReadErrors).
		Msg("Capture stopped")
	return sum
}

// join waits for the loop to exit, bounded by JoinTimeout. It returns false
// if the loop was abandoned.
func (s *Session) join() bool {
	timer := time.NewTimer(s.opts.JoinTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return true
	case <-timer.C:
	}

	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		<-s.done
		return true
	}
	s.abandoned = true
	s.mu.Unlock()
	return false
}
