// Package app wires configuration, the transcription engine, device
// discovery, event publishing and the session coordinator together.
package app

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"realtime-transcription-service/internal/config"
	"realtime-transcription-service/internal/events"
	"realtime-transcription-service/internal/observability/logging"
	"realtime-transcription-service/internal/service/capture"
	"realtime-transcription-service/internal/service/device"
	"realtime-transcription-service/internal/service/scheduler"
	"realtime-transcription-service/internal/service/session"
	"realtime-transcription-service/internal/service/stt"
	"realtime-transcription-service/internal/service/stt/google"
	"realtime-transcription-service/internal/service/stt/mock"
	"realtime-transcription-service/internal/service/stt/openai"
)

// Deps overrides the hardware and engine bindings. Zero fields fall back to
// PortAudio and the configured provider.
type Deps struct {
	Host   device.Host
	Opener capture.Opener
	Engine stt.Engine
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Coordinator *session.Coordinator
	Resolver    *device.Resolver
	Publisher   *events.Publisher
	Engine      stt.Engine

	closers []io.Closer
}

// New constructs a new Application from the provided configuration.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	return NewWithDeps(ctx, cfg, Deps{})
}

// NewWithDeps constructs an Application with explicit bindings.
func NewWithDeps(ctx context.Context, cfg *config.Config, deps Deps) (*Application, error) {
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	engine := deps.Engine
	if engine == nil {
		e, closer, err := NewEngine(ctx, cfg.STT)
		if err != nil {
			return nil, err
		}
		engine = e
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	a.Engine = engine

	host := deps.Host
	if host == nil {
		host = device.NewPortAudioHost()
	}
	opener := deps.Opener
	if opener == nil {
		opener = capture.NewPortAudioOpener()
	}

	a.Resolver = device.NewResolver(host, device.StrategiesFor(runtime.GOOS)...)
	a.Publisher = events.New(&events.Config{
		Enabled:     cfg.Kafka.Enabled,
		Brokers:     cfg.Kafka.Brokers,
		TopicWindow: cfg.Kafka.TopicWindow,
		TopicFinal:  cfg.Kafka.TopicFinal,
		Principal:   cfg.Kafka.Principal,
	})
	a.Coordinator = session.NewCoordinator(a.Resolver, opener, engine, a.Publisher, SessionConfig(cfg))

	a.Logger.Info().
		Str("sttProvider", engine.Name()).
		Int("bufferSeconds", cfg.Capture.BufferSeconds).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Msg("Realtime transcription service application created")
	return a, nil
}

// SessionConfig maps service configuration onto per-session settings.
func SessionConfig(cfg *config.Config) session.Config {
	interim := stt.Options{
		BeamWidth:       cfg.STT.InterimBeam,
		Language:        cfg.STT.Language,
		VADEnabled:      cfg.STT.VADEnabled,
		VADMinSilenceMs: cfg.STT.VADMinSilenceMs,
	}
	final := interim
	final.BeamWidth = cfg.STT.FinalBeam

	return session.Config{
		Capture: capture.Options{
			BufferSeconds:            cfg.Capture.BufferSeconds,
			FramesPerRead:            cfg.Capture.FramesPerRead,
			JoinTimeout:              cfg.Capture.JoinTimeout,
			TempDir:                  cfg.Capture.TempDir,
			MaxDuration:              cfg.Capture.MaxDuration,
			MaxConsecutiveReadErrors: cfg.Capture.MaxConsecutiveReadErrors,
		},
		Scheduler: scheduler.Config{
			Interim:       interim,
			Final:         final,
			WindowTimeout: cfg.STT.WindowTimeout,
			RefineArchive: cfg.STT.RefineArchive,
			QueueSize:     cfg.Capture.QueueSize,
			TempDir:       cfg.Capture.TempDir,
		},
	}
}

// NewEngine builds the configured transcription engine. The closer is nil
// for engines without resources.
func NewEngine(ctx context.Context, cfg config.STTConfig) (stt.Engine, io.Closer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "mock":
		return mock.New(), nil, nil
	case "google":
		gcfg := google.DefaultConfig()
		if cfg.GoogleModel != "" {
			gcfg.Model = cfg.GoogleModel
		}
		gcfg.EnhancedBeam = cfg.FinalBeam
		a, err := google.New(ctx, gcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("google engine: %w", err)
		}
		return a, a, nil
	case "openai":
		a, err := openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
		if err != nil {
			return nil, nil, fmt.Errorf("openai engine: %w", err)
		}
		return a, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown stt provider %q", cfg.Provider)
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Realtime transcription service starting")
	return nil
}

// Shutdown stops an active session and releases the engine and publisher.
func (a *Application) Shutdown(ctx context.Context) {
	a.Logger.Info().Msg("Realtime transcription service shutting down")

	if err := a.Coordinator.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Stopping active session failed")
	}
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Closing publisher failed")
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Closing engine failed")
		}
	}
}
