package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"realtime-transcription-service/internal/observability/logging"
	"realtime-transcription-service/internal/observability/metrics"
)

// Resolver walks a prioritized list of strategies; the first valid device wins.
type Resolver struct {
	host       Host
	strategies []LoopbackStrategy
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewResolver creates a resolver over host trying strategies in order.
func NewResolver(host Host, strategies ...LoopbackStrategy) *Resolver {
	return &Resolver{
		host:       host,
		strategies: strategies,
		logger:     logging.WithComponent("device-resolver"),
		metrics:    metrics.DefaultMetrics,
	}
}

// Resolve returns the first device produced by a strategy. A device missing
// any field counts as a failed strategy. If every strategy fails the result
// is a *DeviceError.
func (r *Resolver) Resolve(ctx context.Context) (AudioDevice, error) {
	derr := &DeviceError{}
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return AudioDevice{}, err
		}

		d, err := s.Find(ctx, r.host)
		if err == nil {
			err = d.Validate()
		}
		if err != nil {
			ev := r.logger.Debug()
			if errors.Is(err, ErrUnavailable) {
				ev = r.logger.Info()
			}
			ev.Err(err).Str("strategy", s.Name()).Msg("Strategy produced no device, continuing")
			derr.Attempts = append(derr.Attempts, &StrategyError{Strategy: s.Name(), Err: err})
			continue
		}

		r.metrics.RecordDeviceResolved(s.Name())
		r.logger.Info().
			Str("strategy", s.Name()).
			Str("deviceId", d.ID).
			Str("deviceName", d.Name).
			Str("capability", string(d.Capability)).
			Int("channels", d.Channels).
			Int("sampleRate", d.SampleRate).
			Msg("Resolved capture device")
		return d, nil
	}

	r.logger.Error().Err(derr).Msg("No capturable audio device")
	return AudioDevice{}, derr
}

// List returns every input-capable device the host enumerates.
func (r *Resolver) List(ctx context.Context) ([]AudioDevice, error) {
	devices, err := r.host.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	out := make([]AudioDevice, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		capability := CapabilityMicrophone
		if d.Duplex() {
			capability = CapabilityVirtual
		}
		out = append(out, d.As(capability, ""))
	}
	return out, nil
}
