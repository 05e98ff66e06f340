package device

import (
	"context"
	"fmt"
	"strings"
)

// LoopbackStrategy finds one kind of capture device on a host.
type LoopbackStrategy interface {
	Name() string
	Find(ctx context.Context, host Host) (AudioDevice, error)
}

// StrategiesFor returns the prioritized strategy list for a GOOS value.
// The platform loopback strategy always comes first, the microphone last.
func StrategiesFor(goos string) []LoopbackStrategy {
	return []LoopbackStrategy{
		PlatformLoopback{GOOS: goos},
		VirtualLoopback{},
		DefaultOutputLoopback{},
		DefaultMicrophone{},
	}
}

// PlatformLoopback uses the native loopback source of the host audio system:
// PulseAudio/PipeWire monitor sources on linux and WASAPI loopback endpoints
// on windows. Other platforms have no native loopback capture.
type PlatformLoopback struct {
	GOOS string
}

func (p PlatformLoopback) Name() string { return "platform-loopback" }

func (p PlatformLoopback) Find(ctx context.Context, host Host) (AudioDevice, error) {
	var match func(HostDevice) bool
	switch p.GOOS {
	case "linux":
		match = func(d HostDevice) bool {
			name := strings.ToLower(d.Name)
			return strings.HasSuffix(name, ".monitor") || strings.HasPrefix(name, "monitor of ")
		}
	case "windows":
		match = func(d HostDevice) bool {
			return strings.Contains(strings.ToLower(d.Name), "[loopback]")
		}
	default:
		return AudioDevice{}, fmt.Errorf("%w: %s", ErrUnavailable, p.GOOS)
	}

	devices, err := host.Devices(ctx)
	if err != nil {
		return AudioDevice{}, err
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && match(d) {
			return d.As(CapabilityLoopback, ""), nil
		}
	}
	return AudioDevice{}, ErrNotFound
}

var virtualNameHints = []string{"loopback", "virtual", "blackhole", "soundflower"}

// VirtualLoopback searches for a virtual loopback driver by name. The device
// must expose both input and output channels.
type VirtualLoopback struct{}

func (VirtualLoopback) Name() string { return "virtual-loopback" }

func (VirtualLoopback) Find(ctx context.Context, host Host) (AudioDevice, error) {
	devices, err := host.Devices(ctx)
	if err != nil {
		return AudioDevice{}, err
	}
	for _, d := range devices {
		if !d.Duplex() {
			continue
		}
		name := strings.ToLower(d.Name)
		for _, hint := range virtualNameHints {
			if strings.Contains(name, hint) {
				return d.As(CapabilityVirtual, ""), nil
			}
		}
	}
	return AudioDevice{}, ErrNotFound
}

// DefaultOutputLoopback captures from the default output device when the
// platform exposes input channels on it.
type DefaultOutputLoopback struct{}

func (DefaultOutputLoopback) Name() string { return "default-output" }

func (DefaultOutputLoopback) Find(ctx context.Context, host Host) (AudioDevice, error) {
	d, err := host.DefaultOutput(ctx)
	if err != nil {
		return AudioDevice{}, err
	}
	if d.MaxInputChannels <= 0 {
		return AudioDevice{}, fmt.Errorf("%w: default output %q has no input channels", ErrNotFound, d.Name)
	}
	return d.As(CapabilityLoopback, " (System Audio)"), nil
}

// DefaultMicrophone is the last resort.
type DefaultMicrophone struct{}

func (DefaultMicrophone) Name() string { return "default-input" }

func (DefaultMicrophone) Find(ctx context.Context, host Host) (AudioDevice, error) {
	d, err := host.DefaultInput(ctx)
	if err != nil {
		return AudioDevice{}, err
	}
	return d.As(CapabilityMicrophone, " (Microphone)"), nil
}
