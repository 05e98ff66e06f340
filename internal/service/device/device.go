// Package device discovers a capturable audio source, preferring system
// output loopback over the microphone.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Capability describes what kind of audio a device captures.
type Capability string

const (
	CapabilityLoopback   Capability = "loopback"
	CapabilityVirtual    Capability = "virtual"
	CapabilityMicrophone Capability = "microphone"
)

// AudioDevice is a resolved capture source. Immutable once resolved.
type AudioDevice struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Channels   int        `json:"channels"`
	SampleRate int        `json:"sampleRate"`
	Capability Capability `json:"capability"`

	// Index is the host enumeration index used to open the stream.
	Index int `json:"index"`
}

// Validate reports whether every field downstream consumers rely on is set.
func (d AudioDevice) Validate() error {
	switch {
	case d.ID == "":
		return errors.New("device has no id")
	case d.Name == "":
		return errors.New("device has no name")
	case d.Channels <= 0:
		return fmt.Errorf("device %q has %d input channels", d.Name, d.Channels)
	case d.SampleRate <= 0:
		return fmt.Errorf("device %q has sample rate %d", d.Name, d.SampleRate)
	case d.Capability == "":
		return fmt.Errorf("device %q has no capability", d.Name)
	}
	return nil
}

// HostDevice is a device as enumerated by the audio host.
type HostDevice struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Duplex reports whether the device exposes both input and output channels.
func (h HostDevice) Duplex() bool {
	return h.MaxInputChannels > 0 && h.MaxOutputChannels > 0
}

// As converts an enumerated device into a resolved AudioDevice.
func (h HostDevice) As(capability Capability, nameSuffix string) AudioDevice {
	return AudioDevice{
		ID:         fmt.Sprintf("%s/%d", strings.ToLower(strings.ReplaceAll(h.HostAPI, " ", "-")), h.Index),
		Name:       h.Name + nameSuffix,
		Channels:   h.MaxInputChannels,
		SampleRate: int(h.DefaultSampleRate),
		Capability: capability,
		Index:      h.Index,
	}
}

// Host enumerates the devices of the platform audio system.
type Host interface {
	Devices(ctx context.Context) ([]HostDevice, error)
	DefaultInput(ctx context.Context) (HostDevice, error)
	DefaultOutput(ctx context.Context) (HostDevice, error)
}

var (
	// ErrUnavailable is returned by a strategy whose host API does not exist
	// on this platform.
	ErrUnavailable = errors.New("strategy unavailable on this host")
	// ErrNotFound is returned by a strategy that found no matching device.
	ErrNotFound = errors.New("no matching device")
	// ErrNoDevice is wrapped by DeviceError.
	ErrNoDevice = errors.New("no capturable audio device")
)

// StrategyError records why one strategy did not produce a device.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// DeviceError is returned when no strategy produced a usable device.
// It is fatal to session start and not retried.
type DeviceError struct {
	Attempts []*StrategyError
}

func (e *DeviceError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrNoDevice.Error()
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("%s (%s)", ErrNoDevice, strings.Join(parts, "; "))
}

func (e *DeviceError) Unwrap() error {
	return ErrNoDevice
}
