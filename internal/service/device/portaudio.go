package device

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioHost enumerates devices through PortAudio. Each call initializes
// and terminates the library; PortAudio reference-counts initialization so
// this is safe while a capture stream is open.
type PortAudioHost struct{}

// NewPortAudioHost returns the production Host.
func NewPortAudioHost() *PortAudioHost {
	return &PortAudioHost{}
}

func (h *PortAudioHost) Devices(ctx context.Context) ([]HostDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	out := make([]HostDevice, 0, len(infos))
	for i, info := range infos {
		out = append(out, fromPortAudio(i, info))
	}
	return out, nil
}

func (h *PortAudioHost) DefaultInput(ctx context.Context) (HostDevice, error) {
	return h.defaultDevice(portaudio.DefaultInputDevice)
}

func (h *PortAudioHost) DefaultOutput(ctx context.Context) (HostDevice, error) {
	return h.defaultDevice(portaudio.DefaultOutputDevice)
}

func (h *PortAudioHost) defaultDevice(get func() (*portaudio.DeviceInfo, error)) (HostDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return HostDevice{}, fmt.Errorf("portaudio initialize: %w", err)
	}
	defer portaudio.Terminate()

	info, err := get()
	if err != nil {
		return HostDevice{}, err
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return HostDevice{}, fmt.Errorf("portaudio devices: %w", err)
	}
	index := indexOf(infos, info)
	if index < 0 {
		return HostDevice{}, fmt.Errorf("portaudio default device %q not enumerated", info.Name)
	}
	return fromPortAudio(index, info), nil
}

// indexOf returns the PortAudio device index of info, which is its position
// in the enumeration. Within one initialization the library hands out the
// same *DeviceInfo values, so identity is tried before name and host API.
func indexOf(infos []*portaudio.DeviceInfo, info *portaudio.DeviceInfo) int {
	for i, candidate := range infos {
		if candidate == info {
			return i
		}
	}
	for i, candidate := range infos {
		if candidate.Name == info.Name && hostAPIName(candidate) == hostAPIName(info) {
			return i
		}
	}
	return -1
}

func hostAPIName(info *portaudio.DeviceInfo) string {
	if info.HostApi != nil && info.HostApi.Name != "" {
		return info.HostApi.Name
	}
	return "portaudio"
}

func fromPortAudio(index int, info *portaudio.DeviceInfo) HostDevice {
	return HostDevice{
		Index:             index,
		Name:              info.Name,
		HostAPI:           hostAPIName(info),
		MaxInputChannels:  info.MaxInputChannels,
		MaxOutputChannels: info.MaxOutputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
	}
}
