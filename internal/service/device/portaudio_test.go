package device

import (
	"testing"

	"github.com/gordonklaus/portaudio"
)

func TestIndexOf(t *testing.T) {
	alsa := &portaudio.HostApiInfo{Name: "ALSA"}
	pulse := &portaudio.HostApiInfo{Name: "PulseAudio"}
	infos := []*portaudio.DeviceInfo{
		{Name: "HDA Intel PCH", HostApi: alsa},
		{Name: "Monitor of Built-in Audio", HostApi: pulse},
		{Name: "HDA Intel PCH", HostApi: pulse},
	}

	tests := []struct {
		name string
		info *portaudio.DeviceInfo
		want int
	}{
		{"same pointer", infos[2], 2},
		{"equal name and host api", &portaudio.DeviceInfo{Name: "HDA Intel PCH", HostApi: &portaudio.HostApiInfo{Name: "PulseAudio"}}, 2},
		{"name alone is not enough", &portaudio.DeviceInfo{Name: "HDA Intel PCH", HostApi: &portaudio.HostApiInfo{Name: "JACK"}}, -1},
		{"unknown", &portaudio.DeviceInfo{Name: "USB Mic"}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := indexOf(infos, tt.info); got != tt.want {
				t.Errorf("expected index %d, got %d", tt.want, got)
			}
		})
	}
}

func TestFromPortAudio_UsesEnumerationIndex(t *testing.T) {
	info := &portaudio.DeviceInfo{
		Name:              "BlackHole 2ch",
		MaxInputChannels:  2,
		MaxOutputChannels: 2,
		DefaultSampleRate: 48000,
	}

	got := fromPortAudio(3, info)
	if got.Index != 3 || got.HostAPI != "portaudio" || got.Name != "BlackHole 2ch" {
		t.Errorf("unexpected host device %+v", got)
	}
	if id := got.As(CapabilityVirtual, "").ID; id != "portaudio/3" {
		t.Errorf("expected id portaudio/3, got %q", id)
	}
}
