package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"realtime-transcription-service/internal/service/device"
)

// PortAudioOpener opens blocking 16-bit input streams through PortAudio.
type PortAudioOpener struct{}

// NewPortAudioOpener returns the production Opener.
func NewPortAudioOpener() *PortAudioOpener {
	return &PortAudioOpener{}
}

func (o *PortAudioOpener) Open(ctx context.Context, dev device.AudioDevice, framesPerRead int) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}

	infos, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	info, err := deviceAt(infos, dev)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	buf := make([]int16, framesPerRead*dev.Channels)
	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = dev.Channels
	params.Output.Channels = 0
	params.SampleRate = float64(dev.SampleRate)
	params.FramesPerBuffer = framesPerRead

	s, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio open stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio start stream: %w", err)
	}
	return &portAudioStream{stream: s, buf: buf}, nil
}

// deviceAt looks up the resolved device by its enumeration index. The name
// check catches a device list that changed since resolution.
func deviceAt(infos []*portaudio.DeviceInfo, dev device.AudioDevice) (*portaudio.DeviceInfo, error) {
	if dev.Index < 0 || dev.Index >= len(infos) {
		return nil, fmt.Errorf("portaudio device %d not found", dev.Index)
	}
	info := infos[dev.Index]
	if !strings.HasPrefix(dev.Name, info.Name) {
		return nil, fmt.Errorf("portaudio device %d is %q, expected %q", dev.Index, info.Name, dev.Name)
	}
	return info, nil
}

type portAudioStream struct {
	stream    *portaudio.Stream
	buf       []int16
	closeOnce sync.Once
	closeErr  error
}

func (p *portAudioStream) Read(dst []int16) error {
	err := p.stream.Read()
	copy(dst, p.buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, portaudio.InputOverflowed) {
		return &StreamReadError{Overflow: true, Err: ErrInputOverflow}
	}
	return &StreamReadError{Err: err}
}

// Close stops the stream and releases PortAudio exactly once.
func (p *portAudioStream) Close() error {
	p.closeOnce.Do(func() {
		stopErr := p.stream.Stop()
		closeErr := p.stream.Close()
		termErr := portaudio.Terminate()
		p.closeErr = errors.Join(stopErr, closeErr, termErr)
	})
	return p.closeErr
}
