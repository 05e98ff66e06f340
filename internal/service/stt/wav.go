package stt

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCM is a decoded WAV audio unit.
type PCM struct {
	Samples    []int
	Channels   int
	SampleRate int
	BitDepth   int
}

// DecodeWAV parses a WAV container into interleaved integer samples.
func DecodeWAV(audio []byte) (PCM, error) {
	if len(audio) == 0 {
		return PCM{}, ErrEmptyAudio
	}
	d := wav.NewDecoder(bytes.NewReader(audio))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("decode wav: %w", err)
	}
	if d.SampleRate == 0 || d.NumChans == 0 {
		return PCM{}, fmt.Errorf("decode wav: missing format")
	}
	return PCM{
		Samples:    buf.Data,
		Channels:   int(d.NumChans),
		SampleRate: int(d.SampleRate),
		BitDepth:   int(d.BitDepth),
	}, nil
}

// Frames returns the number of sample frames.
func (p PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// DurationSeconds returns the audio duration.
func (p PCM) DurationSeconds() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// RMS returns the root-mean-square level normalized to [0, 1].
func (p PCM) RMS() float64 {
	if len(p.Samples) == 0 {
		return 0
	}
	depth := p.BitDepth
	if depth == 0 {
		depth = 16
	}
	full := math.Pow(2, float64(depth-1))
	var sum float64
	for _, s := range p.Samples {
		v := float64(s) / full
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(p.Samples)))
}

// EncodeWAV wraps interleaved 16-bit samples in a self-contained WAV
// container. The encoder needs a seekable sink to patch the header, so the
// unit is staged in a temp file under dir and removed before returning.
func EncodeWAV(samples []int16, channels, sampleRate int, dir string) ([]byte, error) {
	f, err := os.CreateTemp(dir, "window-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create window file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	if err := enc.Write(IntBuffer(samples, channels, sampleRate)); err != nil {
		enc.Close()
		f.Close()
		return nil, fmt.Errorf("encode window: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("finalize window: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close window file: %w", err)
	}
	return os.ReadFile(path)
}

// IntBuffer converts interleaved 16-bit samples into a go-audio buffer.
func IntBuffer(samples []int16, channels, sampleRate int) *audio.IntBuffer {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}
