// Package capture runs the recording session capture loop: it reads fixed
// frames from a device stream, archives them, and hands off tumbling
// windows of audio.
package capture

import (
	"context"
	"time"
)

// Chunk is a contiguous span of interleaved 16-bit PCM with a monotonic
// per-session sequence number starting at 1. The capture loop gives up the
// sample slice when it hands a chunk off; receivers own it afterwards.
type Chunk struct {
	Seq        uint64
	Samples    []int16
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames.
func (c Chunk) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the audio duration of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the chunk has no samples.
func (c Chunk) Empty() bool {
	return len(c.Samples) == 0
}

// WindowHandler consumes windows produced by a session.
type WindowHandler interface {
	// OnWindowReady receives a full window. It must not block for the
	// duration of a transcription.
	OnWindowReady(c Chunk)

	// Flush is called once on teardown. final is the remaining partial
	// window (possibly empty) and archivePath the finalized session archive
	// ("" when unavailable). Flush returns after final has been processed.
	Flush(ctx context.Context, final Chunk, archivePath string) error
}
