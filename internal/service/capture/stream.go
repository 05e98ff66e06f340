package capture

import (
	"context"
	"errors"
	"fmt"

	"realtime-transcription-service/internal/service/device"
)

// Stream is an opened device input stream.
type Stream interface {
	// Read blocks until dst is filled with interleaved samples. A
	// *StreamReadError with Overflow set still delivers dst.
	Read(dst []int16) error
	Close() error
}

// Opener opens input streams on resolved devices.
type Opener interface {
	Open(ctx context.Context, dev device.AudioDevice, framesPerRead int) (Stream, error)
}

// ErrInputOverflow marks a read that lost samples in the driver buffer.
var ErrInputOverflow = errors.New("input overflowed")

// StreamReadError is a failed or degraded device read.
type StreamReadError struct {
	// Overflow reports a transient driver overflow; the frame is usable.
	Overflow bool
	Err      error
}

func (e *StreamReadError) Error() string {
	if e.Overflow {
		return fmt.Sprintf("stream read overflow: %v", e.Err)
	}
	return fmt.Sprintf("stream read: %v", e.Err)
}

func (e *StreamReadError) Unwrap() error {
	return e.Err
}

// IsOverflow reports whether err is a tolerated overflow.
func IsOverflow(err error) bool {
	var sre *StreamReadError
	return errors.As(err, &sre) && sre.Overflow
}
