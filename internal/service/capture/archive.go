package capture

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/wav"

	"realtime-transcription-service/internal/service/stt"
)

// archive is the full-session WAV file. It is written only by the capture
// loop, finalized once and removed once.
type archive struct {
	f          *os.File
	enc        *wav.Encoder
	path       string
	channels   int
	sampleRate int

	closeOnce  sync.Once
	closeErr   error
	removeOnce sync.Once
}

func newArchive(dir, sessionID string, channels, sampleRate int) (*archive, error) {
	f, err := os.CreateTemp(dir, "session-"+sessionID+"-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	return &archive{
		f:          f,
		enc:        wav.NewEncoder(f, sampleRate, 16, channels, 1),
		path:       f.Name(),
		channels:   channels,
		sampleRate: sampleRate,
	}, nil
}

// write appends one frame. A failed write can leave part of the frame in
// the file, so after the first failure the session stops writing and no
// longer hands the archive to the flush.
func (a *archive) write(samples []int16) error {
	return a.enc.Write(stt.IntBuffer(samples, a.channels, a.sampleRate))
}

// close patches the WAV header and closes the file.
func (a *archive) close() error {
	a.closeOnce.Do(func() {
		encErr := a.enc.Close()
		fileErr := a.f.Close()
		if encErr != nil {
			a.closeErr = fmt.Errorf("finalize archive: %w", encErr)
		} else if fileErr != nil {
			a.closeErr = fmt.Errorf("close archive: %w", fileErr)
		}
	})
	return a.closeErr
}

// remove closes (if needed) and deletes the file.
func (a *archive) remove() error {
	var err error
	a.removeOnce.Do(func() {
		_ = a.close()
		if rmErr := os.Remove(a.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("remove archive: %w", rmErr)
		}
	})
	return err
}
