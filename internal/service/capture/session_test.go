package capture

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"realtime-transcription-service/internal/service/device"
	"realtime-transcription-service/internal/service/stt"
)

var errStalled = errors.New("device stalled")

// scriptedStream delivers limit frames, then either stalls with read errors
// or blocks until release is closed.
type scriptedStream struct {
	mu      sync.Mutex
	reads   int
	closed  int
	limit   int
	errAt   map[int]error
	release chan struct{}
}

func (s *scriptedStream) Read(dst []int16) error {
	s.mu.Lock()
	r := s.reads
	s.reads++
	s.mu.Unlock()

	if r < s.limit {
		for i := range dst {
			dst[i] = int16(r%100 + 1)
		}
		if err, ok := s.errAt[r]; ok {
			return err
		}
		return nil
	}
	if s.release != nil {
		<-s.release
	} else {
		time.Sleep(time.Millisecond)
	}
	return &StreamReadError{Err: errStalled}
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *scriptedStream) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *scriptedStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeOpener struct {
	stream *scriptedStream
	err    error
}

func (o *fakeOpener) Open(ctx context.Context, dev device.AudioDevice, framesPerRead int) (Stream, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.stream, nil
}

// recordingHandler captures hand-offs and inspects the archive at flush time.
type recordingHandler struct {
	mu             sync.Mutex
	windows        []Chunk
	final          *Chunk
	flushes        int
	archivePath    string
	archiveSamples int
	flushErr       error
}

func (h *recordingHandler) OnWindowReady(c Chunk) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows = append(h.windows, c)
}

func (h *recordingHandler) Flush(ctx context.Context, final Chunk, archivePath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushes++
	h.final = &final
	h.archivePath = archivePath
	if archivePath != "" {
		if b, err := os.ReadFile(archivePath); err == nil {
			if pcm, err := stt.DecodeWAV(b); err == nil {
				h.archiveSamples = len(pcm.Samples)
			}
		}
	}
	return h.flushErr
}

func testDevice(rate, channels int) device.AudioDevice {
	return device.AudioDevice{
		ID:         "test/0",
		Name:       "Test Input",
		Channels:   channels,
		SampleRate: rate,
		Capability: device.CapabilityMicrophone,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func tempFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func TestSession_SevenSecondsOfThreeSecondWindows(t *testing.T) {
	dir := t.TempDir()
	// 109 reads of 1024 frames at 16kHz is just under 7 seconds.
	stream := &scriptedStream{limit: 109}
	handler := &recordingHandler{}
	opts := Options{BufferSeconds: 3, FramesPerRead: 1024, JoinTimeout: 2 * time.Second, TempDir: dir}

	s, err := Start(context.Background(), "sess-1", testDevice(16000, 1), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsActive() {
		t.Error("expected active session")
	}

	waitFor(t, "all frames read", func() bool { return stream.readCount() > stream.limit })
	sum := s.Stop(context.Background())

	if s.IsActive() {
		t.Error("expected inactive session after stop")
	}
	if sum.JoinTimedOut {
		t.Fatal("unexpected join timeout")
	}

	if len(handler.windows) != 2 {
		t.Fatalf("expected 2 full windows, got %d", len(handler.windows))
	}
	for i, w := range handler.windows {
		if w.Seq != uint64(i+1) {
			t.Errorf("window %d: expected seq %d, got %d", i, i+1, w.Seq)
		}
		if w.Frames() != 48000 {
			t.Errorf("window %d: expected 48000 frames, got %d", i, w.Frames())
		}
	}

	if handler.flushes != 1 || handler.final == nil {
		t.Fatalf("expected exactly one flush, got %d", handler.flushes)
	}
	if handler.final.Seq != 3 {
		t.Errorf("expected final seq 3, got %d", handler.final.Seq)
	}
	if handler.final.Frames() != 109*1024-96000 {
		t.Errorf("expected %d final frames, got %d", 109*1024-96000, handler.final.Frames())
	}
	if d := handler.final.Duration(); d < 900*time.Millisecond || d > time.Second {
		t.Errorf("expected ~1s partial window, got %v", d)
	}

	if handler.archiveSamples != 109*1024 {
		t.Errorf("expected archive with %d samples at flush, got %d", 109*1024, handler.archiveSamples)
	}
	if _, err := os.Stat(handler.archivePath); !os.IsNotExist(err) {
		t.Errorf("expected archive removed after stop, stat err=%v", err)
	}
	if n := tempFiles(t, dir); n != 0 {
		t.Errorf("expected no temp files left, found %d", n)
	}

	if sum.Windows != 2 || sum.FinalFrames != handler.final.Frames() {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.FramesCaptured != 109*1024 {
		t.Errorf("expected %d frames captured, got %d", 109*1024, sum.FramesCaptured)
	}
	if stream.closeCount() != 1 {
		t.Errorf("expected stream closed exactly once, got %d", stream.closeCount())
	}
}

func TestSession_WindowsAreIndependentCopies(t *testing.T) {
	stream := &scriptedStream{limit: 8}
	handler := &recordingHandler{}
	opts := Options{BufferSeconds: 1, FramesPerRead: 1000, TempDir: t.TempDir()}

	s, err := Start(context.Background(), "sess-copy", testDevice(3000, 1), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "all frames read", func() bool { return stream.readCount() > stream.limit })
	s.Stop(context.Background())

	if len(handler.windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(handler.windows))
	}
	// Each window starts with the first frame of its own span.
	if handler.windows[0].Samples[0] != 1 || handler.windows[1].Samples[0] != 4 {
		t.Errorf("unexpected window contents: %d, %d", handler.windows[0].Samples[0], handler.windows[1].Samples[0])
	}
	if handler.final.Samples[0] != 7 || handler.final.Frames() != 2000 {
		t.Errorf("unexpected final window: first=%d frames=%d", handler.final.Samples[0], handler.final.Frames())
	}
}

func TestSession_StereoWindowSize(t *testing.T) {
	stream := &scriptedStream{limit: 4}
	handler := &recordingHandler{}
	opts := Options{BufferSeconds: 1, FramesPerRead: 500, TempDir: t.TempDir()}

	s, err := Start(context.Background(), "sess-stereo", testDevice(1000, 2), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "all frames read", func() bool { return stream.readCount() > stream.limit })
	s.Stop(context.Background())

	if len(handler.windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(handler.windows))
	}
	if len(handler.windows[0].Samples) != 2000 || handler.windows[0].Frames() != 1000 {
		t.Errorf("expected 1000 stereo frames per window, got %d samples", len(handler.windows[0].Samples))
	}
	if !handler.final.Empty() {
		t.Errorf("expected empty final window, got %d frames", handler.final.Frames())
	}
}

func TestSession_OverflowTolerated(t *testing.T) {
	stream := &scriptedStream{
		limit: 3,
		errAt: map[int]error{1: &StreamReadError{Overflow: true, Err: ErrInputOverflow}},
	}
	handler := &recordingHandler{}
	opts := Options{BufferSeconds: 3, FramesPerRead: 1024, TempDir: t.TempDir()}

	s, err := Start(context.Background(), "sess-ovf", testDevice(16000, 1), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "all frames read", func() bool { return stream.readCount() > stream.limit })
	sum := s.Stop(context.Background())

	if sum.Overflows != 1 {
		t.Errorf("expected 1 overflow, got %d", sum.Overflows)
	}
	if handler.final.Frames() != 3*1024 {
		t.Errorf("expected overflowed frame kept, got %d frames", handler.final.Frames())
	}
}

func TestSession_GivesUpAfterConsecutiveReadErrors(t *testing.T) {
	stream := &scriptedStream{limit: 0}
	handler := &recordingHandler{}
	opts := Options{BufferSeconds: 3, FramesPerRead: 1024, TempDir: t.TempDir(), MaxConsecutiveReadErrors: 5}

	s, err := Start(context.Background(), "sess-err", testDevice(16000, 1), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "loop exit", func() bool { return !s.IsActive() })
	sum := s.Stop(context.Background())

	if sum.ReadErrors != 5 {
		t.Errorf("expected 5 read errors, got %d", sum.ReadErrors)
	}
	if !errors.Is(sum.LoopErr, errStalled) {
		t.Errorf("expected loop error wrapping the read error, got %v", sum.LoopErr)
	}
	if !handler.final.Empty() {
		t.Error("expected empty final window")
	}
	if handler.flushes != 1 {
		t.Errorf("expected flush even after loop failure, got %d", handler.flushes)
	}
}

func TestSession_MaxDuration(t *testing.T) {
	stream := &scriptedStream{limit: 1000}
	handler := &recordingHandler{}
	opts := Options{BufferSeconds: 3, FramesPerRead: 1024, TempDir: t.TempDir(), MaxDuration: time.Second}

	s, err := Start(context.Background(), "sess-max", testDevice(16000, 1), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "loop exit", func() bool { return !s.IsActive() })
	sum := s.Stop(context.Background())

	if !errors.Is(sum.LoopErr, ErrMaxDuration) {
		t.Errorf("expected ErrMaxDuration, got %v", sum.LoopErr)
	}
	if sum.FramesCaptured != 16*1024 {
		t.Errorf("expected 16 reads captured, got %d frames", sum.FramesCaptured)
	}
	if handler.final.Frames() != 16*1024 {
		t.Errorf("expected captured audio flushed, got %d frames", handler.final.Frames())
	}
}

func TestSession_JoinTimeoutDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	stream := &scriptedStream{limit: 0, release: make(chan struct{})}
	handler := &recordingHandler{}
	opts := Options{BufferSeconds: 3, FramesPerRead: 1024, JoinTimeout: 50 * time.Millisecond, TempDir: dir}

	s, err := Start(context.Background(), "sess-stuck", testDevice(16000, 1), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "blocked read", func() bool { return stream.readCount() == 1 })

	start := time.Now()
	sum := s.Stop(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("stop blocked for %v", elapsed)
	}
	if !sum.JoinTimedOut {
		t.Error("expected join timeout to be reported")
	}
	if handler.flushes != 1 || !handler.final.Empty() || handler.archivePath != "" {
		t.Errorf("expected empty flush without archive, got flushes=%d path=%q", handler.flushes, handler.archivePath)
	}
	if stream.closeCount() != 0 {
		t.Error("stream must stay owned by the running loop")
	}

	close(stream.release)
	waitFor(t, "late loop exit", func() bool { return !s.IsActive() })
	waitFor(t, "abandoned archive removed", func() bool { return tempFiles(t, dir) == 0 })
	if stream.closeCount() != 1 {
		t.Errorf("expected stream closed exactly once, got %d", stream.closeCount())
	}
}

func TestSession_ArchiveRemovedWhenFlushFails(t *testing.T) {
	dir := t.TempDir()
	stream := &scriptedStream{limit: 2}
	handler := &recordingHandler{flushErr: errors.New("engine down")}
	opts := Options{BufferSeconds: 3, FramesPerRead: 1024, TempDir: dir}

	s, err := Start(context.Background(), "sess-fail", testDevice(16000, 1), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "all frames read", func() bool { return stream.readCount() > stream.limit })
	sum := s.Stop(context.Background())

	if sum.FlushErr == nil {
		t.Error("expected flush error in summary")
	}
	if n := tempFiles(t, dir); n != 0 {
		t.Errorf("expected archive removed after failed flush, found %d files", n)
	}
}

// heldStream blocks its first read until start is closed.
type heldStream struct {
	*scriptedStream
	start chan struct{}
	once  sync.Once
}

func (h *heldStream) Read(dst []int16) error {
	h.once.Do(func() { <-h.start })
	return h.scriptedStream.Read(dst)
}

type streamOpener struct {
	stream Stream
}

func (o streamOpener) Open(ctx context.Context, dev device.AudioDevice, framesPerRead int) (Stream, error) {
	return o.stream, nil
}

func TestSession_ArchiveWriteFailureWithholdsArchive(t *testing.T) {
	dir := t.TempDir()
	stream := &heldStream{scriptedStream: &scriptedStream{limit: 20}, start: make(chan struct{})}
	handler := &recordingHandler{}
	opts := Options{BufferSeconds: 1, FramesPerRead: 1000, TempDir: dir}

	s, err := Start(context.Background(), "sess-archive", testDevice(16000, 1), streamOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Every archive write fails from the first frame on.
	if err := s.archive.f.Close(); err != nil {
		t.Fatalf("close archive file: %v", err)
	}
	close(stream.start)

	waitFor(t, "all frames read", func() bool { return stream.readCount() > stream.scriptedStream.limit })
	s.Stop(context.Background())

	if !s.archiveFailed {
		t.Error("expected the archive to be disabled after a failed write")
	}
	if handler.archivePath != "" {
		t.Errorf("expected no archive handed to flush, got %q", handler.archivePath)
	}
	if len(handler.windows) != 1 || handler.final == nil || handler.final.Frames() != 4000 {
		t.Errorf("expected capture to continue without the archive, got %d windows", len(handler.windows))
	}
	if n := tempFiles(t, dir); n != 0 {
		t.Errorf("expected archive removed, found %d files", n)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	stream := &scriptedStream{limit: 1}
	handler := &recordingHandler{}
	opts := Options{TempDir: t.TempDir()}

	s, err := Start(context.Background(), "sess-idem", testDevice(16000, 1), &fakeOpener{stream: stream}, handler, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	first := s.Stop(context.Background())
	second := s.Stop(context.Background())

	if handler.flushes != 1 {
		t.Errorf("expected one flush, got %d", handler.flushes)
	}
	if first.FramesCaptured != second.FramesCaptured || first.StoppedAt != second.StoppedAt {
		t.Error("expected identical summaries")
	}
	if stream.closeCount() != 1 {
		t.Errorf("expected stream closed once, got %d", stream.closeCount())
	}
}

func TestStart_OpenFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	openErr := errors.New("device busy")

	_, err := Start(context.Background(), "sess-open", testDevice(16000, 1), &fakeOpener{err: openErr}, &recordingHandler{}, Options{TempDir: dir})
	if !errors.Is(err, openErr) {
		t.Fatalf("expected open error, got %v", err)
	}
	if n := tempFiles(t, dir); n != 0 {
		t.Errorf("expected archive removed on open failure, found %d files", n)
	}
}

func TestStart_InvalidDevice(t *testing.T) {
	_, err := Start(context.Background(), "sess-bad", device.AudioDevice{Name: "x"}, &fakeOpener{}, &recordingHandler{}, Options{TempDir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error for invalid device")
	}
}
