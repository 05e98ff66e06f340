// Package transcript holds the accumulated transcript of the current
// recording session.
package transcript

import (
	"strings"
	"sync"

	"realtime-transcription-service/internal/service/stt"
)

// Metadata describes the most recently appended result. It is overwritten
// on every append, never aggregated.
type Metadata struct {
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	DurationSeconds     float64 `json:"duration"`
}

// Snapshot is a consistent view of the transcript.
type Snapshot struct {
	Text     string
	Metadata *Metadata // nil until the first append
	Appends  int
}

// HasText reports whether anything was appended.
func (s Snapshot) HasText() bool {
	return s.Text != ""
}

// Update is delivered to subscribers after each append.
type Update struct {
	Appended string
	Snapshot
}

// Accumulator is the single source of truth for the current transcript.
// Append is the only mutator of the text; Snapshot may be called
// concurrently from status callers.
type Accumulator struct {
	mu      sync.RWMutex
	text    strings.Builder
	meta    *Metadata
	appends int
	refined string

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

// New creates an empty accumulator.
func New() *Accumulator {
	return &Accumulator{subs: make(map[int]chan Update)}
}

// Append adds a non-empty result. Empty or whitespace-only results are
// rejected and leave the transcript untouched. Texts are joined with a
// single space, in call order, without deduplication.
func (a *Accumulator) Append(r stt.Result) bool {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return false
	}

	a.mu.Lock()
	if a.text.Len() > 0 {
		a.text.WriteByte(' ')
	}
	a.text.WriteString(text)
	a.meta = &Metadata{
		Language:            r.Language,
		LanguageProbability: r.LanguageProbability,
		DurationSeconds:     r.DurationSeconds,
	}
	a.appends++
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.broadcast(Update{Appended: text, Snapshot: snap})
	return true
}

// Snapshot returns the full text and the metadata of the last append.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

func (a *Accumulator) snapshotLocked() Snapshot {
	s := Snapshot{Text: a.text.String(), Appends: a.appends}
	if a.meta != nil {
		m := *a.meta
		s.Metadata = &m
	}
	return s
}

// Reset clears text, metadata and the refined transcript.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text.Reset()
	a.meta = nil
	a.appends = 0
	a.refined = ""
}

// SetRefined stores the full-archive transcript produced at session end.
// It is kept apart from the incremental text.
func (a *Accumulator) SetRefined(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refined = strings.TrimSpace(text)
}

// Refined returns the full-archive transcript, if any.
func (a *Accumulator) Refined() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.refined
}

// Subscribe registers for append updates. Delivery never blocks Append: a
// subscriber whose buffer is full misses that update. The returned cancel
// function must be called to release the subscription.
func (a *Accumulator) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)

	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *Accumulator) broadcast(u Update) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
