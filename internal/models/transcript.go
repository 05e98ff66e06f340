// Package models defines the data structures for transcript events.
package models

const (
	EventTypeWindow = "session.transcript.window"
	EventTypeFinal  = "session.transcript.final"
)

// TranscriptWindow is emitted once per window whose text was appended to
// the session transcript.
type TranscriptWindow struct {
	EventType           string  `json:"eventType"`
	SessionID           string  `json:"sessionId"`
	Timestamp           int64   `json:"timestamp"`
	Seq                 uint64  `json:"seq"`
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"languageProbability"`
	DurationSeconds     float64 `json:"durationSeconds"`
	Final               bool    `json:"final"`
}

// SessionFinal is emitted once when a session is stopped or cancelled.
type SessionFinal struct {
	EventType    string  `json:"eventType"`
	SessionID    string  `json:"sessionId"`
	Timestamp    int64   `json:"timestamp"`
	State        string  `json:"state"`
	DeviceName   string  `json:"deviceName"`
	Text         string  `json:"text"`
	Refined      string  `json:"refined,omitempty"`
	Language     string  `json:"language,omitempty"`
	AudioSeconds float64 `json:"audioSeconds"`
	Windows      int     `json:"windows"`
}
