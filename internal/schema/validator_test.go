package schema

import (
	"errors"
	"testing"

	"realtime-transcription-service/internal/models"
)

func TestValidate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		event   any
		wantErr bool
	}{
		{"valid window", models.TranscriptWindow{EventType: models.EventTypeWindow, SessionID: "s-1", Seq: 1, Text: "hi"}, false},
		{"valid window pointer", &models.TranscriptWindow{EventType: models.EventTypeWindow, SessionID: "s-1", Seq: 2, Text: "hi"}, false},
		{"window wrong type", models.TranscriptWindow{EventType: "other", SessionID: "s-1", Seq: 1, Text: "hi"}, true},
		{"window no session", models.TranscriptWindow{EventType: models.EventTypeWindow, Seq: 1, Text: "hi"}, true},
		{"window no seq", models.TranscriptWindow{EventType: models.EventTypeWindow, SessionID: "s-1", Text: "hi"}, true},
		{"window empty text", models.TranscriptWindow{EventType: models.EventTypeWindow, SessionID: "s-1", Seq: 1}, true},
		{"valid final", models.SessionFinal{EventType: models.EventTypeFinal, SessionID: "s-1", State: "completed"}, false},
		{"final empty text allowed", &models.SessionFinal{EventType: models.EventTypeFinal, SessionID: "s-1", State: "cancelled"}, false},
		{"final no state", models.SessionFinal{EventType: models.EventTypeFinal, SessionID: "s-1"}, true},
		{"unknown type", map[string]string{"a": "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.event)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEvent) {
					t.Errorf("expected ErrInvalidEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
