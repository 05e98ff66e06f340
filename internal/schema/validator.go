// Package schema validates outgoing transcript events before they are
// published.
package schema

import (
	"errors"
	"fmt"

	"realtime-transcription-service/internal/models"
)

// ErrInvalidEvent is returned for events missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of a known event type. Unknown types
// pass through unchecked.
func (v *Validator) Validate(event any) error {
	switch ev := event.(type) {
	case models.TranscriptWindow:
		return v.validateWindow(&ev)
	case *models.TranscriptWindow:
		return v.validateWindow(ev)
	case models.SessionFinal:
		return v.validateFinal(&ev)
	case *models.SessionFinal:
		return v.validateFinal(ev)
	default:
		return nil
	}
}

func (v *Validator) validateWindow(ev *models.TranscriptWindow) error {
	switch {
	case ev.EventType != models.EventTypeWindow:
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, ev.EventType)
	case ev.SessionID == "":
		return fmt.Errorf("%w: missing sessionId", ErrInvalidEvent)
	case ev.Seq == 0:
		return fmt.Errorf("%w: missing seq", ErrInvalidEvent)
	case ev.Text == "":
		return fmt.Errorf("%w: empty text", ErrInvalidEvent)
	}
	return nil
}

func (v *Validator) validateFinal(ev *models.SessionFinal) error {
	switch {
	case ev.EventType != models.EventTypeFinal:
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, ev.EventType)
	case ev.SessionID == "":
		return fmt.Errorf("%w: missing sessionId", ErrInvalidEvent)
	case ev.State == "":
		return fmt.Errorf("%w: missing state", ErrInvalidEvent)
	}
	return nil
}
