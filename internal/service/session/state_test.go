package session

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestState_StringAndProgress(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		progress int
	}{
		{StateIdle, "idle", 0},
		{StateProcessing, "processing", 50},
		{StateCompleted, "completed", 100},
		{StateCancelled, "cancelled", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.state.Progress(); got != tt.progress {
				t.Errorf("Progress() = %d, want %d", got, tt.progress)
			}
		})
	}
}

func TestState_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		State State `json:"state"`
	}{StateCompleted})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"state":"completed"}` {
		t.Errorf("unexpected JSON %s", b)
	}
}

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle()

	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
	if err := lc.CheckBegin("start"); err != nil {
		t.Errorf("expected begin allowed, got %v", err)
	}
	if err := lc.CheckProcessing("stop"); !errors.Is(err, ErrNotProcessing) {
		t.Errorf("expected ErrNotProcessing, got %v", err)
	}
}

func TestLifecycle_BeginWhileProcessing(t *testing.T) {
	lc := NewLifecycle()

	if err := lc.Begin("start"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := lc.Begin("start")
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	var se *StateError
	if !errors.As(err, &se) || se.State != StateProcessing || se.Op != "start" {
		t.Errorf("unexpected state error %+v", se)
	}
	if lc.State() != StateProcessing {
		t.Errorf("expected state unchanged, got %v", lc.State())
	}
}

func TestLifecycle_FinishTransitions(t *testing.T) {
	for _, to := range []State{StateCompleted, StateCancelled} {
		t.Run(to.String(), func(t *testing.T) {
			lc := NewLifecycle()
			if err := lc.Begin("start"); err != nil {
				t.Fatalf("begin: %v", err)
			}
			if err := lc.Finish("stop", to); err != nil {
				t.Fatalf("finish: %v", err)
			}
			if lc.State() != to {
				t.Errorf("expected %v, got %v", to, lc.State())
			}
			// A terminal state can start again.
			if err := lc.Begin("start"); err != nil {
				t.Errorf("expected restart allowed from %v, got %v", to, err)
			}
		})
	}
}

func TestLifecycle_FinishOutsideProcessing(t *testing.T) {
	lc := NewLifecycle()

	err := lc.Finish("cancel", StateCancelled)
	if !errors.Is(err, ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing, got %v", err)
	}
	if lc.State() != StateIdle {
		t.Errorf("expected state unchanged, got %v", lc.State())
	}
}

func TestLifecycle_FinishRejectsNonTerminal(t *testing.T) {
	lc := NewLifecycle()
	_ = lc.Begin("start")

	if err := lc.Finish("stop", StateIdle); err == nil {
		t.Fatal("expected error finishing into idle")
	}
	if lc.State() != StateProcessing {
		t.Errorf("expected state unchanged, got %v", lc.State())
	}
}
