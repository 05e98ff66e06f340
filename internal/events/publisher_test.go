package events

import (
	"context"
	"errors"
	"testing"

	"realtime-transcription-service/internal/models"
	"realtime-transcription-service/internal/schema"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerWindow != nil {
				t.Error("expected nil window writer when disabled")
			}
			if p.writerFinal != nil {
				t.Error("expected nil final writer when disabled")
			}
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:     true,
		Brokers:     []string{"localhost:9092"},
		TopicWindow: "test.window",
		TopicFinal:  "test.final",
	})
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerWindow == nil || p.writerWindow.Topic != "test.window" {
		t.Error("expected window writer on test.window")
	}
	if p.writerFinal == nil || p.writerFinal.Topic != "test.final" {
		t.Error("expected final writer on test.final")
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:     false,
		Brokers:     []string{"localhost:9092"},
		TopicWindow: "test.window",
		TopicFinal:  "test.final",
		Principal:   "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicWindow != "test.window" {
		t.Errorf("expected topic window 'test.window', got %s", p.topicWindow)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected topic final 'test.final', got %s", p.topicFinal)
	}
}

func TestPublisher_PublishWindow_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	event := models.TranscriptWindow{
		EventType: models.EventTypeWindow,
		SessionID: "sess-1",
		Seq:       1,
		Text:      "hello world",
	}
	if err := p.PublishWindow(context.Background(), "sess-1", event); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishFinal_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	event := models.SessionFinal{
		EventType: models.EventTypeFinal,
		SessionID: "sess-1",
		State:     "completed",
	}
	if err := p.PublishFinal(context.Background(), "sess-1", event); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_RejectsInvalidEvent(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishWindow(context.Background(), "sess-1", models.TranscriptWindow{EventType: models.EventTypeWindow})
	if !errors.Is(err, schema.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// channels cannot be marshalled
	event := make(chan int)
	if err := p.PublishWindow(context.Background(), "test-key", event); err == nil {
		t.Error("expected error for unmarshalable window event")
	}
	if err := p.PublishFinal(context.Background(), "test-key", event); err == nil {
		t.Error("expected error for unmarshalable final event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisher(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
