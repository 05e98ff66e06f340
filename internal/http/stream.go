package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"realtime-transcription-service/internal/observability/metrics"
	"realtime-transcription-service/internal/service/session"
	"realtime-transcription-service/internal/service/transcript"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

// streamMessage is pushed to transcript watchers. The first message is a
// snapshot of the transcript so far; each append follows as it happens.
type streamMessage struct {
	Type       string               `json:"type"` // snapshot, append
	Appended   string               `json:"appended,omitempty"`
	Transcript string               `json:"transcript"`
	Metadata   *transcript.Metadata `json:"metadata"`
	State      session.State        `json:"state"`
}

func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.ctrl.Subscribe(32)
	defer cancel()

	m := metrics.DefaultMetrics
	m.RecordWatcher(1)
	defer m.RecordWatcher(-1)

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	st := h.ctrl.Status()
	t := h.ctrl.Transcript()
	if err := writeMessage(conn, streamMessage{
		Type:       "snapshot",
		Transcript: t.Text,
		Metadata:   t.Metadata,
		State:      st.State,
	}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeMessage(conn, streamMessage{
				Type:       "append",
				Appended:   u.Appended,
				Transcript: u.Text,
				Metadata:   u.Metadata,
				State:      h.ctrl.Status().State,
			}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Msg("Transcript watcher write failed")
		return err
	}
	return nil
}
