package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/tasks"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEvents streams task events over a websocket. Query "since" replays
// buffered events after that sequence number; "task" narrows the stream to
// one task.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeDomainError(w, domain.InvalidParameter("since must be a non-negative integer"))
			return
		}
		since = n
	}
	taskID := r.URL.Query().Get("task")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("httpapi", "Websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	defer conn.Close()

	bus := s.svc.Events()
	live, stop := bus.Subscribe(256)
	defer stop()

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	cursor := &eventCursor{since: since, taskID: taskID}
	write := func(events []tasks.Event) bool {
		for _, ev := range events {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return false
			}
		}
		return true
	}

	if !write(cursor.filter(bus.Since(since))) {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-live:
			if !ok || !write(cursor.next(bus, ev)) {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// eventCursor tracks the last sequence delivered to one websocket client.
type eventCursor struct {
	since  int64
	taskID string
}

// next returns what to deliver for ev received live. When ev skips
// sequence numbers the subscription dropped events, and the missing ones are
// replayed from the bus.
func (c *eventCursor) next(bus *tasks.EventBus, ev tasks.Event) []tasks.Event {
	if ev.Seq <= c.since {
		return nil
	}
	if ev.Seq > c.since+1 {
		missed := bus.Since(c.since)
		for i, m := range missed {
			if m.Seq > ev.Seq {
				missed = missed[:i]
				break
			}
		}
		return c.filter(missed)
	}
	return c.filter([]tasks.Event{ev})
}

// filter advances the cursor past events and keeps those for the watched task.
func (c *eventCursor) filter(events []tasks.Event) []tasks.Event {
	out := make([]tasks.Event, 0, len(events))
	for _, ev := range events {
		if ev.Seq <= c.since {
			continue
		}
		c.since = ev.Seq
		if c.taskID != "" && ev.TaskID != c.taskID {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// readUntilClosed consumes client frames so pongs and close frames are
// processed, and signals when the peer goes away.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
