package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mintwatch/internal/eventbus"
)

// handleSSE streams feed events as server-sent events. A reconnecting client
// sends Last-Event-ID and gets every buffered event after it before live
// delivery resumes. Heartbeat comments keep intermediaries from closing the
// idle stream.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	// Register before the headers go out so nothing published during
	// connection setup is missed.
	sub := s.bus.Subscribe(r.Header.Get("Last-Event-ID"))
	defer sub.Close()
	s.metrics.FeedSubscribers.Inc()
	defer s.metrics.FeedSubscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, open := <-sub.C:
			if !open {
				// Dropped by the bus for falling behind.
				return
			}
			if err := writeSSEEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt eventbus.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\ndata: %s\n\n", evt.ID, data)
	return err
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed is same-origin agnostic; clients authenticate upstream.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsWriteWait bounds how long a single WebSocket write may block.
const wsWriteWait = 10 * time.Second

// handleWS streams the same feed over a WebSocket. Catch-up replay uses the
// last_event_id query parameter since WebSocket clients have no
// Last-Event-ID header convention.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(r.URL.Query().Get("last_event_id"))
	defer sub.Close()
	s.metrics.FeedSubscribers.Inc()
	defer s.metrics.FeedSubscribers.Dec()

	// Reader goroutine: the client sends nothing meaningful, but reads must
	// be drained for close and pong frames to be processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, open := <-sub.C:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
