package websocket

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

const (
	bufferSize = 2048

	broadcastWriteTimeout = 5 * time.Second
)

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, bufferSize))
	},
}

// Broadcast stamps e and sends it to every connected client. Clients that fail the write are
// closed and dropped.
func Broadcast(e *Event, state *ServiceState) {
	if e.Service == "" {
		e.Service = ServiceName
	}
	e.Timestamp = time.Now()

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		slog.Error("Failed to marshal event to JSON",
			slog.String("error", err.Error()),
			slog.String("event_type", e.Type))
		return
	}
	msg := buf.String()

	state.Mutex.Lock()
	defer state.Mutex.Unlock()

	var disconnected []*websocket.Conn
	for conn := range state.Clients {
		if err := sendMessageWithTimeout(conn, msg, broadcastWriteTimeout); err != nil {
			slog.Debug("WebSocket client disconnected during broadcast",
				slog.String("error", err.Error()))
			disconnected = append(disconnected, conn)
		}
	}

	for _, conn := range disconnected {
		_ = conn.Close()
		delete(state.Clients, conn)
	}

	if len(disconnected) > 0 {
		slog.Debug("Cleaned up disconnected WebSocket clients",
			slog.Int("disconnected_count", len(disconnected)),
			slog.Int("remaining_clients", len(state.Clients)))
	}
}
