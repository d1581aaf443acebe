package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler streams hub events as JSON text frames.
type WebSocketHandler struct {
	hub            *Hub
	originPatterns []string
}

// NewWebSocketHandler returns a handler accepting the given origin patterns.
// An empty list only accepts same-origin requests.
func NewWebSocketHandler(hub *Hub, originPatterns ...string) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, originPatterns: originPatterns}
}

// ServeHTTP upgrades the connection and forwards events until either side
// goes away. The optional lastEventId query parameter requests replay.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.hub.logger

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.Warn("Failed to accept WebSocket", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	var lastEventID int64
	if v := r.URL.Query().Get("lastEventId"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	events, missed, cancel := h.hub.Subscribe(lastEventID)
	defer cancel()

	h.hub.metrics.SubscriberConnected("ws")
	defer h.hub.metrics.SubscriberDisconnected("ws")

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer disconnects.
	ctx := ws.CloseRead(r.Context())

	for _, ev := range missed {
		if err := writeEvent(ctx, ws, ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(ctx, ws, ev); err != nil {
				if websocket.CloseStatus(err) == -1 {
					logger.Debug("WebSocket write failed", "error", err)
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
