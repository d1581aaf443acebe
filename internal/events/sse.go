package events

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const sseRetry = 5 * time.Second

// ServeSSE streams hub events as text/event-stream. Clients reconnecting
// with Last-Event-ID (header or lastEventId query) first receive what they
// missed from the replay buffer.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetry.Milliseconds()); err != nil {
		return
	}
	flusher.Flush()

	events, missed, cancel := h.Subscribe(lastEventID)
	defer cancel()

	h.metrics.SubscriberConnected("sse")
	defer h.metrics.SubscriberDisconnected("sse")

	h.logger.Info("SSE client connected", "remote", r.RemoteAddr, "last_event_id", lastEventID, "missed", len(missed))
	defer h.logger.Info("SSE client disconnected", "remote", r.RemoteAddr)

	for _, ev := range missed {
		if err := writeSSEEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				h.logger.Debug("SSE write failed", "error", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(w, "event: ping\ndata: {\"status\":\"alive\"}\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, ev Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Name, ev.Data)
	return err
}
