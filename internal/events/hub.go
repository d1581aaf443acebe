// Package events fans named events out to UI subscribers over SSE and
// WebSocket, keeping a bounded replay buffer for reconnecting clients.
package events

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/orcascore/internal/metrics"
)

// ErrNoSubscribers is returned by Emit when no client is attached. The event
// is still kept for replay.
var ErrNoSubscribers = errors.New("no event subscribers attached")

// Event is one emitted message.
type Event struct {
	ID        int64           `json:"id"`
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub is an in-process publish/subscribe channel. Delivery is non-blocking:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu         sync.RWMutex
	lastID     int64
	nextSubID  int64
	subs       map[int64]chan Event
	replay     *list.List
	replaySize int
	bufferSize int
	closed     bool

	keepalive time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithKeepalive sets the SSE ping interval.
func WithKeepalive(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.keepalive = d
		}
	}
}

// WithMetrics records subscriber counts and drops.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates a hub that remembers the last replaySize events. Zero
// disables replay.
func NewHub(replaySize int, opts ...Option) *Hub {
	replaySize = max(replaySize, 0)
	h := &Hub{
		subs:       make(map[int64]chan Event),
		replay:     list.New(),
		replaySize: replaySize,
		bufferSize: 64,
		keepalive:  15 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Emit publishes payload under name. It returns ErrNoSubscribers when nobody
// is listening.
func (h *Hub) Emit(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrNoSubscribers
	}

	h.lastID++
	ev := Event{ID: h.lastID, Name: name, Data: data, Timestamp: time.Now().UTC()}

	h.replay.PushBack(ev)
	for h.replay.Len() > h.replaySize {
		h.replay.Remove(h.replay.Front())
	}

	if len(h.subs) == 0 {
		return ErrNoSubscribers
	}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.metrics.EventDropped()
			h.logger.Warn("Event dropped for slow subscriber", "subscriber", id, "event", name, "event_id", ev.ID)
		}
	}
	return nil
}

// Subscribe attaches a listener. Events already buffered with an id greater
// than afterID are returned as missed; use afterID 0 to skip replay. The
// returned cancel func must be called to release the subscription.
func (h *Hub) Subscribe(afterID int64) (<-chan Event, []Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.bufferSize)
	if h.closed {
		close(ch)
		return ch, nil, func() {}
	}

	var missed []Event
	if afterID > 0 {
		for e := h.replay.Front(); e != nil; e = e.Next() {
			ev := e.Value.(Event)
			if ev.ID > afterID {
				missed = append(missed, ev)
			}
		}
	}

	h.nextSubID++
	id := h.nextSubID
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, missed, cancel
}

// Subscribers returns the number of attached listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscriber. Later Emit calls report ErrNoSubscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
