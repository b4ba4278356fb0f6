// Package scenestream fans mission frames out to render clients over a
// server-streaming gRPC service.
package scenestream

import (
	"sync"
	"time"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 16

// Metrics receives hub and stream counters. *observability.StreamCollector
// implements it.
type Metrics interface {
	SetSubscribers(n int)
	RecordFrameSent()
	RecordFrameDropped()
	ObserveFrameEncode(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) SetSubscribers(int)               {}
func (noopMetrics) RecordFrameSent()                 {}
func (noopMetrics) RecordFrameDropped()              {}
func (noopMetrics) ObserveFrameEncode(time.Duration) {}

// Hub broadcasts frames to subscribers without ever blocking the publisher.
// A subscriber whose queue is full loses its oldest queued frame.
type Hub struct {
	mu      sync.Mutex
	buffer  int
	metrics Metrics

	next   int
	subs   map[int]chan model.Frame
	last   model.Frame
	hasAny bool
	closed bool
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubMetrics wires subscriber and drop counters.
func WithHubMetrics(m Metrics) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewHub constructs an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer:  DefaultBuffer,
		metrics: noopMetrics{},
		subs:    make(map[int]chan model.Frame),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish offers f to every subscriber.
func (h *Hub) Publish(f model.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last, h.hasAny = f, true
	for _, ch := range h.subs {
		h.offer(ch, f)
	}
}

// Subscribe returns a channel of frames, primed with the most recent frame
// if one was published, and a cancel function that closes it. The channel is
// also closed when the hub closes.
func (h *Hub) Subscribe() (<-chan model.Frame, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan model.Frame, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.hasAny {
		ch <- h.last
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	h.metrics.SetSubscribers(len(h.subs))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; !ok {
				return
			}
			delete(h.subs, id)
			close(ch)
			h.metrics.SetSubscribers(len(h.subs))
		})
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.metrics.SetSubscribers(0)
}

// offer must be called with h.mu held; the hub is the only sender.
func (h *Hub) offer(ch chan model.Frame, f model.Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	select {
	case <-ch:
		h.metrics.RecordFrameDropped()
	default:
	}
	select {
	case ch <- f:
	default:
		h.metrics.RecordFrameDropped()
	}
}
