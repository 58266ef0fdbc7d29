// Package notify carries timeline signals to the TUI and, optionally, to the
// desktop notification service.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

type SignalKind int

const (
	// SignalActivity flags a non-active room as having new messages.
	SignalActivity SignalKind = iota
	// SignalRefresh asks the view to re-read a room's projection.
	SignalRefresh
)

func (k SignalKind) String() string {
	switch k {
	case SignalActivity:
		return "activity"
	case SignalRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Signal is one notification from the timeline store.
type Signal struct {
	Kind   SignalKind
	RoomID string
}

// Hub turns store callbacks into a queue of pending signals. Sends never
// block. A signal equal to one still waiting is merged into it, so the queue
// holds at most one entry per kind and room and the latest change is never
// lost.
type Hub struct {
	mu        sync.Mutex
	queue     []Signal
	pending   map[Signal]struct{}
	wake      chan struct{}
	coalesced atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		pending: make(map[Signal]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// RoomActivity implements timeline.Notifier.
func (h *Hub) RoomActivity(roomID string) {
	h.send(Signal{Kind: SignalActivity, RoomID: roomID})
}

// Refresh implements timeline.Notifier.
func (h *Hub) Refresh(roomID string) {
	h.send(Signal{Kind: SignalRefresh, RoomID: roomID})
}

func (h *Hub) send(sig Signal) {
	h.mu.Lock()
	if _, ok := h.pending[sig]; ok {
		h.mu.Unlock()
		h.coalesced.Add(1)
		return
	}
	h.pending[sig] = struct{}{}
	h.queue = append(h.queue, sig)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Next returns the oldest pending signal, waiting until one arrives or ctx
// is done.
func (h *Hub) Next(ctx context.Context) (Signal, error) {
	for {
		if sig, ok := h.pop(); ok {
			return sig, nil
		}
		select {
		case <-ctx.Done():
			return Signal{}, ctx.Err()
		case <-h.wake:
		}
	}
}

func (h *Hub) pop() (Signal, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return Signal{}, false
	}
	sig := h.queue[0]
	h.queue[0] = Signal{}
	h.queue = h.queue[1:]
	delete(h.pending, sig)
	return sig, true
}

// Pending reports how many signals are waiting.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// Coalesced reports how many signals were merged into one already waiting.
func (h *Hub) Coalesced() int64 {
	return h.coalesced.Load()
}
