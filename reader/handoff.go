package reader

import (
	"sync"
	"sync/atomic"
)

// Handoff is the state shared between the reader goroutine and the session.
//
// The session is the only writer of the waiting flag; the reader only reads
// it. The reader is the only writer of the card slot; the session takes from
// it. The slot holds one card and a newer card overwrites an unclaimed one.
type Handoff struct {
	waiting atomic.Bool

	mu    sync.Mutex
	card  string
	ready bool
}

// SetWaiting declares whether the session is waiting for a card.
func (h *Handoff) SetWaiting(waiting bool) {
	h.waiting.Store(waiting)
}

// Waiting reports whether the session is waiting for a card.
func (h *Handoff) Waiting() bool {
	return h.waiting.Load()
}

// Offer publishes card if the session is waiting and reports whether it did.
// Cards offered while nobody waits are dropped, never queued.
func (h *Handoff) Offer(card string) bool {
	if !h.Waiting() {
		return false
	}
	h.mu.Lock()
	h.card = card
	h.ready = true
	h.mu.Unlock()
	return true
}

// Take removes and returns the published card, if any.
func (h *Handoff) Take() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.ready {
		return "", false
	}
	card := h.card
	h.card = ""
	h.ready = false
	return card, true
}
