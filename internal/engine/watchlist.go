package engine

import (
	"sync"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// Watchlist is the set of users currently being actively polled, together
// with each user's outbound notification buffer. The two are lifecycle
// linked: adding a user creates an empty buffer, removing a user deletes
// it.
type Watchlist struct {
	mu sync.Mutex
	// presence of a key means the user is watched
	buffers map[string][]domain.TrackedOrder
}

// NewWatchlist creates an empty Watchlist.
func NewWatchlist() *Watchlist {
	return &Watchlist{buffers: make(map[string][]domain.TrackedOrder)}
}

// Add registers a user for watching. It reports whether the user was newly
// added; repeat calls are no-ops.
func (w *Watchlist) Add(userID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.buffers[userID]; ok {
		return false
	}
	w.buffers[userID] = nil
	return true
}

// Remove unregisters a user and discards their buffer. Idempotent.
func (w *Watchlist) Remove(userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.buffers, userID)
}

// Contains reports whether the user is currently watched.
func (w *Watchlist) Contains(userID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.buffers[userID]
	return ok
}

// Stage appends a tracked order to the user's outbound buffer. It reports
// whether the entry was accepted; entries for unwatched users are dropped.
func (w *Watchlist) Stage(userID string, t domain.TrackedOrder) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.buffers[userID]; !ok {
		return false
	}
	w.buffers[userID] = append(w.buffers[userID], t)
	return true
}

// DropOrder purges every staged entry with the given order id from the
// user's buffer, so a cancelled order is not shown by the next flush.
func (w *Watchlist) DropOrder(userID, orderID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf, ok := w.buffers[userID]
	if !ok {
		return
	}
	kept := buf[:0]
	for _, t := range buf {
		if t.ID != orderID {
			kept = append(kept, t)
		}
	}
	w.buffers[userID] = kept
}

// Pending reports whether any user has a non-empty buffer.
func (w *Watchlist) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, buf := range w.buffers {
		if len(buf) > 0 {
			return true
		}
	}
	return false
}

// Drain removes and returns every non-empty buffer, keyed by user. Watched
// users keep their (now empty) buffers.
func (w *Watchlist) Drain() map[string][]domain.TrackedOrder {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out map[string][]domain.TrackedOrder
	for userID, buf := range w.buffers {
		if len(buf) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string][]domain.TrackedOrder)
		}
		out[userID] = buf
		w.buffers[userID] = nil
	}
	return out
}
