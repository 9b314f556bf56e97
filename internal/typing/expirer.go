// ABOUTME: Cancel-and-reschedule quiet-window timers for typing indicators
// ABOUTME: At most one pending timer per (conversation, participant) pair

package typing

import (
	"sync"
	"time"
)

// DefaultQuietWindow is how long a typing flag survives without a fresh pulse.
const DefaultQuietWindow = 3000 * time.Millisecond

// pending is one armed timer. The cancelled flag closes the race between a
// queued AfterFunc fire and a concurrent cancel: cancellation is checked at
// fire time under the lock, not only at schedule time.
type pending struct {
	timer     *time.Timer
	cancelled bool
}

// Expirer schedules typing-expiry callbacks. Safe for concurrent use.
type Expirer struct {
	mu     sync.Mutex
	quiet  time.Duration
	timers map[string]map[string]*pending // chatID -> participant -> pending
}

// New creates an Expirer with the given quiet window. Zero or negative
// durations fall back to DefaultQuietWindow.
func New(quiet time.Duration) *Expirer {
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	return &Expirer{
		quiet:  quiet,
		timers: make(map[string]map[string]*pending),
	}
}

// Schedule arms the quiet-window timer for the pair, cancelling any timer
// already pending for it: rapid pulses reset the window, they never stack.
// onExpire runs once the window elapses without another Schedule or cancel.
func (e *Expirer) Schedule(chatID, participant string, onExpire func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if byParticipant, ok := e.timers[chatID]; ok {
		if prev, ok := byParticipant[participant]; ok {
			prev.cancelled = true
			prev.timer.Stop()
		}
	} else {
		e.timers[chatID] = make(map[string]*pending)
	}

	p := &pending{}
	p.timer = time.AfterFunc(e.quiet, func() {
		e.mu.Lock()
		current, ok := e.timers[chatID][participant]
		if !ok || current != p || p.cancelled {
			e.mu.Unlock()
			return
		}
		e.removeLocked(chatID, participant)
		e.mu.Unlock()

		onExpire()
	})
	e.timers[chatID][participant] = p
}

// Cancel stops the pending timer for one pair without firing it.
func (e *Expirer) Cancel(chatID, participant string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.timers[chatID][participant]; ok {
		p.cancelled = true
		p.timer.Stop()
		e.removeLocked(chatID, participant)
	}
}

// CancelAll stops every pending timer for the conversation. Called on
// conversation close; no timer fires after this returns, even if its
// AfterFunc was already queued.
func (e *Expirer) CancelAll(chatID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range e.timers[chatID] {
		p.cancelled = true
		p.timer.Stop()
	}
	delete(e.timers, chatID)
}

// removeLocked deletes one pair entry. Must be called with mu held.
func (e *Expirer) removeLocked(chatID, participant string) {
	byParticipant, ok := e.timers[chatID]
	if !ok {
		return
	}
	delete(byParticipant, participant)
	if len(byParticipant) == 0 {
		delete(e.timers, chatID)
	}
}
