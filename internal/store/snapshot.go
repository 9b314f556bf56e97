// ABOUTME: Read-only projection of one conversation's state
// ABOUTME: Returned by value so callers can never mutate store internals

package store

import (
	"sort"

	"github.com/parley-chat/parley/internal/chat"
)

// Snapshot is a read-only copy of one conversation's state.
type Snapshot struct {
	Messages []chat.Message
	Loading  bool
	HasMore  bool
	Error    string
	Typing   []string // sorted participant ids
}

// Snapshot returns a copy of the conversation state. An unknown id yields an
// empty snapshot with HasMore true, matching a freshly ensured entry.
func (s *Store) Snapshot(chatID string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[chatID]
	if !ok {
		return Snapshot{HasMore: true}
	}

	snap := Snapshot{
		Messages: make([]chat.Message, len(c.messages)),
		Loading:  c.loading,
		HasMore:  c.hasMore,
		Error:    c.err,
		Typing:   make([]string, 0, len(c.typing)),
	}
	copy(snap.Messages, c.messages)
	for p := range c.typing {
		snap.Typing = append(snap.Typing, p)
	}
	sort.Strings(snap.Typing)

	return snap
}

// OldestMessageID returns the id of the oldest message in the log, or empty
// if the log is empty. Used as the beforeId cursor for older-page fetches.
func (s *Store) OldestMessageID(chatID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[chatID]
	if !ok || len(c.messages) == 0 {
		return ""
	}
	return c.messages[0].ID
}
