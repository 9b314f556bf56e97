// ABOUTME: In-memory conversation state with named, total state transitions
// ABOUTME: Keeps each log id-deduplicated and stably sorted by timestamp

package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/parley-chat/parley/internal/chat"
)

// conversation is the mutable state for one conversation id.
type conversation struct {
	messages []chat.Message
	seen     map[string]struct{} // message ids present in the log
	loading  bool
	hasMore  bool
	err      string
	typing   map[string]struct{}
}

func newConversation() *conversation {
	return &conversation{
		seen:    make(map[string]struct{}),
		hasMore: true, // until a fetch proves otherwise
		typing:  make(map[string]struct{}),
	}
}

// Store holds the state map for all conversations. Entries are created lazily
// and kept for the lifetime of the process; eviction is the caller's concern.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	logger        *slog.Logger
}

// New creates an empty store. Pass nil logger for the default.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conversations: make(map[string]*conversation),
		logger:        logger.With("component", "store"),
	}
}

// Ensure creates an empty state entry for the conversation if absent.
// Idempotent.
func (s *Store) Ensure(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(chatID)
}

// ensureLocked returns the entry for chatID, creating it if needed.
// Must be called with mu held.
func (s *Store) ensureLocked(chatID string) *conversation {
	c, ok := s.conversations[chatID]
	if !ok {
		c = newConversation()
		s.conversations[chatID] = c
		s.logger.Debug("conversation created", "chat_id", chatID)
	}
	return c
}

// BeginHistoryLoad marks a history fetch as in flight. Returns false when a
// fetch is already in flight, so concurrent callers cannot double-fetch.
func (s *Store) BeginHistoryLoad(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureLocked(chatID)
	if c.loading {
		return false
	}
	c.loading = true
	return true
}

// AbandonHistoryLoad clears the loading flag for a fetch whose result was
// discarded (conversation closed mid-fetch), so a later load can retry.
// Deliberately does not ensure the entry: abandoning a load on a cleared
// conversation must not resurrect it.
func (s *Store) AbandonHistoryLoad(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[chatID]; ok {
		c.loading = false
	}
}

// ApplyHistoryPage merges a fetched page into the log.
//
// An initial page replaces the log with the id-deduplicated, timestamp-sorted
// page contents. An older page is filtered to ids not already present,
// prepended, and the merged log re-sorted (stable, so equal timestamps keep
// their relative order). Clears the loading flag and the error slot, and sets
// hasMore from the page's continuation signal.
func (s *Store) ApplyHistoryPage(chatID string, messages []chat.Message, isInitialPage, hasMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureLocked(chatID)

	if isInitialPage {
		c.messages = c.messages[:0]
		c.seen = make(map[string]struct{}, len(messages))
		for _, m := range messages {
			if _, dup := c.seen[m.ID]; dup {
				continue
			}
			c.seen[m.ID] = struct{}{}
			c.messages = append(c.messages, m)
		}
	} else {
		fresh := make([]chat.Message, 0, len(messages))
		for _, m := range messages {
			if _, dup := c.seen[m.ID]; dup {
				continue
			}
			c.seen[m.ID] = struct{}{}
			fresh = append(fresh, m)
		}
		c.messages = append(fresh, c.messages...)
	}

	sortByTimestamp(c.messages)
	c.loading = false
	c.err = ""
	c.hasMore = hasMore

	s.logger.Debug("history page applied",
		"chat_id", chatID,
		"page_size", len(messages),
		"log_size", len(c.messages),
		"initial", isInitialPage,
		"has_more", hasMore)
}

// FailHistoryLoad records a fetch failure. Existing messages are untouched.
func (s *Store) FailHistoryLoad(chatID, errorMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureLocked(chatID)
	c.loading = false
	c.err = errorMessage

	s.logger.Debug("history load failed", "chat_id", chatID, "error", errorMessage)
}

// InsertLiveMessage inserts one message from the live stream. A duplicate id
// (stream re-delivery, or overlap with a history page) is a no-op.
func (s *Store) InsertLiveMessage(chatID string, msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureLocked(chatID)
	if _, dup := c.seen[msg.ID]; dup {
		return
	}
	c.seen[msg.ID] = struct{}{}
	c.messages = append(c.messages, msg)
	sortByTimestamp(c.messages)
}

// SetTyping adds or removes a participant from the typing set.
func (s *Store) SetTyping(chatID, participant string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureLocked(chatID)
	if isTyping {
		c.typing[participant] = struct{}{}
	} else {
		delete(c.typing, participant)
	}
}

// Clear drops the conversation entry entirely. Used when leaving a
// conversation for good, not on every unmount.
func (s *Store) Clear(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, chatID)
}

// sortByTimestamp sorts ascending by timestamp. Stable so that ties, and
// records whose timestamp failed to parse (zero time), keep insertion order.
func sortByTimestamp(msgs []chat.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
