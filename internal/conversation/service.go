// ABOUTME: Conversation facade wiring store, history, stream, and typing timers
// ABOUTME: Owns per-conversation session lifetime and the outbound rate limits

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/typing"
)

// ErrEmptyMessage rejects messages that are empty or whitespace-only before
// any network call is made.
var ErrEmptyMessage = errors.New("message is empty")

// HistoryFetcher is what the facade needs from the REST layer for history.
type HistoryFetcher interface {
	FetchPage(ctx context.Context, chatID string, limit int, beforeID string) ([]chat.Message, bool, error)
}

// MessagePoster is what the facade needs from the REST layer for outbound
// messages and typing pulses.
type MessagePoster interface {
	PostMessage(ctx context.Context, chatID, body string) error
	PostTyping(ctx context.Context, chatID string) error
}

// StreamConsumer is what the facade needs from the live-stream layer.
type StreamConsumer interface {
	Open(ctx context.Context, chatID string)
	Close(chatID string)
}

// Options tune the protocol windows. Zero values fall back to defaults.
type Options struct {
	// PageSize is the history page size (default 50).
	PageSize int
	// TypingQuiet is the quiet window after which an unrenewed typing signal
	// is treated as stopped (default 3000ms).
	TypingQuiet time.Duration
	// PulseInterval is the minimum spacing between outbound typing pulses
	// (default 2000ms).
	PulseInterval time.Duration
}

const (
	defaultPageSize      = 50
	defaultPulseInterval = 2000 * time.Millisecond
)

// session is the live handle for one open conversation.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	lastPulse time.Time // monotonic gate for outbound typing pulses
}

// Service mounts conversations and exposes the engine's public operations.
type Service struct {
	store   *store.Store
	history HistoryFetcher
	poster  MessagePoster
	streams StreamConsumer
	typing  *typing.Expirer
	logger  *slog.Logger

	localUser     string
	pageSize      int
	pulseInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates the facade. localUser is excluded from typing snapshots so the
// caller never renders its own indicator. Pass nil logger for the default.
func New(st *store.Store, history HistoryFetcher, poster MessagePoster, streams StreamConsumer, localUser string, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.PulseInterval <= 0 {
		opts.PulseInterval = defaultPulseInterval
	}

	return &Service{
		store:         st,
		history:       history,
		poster:        poster,
		streams:       streams,
		typing:        typing.New(opts.TypingQuiet),
		logger:        logger.With("component", "conversation"),
		localUser:     localUser,
		pageSize:      opts.PageSize,
		pulseInterval: opts.PulseInterval,
		sessions:      make(map[string]*session),
	}
}

// HandleMessage feeds a live message into the store. Wired as the stream
// consumer's handler.
func (s *Service) HandleMessage(chatID string, msg chat.Message) {
	s.store.InsertLiveMessage(chatID, msg)
}

// HandleTyping marks the participant as typing and re-arms their quiet-window
// timer. Wired as the stream consumer's handler.
func (s *Service) HandleTyping(chatID, author string) {
	s.store.SetTyping(chatID, author, true)
	s.typing.Schedule(chatID, author, func() {
		s.store.SetTyping(chatID, author, false)
	})
}

// Open mounts the conversation: ensures its state entry, triggers the initial
// history load when the log is empty, and starts the live stream. Opening an
// already open conversation is a no-op; the existing subscription is kept.
func (s *Service) Open(chatID string) {
	s.mu.Lock()
	if _, exists := s.sessions[chatID]; exists {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{ctx: ctx, cancel: cancel}
	s.sessions[chatID] = sess
	s.mu.Unlock()

	s.store.Ensure(chatID)

	if len(s.store.Snapshot(chatID).Messages) == 0 {
		go s.loadInitialPage(sess, chatID)
	}

	s.streams.Open(sess.ctx, chatID)
	s.logger.Debug("conversation opened", "chat_id", chatID)
}

// Close unmounts the conversation: stops the stream and cancels every pending
// typing timer. Conversation state is retained for a later Open.
func (s *Service) Close(chatID string) {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	if ok {
		delete(s.sessions, chatID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	sess.cancel()
	s.streams.Close(chatID)
	s.typing.CancelAll(chatID)
	s.logger.Debug("conversation closed", "chat_id", chatID)
}

// Discard closes the conversation and drops its state entirely. Used when
// leaving a conversation for good; the next Open starts from a clean slate.
func (s *Service) Discard(chatID string) {
	s.Close(chatID)
	s.store.Clear(chatID)
}

// SendMessage posts an outgoing message. Empty or whitespace-only input is
// rejected locally with ErrEmptyMessage. The created message is not inserted
// optimistically; it arrives back through the stream like any other.
func (s *Service) SendMessage(ctx context.Context, chatID, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	return s.poster.PostMessage(ctx, chatID, body)
}

// SendTypingPulse fires an outbound typing pulse, rate-limited to one per
// pulse interval no matter how often the caller invokes it. Failures are
// swallowed; typing pulses are best-effort.
func (s *Service) SendTypingPulse(ctx context.Context, chatID string) {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	if !sess.lastPulse.IsZero() && time.Since(sess.lastPulse) < s.pulseInterval {
		sess.mu.Unlock()
		return
	}
	sess.lastPulse = time.Now()
	sess.mu.Unlock()

	if err := s.poster.PostTyping(ctx, chatID); err != nil {
		s.logger.Debug("typing pulse failed", "chat_id", chatID, "error", err)
	}
}

// LoadOlderPage fetches the page before the oldest held message and prepends
// it. No-op when a load is already in flight, when the server has no more
// history, or when the log is empty (nothing to anchor the cursor to).
func (s *Service) LoadOlderPage(chatID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if !s.store.Snapshot(chatID).HasMore {
		return nil
	}
	beforeID := s.store.OldestMessageID(chatID)
	if beforeID == "" {
		return nil
	}

	if !s.store.BeginHistoryLoad(chatID) {
		return nil // a fetch is already in flight
	}

	messages, hasMore, err := s.history.FetchPage(sess.ctx, chatID, s.pageSize, beforeID)

	// A fetch that completes after Close must not apply its result, but the
	// retained entry has to come out of the loading state so a later load
	// can retry.
	if sess.ctx.Err() != nil {
		s.store.AbandonHistoryLoad(chatID)
		return nil
	}

	if err != nil {
		s.store.FailHistoryLoad(chatID, err.Error())
		return err
	}

	s.store.ApplyHistoryPage(chatID, messages, false, hasMore)
	return nil
}

// Snapshot returns the read-only projection of the conversation, with the
// local user filtered out of the typing participants.
func (s *Service) Snapshot(chatID string) store.Snapshot {
	snap := s.store.Snapshot(chatID)

	if s.localUser != "" {
		filtered := snap.Typing[:0]
		for _, p := range snap.Typing {
			if p != s.localUser {
				filtered = append(filtered, p)
			}
		}
		snap.Typing = filtered
	}

	return snap
}

// loadInitialPage performs the first history load for a fresh conversation.
func (s *Service) loadInitialPage(sess *session, chatID string) {
	if !s.store.BeginHistoryLoad(chatID) {
		return
	}

	messages, hasMore, err := s.history.FetchPage(sess.ctx, chatID, s.pageSize, "")

	if sess.ctx.Err() != nil {
		s.store.AbandonHistoryLoad(chatID)
		return
	}

	if err != nil {
		s.store.FailHistoryLoad(chatID, err.Error())
		return
	}

	s.store.ApplyHistoryPage(chatID, messages, true, hasMore)
}
