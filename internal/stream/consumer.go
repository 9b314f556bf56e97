// ABOUTME: SSE consumer with one subscription per conversation and auto-reconnect
// ABOUTME: Decodes push envelopes and feeds messages and typing pulses to a handler

package stream

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/dedupe"
)

const (
	// seenTTL and seenSize bound the re-delivery window the consumer absorbs
	// without bothering the store.
	seenTTL  = 5 * time.Minute
	seenSize = 4096

	// maxFrameSize caps a single SSE data payload (batched frames can be large).
	maxFrameSize = 1 << 20
)

// State is the lifecycle state of one conversation's subscription.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

// String returns the lowercase state name for logging.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Handler receives decoded stream events. Calls are made from the
// subscription goroutine; implementations must be safe for concurrent use
// across conversations.
type Handler interface {
	HandleMessage(chatID string, msg chat.Message)
	HandleTyping(chatID, author string)
}

// subscription is one live connection's handle.
type subscription struct {
	cancel context.CancelFunc
	state  State
}

// Consumer maintains at most one live subscription per conversation id.
type Consumer struct {
	client  *auth.Client
	handler Handler
	logger  *slog.Logger
	seen    *dedupe.Cache

	mu   sync.Mutex
	subs map[string]*subscription

	// newBackoff builds the reconnect policy; swapped in tests for a fast one.
	newBackoff func() backoff.BackOff
}

// NewConsumer creates a Consumer delivering events to handler.
func NewConsumer(client *auth.Client, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:     client,
		handler:    handler,
		logger:     logger.With("component", "stream"),
		seen:       dedupe.New(seenTTL, seenSize),
		subs:       make(map[string]*subscription),
		newBackoff: defaultBackoff,
	}
}

func defaultBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until Close; the facade owns the stop
	return bo
}

// Open starts the subscription for the conversation. Idempotent: an already
// open conversation keeps its existing subscription. The subscription lives
// until Close or until ctx is cancelled.
func (c *Consumer) Open(ctx context.Context, chatID string) {
	c.mu.Lock()
	if _, exists := c.subs[chatID]; exists {
		c.mu.Unlock()
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, state: StateConnecting}
	c.subs[chatID] = sub
	c.mu.Unlock()

	go c.run(subCtx, chatID, sub)
}

// Close tears down the conversation's subscription. In-flight frame callbacks
// observe the cancelled context and do not reach the handler.
func (c *Consumer) Close(chatID string) {
	c.mu.Lock()
	sub, ok := c.subs[chatID]
	if ok {
		delete(c.subs, chatID)
	}
	c.mu.Unlock()

	if ok {
		sub.cancel()
	}
}

// State returns the subscription state for the conversation.
func (c *Consumer) State(chatID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[chatID]; ok {
		return sub.state
	}
	return StateClosed
}

// setState updates the subscription state if it is still registered.
func (c *Consumer) setState(chatID string, sub *subscription, state State) {
	c.mu.Lock()
	if current, ok := c.subs[chatID]; ok && current == sub {
		sub.state = state
	}
	c.mu.Unlock()
}

// run is the per-conversation connect/consume/reconnect loop.
func (c *Consumer) run(ctx context.Context, chatID string, sub *subscription) {
	bo := c.newBackoff()

	for {
		opened, err := c.connect(ctx, chatID, sub)
		if ctx.Err() != nil {
			c.setState(chatID, sub, StateClosed)
			return
		}
		if opened {
			// The connection was healthy for a while; a future failure starts
			// a fresh backoff schedule.
			bo.Reset()
		}

		c.setState(chatID, sub, StateReconnecting)
		wait := bo.NextBackOff()
		c.logger.Warn("stream connection lost, reconnecting",
			"chat_id", chatID,
			"error", err,
			"retry_in", wait)

		select {
		case <-ctx.Done():
			c.setState(chatID, sub, StateClosed)
			return
		case <-time.After(wait):
		}
	}
}

// connect opens the SSE request and consumes frames until the connection
// fails or ctx is cancelled. Returns whether the stream was confirmed open.
func (c *Consumer) connect(ctx context.Context, chatID string, sub *subscription) (bool, error) {
	path := "/chat/" + url.PathEscape(chatID) + "/events"
	req, err := c.client.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/event-stream") {
		return false, fmt.Errorf("unexpected content type %q", contentType)
	}

	c.setState(chatID, sub, StateOpen)
	c.logger.Debug("stream open", "chat_id", chatID)

	return true, c.consume(ctx, chatID, resp)
}

// consume reads SSE frames off the response body and dispatches each data
// payload. Returns when the body errors out or is closed by cancellation.
func (c *Consumer) consume(ctx context.Context, chatID string, resp *http.Response) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		// Blank line terminates one event.
		if line == "" {
			if len(dataLines) > 0 {
				c.dispatch(ctx, chatID, strings.Join(dataLines, "\n"))
				dataLines = nil
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			continue
		}
		// event:/id:/retry: fields and comment lines are irrelevant here; the
		// payload itself carries the type discriminator.
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended")
}

// dispatch decodes one frame and feeds its envelopes to the handler.
// Malformed frames and heartbeats are dropped without tearing down the
// subscription. The context is checked again here so an in-flight frame
// cannot mutate state after Close.
func (c *Consumer) dispatch(ctx context.Context, chatID string, data string) {
	if ctx.Err() != nil {
		return
	}

	envelopes, err := chat.DecodeFrame([]byte(data))
	if err != nil {
		if err != chat.ErrHeartbeat {
			c.logger.Debug("dropping malformed frame", "chat_id", chatID, "error", err)
		}
		return
	}

	for i := range envelopes {
		if ctx.Err() != nil {
			return
		}
		env := &envelopes[i]

		switch env.Type {
		case chat.EventTypeMessage:
			if env.Synthesized() {
				c.logger.Warn("push envelope missing message id, synthesizing",
					"chat_id", chatID,
					"author", env.Author,
					"timestamp", env.Timestamp)
			}
			msg := env.Message()
			if c.seen.CheckAndMark(msg.ID) {
				continue // re-delivered within the window
			}
			c.handler.HandleMessage(chatID, msg)

		case chat.EventTypeTyping:
			c.handler.HandleTyping(chatID, env.Author)

		default:
			// Unknown discriminators are ignored for forward compatibility.
		}
	}
}
