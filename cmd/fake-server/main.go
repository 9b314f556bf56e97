// ABOUTME: In-memory chat server for local development and TUI testing.
// ABOUTME: Serves paged history, message posting, typing pulses, and the SSE stream.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// wireMessage is the history-record shape served by this fake. Author is a
// nested object on purpose so clients exercise their shape normalization.
type wireMessage struct {
	ID        string     `json:"id"`
	Author    wireAuthor `json:"author"`
	Text      string     `json:"text"`
	Timestamp string     `json:"timestamp"`
}

type wireAuthor struct {
	Username string `json:"username"`
}

// envelope is one live-stream event. Frames are JSON arrays of these.
type envelope struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Author    string `json:"author"`
	Data      string `json:"data,omitempty"`
	ChatID    string `json:"chatId"`
	Timestamp string `json:"timestamp"`
}

type postMessageRequest struct {
	Message string `json:"message"`
}

// hub fans one conversation's events out to its SSE subscribers.
type hub struct {
	mu   sync.Mutex
	subs map[chan []envelope]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan []envelope]struct{})}
}

func (h *hub) subscribe() chan []envelope {
	ch := make(chan []envelope, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan []envelope) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *hub) broadcast(frame []envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- frame:
		default:
			// Slow subscriber; drop rather than block the hub.
		}
	}
}

// server holds the in-memory conversation state.
type server struct {
	logger *slog.Logger

	mu       sync.Mutex
	messages map[string][]wireMessage // oldest first, keyed by chat id
	hubs     map[string]*hub
	// pageFlip alternates the history response shape per chat so clients
	// exercise both the bare-array and the enveloped forms.
	pageFlip map[string]bool

	heartbeat time.Duration
}

func newServer(logger *slog.Logger, heartbeat time.Duration) *server {
	return &server{
		logger:    logger,
		messages:  make(map[string][]wireMessage),
		hubs:      make(map[string]*hub),
		pageFlip:  make(map[string]bool),
		heartbeat: heartbeat,
	}
}

func (s *server) hubFor(chatID string) *hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[chatID]
	if !ok {
		h = newHub()
		s.hubs[chatID] = h
	}
	return h
}

// seed fills a conversation with history so initial loads and older pages
// have something to return.
func (s *server) seed(chatID string, count int) {
	base := time.Now().Add(-time.Duration(count) * time.Minute)
	authors := []string{"alice", "bob", "carol"}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < count; i++ {
		s.messages[chatID] = append(s.messages[chatID], wireMessage{
			ID:        uuid.New().String(),
			Author:    wireAuthor{Username: authors[i%len(authors)]},
			Text:      fmt.Sprintf("seeded message %d", i+1),
			Timestamp: base.Add(time.Duration(i) * time.Minute).UTC().Format(time.RFC3339Nano),
		})
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chat/{id}/messages", s.handleHistory)
	mux.HandleFunc("POST /chat/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("POST /chat/{id}/typing", s.handleTyping)
	mux.HandleFunc("GET /chat/{id}/events", s.handleEvents)
	return mux
}

// handleHistory serves pages newest-anchored: without a beforeId cursor it
// returns the latest page, with one it returns the page strictly before that
// message. The response shape alternates between a bare array and an
// envelope with an explicit hasMore flag.
func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	beforeID := r.URL.Query().Get("beforeId")

	s.mu.Lock()
	log := s.messages[chatID]

	end := len(log)
	if beforeID != "" {
		end = 0
		for i, m := range log {
			if m.ID == beforeID {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := make([]wireMessage, end-start)
	copy(page, log[start:end])
	hasMore := start > 0

	flip := s.pageFlip[chatID]
	s.pageFlip[chatID] = !flip
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if flip {
		json.NewEncoder(w).Encode(map[string]any{
			"messages": page,
			"hasMore":  hasMore,
		})
		return
	}
	json.NewEncoder(w).Encode(page)
}

func (s *server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, `{"error":"message is empty"}`, http.StatusBadRequest)
		return
	}

	author := bearerUser(r)
	msg := wireMessage{
		ID:        uuid.New().String(),
		Author:    wireAuthor{Username: author},
		Text:      req.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	s.mu.Lock()
	s.messages[chatID] = append(s.messages[chatID], msg)
	s.mu.Unlock()

	s.hubFor(chatID).broadcast([]envelope{{
		Type:      "MESSAGE",
		ID:        msg.ID,
		Author:    author,
		Data:      msg.Text,
		ChatID:    chatID,
		Timestamp: msg.Timestamp,
	}})

	s.logger.Info("message posted", "chat_id", chatID, "author", author)
	w.WriteHeader(http.StatusCreated)
}

func (s *server) handleTyping(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	author := bearerUser(r)

	s.hubFor(chatID).broadcast([]envelope{{
		Type:      "TYPING_INDICATOR",
		Author:    author,
		ChatID:    chatID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}})

	s.logger.Debug("typing pulse", "chat_id", chatID, "author", author)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	h := s.hubFor(chatID)
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	s.logger.Info("stream opened", "chat_id", chatID)
	defer s.logger.Info("stream closed", "chat_id", chatID)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case frame := <-ch:
			data, err := json.Marshal(frame)
			if err != nil {
				s.logger.Error("encoding frame", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, "data: []\n\n")
			flusher.Flush()
		}
	}
}

// bearerUser derives a display name from the Authorization header. The fake
// accepts any token; an absent one maps to "anonymous".
func bearerUser(r *http.Request) string {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		return "anonymous"
	}
	if len(raw) > 8 {
		return "user-" + raw[:8]
	}
	return "user-" + raw
}

func main() {
	addr := flag.String("addr", "localhost:8080", "Listen address")
	seedCount := flag.Int("seed", 120, "Seeded messages per conversation")
	heartbeat := flag.Duration("heartbeat", 15*time.Second, "SSE heartbeat interval")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	srv := newServer(logger, *heartbeat)
	srv.seed("general", *seedCount)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: srv.routes(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("fake chat server listening", "addr", *addr, "seeded", *seedCount)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
