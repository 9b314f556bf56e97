// ABOUTME: Tests for the fake chat server's HTTP handlers
// ABOUTME: Covers history paging, posting, typing broadcast, and SSE framing

package main

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, seed int) (*server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := newServer(logger, 50*time.Millisecond)
	if seed > 0 {
		srv.seed("general", seed)
	}
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestHistory_LatestPageFirst(t *testing.T) {
	_, ts := newTestServer(t, 10)

	// First response is the bare-array shape.
	var page []wireMessage
	getJSON(t, ts.URL+"/chat/general/messages?limit=4", &page)

	require.Len(t, page, 4)
	assert.Equal(t, "seeded message 7", page[0].Text)
	assert.Equal(t, "seeded message 10", page[3].Text)
}

func TestHistory_AlternatesResponseShape(t *testing.T) {
	_, ts := newTestServer(t, 6)

	var first []wireMessage
	getJSON(t, ts.URL+"/chat/general/messages?limit=3", &first)

	// Second response is the enveloped shape with an explicit hasMore.
	var second struct {
		Messages []wireMessage `json:"messages"`
		HasMore  bool          `json:"hasMore"`
	}
	getJSON(t, ts.URL+"/chat/general/messages?limit=3", &second)

	require.Len(t, second.Messages, 3)
	assert.True(t, second.HasMore)
}

func TestHistory_BeforeCursorPages(t *testing.T) {
	_, ts := newTestServer(t, 6)

	var latest []wireMessage
	getJSON(t, ts.URL+"/chat/general/messages?limit=2", &latest)
	require.Len(t, latest, 2)

	var older struct {
		Messages []wireMessage `json:"messages"`
		HasMore  bool          `json:"hasMore"`
	}
	getJSON(t, ts.URL+"/chat/general/messages?limit=2&beforeId="+latest[0].ID, &older)

	require.Len(t, older.Messages, 2)
	assert.Equal(t, "seeded message 3", older.Messages[0].Text)
	assert.Equal(t, "seeded message 4", older.Messages[1].Text)
	assert.True(t, older.HasMore)
}

func TestHistory_ExhaustedCursor(t *testing.T) {
	_, ts := newTestServer(t, 3)

	var latest []wireMessage
	getJSON(t, ts.URL+"/chat/general/messages?limit=2", &latest)

	var older struct {
		Messages []wireMessage `json:"messages"`
		HasMore  bool          `json:"hasMore"`
	}
	getJSON(t, ts.URL+"/chat/general/messages?limit=10&beforeId="+latest[0].ID, &older)

	require.Len(t, older.Messages, 1)
	assert.False(t, older.HasMore)
}

func TestHistory_InvalidLimit(t *testing.T) {
	_, ts := newTestServer(t, 1)

	resp, err := http.Get(ts.URL + "/chat/general/messages?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostMessage_AppendsAndRejectsEmpty(t *testing.T) {
	srv, ts := newTestServer(t, 0)

	resp, err := http.Post(ts.URL+"/chat/general/messages", "application/json",
		strings.NewReader(`{"message":"hello there"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	srv.mu.Lock()
	require.Len(t, srv.messages["general"], 1)
	assert.Equal(t, "hello there", srv.messages["general"][0].Text)
	srv.mu.Unlock()

	resp, err = http.Post(ts.URL+"/chat/general/messages", "application/json",
		strings.NewReader(`{"message":"   "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents_DeliversPostedMessage(t *testing.T) {
	_, ts := newTestServer(t, 0)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/chat/general/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the subscription a moment to register, then post.
	time.Sleep(20 * time.Millisecond)
	postResp, err := http.Post(ts.URL+"/chat/general/messages", "application/json",
		strings.NewReader(`{"message":"live one"}`))
	require.NoError(t, err)
	postResp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	deadline := time.After(2 * time.Second)
	frames := make(chan string, 4)
	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				frames <- strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	for {
		select {
		case <-deadline:
			t.Fatal("message frame never arrived")
		case frame := <-frames:
			if frame == "[]" {
				continue // heartbeat
			}
			var envelopes []envelope
			require.NoError(t, json.Unmarshal([]byte(frame), &envelopes))
			require.Len(t, envelopes, 1)
			assert.Equal(t, "MESSAGE", envelopes[0].Type)
			assert.Equal(t, "live one", envelopes[0].Data)
			assert.NotEmpty(t, envelopes[0].ID)
			return
		}
	}
}

func TestEvents_TypingBroadcast(t *testing.T) {
	srv, ts := newTestServer(t, 0)

	ch := srv.hubFor("general").subscribe()
	defer srv.hubFor("general").unsubscribe(ch)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/chat/general/typing", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sometoken")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	select {
	case frame := <-ch:
		require.Len(t, frame, 1)
		assert.Equal(t, "TYPING_INDICATOR", frame[0].Type)
		assert.Equal(t, "user-sometok", frame[0].Author)
	case <-time.After(time.Second):
		t.Fatal("typing frame never broadcast")
	}
}

func TestBearerUser(t *testing.T) {
	mk := func(header string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		return r
	}

	assert.Equal(t, "anonymous", bearerUser(mk("")))
	assert.Equal(t, "anonymous", bearerUser(mk("Basic abc")))
	assert.Equal(t, "user-tok", bearerUser(mk("Bearer tok")))
	assert.Equal(t, "user-12345678", bearerUser(mk("Bearer 123456789abc")))
}
