// ABOUTME: Tests for outgoing message and typing pulse POSTs
// ABOUTME: Verifies paths, bodies, and error propagation

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMessage(t *testing.T) {
	var gotPath, gotBody string
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	})

	err := svc.PostMessage(context.Background(), "c1", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "/chat/c1/messages", gotPath)
	assert.JSONEq(t, `{"message":"hello there"}`, gotBody)
}

func TestPostMessage_ServerError(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	assert.Error(t, svc.PostMessage(context.Background(), "c1", "hello"))
}

func TestPostTyping(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := svc.PostTyping(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "/chat/c1/typing", gotPath)
	assert.Empty(t, gotBody, "typing pulse body is an empty object")
}
