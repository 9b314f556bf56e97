// ABOUTME: Push-envelope decoding for live stream frames
// ABOUTME: Frames are JSON arrays of typed envelopes; heartbeats are dropped

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Envelope type discriminators the engine understands. Any other value is
// ignored for forward compatibility.
const (
	EventTypeMessage = "MESSAGE"
	EventTypeTyping  = "TYPING_INDICATOR"
	eventTypePing    = "PING"
)

// ErrHeartbeat marks a frame that carries no envelopes (empty payload or a
// ping marker). Callers drop these silently.
var ErrHeartbeat = errors.New("heartbeat frame")

// Envelope is one discrete event from the live stream.
type Envelope struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Author    string `json:"author"`
	Data      string `json:"data,omitempty"`
	ChatID    string `json:"chatId"`
	Timestamp string `json:"timestamp"`
}

// DecodeFrame parses one stream frame into its envelopes. A frame is a JSON
// array of envelopes (batched delivery). Empty payloads and ping markers
// return ErrHeartbeat; anything else that fails to decode returns an error the
// consumer logs and drops without tearing down the subscription.
func DecodeFrame(data []byte) ([]Envelope, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == `""` {
		return nil, ErrHeartbeat
	}

	var envelopes []Envelope
	if err := json.Unmarshal([]byte(trimmed), &envelopes); err != nil {
		return nil, fmt.Errorf("decoding stream frame: %w", err)
	}
	if len(envelopes) == 0 {
		return nil, ErrHeartbeat
	}
	if len(envelopes) == 1 && envelopes[0].Type == eventTypePing {
		return nil, ErrHeartbeat
	}

	return envelopes, nil
}

// Synthesized reports whether the envelope had to synthesize its message id.
func (e *Envelope) Synthesized() bool {
	return e.ID == ""
}

// Message converts a MESSAGE envelope into the normalized record. When the
// envelope carries no id, one is synthesized deterministically from the author
// and the raw timestamp.
func (e *Envelope) Message() Message {
	id := e.ID
	if id == "" {
		id = SynthesizeID(e.Author, e.Timestamp)
	}
	return Message{
		ID:        id,
		ChatID:    e.ChatID,
		Author:    e.Author,
		Body:      e.Data,
		Timestamp: ParseTimestamp(e.Timestamp),
	}
}
