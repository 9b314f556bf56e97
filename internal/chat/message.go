// ABOUTME: Normalized message record and deterministic id synthesis
// ABOUTME: The one shape every store transition and stream callback works with

package chat

import (
	"time"

	"github.com/google/uuid"
)

// idNamespace seeds synthesized message ids. Fixed so that the same
// (author, timestamp) pair always yields the same id across reconnects.
var idNamespace = uuid.MustParse("7d0b0f6e-2c4a-4a0e-9c35-1f6a8b3d5e91")

// Message is the normalized message record. Instances are immutable once
// inserted into a conversation log.
type Message struct {
	ID        string
	ChatID    string
	Author    string
	Body      string
	Timestamp time.Time
}

// SynthesizeID builds a deterministic message id from the author and the raw
// timestamp string. Used only when a push envelope carries no explicit id;
// two distinct messages from the same author in the same timestamp tick would
// collide, so callers log the fallback as an upstream anomaly.
func SynthesizeID(author, timestamp string) string {
	return uuid.NewSHA1(idNamespace, []byte(author+"|"+timestamp)).String()
}

// ParseTimestamp parses a wire timestamp. A record whose timestamp does not
// parse keeps the zero time; the store's stable sort then leaves its relative
// order unchanged instead of guessing a position.
func ParseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Time{}
}
