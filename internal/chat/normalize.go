// ABOUTME: Normalization of raw history records and paginated page payloads
// ABOUTME: Single ordered fallback chain for the server's alternate field spellings

package chat

import (
	"encoding/json"
	"fmt"
)

// RawRecord is a history-page record as the server sends it. Author may be a
// flat username string or a nested object; the body lives under "text" or
// "message" depending on server version.
type RawRecord struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chatId"`
	Author    json.RawMessage `json:"author"`
	Text      string          `json:"text"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

// authorObject is the nested author shape some history responses use.
type authorObject struct {
	Username string `json:"username"`
}

// NormalizeRecord converts a raw history record into a Message.
// Fallback order: author as string, then nested object username; body from
// "text", then "message", then empty string.
func (r *RawRecord) Normalize() Message {
	msg := Message{
		ID:        r.ID,
		ChatID:    r.ChatID,
		Body:      r.Text,
		Timestamp: ParseTimestamp(r.Timestamp),
	}

	if msg.Body == "" {
		msg.Body = r.Message
	}

	if len(r.Author) > 0 {
		var flat string
		if err := json.Unmarshal(r.Author, &flat); err == nil {
			msg.Author = flat
		} else {
			var nested authorObject
			if err := json.Unmarshal(r.Author, &nested); err == nil {
				msg.Author = nested.Username
			}
		}
	}

	return msg
}

// pageEnvelope is the object form of a history page. Only one of the list
// fields is populated; HasMore is optional.
type pageEnvelope struct {
	Messages []RawRecord `json:"messages"`
	Content  []RawRecord `json:"content"`
	Data     []RawRecord `json:"data"`
	HasMore  *bool       `json:"hasMore"`
}

// Page is a decoded history page. HasMore is nil when the server did not send
// an explicit continuation flag; callers infer it from the page being non-empty.
type Page struct {
	Messages []Message
	HasMore  *bool
}

// DecodePage parses a history-page body. Accepts a bare array of raw records
// or an envelope carrying the list under "messages", "content", or "data"
// (checked in that order).
func DecodePage(body []byte) (*Page, error) {
	var bare []RawRecord
	if err := json.Unmarshal(body, &bare); err == nil {
		return &Page{Messages: normalizeAll(bare)}, nil
	}

	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding history page: %w", err)
	}

	records := env.Messages
	if records == nil {
		records = env.Content
	}
	if records == nil {
		records = env.Data
	}

	return &Page{Messages: normalizeAll(records), HasMore: env.HasMore}, nil
}

func normalizeAll(records []RawRecord) []Message {
	msgs := make([]Message, len(records))
	for i := range records {
		msgs[i] = records[i].Normalize()
	}
	return msgs
}
