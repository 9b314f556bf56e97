// ABOUTME: Outgoing message POST to /chat/{id}/messages
// ABOUTME: Fire-and-forget from the store's perspective; echo arrives via the stream

package client

import (
	"context"
	"net/url"
)

// sendMessageRequest is the JSON body for POST /chat/{id}/messages.
type sendMessageRequest struct {
	Message string `json:"message"`
}

// PostMessage sends a new outgoing message. The created message is not
// inserted locally; it arrives back through the live stream like any other,
// which keeps a single normalization path and avoids duplicate-id races.
func (f *Service) PostMessage(ctx context.Context, chatID, body string) error {
	path := "/chat/" + url.PathEscape(chatID) + "/messages"
	return f.client.PostJSON(ctx, path, sendMessageRequest{Message: body})
}
