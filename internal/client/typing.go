// ABOUTME: Typing pulse POST to /chat/{id}/typing
// ABOUTME: Best-effort signal; rate limiting is the facade's concern

package client

import (
	"context"
	"net/url"
)

// PostTyping fires one typing pulse for the conversation. The body is an
// empty object; the server attributes the pulse to the bearer credential.
func (f *Service) PostTyping(ctx context.Context, chatID string) error {
	path := "/chat/" + url.PathEscape(chatID) + "/typing"
	return f.client.PostJSON(ctx, path, struct{}{})
}
