// ABOUTME: Paginated history fetcher over GET /chat/{id}/messages
// ABOUTME: Normalizes heterogeneous page shapes and reports the continuation flag

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
)

// ErrPageFetch marks a history fetch that failed on the network or during
// decoding. The session-expired case is not wrapped in it so errors.Is on
// auth.ErrSessionExpired keeps working.
var ErrPageFetch = errors.New("history page fetch failed")

// Service performs the REST operations against the chat server.
type Service struct {
	client *auth.Client
	logger *slog.Logger
}

// NewService creates a Service. Pass nil logger for the default.
func NewService(client *auth.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		logger: logger.With("component", "client"),
	}
}

// FetchPage requests up to limit messages older than beforeID (all most
// recent when beforeID is empty). Returns the normalized messages and whether
// more pages may exist: the server's explicit flag when present, otherwise
// inferred from the page being non-empty.
func (f *Service) FetchPage(ctx context.Context, chatID string, limit int, beforeID string) ([]chat.Message, bool, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if beforeID != "" {
		q.Set("beforeId", beforeID)
	}
	path := "/chat/" + url.PathEscape(chatID) + "/messages?" + q.Encode()

	body, err := f.client.GetJSON(ctx, path)
	if err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: %v", ErrPageFetch, err)
	}

	page, err := chat.DecodePage(body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPageFetch, err)
	}

	hasMore := len(page.Messages) > 0
	if page.HasMore != nil {
		hasMore = *page.HasMore
	}

	f.logger.Debug("history page fetched",
		"chat_id", chatID,
		"count", len(page.Messages),
		"before_id", beforeID,
		"has_more", hasMore)

	return page.Messages, hasMore, nil
}
