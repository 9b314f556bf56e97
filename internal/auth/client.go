// ABOUTME: HTTP client wrapper attaching bearer credential and locale headers
// ABOUTME: Maps 401 responses and locally expired JWTs to ErrSessionExpired

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrSessionExpired indicates the bearer credential is no longer accepted.
// Callers check it with errors.Is and redirect to re-authentication.
var ErrSessionExpired = errors.New("session expired")

// Client wraps an http.Client so that every request carries the bearer
// credential and the locale header. The credential travels as a header, never
// as a query parameter, so it cannot leak into logs or URLs.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	locale     string
	now        func() time.Time
}

// NewClient creates a Client for the given base URL. Pass nil httpClient for
// http.DefaultClient. Locale may be empty, in which case no locale header is
// sent.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, locale string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		locale:     locale,
		now:        time.Now,
	}
}

// BaseURL returns the server base URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// NewRequest builds a request for a path under the base URL with the
// credential and locale headers attached.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.decorate(req)
	return req, nil
}

// Do sends the request. A locally expired JWT short-circuits with
// ErrSessionExpired before any network call; a 401 response is drained,
// closed, and mapped to the same error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.tokens != nil && TokenExpired(c.tokens.Token(), c.now()) {
		return nil, ErrSessionExpired
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
		return nil, ErrSessionExpired
	}

	return resp, nil
}

// GetJSON performs a GET and returns the raw response body for callers that
// need shape-flexible decoding.
func (c *Client) GetJSON(ctx context.Context, path string) ([]byte, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// PostJSON performs a POST with a JSON body and discards the response body.
// Accepts any 2xx status.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil
}

// decorate attaches the credential and locale headers.
func (c *Client) decorate(req *http.Request) {
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}
}
