// Package shelf provides a client for self-hosted audiobook media servers.
//
// Field names and session routes drift between server versions, so responses
// are decoded with fallback keys and mutating calls go through ordered
// candidate endpoint lists.
package shelf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shelfplay-cli/shelfplay/constant"
	"github.com/shelfplay-cli/shelfplay/network"
)

// Client issues authenticated requests against a single audiobook server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the given server base URL and bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    network.Client,
	}
}

// BaseURL returns the normalized server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthHeaders returns the headers an audio engine needs to stream straight
// from the server.
func (c *Client) AuthHeaders() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// request performs a single authenticated API call. A non-nil payload is JSON-encoded.
func (c *Client) request(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", constant.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return resp, nil
}

// getJSON performs a GET request and decodes the 200 response body into target.
func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	resp, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeBody decodes an already-validated response body into target.
func decodeBody(resp *http.Response, target any) error {
	return json.NewDecoder(resp.Body).Decode(target)
}

// delivered reports whether a status code counts as an accepted mutation.
func delivered(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent
}

// Online reports whether the server currently answers requests at all.
func (c *Client) Online(ctx context.Context) bool {
	resp, err := c.request(ctx, http.MethodGet, "/ping", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
