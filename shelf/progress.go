package shelf

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/samber/mo"
)

// ServerProgress is the server's stored position for one book.
type ServerProgress struct {
	// CurrentTime is None when the server has no record at all, Some(0) when a
	// record exists but sits at the start. The distinction feeds reset detection.
	CurrentTime mo.Option[float64]
	Duration    mo.Option[float64]
	IsFinished  bool
}

// Progress fetches the server-stored position for an item. A 404 is not an
// error: it simply means the server holds no progress record.
func (c *Client) Progress(ctx context.Context, itemID string) (*ServerProgress, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/me/progress/"+url.PathEscape(itemID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &ServerProgress{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch progress for %s: unexpected status %d", itemID, resp.StatusCode)
	}

	var wire struct {
		CurrentTime *float64 `json:"currentTime"`
		Duration    *float64 `json:"duration"`
		IsFinished  bool     `json:"isFinished"`
	}
	if err := decodeBody(resp, &wire); err != nil {
		return nil, fmt.Errorf("decode progress for %s: %w", itemID, err)
	}

	progress := &ServerProgress{IsFinished: wire.IsFinished}
	if wire.CurrentTime != nil {
		progress.CurrentTime = mo.Some(*wire.CurrentTime)
	}
	if wire.Duration != nil && *wire.Duration > 0 {
		progress.Duration = mo.Some(*wire.Duration)
	}

	return progress, nil
}

// legacyProgressVerbs is the fallback chain for servers without session sync.
// Tried in order; the first accepted response wins.
var legacyProgressVerbs = []string{http.MethodPatch, http.MethodPut, http.MethodPost}

// UpdateProgress writes progress through the legacy per-book endpoint,
// trying PATCH, PUT, then POST.
func (c *Client) UpdateProgress(ctx context.Context, itemID string, p Progress) error {
	path := "/api/me/progress/" + url.PathEscape(itemID)
	var lastErr error

	for _, verb := range legacyProgressVerbs {
		resp, err := c.request(ctx, verb, path, p)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if delivered(resp.StatusCode) {
			return nil
		}
		lastErr = fmt.Errorf("%s %s: status %d", verb, path, resp.StatusCode)
	}

	return fmt.Errorf("update progress for %s: %w", itemID, lastErr)
}
