package shelf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/mo"
	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/log"
)

// PlaySession is the result of opening a streaming session: the playable
// remote track list and the opaque session identifier the server expects on
// every subsequent sync and close call.
type PlaySession struct {
	ID     string
	Tracks []book.Track
}

// Progress is the outbound progress payload shared by session sync and the
// legacy per-book endpoints.
type Progress struct {
	CurrentTime   float64 `json:"currentTime"`
	CurrentTimeMs int64   `json:"currentTimeMs"`
	Duration      float64 `json:"duration,omitempty"`
	Progress      float64 `json:"progress,omitempty"`
	IsFinished    bool    `json:"isFinished"`
	IsPaused      bool    `json:"isPaused"`
}

// NewProgress builds a progress payload from a global position. The fraction
// is only included when the total is known, clamped to [0, 1].
func NewProgress(currentSeconds float64, total mo.Option[float64], finished, paused bool) Progress {
	p := Progress{
		CurrentTime:   currentSeconds,
		CurrentTimeMs: int64(currentSeconds * 1000),
		IsFinished:    finished,
		IsPaused:      paused,
	}

	if totalSeconds, ok := total.Get(); ok && totalSeconds > 0 {
		p.Duration = totalSeconds
		fraction := currentSeconds / totalSeconds
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		p.Progress = fraction
	}

	return p
}

// endpoint is one candidate (verb, path template) pair for a session call.
type endpoint struct {
	method string
	path   string
}

// Session routes differ between server versions. This is a tolerated
// compatibility shim, not a pattern to copy: candidates are tried in priority
// order and the first accepted response wins.
var (
	syncEndpoints = []endpoint{
		{http.MethodPost, "/api/session/%s/sync"},
		{http.MethodPost, "/api/sessions/%s/sync"},
		{http.MethodPatch, "/api/session/%s"},
	}
	closeEndpoints = []endpoint{
		{http.MethodPost, "/api/session/%s/close"},
		{http.MethodDelete, "/api/session/%s"},
		{http.MethodDelete, "/api/sessions/%s"},
	}
)

// OpenSession starts a streaming session for an item (optionally a specific
// episode) and returns the playable tracks plus the session identifier.
func (c *Client) OpenSession(ctx context.Context, itemID, episodeID string) (*PlaySession, error) {
	path := "/api/items/" + url.PathEscape(itemID) + "/play"
	if episodeID != "" {
		path += "/" + url.PathEscape(episodeID)
	}

	resp, err := c.request(ctx, http.MethodPost, path, map[string]any{
		"mediaPlayer":   "shelfplay",
		"supportedMimeTypes": []string{"audio/mpeg", "audio/mp4", "audio/flac", "audio/ogg"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open session for %s: unexpected status %d", itemID, resp.StatusCode)
	}

	var wire struct {
		SessionID string `json:"sessionId"`
		ID        string `json:"id"`
		AltID     string `json:"_id"`

		AudioTracks []struct {
			Index      int     `json:"index"`
			Duration   float64 `json:"duration"`
			MimeType   string  `json:"mimeType"`
			ContentURL string  `json:"contentUrl"`
		} `json:"audioTracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode play response: %w", err)
	}

	// Servers disagree on the id key; take the first present.
	id := firstNonEmpty(wire.SessionID, wire.ID, wire.AltID)
	if id == "" {
		return nil, fmt.Errorf("open session for %s: response carries no session id", itemID)
	}

	session := &PlaySession{ID: id}
	for _, t := range wire.AudioTracks {
		session.Tracks = append(session.Tracks, book.Track{
			Index:    t.Index,
			URL:      c.absoluteURL(t.ContentURL),
			MimeType: t.MimeType,
			Duration: book.DurationFromSeconds(t.Duration),
		})
	}
	book.SortTracks(session.Tracks)

	return session, nil
}

// SyncSession reports progress against an open session. Candidates are tried
// in order; delivery by any of them counts as success.
func (c *Client) SyncSession(ctx context.Context, sessionID string, p Progress) error {
	var lastErr error

	for _, e := range syncEndpoints {
		path := fmt.Sprintf(e.path, url.PathEscape(sessionID))
		resp, err := c.request(ctx, e.method, path, p)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if delivered(resp.StatusCode) {
			return nil
		}
		lastErr = fmt.Errorf("%s %s: status %d", e.method, path, resp.StatusCode)
	}

	return fmt.Errorf("sync session %s: %w", sessionID, lastErr)
}

// CloseSession releases a streaming session on the server. A 404 counts as
// success: the session being already gone server-side is the desired outcome.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	var lastErr error

	for _, e := range closeEndpoints {
		path := fmt.Sprintf(e.path, url.PathEscape(sessionID))
		resp, err := c.request(ctx, e.method, path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if delivered(resp.StatusCode) || resp.StatusCode == http.StatusNotFound {
			return nil
		}
		lastErr = fmt.Errorf("%s %s: status %d", e.method, path, resp.StatusCode)
	}

	log.Warnf("close session %s failed on all endpoints: %v", sessionID, lastErr)
	return fmt.Errorf("close session %s: %w", sessionID, lastErr)
}

// absoluteURL resolves a possibly relative content URL against the server base.
func (c *Client) absoluteURL(contentURL string) string {
	if contentURL == "" || strings.Contains(contentURL, "://") {
		return contentURL
	}
	if !strings.HasPrefix(contentURL, "/") {
		contentURL = "/" + contentURL
	}
	return c.baseURL + contentURL
}
