package playback

import (
	"context"
	"sync"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/log"
	"github.com/shelfplay-cli/shelfplay/shelf"
)

// sessionHandle tracks the single streaming session an orchestrator may hold.
// The id is the only shared field and every access goes through the mutex.
type sessionHandle struct {
	client *shelf.Client

	mu sync.Mutex
	id string
}

func newSessionHandle(client *shelf.Client) *sessionHandle {
	return &sessionHandle{client: client}
}

// open starts a fresh streaming session, closing any previous one first so
// two sessions are never open at the same time.
func (h *sessionHandle) open(ctx context.Context, itemID, episodeID string) ([]book.Track, error) {
	h.close(ctx)

	session, err := h.client.OpenSession(ctx, itemID, episodeID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.id = session.ID
	h.mu.Unlock()

	return session.Tracks, nil
}

// sync reports progress into the open session. Returns false without touching
// the network when no session is open.
func (h *sessionHandle) sync(ctx context.Context, p shelf.Progress) bool {
	h.mu.Lock()
	id := h.id
	h.mu.Unlock()

	if id == "" {
		return false
	}

	if err := h.client.SyncSession(ctx, id, p); err != nil {
		log.Warnf("session sync failed: %v", err)
		return false
	}
	return true
}

// close releases the session. The id is cleared before the network call so a
// concurrent trigger can never issue a second close for the same session.
func (h *sessionHandle) close(ctx context.Context) {
	h.mu.Lock()
	id := h.id
	h.id = ""
	h.mu.Unlock()

	if id == "" {
		return
	}

	if err := h.client.CloseSession(ctx, id); err != nil {
		log.Warnf("session close failed: %v", err)
	}
}

func (h *sessionHandle) active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id != ""
}
