package playback

import (
	"context"
	"sync"
	"time"

	"github.com/samber/mo"
	"github.com/spf13/viper"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/key"
	"github.com/shelfplay-cli/shelfplay/log"
	"github.com/shelfplay-cli/shelfplay/progress"
	"github.com/shelfplay-cli/shelfplay/shelf"
)

// snapshot is the ephemeral progress report produced on demand. Only its
// effects persist: the local cache write and the outbound sync call.
type snapshot struct {
	book       book.Book
	trackIndex int
	offset     float64
	global     float64
	total      mo.Option[float64]
	finished   bool
	paused     bool
}

// synchronizer decides when progress is reported and walks the delivery
// tiers: local cache first, then the streaming session, then the legacy
// per-book endpoint chain. Delivery failures never reach the playback path.
type synchronizer struct {
	store   *progress.Store
	client  *shelf.Client
	session *sessionHandle

	mu           sync.Mutex
	lastReported mo.Option[float64]
	stopCh       chan struct{}
}

func newSynchronizer(store *progress.Store, client *shelf.Client, session *sessionHandle) *synchronizer {
	return &synchronizer{
		store:   store,
		client:  client,
		session: session,
	}
}

// startHeartbeat begins periodic reporting. Runs only while the engine plays;
// the orchestrator stops it on every pause.
func (s *synchronizer) startHeartbeat(report func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh

	interval := time.Duration(viper.GetInt(key.SyncHeartbeatSeconds)) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				report()
			}
		}
	}()
}

func (s *synchronizer) stopHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

// due reports whether a position tick warrants an immediate report: either
// the position jumped past the seek threshold since the last delivered
// report, or the completion fraction was crossed. The second return value is
// the finished flag the report should carry.
func (s *synchronizer) due(global float64, total mo.Option[float64]) (bool, bool) {
	s.mu.Lock()
	last, reported := s.lastReported.Get()
	s.mu.Unlock()

	if totalSeconds, ok := total.Get(); ok && totalSeconds > 0 {
		fraction := viper.GetFloat64(key.SyncCompletionFraction)
		if global/totalSeconds >= fraction {
			// Fires once, when the threshold is first crossed. After a
			// delivered finished report the tail of the book stays quiet.
			if !reported || last/totalSeconds < fraction {
				return true, true
			}
			return false, false
		}
	}

	if !reported {
		return false, false
	}

	jump := viper.GetFloat64(key.SyncJumpSeconds)
	if delta := global - last; delta > jump || delta < -jump {
		return true, false
	}
	return false, false
}

// report walks the delivery tiers in order. The cache write always happens
// first so a crash mid-sync never loses the freshest known position.
func (s *synchronizer) report(ctx context.Context, snap snapshot) {
	record := progress.NewRecord(&snap.book)
	record.TrackIndex = snap.trackIndex
	record.OffsetSeconds = snap.offset
	record.GlobalSeconds = snap.global
	record.TotalSeconds = snap.total.OrElse(0)
	record.Finished = snap.finished

	if err := s.store.SavePosition(record); err != nil {
		log.Warnf("progress cache write failed: %v", err)
	}

	payload := shelf.NewProgress(snap.global, snap.total, snap.finished, snap.paused)

	if s.session.sync(ctx, payload) {
		s.markReported(snap.global)
		return
	}

	if err := s.client.UpdateProgress(ctx, snap.book.ID, payload); err != nil {
		log.Warnf("progress report for %s not delivered: %v", snap.book.ID, err)
		return
	}
	s.markReported(snap.global)
}

func (s *synchronizer) markReported(global float64) {
	s.mu.Lock()
	s.lastReported = mo.Some(global)
	s.mu.Unlock()
}

func (s *synchronizer) reset() {
	s.mu.Lock()
	s.lastReported = mo.None[float64]()
	s.mu.Unlock()
}
