package playback

import (
	"sync"

	"github.com/shelfplay-cli/shelfplay/book"
)

const feedBufferSize = 16

// NowPlaying is a point-in-time snapshot of the active book. The orchestrator
// replaces the whole snapshot on every change; readers never see a partially
// updated one. A nil snapshot on the feed means playback stopped.
type NowPlaying struct {
	Book         book.Book
	Tracks       []book.Track
	Chapters     []book.Chapter
	CurrentTrack int
	State        State
	Local        bool
}

// CurrentChapter returns the chapter containing the given global position,
// or nil when chapters are absent.
func (n *NowPlaying) CurrentChapter(globalSeconds float64) *book.Chapter {
	var current *book.Chapter
	for i := range n.Chapters {
		if n.Chapters[i].Start().Seconds() <= globalSeconds {
			current = &n.Chapters[i]
		}
	}
	return current
}

// Feed publishes NowPlaying snapshots to any number of subscribers with
// last-value replay for late arrivals.
type Feed struct {
	mu   sync.Mutex
	last *NowPlaying
	seen bool
	subs []chan *NowPlaying
}

func NewFeed() *Feed {
	return &Feed{}
}

// Subscribe returns a buffered channel of snapshots. The most recent snapshot
// is replayed immediately so late subscribers never start blind.
func (f *Feed) Subscribe() <-chan *NowPlaying {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan *NowPlaying, feedBufferSize)
	if f.seen {
		ch <- f.last
	}
	f.subs = append(f.subs, ch)
	return ch
}

// Publish fans a snapshot out to every subscriber without blocking. A
// subscriber that stalls misses intermediate snapshots, never the publisher.
func (f *Feed) Publish(snapshot *NowPlaying) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = snapshot
	f.seen = true

	for _, ch := range f.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Last returns the most recent snapshot, nil before the first publish.
func (f *Feed) Last() *NowPlaying {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Close terminates every subscriber channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
