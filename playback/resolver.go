package playback

import (
	"context"
	"fmt"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/library"
	"github.com/shelfplay-cli/shelfplay/log"
)

// resolution is the outcome of picking a playable source for a book.
type resolution struct {
	tracks []book.Track
	local  bool
}

// resolveTracks picks the playable tracks for a book, local files first. A
// book with any downloaded tracks plays from disk and never opens a session;
// remote metadata only refines the unknown local durations. Only a book with
// no local files opens a streaming session.
func (o *Orchestrator) resolveTracks(ctx context.Context, bookID, episodeID string) (resolution, error) {
	if local := library.Tracks(bookID); len(local) > 0 {
		if remote, err := o.client.RemoteTracks(ctx, bookID); err == nil {
			local = mergeDurations(local, remote)
		} else {
			log.Debugf("duration refresh for %s skipped: %v", bookID, err)
		}
		return resolution{tracks: local, local: true}, nil
	}

	tracks, err := o.session.open(ctx, bookID, episodeID)
	if err != nil {
		return resolution{}, fmt.Errorf("no playable source for %s: %w", bookID, err)
	}
	return resolution{tracks: tracks}, nil
}

// mergeDurations fills unknown local durations from remote metadata, matching
// tracks by index. Known local durations are never overwritten.
func mergeDurations(local, remote []book.Track) []book.Track {
	byIndex := make(map[int]book.Duration, len(remote))
	for _, track := range remote {
		byIndex[track.Index] = track.Duration
	}

	merged := make([]book.Track, len(local))
	copy(merged, local)
	for i, track := range merged {
		if track.Duration.IsKnown() {
			continue
		}
		if d, ok := byIndex[track.Index]; ok && d.IsKnown() {
			merged[i].Duration = d
		}
	}
	return merged
}
