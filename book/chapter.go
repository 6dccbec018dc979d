package book

import (
	"fmt"
	"time"

	"github.com/shelfplay-cli/shelfplay/util"
	"golang.org/x/exp/slices"
)

// Chapter marks a named position on the global (book-level) timeline.
type Chapter struct {
	Title string `json:"title"`
	// Start offset from the beginning of the whole book, not of any single track.
	StartMs int64 `json:"startMs"`
}

// Start returns the chapter offset as a time.Duration.
func (c Chapter) Start() time.Duration {
	return time.Duration(c.StartMs) * time.Millisecond
}

// SortChapters orders chapters ascending by start offset, in place.
func SortChapters(chapters []Chapter) {
	slices.SortFunc(chapters, func(a, b Chapter) int {
		switch {
		case a.StartMs < b.StartMs:
			return -1
		case a.StartMs > b.StartMs:
			return 1
		default:
			return 0
		}
	})
}

// SynthesizeChapters derives one chapter per track from track boundaries, used
// when the server provides no chapter metadata. Chapters are named by the
// local filename when available, "Track N" otherwise. Tracks with unknown
// durations terminate synthesis early: boundaries past them cannot be placed
// on the global timeline.
func SynthesizeChapters(tracks []Track) []Chapter {
	var (
		chapters []Chapter
		cursorMs int64
	)

	for i, t := range tracks {
		title := fmt.Sprintf("Track %d", i+1)
		if t.Local && t.Path != "" {
			title = util.FileStem(t.Path)
		}

		chapters = append(chapters, Chapter{Title: title, StartMs: cursorMs})

		seconds, known := t.Duration.Seconds()
		if !known {
			break
		}
		cursorMs += int64(seconds * 1000)
	}

	return chapters
}
