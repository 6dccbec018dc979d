package book

import (
	"golang.org/x/exp/slices"
)

// Track represents a single playable audio unit of a book.
//
// Tracks are treated as immutable values: duration refinement and any other
// change happens by replacing the track inside a freshly built slice, never by
// mutating a shared one.
type Track struct {
	// Ordering index within the book. Insertion order is irrelevant; track
	// lists are sorted explicitly before use.
	Index int `json:"index"`
	// Direct URL to the remote stream. Empty for local tracks.
	URL string `json:"url,omitempty"`
	// Absolute path of the downloaded file. Empty for remote tracks.
	Path string `json:"path,omitempty"`
	// MIME type as reported by the server or guessed from the extension.
	MimeType string `json:"mime_type,omitempty"`
	// Temporal length, possibly unknown.
	Duration Duration `json:"duration"`
	// Local marks a track backed by a downloaded file.
	Local bool `json:"local"`
}

// Locator returns the source handed to the audio engine: the local path when
// the track is downloaded, the remote URL otherwise.
func (t Track) Locator() string {
	if t.Local {
		return t.Path
	}
	return t.URL
}

// SortTracks orders a track list ascending by index, in place.
func SortTracks(tracks []Track) {
	slices.SortFunc(tracks, func(a, b Track) int {
		return a.Index - b.Index
	})
}

// WithDuration returns a copy of the track list where the track at the given
// index carries the supplied duration. Refinement happens at most once: a
// track whose duration is already known is returned unchanged.
func WithDuration(tracks []Track, index int, d Duration) []Track {
	if index < 0 || index >= len(tracks) || tracks[index].Duration.IsKnown() {
		return tracks
	}

	next := make([]Track, len(tracks))
	copy(next, tracks)
	next[index].Duration = d
	return next
}
