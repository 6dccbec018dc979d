// Package timeline provides pure conversions between the global book timeline
// and per-track positions.
//
// A book is played back as an ordered list of physical tracks whose durations
// may be individually unknown until the server or the audio engine reports
// them. All functions here are side-effect free and tolerate partial duration
// knowledge instead of erroring, so playback degrades gracefully.
package timeline

import (
	"github.com/samber/mo"
	"github.com/shelfplay-cli/shelfplay/book"
)

// Position pairs a track index with an offset inside that track, in seconds.
type Position struct {
	TrackIndex int
	Offset     float64
}

// Locate maps a global book offset (in seconds) onto a track and an in-track
// offset.
//
// Tracks are walked in order, subtracting each known duration from the
// remaining target. The first track with an unknown duration absorbs all
// remaining time: without its length nothing past it can be placed, and
// landing inside it is the least surprising degradation. A target beyond the
// sum of all known durations clamps to the end of the last track.
func Locate(tracks []book.Track, global float64) Position {
	if len(tracks) == 0 {
		return Position{}
	}
	if global < 0 {
		global = 0
	}

	remaining := global
	for i, t := range tracks {
		seconds, known := t.Duration.Seconds()
		if !known {
			return Position{TrackIndex: i, Offset: remaining}
		}
		if remaining < seconds {
			return Position{TrackIndex: i, Offset: remaining}
		}
		remaining -= seconds
	}

	// Past the end of a fully known book: clamp to the last track's end.
	last := len(tracks) - 1
	return Position{TrackIndex: last, Offset: tracks[last].Duration.OrZero()}
}

// Global maps a track-local position back onto the global timeline.
//
// Returns None when any preceding track's duration is unknown: a global
// position computed over a gap would be corrupt, and reporting a corrupt
// position to the server is worse than reporting none.
func Global(tracks []book.Track, trackIndex int, offset float64) mo.Option[float64] {
	if trackIndex < 0 || trackIndex >= len(tracks) {
		return mo.None[float64]()
	}

	var before float64
	for _, t := range tracks[:trackIndex] {
		seconds, known := t.Duration.Seconds()
		if !known {
			return mo.None[float64]()
		}
		before += seconds
	}

	return mo.Some(before + offset)
}

// Total returns the full book length in seconds, or None when any track's
// duration is unknown. A single unknown track poisons the total: a partial
// sum presented as a whole misleads every consumer of a progress fraction.
func Total(tracks []book.Track) mo.Option[float64] {
	if len(tracks) == 0 {
		return mo.None[float64]()
	}

	var total float64
	for _, t := range tracks {
		seconds, known := t.Duration.Seconds()
		if !known || seconds <= 0 {
			return mo.None[float64]()
		}
		total += seconds
	}

	return mo.Some(total)
}
