// Package engine defines the abstraction layer for audio playback backends.
// The primary implementation targets 'mpv' via its JSON-IPC interface.
package engine

import "github.com/shelfplay-cli/shelfplay/book"

// EventKind discriminates the notifications an engine emits.
type EventKind int

const (
	// EventPosition is a periodic report of the playback position within the
	// current track, in seconds.
	EventPosition EventKind = iota

	// EventPlaying reports a flip of the pause state.
	EventPlaying

	// EventDuration reports the track length once the engine has decoded
	// enough to know it.
	EventDuration

	// EventCompleted reports that the current track played to its end.
	EventCompleted

	// EventExited reports that the engine process terminated.
	EventExited
)

// Event is a single notification from the playback engine.
type Event struct {
	Kind     EventKind
	Position float64
	Playing  bool
	Duration book.Duration
}

// Engine encapsulates the required capabilities of an audio playback backend.
type Engine interface {
	// Load begins playback of the given target, a local path or an HTTP(S)
	// URL, starting at the given offset in seconds. If an engine instance is
	// already running the new target replaces the current one. The returned
	// duration is unknown when the engine cannot report it yet; a refinement
	// arrives later as an EventDuration.
	Load(target string, headers map[string]string, startAt float64) (book.Duration, error)

	// Play resumes playback.
	Play() error

	// Pause suspends playback.
	Pause() error

	// Seek moves playback to an absolute position within the current track.
	Seek(seconds float64) error

	// SetSpeed adjusts the playback rate, 1.0 being normal.
	SetSpeed(speed float64) error

	// Position retrieves the current playback position in seconds.
	Position() (float64, error)

	// Events returns the engine's notification stream. The channel closes
	// after Close or when the engine process dies; a Load that restarts the
	// engine makes Events return a fresh stream.
	Events() <-chan Event

	// Close terminates the engine and releases all associated resources.
	Close() error
}
