// Package playback sequences track resolution, the streaming session
// lifecycle, the audio engine and progress reporting behind a small facade.
package playback

// State is the orchestrator's coarse playback state.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	TrackTransition
	Finished
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case TrackTransition:
		return "track transition"
	case Finished:
		return "finished"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
