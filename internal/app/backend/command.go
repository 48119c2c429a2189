package backend

import "github.com/osa030/soundmirror/internal/domain/track"

// Command is a playback command forwarded to the external player.
// Commands are fire-and-forget; the backend holds playback truth.
type Command interface {
	isCommand()
}

// Play resumes or starts playback of the current track.
type Play struct{}

// Pause pauses playback.
type Pause struct{}

// Stop stops playback completely.
type Stop struct{}

// SkipNext skips to the next track in the backend queue.
type SkipNext struct{}

// SeekTo seeks to an absolute position within the current track.
type SeekTo struct {
	Millis int64
}

// PlayFromID starts playback of the queued track with the given ID.
type PlayFromID struct {
	TrackID track.ID
}

// LoadQueue replaces the backend queue with the given ordered track list.
type LoadQueue struct {
	Tracks []track.Track
}

// Refresh asks the backend to re-publish its catalog children.
type Refresh struct{}

func (Play) isCommand()       {}
func (Pause) isCommand()      {}
func (Stop) isCommand()       {}
func (SkipNext) isCommand()   {}
func (SeekTo) isCommand()     {}
func (PlayFromID) isCommand() {}
func (LoadQueue) isCommand()  {}
func (Refresh) isCommand()    {}

// Name returns a short command name for logging.
func Name(cmd Command) string {
	switch cmd.(type) {
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Stop:
		return "stop"
	case SkipNext:
		return "skip_next"
	case SeekTo:
		return "seek_to"
	case PlayFromID:
		return "play_from_id"
	case LoadQueue:
		return "load_queue"
	case Refresh:
		return "refresh"
	default:
		return "unknown"
	}
}
