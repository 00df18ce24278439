package player

import (
	"context"
	"time"
)

// State is the manager's position in the playback state machine.
type State int

const (
	StateIdle State = iota
	StateResolving
	StatePlaying
	StateRetrying
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StateRetrying:
		return "retrying"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the manager for chat and HTTP callers.
type Status struct {
	State       string     `json:"state"`
	NowPlaying  string     `json:"now_playing,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	RetriesLeft int        `json:"retries_left"`
	Queue       []string   `json:"queue"`
}

// EventKind labels a play history entry.
type EventKind string

const (
	EventStarted       EventKind = "started"
	EventFinished      EventKind = "finished"
	EventCrashed       EventKind = "crashed"
	EventRetrying      EventKind = "retrying"
	EventAbandoned     EventKind = "abandoned"
	EventResolveFailed EventKind = "resolve_failed"
	EventSpawnFailed   EventKind = "spawn_failed"
	EventStopped       EventKind = "stopped"
)

// Event is one entry of play history.
type Event struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	Kind      EventKind `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// History receives play events. Implementations must be safe for concurrent use.
type History interface {
	Record(ctx context.Context, ev Event) error
}
