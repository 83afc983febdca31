package models

import (
	"encoding/json"
	"time"
)

// SessionState represents the narration session lifecycle.
type SessionState string

const (
	SessionStateCreated SessionState = "created"
	SessionStateStarted SessionState = "started"
	SessionStatePaused  SessionState = "paused"
	SessionStateStopped SessionState = "stopped"
)

// SessionEvent is a lifecycle transition requested by the narrator.
type SessionEvent string

const (
	SessionEventStart  SessionEvent = "start"
	SessionEventPause  SessionEvent = "pause"
	SessionEventResume SessionEvent = "resume"
	SessionEventStop   SessionEvent = "stop"
)

// Listener is a joined participant, keyed by connection ID.
type Listener struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is one live narration session. The narrator connection that created
// it is its sole owner; listeners come and go. StartTime is set when Started
// is first entered, PausedAt while paused, StoppedAt once Stopped is entered,
// and TotalPaused accumulates only on Paused -> Started.
type Session struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	State       SessionState  `json:"state"`
	NarratorID  string        `json:"-"`
	StartTime   *time.Time    `json:"start_time,omitempty"`
	PausedAt    *time.Time    `json:"paused_at,omitempty"`
	StoppedAt   *time.Time    `json:"stopped_at,omitempty"`
	TotalPaused time.Duration `json:"-"`
	Listeners   []Listener    `json:"listeners"`
	CreatedAt   time.Time     `json:"created_at"`
}

// MarshalJSON emits TotalPaused in milliseconds; time.Duration would
// otherwise serialize as nanoseconds.
func (s *Session) MarshalJSON() ([]byte, error) {
	type session Session
	return json.Marshal(&struct {
		*session
		TotalPausedMs int64 `json:"total_paused_ms"`
	}{(*session)(s), s.TotalPaused.Milliseconds()})
}

// ListenerSnapshot returns the full current listener set in join order.
// Presence updates always carry the whole list so the narrator's view is
// self-correcting against lost updates.
func (s *Session) ListenerSnapshot() []Listener {
	out := make([]Listener, len(s.Listeners))
	copy(out, s.Listeners)
	return out
}
