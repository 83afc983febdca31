package realtime

import (
	"encoding/json"
)

// Wire event names. These are the protocol contract with clients.
const (
	EvtCreateSession  = "create-session"
	EvtSessionCreated = "session-created"
	EvtJoinSession    = "join-session"
	EvtSessionJoined  = "session-joined"
	EvtError          = "error"
	EvtListenerUpdate = "listener-update"
	EvtStartSession   = "start-session"
	EvtPauseSession   = "pause-session"
	EvtResumeSession  = "resume-session"
	EvtStopSession    = "stop-session"
	EvtSessionStarted = "session-started"
	EvtSessionPaused  = "session-paused"
	EvtSessionResumed = "session-resumed"
	EvtSessionStopped = "session-stopped"
	EvtFeedback       = "feedback"
	EvtFeedbackUpdate = "feedback-update"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CreateSessionPayload carries a client-pre-generated session id and a
// display name. An empty id asks the server to generate the code.
type CreateSessionPayload struct {
	SessionID   string `json:"sessionId"`
	SessionName string `json:"sessionName"`
}

// SessionCreatedPayload acknowledges creation. The control token is the
// narrator capability required on every subsequent lifecycle event.
type SessionCreatedPayload struct {
	SessionID    string `json:"sessionId"`
	ControlToken string `json:"controlToken"`
}

// JoinSessionPayload is a listener join request.
type JoinSessionPayload struct {
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
}

// SessionJoinedPayload acknowledges a join.
type SessionJoinedPayload struct {
	SessionID   string `json:"sessionId"`
	SessionName string `json:"sessionName"`
}

// ControlPayload accompanies start/pause/resume/stop events.
type ControlPayload struct {
	Token string `json:"token"`
}

// SessionStartedPayload carries the start instant in Unix milliseconds.
type SessionStartedPayload struct {
	StartTime int64 `json:"startTime"`
}

// FeedbackPayload is a raw listener sample. Timestamp is sender wall clock
// in Unix milliseconds; the server keeps it for reference but assigns
// relative time from arrival.
type FeedbackPayload struct {
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}
