package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/script-narration/backend/internal/auth"
	"github.com/script-narration/backend/internal/metrics"
	"github.com/script-narration/backend/internal/models"
	"github.com/script-narration/backend/internal/sessions"
)

// Timeline is the reconciler surface the relay drives.
type Timeline interface {
	SessionStarted(sessionID string, at time.Time)
	SessionPaused(sessionID string, at time.Time)
	SessionResumed(sessionID string, at time.Time)
	SessionClosed(sessionID string)
	Ingest(sessionID, userID, userName string, value float64, sourceTS time.Time)
	ListenerLeft(sessionID, userID string)
}

// Relay routes events between a narrator connection and its listeners,
// enforcing which roles may send which event kinds. It deliberately answers
// unauthorized or state-invalid control events with silence: no crash, no
// spurious error, no role information leaked.
type Relay struct {
	registry *sessions.Registry
	hub      *Hub
	tokens   *auth.TokenService
	timeline Timeline
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewRelay creates the event relay.
func NewRelay(registry *sessions.Registry, hub *Hub, tokens *auth.TokenService, timeline Timeline, clock clockwork.Clock, logger *zap.Logger) *Relay {
	return &Relay{
		registry: registry,
		hub:      hub,
		tokens:   tokens,
		timeline: timeline,
		clock:    clock,
		logger:   logger,
	}
}

// controlEvents maps wire control events to lifecycle transitions.
var controlEvents = map[string]models.SessionEvent{
	EvtStartSession:  models.SessionEventStart,
	EvtPauseSession:  models.SessionEventPause,
	EvtResumeSession: models.SessionEventResume,
	EvtStopSession:   models.SessionEventStop,
}

// HandleMessage processes one inbound client event to completion.
func (r *Relay) HandleMessage(c *Client, msg WSMessage) {
	switch msg.Event {
	case EvtCreateSession:
		r.handleCreate(c, msg.Data)
	case EvtJoinSession:
		r.handleJoin(c, msg.Data)
	case EvtStartSession, EvtPauseSession, EvtResumeSession, EvtStopSession:
		r.handleControl(c, msg.Event, msg.Data)
	case EvtFeedback:
		r.handleFeedback(c, msg.Data)
	default:
		// ignore
	}
}

func (r *Relay) handleCreate(c *Client, data json.RawMessage) {
	if c.SessionID != "" {
		return // connection already bound
	}
	var p CreateSessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s, err := r.registry.Create(p.SessionID, p.SessionName, c.ID)
	if err != nil {
		if errors.Is(err, sessions.ErrNameRequired) {
			c.sendEvent(EvtError, "Session name required")
		} else if errors.Is(err, sessions.ErrSessionExists) {
			c.sendEvent(EvtError, "Session id already in use")
		}
		return
	}

	token, err := r.tokens.MintNarrator(s.ID)
	if err != nil {
		r.logger.Error("mint control token", zap.Error(err))
		r.registry.Leave(c.ID)
		c.sendEvent(EvtError, "Could not create session")
		return
	}

	c.SessionID = s.ID
	c.Role = RoleNarrator
	r.hub.Register(c)
	metrics.ActiveSessions.Inc()
	c.sendEvent(EvtSessionCreated, SessionCreatedPayload{SessionID: s.ID, ControlToken: token})
}

func (r *Relay) handleJoin(c *Client, data json.RawMessage) {
	if c.SessionID != "" {
		return
	}
	var p JoinSessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s, err := r.registry.Join(p.SessionID, c.ID, p.UserName)
	if err != nil {
		c.sendEvent(EvtError, "Session not found")
		return
	}

	c.SessionID = s.ID
	c.Role = RoleListener
	c.Name = p.UserName
	r.hub.Register(c)
	metrics.ConnectedListeners.Inc()

	c.sendEvent(EvtSessionJoined, SessionJoinedPayload{SessionID: s.ID, SessionName: s.Name})
	// Presence updates always carry the full listener set, not a delta.
	r.hub.BroadcastAndPublish(s.ID, EvtListenerUpdate, s.ListenerSnapshot())
}

func (r *Relay) handleControl(c *Client, event string, data json.RawMessage) {
	if c.SessionID == "" {
		return
	}
	var p ControlPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if err := r.tokens.ValidateNarrator(p.Token, c.SessionID); err != nil {
		return // unauthorized: silent by design of the protocol
	}

	res := r.registry.Transition(c.SessionID, c.ID, controlEvents[event])
	if res.Outcome != sessions.OutcomeApplied {
		return
	}

	switch res.To {
	case models.SessionStateStarted:
		if res.From == models.SessionStateCreated {
			r.timeline.SessionStarted(c.SessionID, res.At)
			r.hub.BroadcastAndPublish(c.SessionID, EvtSessionStarted,
				SessionStartedPayload{StartTime: res.At.UnixMilli()})
		} else {
			r.timeline.SessionResumed(c.SessionID, res.At)
			r.hub.BroadcastAndPublish(c.SessionID, EvtSessionResumed, nil)
		}
	case models.SessionStatePaused:
		r.timeline.SessionPaused(c.SessionID, res.At)
		r.hub.BroadcastAndPublish(c.SessionID, EvtSessionPaused, nil)
	case models.SessionStateStopped:
		r.timeline.SessionClosed(c.SessionID)
		r.hub.BroadcastAndPublish(c.SessionID, EvtSessionStopped, nil)
	}
}

func (r *Relay) handleFeedback(c *Client, data json.RawMessage) {
	if c.Role != RoleListener || c.SessionID == "" {
		return
	}
	s, ok := r.registry.Get(c.SessionID)
	if !ok || s.State != models.SessionStateStarted {
		// Not started, paused, or stopped: the drop is a deliberate filter,
		// never surfaced to the sender.
		metrics.FeedbackDropped.Inc()
		return
	}
	var p FeedbackPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	value := models.ClampFeedback(p.Value)
	sourceTS := r.clock.Now()
	if p.Timestamp > 0 {
		sourceTS = time.UnixMilli(p.Timestamp)
	}

	metrics.FeedbackAccepted.Inc()
	r.timeline.Ingest(c.SessionID, c.ID, c.Name, value, sourceTS)
}

// HandleDisconnect cleans up whatever the connection was bound to. It is
// idempotent and safe to run while a late event from the same connection is
// still in flight.
func (r *Relay) HandleDisconnect(c *Client) {
	res := r.registry.Leave(c.ID)
	switch {
	case res.WasNarrator:
		metrics.ActiveSessions.Dec()
		r.timeline.SessionClosed(res.SessionID)
		r.hub.BroadcastAndPublish(res.SessionID, EvtSessionStopped, nil)
	case res.WasListener:
		metrics.ConnectedListeners.Dec()
		r.timeline.ListenerLeft(res.SessionID, c.ID)
		if res.Session != nil {
			r.hub.BroadcastAndPublish(res.SessionID, EvtListenerUpdate, res.Session.ListenerSnapshot())
		}
	}
	r.hub.Unregister(c)
}

// Deliver implements the reconciler sink: every reconciled sample is appended
// to the session's feedback log and fanned out as a feedback-update.
func (r *Relay) Deliver(sessionID string, sample models.FeedbackSample) {
	if sample.Synthetic {
		metrics.HeartbeatsSynthesized.Inc()
	}
	r.registry.AppendFeedback(sessionID, sample)
	r.hub.BroadcastAndPublish(sessionID, EvtFeedbackUpdate, sample)
}
