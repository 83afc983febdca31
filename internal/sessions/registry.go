package sessions

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/script-narration/backend/internal/models"
)

// Registry errors.
var (
	ErrNameRequired    = errors.New("session name required")
	ErrSessionExists   = errors.New("session id already in use")
	ErrSessionNotFound = errors.New("session not found")
)

// Outcome classifies the result of a requested lifecycle transition.
// Invalid transitions and unauthorized callers are deliberately not errors:
// the wire behavior is a silent no-op, but tests can still assert on which
// branch was taken.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeNoOp            // event inapplicable to current state
	OutcomeDenied          // caller is not the bound narrator, or session unknown
)

// TransitionResult reports what a Transition call did.
type TransitionResult struct {
	Outcome Outcome
	From    models.SessionState
	To      models.SessionState
	At      time.Time
	Session *models.Session // copy; nil when Denied
}

// transitions is the matched state-machine table. Absent entries are no-ops.
var transitions = map[models.SessionState]map[models.SessionEvent]models.SessionState{
	models.SessionStateCreated: {
		models.SessionEventStart: models.SessionStateStarted,
	},
	models.SessionStateStarted: {
		models.SessionEventPause: models.SessionStatePaused,
		models.SessionEventStop:  models.SessionStateStopped,
	},
	models.SessionStatePaused: {
		models.SessionEventResume: models.SessionStateStarted,
		models.SessionEventStop:   models.SessionStateStopped,
	},
}

// Registry owns the in-memory map of live sessions. It is constructed at
// process start and injected everywhere it is needed; updates are atomic
// under one mutex so relay handlers see consistent session state.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*models.Session
	feedback  map[string][]models.FeedbackSample // append-only per session
	narrators map[string]string                  // connID -> sessionID
	listeners map[string]string                  // connID -> sessionID
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(clock clockwork.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		sessions:  make(map[string]*models.Session),
		feedback:  make(map[string][]models.FeedbackSample),
		narrators: make(map[string]string),
		listeners: make(map[string]string),
		clock:     clock,
		logger:    logger,
	}
}

// Create inserts a Created-state session bound to the narrator connection.
// The id is caller-supplied (shareable short code, pre-generated client side);
// when empty a code is generated server-side.
func (r *Registry) Create(id, name, narratorConnID string) (*models.Session, error) {
	if name == "" {
		return nil, ErrNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		for {
			id = newSessionCode()
			if _, taken := r.sessions[id]; !taken {
				break
			}
		}
	} else if _, taken := r.sessions[id]; taken {
		return nil, ErrSessionExists
	}

	s := &models.Session{
		ID:         id,
		Name:       name,
		State:      models.SessionStateCreated,
		NarratorID: narratorConnID,
		CreatedAt:  r.clock.Now(),
	}
	r.sessions[id] = s
	r.narrators[narratorConnID] = id
	r.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("name", name),
		zap.String("narrator_id", narratorConnID),
	)
	return copySession(s), nil
}

// Join registers a listener connection on an existing session.
func (r *Registry) Join(sessionID, connID, listenerName string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	// Re-join with the same connection replaces the previous name.
	for i := range s.Listeners {
		if s.Listeners[i].ID == connID {
			s.Listeners[i].Name = listenerName
			r.listeners[connID] = sessionID
			return copySession(s), nil
		}
	}
	s.Listeners = append(s.Listeners, models.Listener{ID: connID, Name: listenerName})
	r.listeners[connID] = sessionID
	r.logger.Debug("listener joined",
		zap.String("session_id", sessionID),
		zap.String("conn_id", connID),
		zap.String("name", listenerName),
	)
	return copySession(s), nil
}

// LeaveResult reports what Leave removed, so the relay can broadcast
// presence or tear the session down.
type LeaveResult struct {
	SessionID   string
	WasNarrator bool
	WasListener bool
	Session     *models.Session // copy; nil when the session was destroyed
}

// Leave removes whatever binding the connection holds. It is idempotent:
// unknown connections return a zero result. A narrator leaving destroys the
// registry entry outright.
func (r *Registry) Leave(connID string) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sid, ok := r.narrators[connID]; ok {
		delete(r.narrators, connID)
		if s, ok := r.sessions[sid]; ok {
			for _, l := range s.Listeners {
				delete(r.listeners, l.ID)
			}
			delete(r.sessions, sid)
			delete(r.feedback, sid)
		}
		r.logger.Info("session destroyed", zap.String("session_id", sid))
		return LeaveResult{SessionID: sid, WasNarrator: true}
	}

	if sid, ok := r.listeners[connID]; ok {
		delete(r.listeners, connID)
		s, ok := r.sessions[sid]
		if !ok {
			return LeaveResult{SessionID: sid, WasListener: true}
		}
		for i := range s.Listeners {
			if s.Listeners[i].ID == connID {
				s.Listeners = append(s.Listeners[:i], s.Listeners[i+1:]...)
				break
			}
		}
		return LeaveResult{SessionID: sid, WasListener: true, Session: copySession(s)}
	}

	return LeaveResult{}
}

// Transition applies a lifecycle event if the caller is the bound narrator
// and the event is applicable in the current state.
func (r *Registry) Transition(sessionID, connID string, ev models.SessionEvent) TransitionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.NarratorID != connID {
		return TransitionResult{Outcome: OutcomeDenied}
	}

	next, ok := transitions[s.State][ev]
	if !ok {
		return TransitionResult{Outcome: OutcomeNoOp, From: s.State, To: s.State, Session: copySession(s)}
	}

	now := r.clock.Now()
	from := s.State

	switch ev {
	case models.SessionEventStart:
		t := now
		s.StartTime = &t
	case models.SessionEventPause:
		t := now
		s.PausedAt = &t
	case models.SessionEventResume:
		if s.PausedAt != nil {
			s.TotalPaused += now.Sub(*s.PausedAt)
			s.PausedAt = nil
		}
	case models.SessionEventStop:
		// Duration freezes here; a pause still open at stop contributes
		// nothing past the pause instant, matching the reconciler timebase.
		t := now
		s.StoppedAt = &t
	}
	s.State = next

	r.logger.Info("session transition",
		zap.String("session_id", sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)
	return TransitionResult{Outcome: OutcomeApplied, From: from, To: next, At: now, Session: copySession(s)}
}

// Get returns a copy of a session.
func (r *Registry) Get(sessionID string) (*models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return copySession(s), true
}

// SessionFor returns the session a connection is bound to, and whether the
// connection is its narrator.
func (r *Registry) SessionFor(connID string) (*models.Session, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sid, ok := r.narrators[connID]; ok {
		if s, ok := r.sessions[sid]; ok {
			return copySession(s), true, true
		}
	}
	if sid, ok := r.listeners[connID]; ok {
		if s, ok := r.sessions[sid]; ok {
			return copySession(s), false, true
		}
	}
	return nil, false, false
}

// List returns copies of all live sessions.
func (r *Registry) List() []*models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, copySession(s))
	}
	return out
}

// AppendFeedback appends an accepted sample to the session's feedback log.
func (r *Registry) AppendFeedback(sessionID string, sample models.FeedbackSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	r.feedback[sessionID] = append(r.feedback[sessionID], sample)
}

// FeedbackLog returns a copy of the session's feedback log so far.
func (r *Registry) FeedbackLog(sessionID string) []models.FeedbackSample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.feedback[sessionID]
	out := make([]models.FeedbackSample, len(log))
	copy(out, log)
	return out
}

// Elapsed returns narration seconds elapsed at now, net of paused duration:
// frozen at the pause instant while paused and at the stop instant once
// stopped, no matter how much later it is read. ok is false before start.
func Elapsed(s *models.Session, now time.Time) (float64, bool) {
	if s.StartTime == nil {
		return 0, false
	}
	if s.PausedAt != nil {
		return (s.PausedAt.Sub(*s.StartTime) - s.TotalPaused).Seconds(), true
	}
	if s.StoppedAt != nil {
		return (s.StoppedAt.Sub(*s.StartTime) - s.TotalPaused).Seconds(), true
	}
	return (now.Sub(*s.StartTime) - s.TotalPaused).Seconds(), true
}

// Snapshot builds the immutable review snapshot for a stopped session.
// The recorded audio is captured outside the registry and attached here.
// Duration comes from the session's own freeze points, so requesting the
// snapshot long after stop cannot stretch it.
func (r *Registry) Snapshot(sessionID string, audio []byte) (*models.ReviewSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	duration, _ := Elapsed(s, r.clock.Now())
	log := r.feedback[sessionID]
	feedback := make([]models.FeedbackSample, len(log))
	copy(feedback, log)
	return &models.ReviewSession{
		Name:     s.Name,
		Duration: duration,
		Feedback: feedback,
		Audio:    audio,
	}, nil
}

func copySession(s *models.Session) *models.Session {
	c := *s
	c.Listeners = s.ListenerSnapshot()
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.PausedAt != nil {
		t := *s.PausedAt
		c.PausedAt = &t
	}
	if s.StoppedAt != nil {
		t := *s.StoppedAt
		c.StoppedAt = &t
	}
	return &c
}

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newSessionCode returns a 9-character base36 code, short enough to type
// from a QR caption yet collision-resistant among live sessions.
func newSessionCode() string {
	buf := make([]byte, 9)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
