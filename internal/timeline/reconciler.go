// Package timeline converts sparse, network-jittered feedback samples into a
// continuous pause-aware signal. It assigns every accepted sample a relative
// timestamp (narration seconds, net of paused duration) and synthesizes
// heartbeat samples so flat segments stay visually continuous even though
// listeners only emit on value change.
package timeline

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/script-narration/backend/internal/models"
)

// Sink receives reconciled samples in order. Delivery happens on the
// reconciler goroutine, so per-listener FIFO ordering is preserved.
type Sink interface {
	Deliver(sessionID string, sample models.FeedbackSample)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(sessionID string, sample models.FeedbackSample)

func (f SinkFunc) Deliver(sessionID string, sample models.FeedbackSample) {
	f(sessionID, sample)
}

// Config tunes heartbeat synthesis.
type Config struct {
	// IdleThreshold is how long a listener may stay silent while the session
	// runs before heartbeats kick in.
	IdleThreshold time.Duration
	// HeartbeatEvery is the minimum gap between synthesized samples per listener.
	HeartbeatEvery time.Duration
	// Tick is the ticker interval driving synthesis.
	Tick time.Duration
}

// DefaultConfig matches the live chart's expectations: 150ms idle threshold,
// 100ms heartbeat cadence, 50ms ticks.
func DefaultConfig() Config {
	return Config{
		IdleThreshold:  150 * time.Millisecond,
		HeartbeatEvery: 100 * time.Millisecond,
		Tick:           50 * time.Millisecond,
	}
}

// startGapThreshold is the relative time above which a listener's first
// sample gets a zero-value origin sample synthesized before it, so every
// chart series starts at t=0.
const startGapThreshold = 0.1

// --- Command types ---

type reconcilerCmd interface{ reconcilerCmd() }

type cmdStarted struct {
	sessionID string
	at        time.Time
}

func (cmdStarted) reconcilerCmd() {}

type cmdPaused struct {
	sessionID string
	at        time.Time
}

func (cmdPaused) reconcilerCmd() {}

type cmdResumed struct {
	sessionID string
	at        time.Time
}

func (cmdResumed) reconcilerCmd() {}

type cmdSessionClosed struct {
	sessionID string
}

func (cmdSessionClosed) reconcilerCmd() {}

type cmdSample struct {
	sessionID string
	userID    string
	userName  string
	value     float64
	sourceTS  time.Time
}

func (cmdSample) reconcilerCmd() {}

type cmdListenerLeft struct {
	sessionID string
	userID    string
}

func (cmdListenerLeft) reconcilerCmd() {}

type cmdTick struct{}

func (cmdTick) reconcilerCmd() {}

type cmdFlush struct {
	doneCh chan struct{}
}

func (cmdFlush) reconcilerCmd() {}

type cmdStop struct {
	doneCh chan struct{}
}

func (cmdStop) reconcilerCmd() {}

// --- Per-session state ---

type timebase struct {
	started     bool
	startTime   time.Time
	paused      bool
	pausedAt    time.Time
	totalPaused time.Duration
	tracks      map[string]*listenerTrack
}

// elapsed is the timebase formula: narration seconds at now, frozen at the
// pause instant while paused.
func (tb *timebase) elapsed(now time.Time) float64 {
	if tb.paused {
		return (tb.pausedAt.Sub(tb.startTime) - tb.totalPaused).Seconds()
	}
	return (now.Sub(tb.startTime) - tb.totalPaused).Seconds()
}

type listenerTrack struct {
	name      string
	lastValue float64
	lastReal  time.Time // arrival of the last real sample
	lastEmit  time.Time // last delivery, real or synthetic
}

// --- Reconciler ---

// Reconciler is a single-goroutine engine: all state is owned by the run
// loop and mutated only through commands, so no locking is needed and
// sample ordering per listener is FIFO by construction.
type Reconciler struct {
	cmdCh    chan reconcilerCmd
	clock    clockwork.Clock
	cfg      Config
	sink     Sink
	logger   *zap.Logger
	sessions map[string]*timebase
	stopCh   chan struct{}
}

// NewReconciler creates a reconciler delivering into sink.
func NewReconciler(cfg Config, clock clockwork.Clock, sink Sink, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cmdCh:    make(chan reconcilerCmd, 512),
		clock:    clock,
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		sessions: make(map[string]*timebase),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the run loop and the heartbeat ticker.
func (r *Reconciler) Start() {
	go r.tickerLoop()
	go r.run()
}

// Stop terminates the run loop after draining queued commands.
func (r *Reconciler) Stop() {
	done := make(chan struct{})
	r.cmdCh <- cmdStop{doneCh: done}
	<-done
}

// SessionStarted registers the session timebase. Samples arriving for a
// session that never started are discarded, not queued.
func (r *Reconciler) SessionStarted(sessionID string, at time.Time) {
	r.cmdCh <- cmdStarted{sessionID: sessionID, at: at}
}

// SessionPaused freezes the timebase at the pause instant.
func (r *Reconciler) SessionPaused(sessionID string, at time.Time) {
	r.cmdCh <- cmdPaused{sessionID: sessionID, at: at}
}

// SessionResumed folds the pause gap into the accumulated paused duration.
func (r *Reconciler) SessionResumed(sessionID string, at time.Time) {
	r.cmdCh <- cmdResumed{sessionID: sessionID, at: at}
}

// SessionClosed drops all reconciler state for the session and halts its
// heartbeat synthesis. Used on stop and on narrator disconnect.
func (r *Reconciler) SessionClosed(sessionID string) {
	r.cmdCh <- cmdSessionClosed{sessionID: sessionID}
}

// Ingest offers a real listener sample. The relay has already authorized it;
// the reconciler assigns its relative time and forwards it to the sink.
func (r *Reconciler) Ingest(sessionID, userID, userName string, value float64, sourceTS time.Time) {
	r.cmdCh <- cmdSample{sessionID: sessionID, userID: userID, userName: userName, value: value, sourceTS: sourceTS}
}

// ListenerLeft halts heartbeat synthesis for the listener immediately.
func (r *Reconciler) ListenerLeft(sessionID, userID string) {
	r.cmdCh <- cmdListenerLeft{sessionID: sessionID, userID: userID}
}

// Flush blocks until every previously queued command has been processed.
func (r *Reconciler) Flush() {
	done := make(chan struct{})
	r.cmdCh <- cmdFlush{doneCh: done}
	<-done
}

func (r *Reconciler) tickerLoop() {
	ticker := r.clock.NewTicker(r.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.Chan():
			select {
			case r.cmdCh <- cmdTick{}:
			default:
				// command queue saturated, skip this tick
			}
		}
	}
}

func (r *Reconciler) run() {
	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case cmdStarted:
			r.handleStarted(c)
		case cmdPaused:
			r.handlePaused(c)
		case cmdResumed:
			r.handleResumed(c)
		case cmdSessionClosed:
			delete(r.sessions, c.sessionID)
		case cmdSample:
			r.handleSample(c)
		case cmdListenerLeft:
			if tb, ok := r.sessions[c.sessionID]; ok {
				delete(tb.tracks, c.userID)
			}
		case cmdTick:
			r.handleTick()
		case cmdFlush:
			close(c.doneCh)
		case cmdStop:
			close(r.stopCh)
			close(c.doneCh)
			return
		}
	}
}

func (r *Reconciler) handleStarted(c cmdStarted) {
	r.sessions[c.sessionID] = &timebase{
		started:   true,
		startTime: c.at,
		tracks:    make(map[string]*listenerTrack),
	}
}

func (r *Reconciler) handlePaused(c cmdPaused) {
	tb, ok := r.sessions[c.sessionID]
	if !ok {
		return
	}
	tb.paused = true
	tb.pausedAt = c.at
}

func (r *Reconciler) handleResumed(c cmdResumed) {
	tb, ok := r.sessions[c.sessionID]
	if !ok || !tb.paused {
		return
	}
	tb.totalPaused += c.at.Sub(tb.pausedAt)
	tb.paused = false
}

func (r *Reconciler) handleSample(c cmdSample) {
	tb, ok := r.sessions[c.sessionID]
	if !ok || !tb.started {
		// Session never started: discard, do not queue.
		return
	}

	now := r.clock.Now()
	rel := tb.elapsed(now)

	track, known := tb.tracks[c.userID]
	if !known {
		track = &listenerTrack{name: c.userName}
		tb.tracks[c.userID] = track
		if rel > startGapThreshold {
			// Backfill an origin point so the series starts at t=0 instead
			// of appearing mid-chart as a disconnected line.
			r.sink.Deliver(c.sessionID, models.FeedbackSample{
				UserID:          c.userID,
				UserName:        c.userName,
				Value:           0,
				SourceTimestamp: c.sourceTS,
				RelativeTime:    0,
				Synthetic:       true,
			})
		}
	}

	track.name = c.userName
	track.lastValue = c.value
	track.lastReal = now
	track.lastEmit = now

	r.sink.Deliver(c.sessionID, models.FeedbackSample{
		UserID:          c.userID,
		UserName:        c.userName,
		Value:           c.value,
		SourceTimestamp: c.sourceTS,
		RelativeTime:    rel,
	})
}

func (r *Reconciler) handleTick() {
	now := r.clock.Now()
	for sessionID, tb := range r.sessions {
		if !tb.started || tb.paused {
			// No synthetic points may appear frozen mid-air while paused.
			continue
		}
		for userID, track := range tb.tracks {
			if now.Sub(track.lastReal) <= r.cfg.IdleThreshold {
				continue
			}
			if now.Sub(track.lastEmit) < r.cfg.HeartbeatEvery {
				continue
			}
			track.lastEmit = now
			r.sink.Deliver(sessionID, models.FeedbackSample{
				UserID:          userID,
				UserName:        track.name,
				Value:           track.lastValue,
				SourceTimestamp: now,
				RelativeTime:    tb.elapsed(now),
				Synthetic:       true,
			})
		}
	}
}
