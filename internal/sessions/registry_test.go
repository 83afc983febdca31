package sessions

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/script-narration/backend/internal/models"
)

func newTestRegistry(t *testing.T) (*Registry, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return NewRegistry(clock, zap.NewNop()), clock
}

func TestCreateRequiresName(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Create("abc", "", "narrator-1")
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestCreateWithClientSuppliedID(t *testing.T) {
	r, _ := newTestRegistry(t)

	s, err := r.Create("my-code", "Story Night", "narrator-1")
	require.NoError(t, err)
	assert.Equal(t, "my-code", s.ID)
	assert.Equal(t, "Story Night", s.Name)
	assert.Equal(t, models.SessionStateCreated, s.State)
	assert.Nil(t, s.StartTime)
	assert.Empty(t, s.Listeners)
}

func TestCreateDuplicateID(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Create("dup", "First", "narrator-1")
	require.NoError(t, err)
	_, err = r.Create("dup", "Second", "narrator-2")
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestCreateGeneratesCode(t *testing.T) {
	r, _ := newTestRegistry(t)

	s, err := r.Create("", "Story Night", "narrator-1")
	require.NoError(t, err)
	assert.Len(t, s.ID, 9)

	other, err := r.Create("", "Other", "narrator-2")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestJoinUnknownSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Join("nope", "conn-1", "Alice")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoinKeepsOrderAndRejoinReplacesName(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)

	_, err = r.Join("s1", "conn-a", "Alice")
	require.NoError(t, err)
	_, err = r.Join("s1", "conn-b", "Bob")
	require.NoError(t, err)

	s, err := r.Join("s1", "conn-a", "Alicia")
	require.NoError(t, err)
	require.Len(t, s.Listeners, 2)
	assert.Equal(t, "Alicia", s.Listeners[0].Name)
	assert.Equal(t, "Bob", s.Listeners[1].Name)
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name    string
		from    models.SessionState
		ev      models.SessionEvent
		outcome Outcome
		to      models.SessionState
	}{
		{"start from created", models.SessionStateCreated, models.SessionEventStart, OutcomeApplied, models.SessionStateStarted},
		{"pause before start", models.SessionStateCreated, models.SessionEventPause, OutcomeNoOp, models.SessionStateCreated},
		{"resume before start", models.SessionStateCreated, models.SessionEventResume, OutcomeNoOp, models.SessionStateCreated},
		{"stop before start", models.SessionStateCreated, models.SessionEventStop, OutcomeNoOp, models.SessionStateCreated},
		{"pause while started", models.SessionStateStarted, models.SessionEventPause, OutcomeApplied, models.SessionStatePaused},
		{"start while started", models.SessionStateStarted, models.SessionEventStart, OutcomeNoOp, models.SessionStateStarted},
		{"resume while started", models.SessionStateStarted, models.SessionEventResume, OutcomeNoOp, models.SessionStateStarted},
		{"stop while started", models.SessionStateStarted, models.SessionEventStop, OutcomeApplied, models.SessionStateStopped},
		{"resume while paused", models.SessionStatePaused, models.SessionEventResume, OutcomeApplied, models.SessionStateStarted},
		{"pause while paused", models.SessionStatePaused, models.SessionEventPause, OutcomeNoOp, models.SessionStatePaused},
		{"stop while paused", models.SessionStatePaused, models.SessionEventStop, OutcomeApplied, models.SessionStateStopped},
		{"start after stop", models.SessionStateStopped, models.SessionEventStart, OutcomeNoOp, models.SessionStateStopped},
		{"stop after stop", models.SessionStateStopped, models.SessionEventStop, OutcomeNoOp, models.SessionStateStopped},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRegistry(t)
			_, err := r.Create("s1", "Story Night", "narrator-1")
			require.NoError(t, err)
			driveTo(t, r, "s1", "narrator-1", tc.from)

			res := r.Transition("s1", "narrator-1", tc.ev)
			assert.Equal(t, tc.outcome, res.Outcome)
			if tc.outcome == OutcomeApplied {
				assert.Equal(t, tc.from, res.From)
				assert.Equal(t, tc.to, res.To)
			}
			s, ok := r.Get("s1")
			require.True(t, ok)
			assert.Equal(t, tc.to, s.State)
		})
	}
}

// driveTo walks the session to the wanted state through valid transitions.
func driveTo(t *testing.T, r *Registry, sessionID, narratorConn string, want models.SessionState) {
	t.Helper()
	switch want {
	case models.SessionStateCreated:
	case models.SessionStateStarted:
		require.Equal(t, OutcomeApplied, r.Transition(sessionID, narratorConn, models.SessionEventStart).Outcome)
	case models.SessionStatePaused:
		require.Equal(t, OutcomeApplied, r.Transition(sessionID, narratorConn, models.SessionEventStart).Outcome)
		require.Equal(t, OutcomeApplied, r.Transition(sessionID, narratorConn, models.SessionEventPause).Outcome)
	case models.SessionStateStopped:
		require.Equal(t, OutcomeApplied, r.Transition(sessionID, narratorConn, models.SessionEventStart).Outcome)
		require.Equal(t, OutcomeApplied, r.Transition(sessionID, narratorConn, models.SessionEventStop).Outcome)
	}
}

func TestTransitionDeniedForNonNarrator(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)
	_, err = r.Join("s1", "conn-a", "Alice")
	require.NoError(t, err)

	res := r.Transition("s1", "conn-a", models.SessionEventStart)
	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Nil(t, res.Session)

	res = r.Transition("unknown", "narrator-1", models.SessionEventStart)
	assert.Equal(t, OutcomeDenied, res.Outcome)

	s, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, models.SessionStateCreated, s.State)
}

func TestTotalPausedAccumulatesAcrossCycles(t *testing.T) {
	r, clock := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)

	r.Transition("s1", "narrator-1", models.SessionEventStart)

	clock.Advance(10 * time.Second)
	r.Transition("s1", "narrator-1", models.SessionEventPause)
	clock.Advance(3 * time.Second)
	r.Transition("s1", "narrator-1", models.SessionEventResume)

	clock.Advance(5 * time.Second)
	r.Transition("s1", "narrator-1", models.SessionEventPause)
	clock.Advance(2 * time.Second)
	r.Transition("s1", "narrator-1", models.SessionEventResume)

	s, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, s.TotalPaused)

	elapsed, started := Elapsed(s, clock.Now())
	require.True(t, started)
	assert.InDelta(t, 15.0, elapsed, 1e-9)
}

func TestElapsedFrozenWhilePaused(t *testing.T) {
	r, clock := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)

	s, _ := r.Get("s1")
	_, started := Elapsed(s, clock.Now())
	assert.False(t, started)

	r.Transition("s1", "narrator-1", models.SessionEventStart)
	clock.Advance(8 * time.Second)
	r.Transition("s1", "narrator-1", models.SessionEventPause)
	clock.Advance(30 * time.Second)

	s, _ = r.Get("s1")
	elapsed, started := Elapsed(s, clock.Now())
	require.True(t, started)
	assert.InDelta(t, 8.0, elapsed, 1e-9)
}

func TestLeaveListener(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)
	_, err = r.Join("s1", "conn-a", "Alice")
	require.NoError(t, err)
	_, err = r.Join("s1", "conn-b", "Bob")
	require.NoError(t, err)

	res := r.Leave("conn-a")
	assert.True(t, res.WasListener)
	assert.False(t, res.WasNarrator)
	assert.Equal(t, "s1", res.SessionID)
	require.NotNil(t, res.Session)
	require.Len(t, res.Session.Listeners, 1)
	assert.Equal(t, "Bob", res.Session.Listeners[0].Name)
}

func TestLeaveNarratorDestroysSession(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)
	_, err = r.Join("s1", "conn-a", "Alice")
	require.NoError(t, err)
	r.AppendFeedback("s1", models.FeedbackSample{UserID: "conn-a", Value: 5})

	res := r.Leave("narrator-1")
	assert.True(t, res.WasNarrator)
	assert.Equal(t, "s1", res.SessionID)

	_, ok := r.Get("s1")
	assert.False(t, ok)
	assert.Empty(t, r.FeedbackLog("s1"))

	// Listener bindings died with the session.
	assert.Equal(t, LeaveResult{}, r.Leave("conn-a"))
}

func TestLeaveUnknownConnectionIsZero(t *testing.T) {
	r, _ := newTestRegistry(t)
	assert.Equal(t, LeaveResult{}, r.Leave("never-seen"))
}

func TestSessionFor(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)
	_, err = r.Join("s1", "conn-a", "Alice")
	require.NoError(t, err)

	s, isNarrator, ok := r.SessionFor("narrator-1")
	require.True(t, ok)
	assert.True(t, isNarrator)
	assert.Equal(t, "s1", s.ID)

	s, isNarrator, ok = r.SessionFor("conn-a")
	require.True(t, ok)
	assert.False(t, isNarrator)
	assert.Equal(t, "s1", s.ID)

	_, _, ok = r.SessionFor("stranger")
	assert.False(t, ok)
}

func TestFeedbackLogIsolation(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)

	r.AppendFeedback("s1", models.FeedbackSample{UserID: "u1", Value: 3, RelativeTime: 1.0})
	r.AppendFeedback("s1", models.FeedbackSample{UserID: "u1", Value: 7, RelativeTime: 2.0})
	r.AppendFeedback("ghost", models.FeedbackSample{UserID: "u1", Value: 9})

	log := r.FeedbackLog("s1")
	require.Len(t, log, 2)

	// Mutating the returned slice must not leak into the registry.
	log[0].Value = -99
	again := r.FeedbackLog("s1")
	assert.Equal(t, 3.0, again[0].Value)

	assert.Empty(t, r.FeedbackLog("ghost"))
}

func TestSnapshot(t *testing.T) {
	r, clock := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)

	r.Transition("s1", "narrator-1", models.SessionEventStart)
	clock.Advance(12 * time.Second)
	r.AppendFeedback("s1", models.FeedbackSample{UserID: "u1", Value: 4, RelativeTime: 11.5})
	stopRes := r.Transition("s1", "narrator-1", models.SessionEventStop)
	require.Equal(t, OutcomeApplied, stopRes.Outcome)

	audio := []byte{0x1a, 0x2b}
	rs, err := r.Snapshot("s1", audio)
	require.NoError(t, err)
	assert.Equal(t, "Story Night", rs.Name)
	assert.InDelta(t, 12.0, rs.Duration, 1e-9)
	require.Len(t, rs.Feedback, 1)
	assert.Equal(t, audio, rs.Audio)

	_, err = r.Snapshot("ghost", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSnapshotDurationFrozenAtStop(t *testing.T) {
	r, clock := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)

	r.Transition("s1", "narrator-1", models.SessionEventStart)
	clock.Advance(12 * time.Second)
	r.Transition("s1", "narrator-1", models.SessionEventStop)

	// The narrator uploads the recording a while later; the gap between
	// stop and the snapshot request must not stretch the duration.
	clock.Advance(60 * time.Second)

	rs, err := r.Snapshot("s1", nil)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, rs.Duration, 1e-9)

	s, ok := r.Get("s1")
	require.True(t, ok)
	require.NotNil(t, s.StoppedAt)
	elapsed, started := Elapsed(s, clock.Now())
	require.True(t, started)
	assert.InDelta(t, 12.0, elapsed, 1e-9)
}

func TestSnapshotDurationStopFromPaused(t *testing.T) {
	r, clock := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)

	r.Transition("s1", "narrator-1", models.SessionEventStart)
	clock.Advance(8 * time.Second)
	r.Transition("s1", "narrator-1", models.SessionEventPause)
	clock.Advance(5 * time.Second)
	r.Transition("s1", "narrator-1", models.SessionEventStop)
	clock.Advance(30 * time.Second)

	// A pause still open at stop freezes at the pause instant.
	rs, err := r.Snapshot("s1", nil)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, rs.Duration, 1e-9)
}

func TestGetReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("s1", "Story Night", "narrator-1")
	require.NoError(t, err)
	_, err = r.Join("s1", "conn-a", "Alice")
	require.NoError(t, err)

	s, _ := r.Get("s1")
	s.Name = "hacked"
	s.Listeners[0].Name = "hacked"

	fresh, _ := r.Get("s1")
	assert.Equal(t, "Story Night", fresh.Name)
	assert.Equal(t, "Alice", fresh.Listeners[0].Name)
}
