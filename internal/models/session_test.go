package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMarshalsTotalPausedInMilliseconds(t *testing.T) {
	s := &Session{
		ID:          "s1",
		Name:        "Story Night",
		State:       SessionStateStarted,
		TotalPaused: 1500 * time.Millisecond,
		CreatedAt:   time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `1500`, string(raw["total_paused_ms"]))
	assert.NotContains(t, raw, "stopped_at") // omitted until stop
	assert.NotContains(t, raw, "narrator_id")
}

func TestListenerSnapshotIsACopy(t *testing.T) {
	s := &Session{Listeners: []Listener{{ID: "a", Name: "Alice"}}}

	snap := s.ListenerSnapshot()
	snap[0].Name = "changed"

	assert.Equal(t, "Alice", s.Listeners[0].Name)
}

func TestClampFeedback(t *testing.T) {
	assert.Equal(t, FeedbackMax, ClampFeedback(11))
	assert.Equal(t, FeedbackMin, ClampFeedback(-11))
	assert.Equal(t, 3.5, ClampFeedback(3.5))
}
