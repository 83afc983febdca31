package models

import "time"

// Feedback value bounds. Values outside are clamped at ingress.
const (
	FeedbackMin = -10.0
	FeedbackMax = 10.0
)

// FeedbackSample is one accepted sentiment reading from a listener.
// RelativeTime is seconds since session start net of paused duration, assigned
// by the timeline reconciler; clients never supply it.
type FeedbackSample struct {
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	Value           float64   `json:"value"`
	SourceTimestamp time.Time `json:"timestamp"`
	RelativeTime    float64   `json:"relativeTime"`
	Synthetic       bool      `json:"synthetic,omitempty"`
}

// ClampFeedback forces v into [FeedbackMin, FeedbackMax].
func ClampFeedback(v float64) float64 {
	if v < FeedbackMin {
		return FeedbackMin
	}
	if v > FeedbackMax {
		return FeedbackMax
	}
	return v
}
