package models

import "time"

// DocumentMetadata describes a saved session snapshot.
type DocumentMetadata struct {
	Name     string    `json:"name"`
	Date     time.Time `json:"date"`
	Duration float64   `json:"duration"` // seconds
}

// SessionDocument is the flat persisted snapshot of a finished session:
// metadata, the full feedback log, and the recorded audio embedded as
// base64. Loading one must reproduce an equivalent ReviewSession without
// any live session or registry.
type SessionDocument struct {
	Metadata     DocumentMetadata `json:"metadata"`
	FeedbackData []FeedbackSample `json:"feedbackData"`
	AudioData    []byte           `json:"audioData"`
}

// ReviewSession is the immutable snapshot review mode operates on.
type ReviewSession struct {
	Name     string
	Duration float64 // seconds
	Feedback []FeedbackSample
	Audio    []byte
}
