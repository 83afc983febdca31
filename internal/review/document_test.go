package review

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/script-narration/backend/internal/models"
)

func testSnapshot() *models.ReviewSession {
	return &models.ReviewSession{
		Name:     "Story Night",
		Duration: 93.4,
		Feedback: []models.FeedbackSample{
			{UserID: "u1", UserName: "Alice", Value: 5, RelativeTime: 1.2},
			{UserID: "u1", UserName: "Alice", Value: 5, RelativeTime: 1.4, Synthetic: true},
			{UserID: "u2", UserName: "Bob", Value: -3, RelativeTime: 2.0},
		},
		Audio: []byte{0x4f, 0x67, 0x67, 0x53}, // ogg magic
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	rs := testSnapshot()
	date := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

	doc := BuildDocument(rs, date)
	assert.Equal(t, "Story Night", doc.Metadata.Name)
	assert.Equal(t, date, doc.Metadata.Date)
	assert.Equal(t, 93.4, doc.Metadata.Duration)

	data, err := EncodeDocument(doc)
	require.NoError(t, err)

	decoded, err := DecodeDocument(data)
	require.NoError(t, err)

	// A loaded document reproduces the snapshot with no live session around.
	restored := FromDocument(decoded)
	assert.Equal(t, rs, restored)
}

func TestDocumentAudioIsBase64(t *testing.T) {
	doc := BuildDocument(testSnapshot(), time.Now())
	data, err := EncodeDocument(doc)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"T2dnUw=="`, string(raw["audioData"]))
	assert.Contains(t, raw, "metadata")
	assert.Contains(t, raw, "feedbackData")
}

func TestDecodeDocumentRejectsGarbage(t *testing.T) {
	_, err := DecodeDocument([]byte("{not json"))
	assert.Error(t, err)
}

func TestBuildDocumentCopiesFeedback(t *testing.T) {
	rs := testSnapshot()
	doc := BuildDocument(rs, time.Now())

	doc.FeedbackData[0].Value = -99
	assert.Equal(t, 5.0, rs.Feedback[0].Value)
}
