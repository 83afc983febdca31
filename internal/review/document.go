package review

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/script-narration/backend/internal/models"
)

// BuildDocument flattens a review snapshot into the persisted document form.
func BuildDocument(rs *models.ReviewSession, date time.Time) *models.SessionDocument {
	feedback := make([]models.FeedbackSample, len(rs.Feedback))
	copy(feedback, rs.Feedback)
	return &models.SessionDocument{
		Metadata: models.DocumentMetadata{
			Name:     rs.Name,
			Date:     date,
			Duration: rs.Duration,
		},
		FeedbackData: feedback,
		AudioData:    rs.Audio,
	}
}

// FromDocument reconstructs a review snapshot from a saved document,
// independent of any live session or registry.
func FromDocument(doc *models.SessionDocument) *models.ReviewSession {
	feedback := make([]models.FeedbackSample, len(doc.FeedbackData))
	copy(feedback, doc.FeedbackData)
	return &models.ReviewSession{
		Name:     doc.Metadata.Name,
		Duration: doc.Metadata.Duration,
		Feedback: feedback,
		Audio:    doc.AudioData,
	}
}

// EncodeDocument serializes a document to its flat JSON form. Audio is
// embedded base64 by encoding/json's []byte handling.
func EncodeDocument(doc *models.SessionDocument) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode session document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a saved document.
func DecodeDocument(data []byte) (*models.SessionDocument, error) {
	var doc models.SessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode session document: %w", err)
	}
	return &doc, nil
}
