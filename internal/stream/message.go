package stream

import (
	"encoding/json"
	"fmt"

	"github.com/RishiKendai/twinscan/internal/models"
)

// StreamMessage is one entry read from the uploads stream
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// ParseSubmission accepts either a JSON "payload" field or the submission
// fields laid out flat on the entry
func ParseSubmission(msg *StreamMessage) (*models.Submission, error) {
	if raw, ok := msg.Fields["payload"]; ok {
		var sub models.Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("failed to decode payload of message %s: %w", msg.ID, err)
		}
		return validate(msg.ID, &sub)
	}

	sub := &models.Submission{
		CorpusID:   msg.Fields["corpusId"],
		Name:       msg.Fields["name"],
		SourceCode: msg.Fields["sourceCode"],
		Encoding:   msg.Fields["encoding"],
		ExternalID: msg.Fields["externalId"],
		Uploader:   msg.Fields["uploader"],
	}
	return validate(msg.ID, sub)
}

func validate(id string, sub *models.Submission) (*models.Submission, error) {
	if sub.CorpusID == "" {
		return nil, fmt.Errorf("message %s: missing corpusId", id)
	}
	if sub.Name == "" {
		return nil, fmt.Errorf("message %s: missing name", id)
	}
	return sub, nil
}
