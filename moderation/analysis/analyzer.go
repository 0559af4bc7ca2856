// Package analysis defines the content analyzer boundary: an opaque scoring
// capability the engine calls per content item. Implementations must never
// mutate message state, and an unavailable analyzer must surface as an
// explicit error, never as a zero risk score.
package analysis

import (
	"context"
	"errors"

	"github.com/haven-msg/sentinel/moderation/store"
)

// ErrUnavailable indicates the analyzer could not score the content (timeout,
// outage). Callers must treat this as "analysis pending", distinct from
// "analyzed, low risk".
var ErrUnavailable = errors.New("content analysis unavailable")

const (
	AnalysisTypeText  = "text"
	AnalysisTypeImage = "image"
)

// Content is the item handed to the analyzer. The analyzer reads it only.
type Content struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Text           string `json:"text"`
	ContentType    string `json:"content_type"`
}

// Assessment is the analyzer's verdict on one content item.
type Assessment struct {
	RiskScore  float64           `json:"risk_score"`
	Confidence float64           `json:"confidence"`
	Flags      []store.Detection `json:"flags"`
	Details    string            `json:"details,omitempty"`
}

type Analyzer interface {
	Analyze(ctx context.Context, content Content, analysisType string) (*Assessment, error)
}

// Clamp bounds a score to [0,1]; scores are never negative and never exceed 1.
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
