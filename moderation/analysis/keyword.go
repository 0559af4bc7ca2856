package analysis

import (
	"context"

	"github.com/haven-msg/sentinel/moderation/keyword"
	"github.com/haven-msg/sentinel/moderation/store"
)

// Term is one known-bad token and the category/weight it carries.
type Term struct {
	Category string
	Weight   float64
}

// KeywordAnalyzer scores content from a fixed term table. Fully
// deterministic: the same text always yields the same assessment. It serves
// as the default analyzer when no external scoring service is configured, and
// as the test double for engine tests.
type KeywordAnalyzer struct {
	Terms map[string]Term
	// tokens that never score, even when present in Terms; lets deployments
	// neutralize false-positive-prone entries without editing the term table
	Allow []string
}

func NewKeywordAnalyzer(terms map[string]Term) *KeywordAnalyzer {
	if terms == nil {
		terms = DefaultTerms()
	}
	return &KeywordAnalyzer{Terms: terms}
}

// DefaultTerms is a small starter table. Deployments load a real term list
// from configuration; these entries exist so a bare daemon still functions.
func DefaultTerms() map[string]Term {
	return map[string]Term{
		"grooming":    {Category: "child_safety", Weight: 0.95},
		"exploit":     {Category: "child_safety", Weight: 0.85},
		"kill":        {Category: "violence", Weight: 0.7},
		"attack":      {Category: "violence", Weight: 0.6},
		"harass":      {Category: "harassment", Weight: 0.55},
		"stalking":    {Category: "harassment", Weight: 0.6},
		"freemoney":   {Category: "spam", Weight: 0.35},
		"giveaway":    {Category: "spam", Weight: 0.3},
		"selfharm":    {Category: "self_harm", Weight: 0.8},
		"contraband":  {Category: "illegal_trade", Weight: 0.65},
		"launder":     {Category: "illegal_trade", Weight: 0.6},
	}
}

func (a *KeywordAnalyzer) Analyze(ctx context.Context, content Content, analysisType string) (*Assessment, error) {
	tokens := keyword.TokenizeText(content.Text)

	var detections []store.Detection
	score := 0.0
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if keyword.TokenInSet(tok, a.Allow) {
			continue
		}
		term, ok := a.Terms[tok]
		if !ok {
			term, ok = a.Terms[keyword.Slugify(tok)]
		}
		if !ok {
			continue
		}
		if term.Weight > score {
			score = term.Weight
		}
		if seen[term.Category] {
			// repeated category hits raise confidence in the top score a bit
			score += 0.05
			continue
		}
		seen[term.Category] = true
		detections = append(detections, store.Detection{
			Type:       "keyword",
			Category:   term.Category,
			Severity:   severityLabel(term.Weight),
			Confidence: term.Weight,
		})
	}

	confidence := 0.5
	if len(detections) > 0 {
		confidence = 0.9
	}
	return &Assessment{
		RiskScore:  Clamp(score),
		Confidence: confidence,
		Flags:      detections,
	}, nil
}

func severityLabel(weight float64) string {
	switch {
	case weight >= 0.8:
		return "critical"
	case weight >= 0.6:
		return "high"
	case weight >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

var _ Analyzer = (*KeywordAnalyzer)(nil)
