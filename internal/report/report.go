// Package report defines the analysis report shape and normalizes raw
// model output into the stored form.
package report

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
)

// Dimension is one scored aspect of a consultation.
type Dimension struct {
	Score      int      `json:"score"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Details    string   `json:"details"`
}

type Recommendation struct {
	Category       string `json:"category"`
	Issue          string `json:"issue"`
	Recommendation string `json:"recommendation"`
	Priority       string `json:"priority"` // high|medium|low
}

// Report is the logical shape of a successful analysis result. The model
// is asked for this shape but it is not schema-enforced on ingestion;
// only top-level field presence is checked.
type Report struct {
	Summary                    string           `json:"summary"`
	CustomerServiceAttitude    Dimension        `json:"customer_service_attitude"`
	ProblemSolving             Dimension        `json:"problem_solving"`
	Communication              Dimension        `json:"communication"`
	ImprovementRecommendations []Recommendation `json:"improvement_recommendations"`
	OverallScore               int              `json:"overall_score"`
	OverallFeedback            string           `json:"overall_feedback"`
}

// RequiredFields are the top-level keys a well-formed analysis carries.
var RequiredFields = []string{
	"summary",
	"customer_service_attitude",
	"problem_solving",
	"communication",
	"improvement_recommendations",
	"overall_score",
	"overall_feedback",
}

// Normalize turns raw model output into the stored analysis_result.
// Fenced code blocks are stripped and valid JSON is re-serialized
// canonically (sorted keys, Unicode kept as-is). Missing required fields
// are logged but tolerated. Output that does not parse as JSON is
// returned unmodified with degraded=true; the consultation still
// completes in that case.
func Normalize(raw string) (result string, degraded bool) {
	cleaned := StripFences(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		slog.Warn("analysis response is not valid JSON, storing raw text", "error", err)
		return raw, true
	}

	for _, field := range RequiredFields {
		if _, ok := payload[field]; !ok {
			slog.Warn("analysis response missing required field", "field", field)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		slog.Warn("failed to re-serialize analysis response, storing raw text", "error", err)
		return raw, true
	}
	return strings.TrimRight(buf.String(), "\n"), false
}

// StripFences removes a surrounding markdown code fence, with or without
// a language tag, leaving any other text untouched.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	// drop the opening fence line ("```" or "```json")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return trimmed
	}
	trimmed = strings.TrimSpace(trimmed)
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}
