// Package scorer implements the LLM-backed candidate/job match scoring
// used by Layer 2 (primary model) and Layer 3 (escalation model). Both
// layers share the same prompt, output schema, and post-processing hard
// gate; only the model and the "premium" flag differ between instances.
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	"github.com/ternarybob/vetting-core/internal/services/llm"
)

// Service implements interfaces.Scorer against a ProviderFactory-backed
// chat model, demanding structured JSON output matching ScoreResult.
type Service struct {
	factory *llm.ProviderFactory
	model   string
	premium bool
	logger  arbor.ILogger
}

// New builds a scorer bound to a single model. premium should be true only
// for the escalation (Layer 3) instance, or for a Layer 2 instance whose
// primary model is already the escalation model (escalation is then
// dormant, per 4.9).
func New(factory *llm.ProviderFactory, model string, premium bool, logger arbor.ILogger) *Service {
	return &Service{factory: factory, model: model, premium: premium, logger: logger}
}

func (s *Service) IsPremium() bool {
	return s.premium
}

// ShouldEscalate reports whether a Layer 2 result warrants a Layer 3
// re-score: L2 was not already premium, and its score fell in the
// borderline band (inclusive on both ends).
func ShouldEscalate(l2Premium bool, l2Score, escalationLow, escalationHigh int) bool {
	if l2Premium {
		return false
	}
	return l2Score >= escalationLow && l2Score <= escalationHigh
}

// rawScoreResult mirrors interfaces.ScoreResult but is shaped for JSON
// decoding off the model response before field-level post-processing.
type rawScoreResult struct {
	MatchScore      int                                  `json:"match_score"`
	MatchSummary    string                               `json:"match_summary"`
	SkillsMatch     []string                             `json:"skills_match"`
	ExperienceMatch string                               `json:"experience_match"`
	GapsIdentified  []string                             `json:"gaps_identified"`
	KeyRequirements []string                             `json:"key_requirements"`
	YearsAnalysis   map[string]models.YearsAnalysisEntry `json:"years_analysis"`
}

func (s *Service) Score(ctx context.Context, input interfaces.ScoreInput) (*interfaces.ScoreResult, error) {
	messages := []interfaces.Message{
		{Role: "system", Content: systemPrompt()},
		{Role: "user", Content: buildUserPrompt(input)},
	}

	resp, err := s.factory.GenerateContent(ctx, &llm.ContentRequest{
		Messages:     messages,
		Model:        s.model,
		Temperature:  0,
		MaxTokens:    2048,
		OutputSchema: scoreResultSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("scoring call failed: %w", err)
	}

	var raw rawScoreResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse scorer response: %w", err)
	}

	result := &interfaces.ScoreResult{
		MatchScore:      clamp(raw.MatchScore, 0, 100),
		MatchSummary:    raw.MatchSummary,
		SkillsMatch:     raw.SkillsMatch,
		ExperienceMatch: raw.ExperienceMatch,
		GapsIdentified:  raw.GapsIdentified,
		KeyRequirements: raw.KeyRequirements,
		YearsAnalysis:   raw.YearsAnalysis,
	}

	applyYearsGate(result)

	return result, nil
}

// applyYearsGate is the deterministic defense-in-depth pass run after the
// model returns: a skill short by 2+ years caps the score at 60 and adds a
// CRITICAL gap line; a skill short by 1-2 years costs 15 points (floor 0);
// under a year short is left alone.
func applyYearsGate(result *interfaces.ScoreResult) {
	for skill, analysis := range result.YearsAnalysis {
		if analysis.MeetsRequirement {
			continue
		}
		shortfall := analysis.RequiredYears - analysis.EstimatedYears
		switch {
		case shortfall >= 2:
			if result.MatchScore > 60 {
				result.MatchScore = 60
			}
			result.GapsIdentified = append(result.GapsIdentified, fmt.Sprintf(
				"CRITICAL: %s requires %gyr, candidate has ~%gyr", skill, analysis.RequiredYears, analysis.EstimatedYears))
		case shortfall >= 1:
			result.MatchScore = clamp(result.MatchScore-15, 0, 100)
		}
	}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// extractJSON trims any prose/fencing a model adds around a JSON object,
// since structured-output enforcement is Gemini-only; Claude responses may
// wrap the JSON in a code fence despite the system prompt's instruction.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		return text
	}
	if m := jsonObjectPattern.FindString(text); m != "" {
		return m
	}
	return text
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func systemPrompt() string {
	return "You are a recruiting analyst scoring how well a candidate's resume matches a job's requirements. " +
		"Focus only on mandatory requirements; treat anything described as preferred as informational context, not a scoring factor. " +
		"Weight years of experience by role type: full-time counts 100%, internship or part-time counts 50%, " +
		"university projects or coursework count 0%, and roles marked present run through today. " +
		"Respond with a single JSON object matching the supplied schema and nothing else."
}

func buildUserPrompt(input interfaces.ScoreInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job requirements:\n%s\n\n", input.Requirements)
	fmt.Fprintf(&b, "Job location: %s, %s, %s\n", input.Location.City, input.Location.State, input.Location.Country)
	fmt.Fprintf(&b, "Job work type: %s\n", input.WorkType)
	b.WriteString(locationRule(input.WorkType))
	b.WriteString("\n\nCandidate resume:\n")
	b.WriteString(input.ResumeText)
	return b.String()
}

func locationRule(workType models.WorkType) string {
	switch workType {
	case models.WorkTypeRemote:
		return "Location rule: remote jobs require the candidate to be in the same country as the job, " +
			"unless the requirements explicitly name eligible foreign countries or use international-eligibility language, " +
			"in which case score against that allowlist instead."
	default:
		return "Location rule: on-site and hybrid jobs require the candidate to be in the same city or a commutable metro area."
	}
}

// scoreResultSchema is the JSON schema passed to GenerateContent so
// providers that support structured output (Gemini) enforce it directly.
var scoreResultSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"match_score":      map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"match_summary":    map[string]interface{}{"type": "string"},
		"skills_match":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"experience_match": map[string]interface{}{"type": "string"},
		"gaps_identified":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"key_requirements": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"years_analysis": map[string]interface{}{
			"type": "object",
		},
	},
	"required": []string{"match_score", "match_summary", "gaps_identified"},
}
