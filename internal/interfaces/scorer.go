package interfaces

import (
	"context"

	"github.com/ternarybob/vetting-core/internal/models"
)

// ScoreInput is everything a scoring layer needs for one
// (candidate, job) pair.
type ScoreInput struct {
	CandidateID   string
	JobID         string
	ResumeText    string
	Requirements  string
	Location      models.Location
	WorkType      models.WorkType
	IsAppliedJob  bool
}

// ScoreResult is the structured output of a scoring layer, before the
// deterministic post-processing gate is applied.
type ScoreResult struct {
	MatchScore      int
	MatchSummary    string
	SkillsMatch     []string
	ExperienceMatch string
	GapsIdentified  []string
	KeyRequirements []string
	YearsAnalysis   map[string]models.YearsAnalysisEntry
}

// Scorer scores a single (candidate, job) pair with a chat-style model
// (C8 primary, C9 escalation share this contract).
type Scorer interface {
	Score(ctx context.Context, input ScoreInput) (*ScoreResult, error)

	// IsPremium reports whether this scorer is configured with the
	// premium model (used to decide whether escalation is dormant).
	IsPremium() bool
}

// EmbeddingFilter is the Layer 1 cosine-similarity pre-filter (C7).
type EmbeddingFilterPair struct {
	JobID      string
	Similarity float64
	Safeguard  bool
}

type EmbeddingFilter interface {
	// Filter returns the jobs that survive pre-filtering for a
	// candidate's resume text, including minimum-pass and applied-job
	// bypass survivors.
	Filter(ctx context.Context, candidateID, resumeText string, appliedJobID string, candidateJobs []models.Job) ([]EmbeddingFilterPair, error)
}
