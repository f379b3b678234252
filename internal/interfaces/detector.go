package interfaces

import "context"

// DetectedCandidate is one candidate surfaced for vetting this cycle,
// deduplicated by CandidateID across all three discovery strategies.
type DetectedCandidate struct {
	CandidateID  string
	AppliedJobID string
}

// ApplicantDetector discovers candidates needing vetting (C5).
type ApplicantDetector interface {
	// Detect unions the primary, fallback, and supplementary strategies,
	// deduplicated by candidate id, capped at batchSize.
	Detect(ctx context.Context, batchSize int) ([]DetectedCandidate, error)
}
