package interfaces

import "context"

// ExtractedResume is the normalized text of a candidate's best resume
// attachment, plus the content hash used for caching and dedup.
type ExtractedResume struct {
	ContentHash string
	RawText     string
	Filename    string
	CacheHit    bool
}

// ResumeExtractor downloads, caches, and normalizes candidate resume
// text (C6).
type ResumeExtractor interface {
	// Extract returns the normalized resume text for a candidate,
	// serving from the content-addressed cache when possible.
	Extract(ctx context.Context, candidateID string) (*ExtractedResume, error)
}
