package interfaces

import (
	"context"

	"github.com/ternarybob/vetting-core/internal/models"
)

// ATSClient is authenticated, rate-aware access to the external
// Applicant Tracking System (C2).
type ATSClient interface {
	// Authenticate performs the OAuth 2.0 authorization-code-by-password
	// flow and caches the resulting session token. Safe to call when
	// already authenticated; refreshes only on 401/expired-claim.
	Authenticate(ctx context.Context) error

	// ListTearsheetJobs returns every job on a tearsheet, paginating
	// transparently until exhaustion.
	ListTearsheetJobs(ctx context.Context, tearsheetID string) ([]models.Job, error)

	// GetJob fetches a single job directly. Returns errors.ErrNotFound
	// if the ATS reports it missing.
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// DownloadResume selects and downloads the best resume attachment
	// for a candidate per the scoring function in §4.6.
	DownloadResume(ctx context.Context, candidateID string) (raw []byte, filename string, contentType string, err error)

	// CreateCandidateNote is non-idempotent; callers must pre-check via
	// the dedup ledger before calling.
	CreateCandidateNote(ctx context.Context, candidateID, title, bodyHTML string) (noteID string, err error)

	// SearchCandidates supports the applicant detector's fallback and
	// supplementary discovery strategies.
	SearchCandidates(ctx context.Context, query string, createdSinceMinutes int) ([]models.Candidate, error)
}
