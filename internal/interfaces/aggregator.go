package interfaces

import "context"

// AggregationInput is the outcome of scoring every surviving pair for
// one candidate, ready for note composition and notification.
type AggregationInput struct {
	CandidateID       string
	RunID             string
	AppliedJobID      string
	ResumeContentHash string
}

// Aggregator merges layer results, writes the ATS note, and sends the
// consolidated email for one candidate (C10).
type Aggregator interface {
	Aggregate(ctx context.Context, input AggregationInput) error
}

// Mailer sends transactional email with bounded retries (C12).
type Mailer interface {
	Send(ctx context.Context, to []string, cc []string, bcc []string, subject, htmlBody, textFallback string) (deliveryID string, err error)
}

// DedupLedger suppresses duplicate side effects within configured
// windows (C11).
type DedupLedger interface {
	HasRecent(ctx context.Context, channel string, key string) (bool, error)
	Record(ctx context.Context, channel string, key string, externalID string, status string) error
}

// Health exposes the three liveness/readiness/health signals of C13.
type Health interface {
	Alive(ctx context.Context) bool
	Ready(ctx context.Context) (bool, map[string]error)
	Healthy(ctx context.Context) (bool, map[string]error)
}
