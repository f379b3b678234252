package interfaces

import (
	"context"

	"github.com/ternarybob/vetting-core/internal/models"
)

// ClassificationTag is the jobfunction/jobindustries/senioritylevel
// triplet the feed attaches to each job.
type ClassificationTag struct {
	JobFunction     string
	JobIndustries   string
	SeniorityLevel  string
}

// Classifier supplies the classification tag tuple for feed jobs. Job
// classification into a fixed taxonomy is otherwise out of scope; this
// interface is the narrow seam the builder depends on.
type Classifier interface {
	Classify(ctx context.Context, job *models.Job) (ClassificationTag, error)
}

// FeedBuilder composes the XML feed document from a set of jobs (C4).
type FeedBuilder interface {
	// Build renders the feed for the given jobs, already filtered to the
	// union of monitored tearsheets minus the exclude list. Output is
	// byte-identical across calls with identical inputs (P-DET).
	Build(ctx context.Context, jobs []models.Job, tags map[string]ClassificationTag) ([]byte, error)
}

// FeedPublisher uploads the built feed to the remote file drop.
type FeedPublisher interface {
	// Publish uploads body, retrying with backoff up to 3 attempts.
	Publish(ctx context.Context, body []byte) error
}
