package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vetting-core/internal/models"
)

// ReferenceStorage is the durable backing for the Reference Store (C3).
type ReferenceStorage interface {
	// LoadOrMint returns the existing token for each job id or mints a
	// new one. An existing token is never rewritten by this path.
	LoadOrMint(ctx context.Context, jobIDs []string) (map[string]string, error)

	// OperatorRefresh rotates tokens for the given job ids. This is the
	// only path permitted to do so.
	OperatorRefresh(ctx context.Context, jobIDs []string) (map[string]string, error)

	// GC removes reference rows for jobs absent from every monitored
	// tearsheet for at least olderThanDays.
	GC(ctx context.Context, stillPresent map[string]bool, olderThanDays int) (int, error)

	// All returns every persisted reference row.
	All(ctx context.Context) ([]models.JobReference, error)
}

// ApplicationStorage is the durable backing for inbound applications.
type ApplicationStorage interface {
	// Ingest persists an Application row, or is a no-op if MessageID
	// already exists.
	Ingest(ctx context.Context, app *models.Application) (created bool, err error)

	// UnvettedProcessed returns applications with status processed and
	// vetted_at IS NULL, newest first, capped at limit.
	UnvettedProcessed(ctx context.Context, limit int) ([]models.Application, error)

	// MarkVetted stamps vetted_at on every application for candidateID
	// that is still unvetted.
	MarkVetted(ctx context.Context, candidateID string, vettedAt time.Time) error

	// ByCandidate returns every application for a candidate.
	ByCandidate(ctx context.Context, candidateID string) ([]models.Application, error)
}

// ResumeCacheStorage is the durable backing for C6's content-addressed
// resume cache.
type ResumeCacheStorage interface {
	Get(ctx context.Context, contentHash string) (*models.ResumeCacheEntry, bool, error)
	Put(ctx context.Context, entry *models.ResumeCacheEntry) error
	RecordHit(ctx context.Context, contentHash string) error
}

// VettingRunStorage persists VettingRun and JobMatch rows.
type VettingRunStorage interface {
	CreateRun(ctx context.Context, run *models.VettingRun) error
	UpdateRun(ctx context.Context, run *models.VettingRun) error
	GetRun(ctx context.Context, id string) (*models.VettingRun, error)
	SaveMatch(ctx context.Context, match *models.JobMatch) error
	MatchesForRun(ctx context.Context, runID string) ([]models.JobMatch, error)
	RunningOlderThan(ctx context.Context, cutoffUnixSeconds int64) ([]models.VettingRun, error)
	MarkAllRunningFailed(ctx context.Context, reason string) (int, error)
}

// RequirementsStorage persists JobRequirements rows, one per job.
type RequirementsStorage interface {
	Get(ctx context.Context, jobID string) (*models.JobRequirements, error)
	Upsert(ctx context.Context, req *models.JobRequirements) error
	SyncWithActiveJobs(ctx context.Context, activeJobIDs map[string]bool) (removed int, err error)
	All(ctx context.Context) ([]models.JobRequirements, error)
}

// EmbeddingCacheStorage persists job description embeddings.
type EmbeddingCacheStorage interface {
	Get(ctx context.Context, jobID, descriptionHash string) (*models.EmbeddingCacheEntry, bool, error)
	Put(ctx context.Context, entry *models.EmbeddingCacheEntry) error
}

// AuditLogStorage persists FilterLog and EscalationLog rows.
type AuditLogStorage interface {
	RecordFilter(ctx context.Context, entry *models.FilterLogEntry) error
	RecordEscalation(ctx context.Context, entry *models.EscalationLogEntry) error
}

// DeliveryLedgerStorage is the durable backing for C11.
type DeliveryLedgerStorage interface {
	HasRecent(ctx context.Context, channel models.DeliveryChannel, key string, within int64) (bool, error)
	Record(ctx context.Context, entry *models.DeliveryLedgerEntry) error
}

// SchedulerLockStorage is the durable backing for C1's distributed lock.
type SchedulerLockStorage interface {
	TryAcquire(ctx context.Context, cycle, environment, ownerID string, ttlSeconds int64) (bool, error)
	Renew(ctx context.Context, cycle, environment, ownerID string, ttlSeconds int64) (bool, error)
	Release(ctx context.Context, cycle, environment, ownerID string) error
	Get(ctx context.Context, cycle, environment string) (*models.SchedulerLock, error)
	SaveSetting(ctx context.Context, setting *models.JobSetting) error
	GetSetting(ctx context.Context, cycle string) (*models.JobSetting, error)
}

// JobCacheStorage caches the Job rows last seen from the ATS, used by the
// feed builder's empty-feed safeguard and by the detector's direct-job-fetch
// path for applied jobs outside every tearsheet.
type JobCacheStorage interface {
	SaveAll(ctx context.Context, jobs []models.Job) error
	Get(ctx context.Context, jobID string) (*models.Job, bool, error)
	CountByTearsheet(ctx context.Context, tearsheetID string) (int, error)
	AllByTearsheets(ctx context.Context, tearsheetIDs []string) ([]models.Job, error)
}

// StorageManager aggregates every durable store the core depends on.
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	ReferenceStorage() ReferenceStorage
	ApplicationStorage() ApplicationStorage
	ResumeCacheStorage() ResumeCacheStorage
	VettingRunStorage() VettingRunStorage
	RequirementsStorage() RequirementsStorage
	EmbeddingCacheStorage() EmbeddingCacheStorage
	AuditLogStorage() AuditLogStorage
	DeliveryLedgerStorage() DeliveryLedgerStorage
	SchedulerLockStorage() SchedulerLockStorage
	JobCacheStorage() JobCacheStorage
	Close() error
}
