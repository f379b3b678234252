package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobCacheStore implements interfaces.JobCacheStorage.
type JobCacheStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewJobCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobCacheStorage {
	return &JobCacheStore{db: db, logger: logger}
}

func (s *JobCacheStore) SaveAll(ctx context.Context, jobs []models.Job) error {
	for i := range jobs {
		if err := s.db.Store().Upsert(jobs[i].JobID, &jobs[i]); err != nil {
			return fmt.Errorf("failed to cache job %s: %w", jobs[i].JobID, err)
		}
	}
	return nil
}

func (s *JobCacheStore) Get(ctx context.Context, jobID string) (*models.Job, bool, error) {
	var job models.Job
	err := s.db.Store().Get(jobID, &job)
	if err == badgerhold.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached job %s: %w", jobID, err)
	}
	return &job, true, nil
}

func (s *JobCacheStore) CountByTearsheet(ctx context.Context, tearsheetID string) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("TearsheetID").Eq(tearsheetID))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs for tearsheet %s: %w", tearsheetID, err)
	}
	return count, nil
}

func (s *JobCacheStore) AllByTearsheets(ctx context.Context, tearsheetIDs []string) ([]models.Job, error) {
	if len(tearsheetIDs) == 0 {
		return nil, nil
	}
	ids := make([]interface{}, len(tearsheetIDs))
	for i, id := range tearsheetIDs {
		ids[i] = id
	}
	var rows []models.Job
	if err := s.db.Store().Find(&rows, badgerhold.Where("TearsheetID").In(ids...)); err != nil {
		return nil, fmt.Errorf("failed to find jobs by tearsheets: %w", err)
	}
	return rows, nil
}
