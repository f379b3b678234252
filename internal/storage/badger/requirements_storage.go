package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RequirementsStore implements interfaces.RequirementsStorage.
type RequirementsStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewRequirementsStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RequirementsStorage {
	return &RequirementsStore{db: db, logger: logger}
}

func (s *RequirementsStore) Get(ctx context.Context, jobID string) (*models.JobRequirements, error) {
	var req models.JobRequirements
	err := s.db.Store().Get(jobID, &req)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get requirements for job %s: %w", jobID, err)
	}
	return &req, nil
}

func (s *RequirementsStore) Upsert(ctx context.Context, req *models.JobRequirements) error {
	if err := s.db.Store().Upsert(req.JobID, req); err != nil {
		return fmt.Errorf("failed to upsert requirements for job %s: %w", req.JobID, err)
	}
	return nil
}

// SyncWithActiveJobs removes rows for jobs no longer active, without
// touching CustomOverride or Threshold on the rows that remain.
func (s *RequirementsStore) SyncWithActiveJobs(ctx context.Context, activeJobIDs map[string]bool) (int, error) {
	var rows []models.JobRequirements
	if err := s.db.Store().Find(&rows, nil); err != nil {
		return 0, fmt.Errorf("failed to list requirements: %w", err)
	}

	removed := 0
	for _, row := range rows {
		if activeJobIDs[row.JobID] {
			continue
		}
		if err := s.db.Store().Delete(row.JobID, &models.JobRequirements{}); err != nil {
			s.logger.Warn().Str("job_id", row.JobID).Err(err).Msg("failed to remove orphaned requirements row")
			continue
		}
		removed++
	}

	return removed, nil
}

func (s *RequirementsStore) All(ctx context.Context) ([]models.JobRequirements, error) {
	var rows []models.JobRequirements
	if err := s.db.Store().Find(&rows, nil); err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	return rows, nil
}
