package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// VettingRunStore implements interfaces.VettingRunStorage.
type VettingRunStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewVettingRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.VettingRunStorage {
	return &VettingRunStore{db: db, logger: logger}
}

func (s *VettingRunStore) CreateRun(ctx context.Context, run *models.VettingRun) error {
	if err := s.db.Store().Insert(run.ID, run); err != nil {
		return fmt.Errorf("failed to insert vetting run: %w", err)
	}
	return nil
}

func (s *VettingRunStore) UpdateRun(ctx context.Context, run *models.VettingRun) error {
	if err := s.db.Store().Update(run.ID, run); err != nil {
		return fmt.Errorf("failed to update vetting run %s: %w", run.ID, err)
	}
	return nil
}

func (s *VettingRunStore) GetRun(ctx context.Context, id string) (*models.VettingRun, error) {
	var run models.VettingRun
	if err := s.db.Store().Get(id, &run); err != nil {
		return nil, fmt.Errorf("failed to get vetting run %s: %w", id, err)
	}
	return &run, nil
}

func (s *VettingRunStore) SaveMatch(ctx context.Context, match *models.JobMatch) error {
	if err := s.db.Store().Upsert(match.ID, match); err != nil {
		return fmt.Errorf("failed to save job match: %w", err)
	}
	return nil
}

func (s *VettingRunStore) MatchesForRun(ctx context.Context, runID string) ([]models.JobMatch, error) {
	var rows []models.JobMatch
	if err := s.db.Store().Find(&rows, badgerhold.Where("VettingRunID").Eq(runID)); err != nil {
		return nil, fmt.Errorf("failed to find matches for run %s: %w", runID, err)
	}
	return rows, nil
}

// RunningOlderThan returns every run still marked running whose
// StartedAt predates the cutoff, used to detect orphaned/stuck runs.
func (s *VettingRunStore) RunningOlderThan(ctx context.Context, cutoffUnixSeconds int64) ([]models.VettingRun, error) {
	cutoff := time.Unix(cutoffUnixSeconds, 0)
	var rows []models.VettingRun
	if err := s.db.Store().Find(&rows, badgerhold.Where("Status").Eq(models.VettingRunRunning).And("StartedAt").Lt(cutoff)); err != nil {
		return nil, fmt.Errorf("failed to find stale running runs: %w", err)
	}
	return rows, nil
}

// MarkAllRunningFailed marks every run currently running as failed with
// the given reason, used on startup to clean up after a crash.
func (s *VettingRunStore) MarkAllRunningFailed(ctx context.Context, reason string) (int, error) {
	var rows []models.VettingRun
	if err := s.db.Store().Find(&rows, badgerhold.Where("Status").Eq(models.VettingRunRunning)); err != nil {
		return 0, fmt.Errorf("failed to find running runs: %w", err)
	}

	now := time.Now()
	for i := range rows {
		rows[i].Status = models.VettingRunFailed
		rows[i].Error = reason
		rows[i].FinishedAt = &now
		if err := s.db.Store().Update(rows[i].ID, &rows[i]); err != nil {
			return 0, fmt.Errorf("failed to mark run %s failed: %w", rows[i].ID, err)
		}
	}

	return len(rows), nil
}
