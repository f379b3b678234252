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

// ApplicationStore implements interfaces.ApplicationStorage.
type ApplicationStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewApplicationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ApplicationStorage {
	return &ApplicationStore{db: db, logger: logger}
}

// Ingest persists an Application row, or is a no-op if MessageID already
// exists, so a re-delivered mail never creates a duplicate row.
func (s *ApplicationStore) Ingest(ctx context.Context, app *models.Application) (bool, error) {
	var existing models.Application
	err := s.db.Store().Get(app.MessageID, &existing)
	if err == nil {
		return false, nil
	}
	if err != badgerhold.ErrNotFound {
		return false, fmt.Errorf("failed to check application existence: %w", err)
	}

	if err := s.db.Store().Insert(app.MessageID, app); err != nil {
		return false, fmt.Errorf("failed to insert application: %w", err)
	}
	return true, nil
}

// UnvettedProcessed returns applications with status processed and
// vetted_at unset, newest first, capped at limit.
func (s *ApplicationStore) UnvettedProcessed(ctx context.Context, limit int) ([]models.Application, error) {
	var rows []models.Application
	query := badgerhold.Where("Status").Eq(models.ApplicationProcessed).
		And("VettedAt").IsNil().
		SortBy("ReceivedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to find unvetted applications: %w", err)
	}
	return rows, nil
}

// MarkVetted stamps vetted_at on every application for candidateID that
// is still unvetted.
func (s *ApplicationStore) MarkVetted(ctx context.Context, candidateID string, vettedAt time.Time) error {
	var rows []models.Application
	if err := s.db.Store().Find(&rows, badgerhold.Where("CandidateID").Eq(candidateID).And("VettedAt").IsNil()); err != nil {
		return fmt.Errorf("failed to find applications for candidate %s: %w", candidateID, err)
	}

	for _, row := range rows {
		stamp := vettedAt
		row.VettedAt = &stamp
		if err := s.db.Store().Update(row.MessageID, &row); err != nil {
			return fmt.Errorf("failed to mark application %s vetted: %w", row.MessageID, err)
		}
	}
	return nil
}

// ByCandidate returns every application for a candidate.
func (s *ApplicationStore) ByCandidate(ctx context.Context, candidateID string) ([]models.Application, error) {
	var rows []models.Application
	if err := s.db.Store().Find(&rows, badgerhold.Where("CandidateID").Eq(candidateID)); err != nil {
		return nil, fmt.Errorf("failed to find applications for candidate %s: %w", candidateID, err)
	}
	return rows, nil
}
