package badger

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const referenceTokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
const referenceTokenLength = 10

// ReferenceStore implements interfaces.ReferenceStorage.
type ReferenceStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewReferenceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReferenceStorage {
	return &ReferenceStore{db: db, logger: logger}
}

func mintReferenceToken() (string, error) {
	buf := make([]byte, referenceTokenLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceTokenAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = referenceTokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// LoadOrMint returns the existing token for each job id or mints a new
// unique one, retrying on collision. An existing row is never rewritten.
func (s *ReferenceStore) LoadOrMint(ctx context.Context, jobIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(jobIDs))
	now := time.Now()

	for _, jobID := range jobIDs {
		var existing models.JobReference
		err := s.db.Store().Get(jobID, &existing)
		if err == nil {
			existing.LastSeenAt = now
			if upErr := s.db.Store().Update(jobID, &existing); upErr != nil {
				return nil, fmt.Errorf("failed to touch reference for job %s: %w", jobID, upErr)
			}
			result[jobID] = existing.ReferenceToken
			continue
		}
		if err != badgerhold.ErrNotFound {
			return nil, fmt.Errorf("failed to look up reference for job %s: %w", jobID, err)
		}

		token, mintErr := s.mintUnique()
		if mintErr != nil {
			return nil, fmt.Errorf("failed to mint reference token for job %s: %w", jobID, mintErr)
		}

		row := models.JobReference{
			JobID:          jobID,
			ReferenceToken: token,
			LastUpdated:    now,
			LastSeenAt:     now,
		}
		if insErr := s.db.Store().Insert(jobID, &row); insErr != nil {
			return nil, fmt.Errorf("failed to insert reference for job %s: %w", jobID, insErr)
		}
		result[jobID] = token
	}

	return result, nil
}

func (s *ReferenceStore) mintUnique() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		token, err := mintReferenceToken()
		if err != nil {
			return "", err
		}
		var existing []models.JobReference
		if err := s.db.Store().Find(&existing, badgerhold.Where("ReferenceToken").Eq(token)); err != nil {
			return "", err
		}
		if len(existing) == 0 {
			return token, nil
		}
		s.logger.Warn().Str("token", token).Msg("reference token collision, retrying")
	}
	return "", fmt.Errorf("failed to mint a unique reference token after 10 attempts")
}

// OperatorRefresh rotates tokens for the given job ids. This is the only
// path permitted to overwrite an existing token.
func (s *ReferenceStore) OperatorRefresh(ctx context.Context, jobIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(jobIDs))
	now := time.Now()

	for _, jobID := range jobIDs {
		token, err := s.mintUnique()
		if err != nil {
			return nil, fmt.Errorf("failed to mint reference token for job %s: %w", jobID, err)
		}

		row := models.JobReference{
			JobID:          jobID,
			ReferenceToken: token,
			LastUpdated:    now,
			LastSeenAt:     now,
		}
		if err := s.db.Store().Upsert(jobID, &row); err != nil {
			return nil, fmt.Errorf("failed to refresh reference for job %s: %w", jobID, err)
		}
		result[jobID] = token
		s.logger.Info().Str("job_id", jobID).Msg("operator refreshed reference token")
	}

	return result, nil
}

// GC removes reference rows for jobs absent from every monitored
// tearsheet for at least olderThanDays.
func (s *ReferenceStore) GC(ctx context.Context, stillPresent map[string]bool, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	var candidates []models.JobReference
	if err := s.db.Store().Find(&candidates, badgerhold.Where("LastSeenAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find GC candidates: %w", err)
	}

	removed := 0
	for _, row := range candidates {
		if stillPresent[row.JobID] {
			continue
		}
		if err := s.db.Store().Delete(row.JobID, &models.JobReference{}); err != nil {
			s.logger.Warn().Str("job_id", row.JobID).Err(err).Msg("failed to GC reference row")
			continue
		}
		removed++
	}

	return removed, nil
}

// All returns every persisted reference row.
func (s *ReferenceStore) All(ctx context.Context) ([]models.JobReference, error) {
	var rows []models.JobReference
	if err := s.db.Store().Find(&rows, nil); err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	return rows, nil
}
