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

// EmbeddingCacheStore implements interfaces.EmbeddingCacheStorage.
type EmbeddingCacheStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewEmbeddingCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EmbeddingCacheStorage {
	return &EmbeddingCacheStore{db: db, logger: logger}
}

func embeddingCacheKey(jobID, descriptionHash string) string {
	return jobID + "|" + descriptionHash
}

func (s *EmbeddingCacheStore) Get(ctx context.Context, jobID, descriptionHash string) (*models.EmbeddingCacheEntry, bool, error) {
	var entry models.EmbeddingCacheEntry
	err := s.db.Store().Get(embeddingCacheKey(jobID, descriptionHash), &entry)
	if err == badgerhold.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache entry: %w", err)
	}
	return &entry, true, nil
}

func (s *EmbeddingCacheStore) Put(ctx context.Context, entry *models.EmbeddingCacheEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	key := embeddingCacheKey(entry.JobID, entry.DescriptionHash)
	if err := s.db.Store().Upsert(key, entry); err != nil {
		return fmt.Errorf("failed to upsert embedding cache entry: %w", err)
	}
	return nil
}
