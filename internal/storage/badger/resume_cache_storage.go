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

// ResumeCacheStore implements interfaces.ResumeCacheStorage.
type ResumeCacheStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewResumeCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ResumeCacheStorage {
	return &ResumeCacheStore{db: db, logger: logger}
}

func (s *ResumeCacheStore) Get(ctx context.Context, contentHash string) (*models.ResumeCacheEntry, bool, error) {
	var entry models.ResumeCacheEntry
	err := s.db.Store().Get(contentHash, &entry)
	if err == badgerhold.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get resume cache entry: %w", err)
	}
	return &entry, true, nil
}

func (s *ResumeCacheStore) Put(ctx context.Context, entry *models.ResumeCacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.Store().Upsert(entry.ContentHash, entry); err != nil {
		return fmt.Errorf("failed to upsert resume cache entry: %w", err)
	}
	return nil
}

func (s *ResumeCacheStore) RecordHit(ctx context.Context, contentHash string) error {
	var entry models.ResumeCacheEntry
	err := s.db.Store().Get(contentHash, &entry)
	if err != nil {
		return fmt.Errorf("failed to load resume cache entry %s: %w", contentHash, err)
	}
	entry.HitCount++
	entry.LastAccessed = time.Now()
	if err := s.db.Store().Update(contentHash, &entry); err != nil {
		return fmt.Errorf("failed to record resume cache hit: %w", err)
	}
	return nil
}
