package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

// AuditLogStore implements interfaces.AuditLogStorage.
type AuditLogStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewAuditLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuditLogStorage {
	return &AuditLogStore{db: db, logger: logger}
}

func (s *AuditLogStore) RecordFilter(ctx context.Context, entry *models.FilterLogEntry) error {
	if entry.ID == "" {
		entry.ID = common.NewLogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to record filter log entry: %w", err)
	}
	return nil
}

func (s *AuditLogStore) RecordEscalation(ctx context.Context, entry *models.EscalationLogEntry) error {
	if entry.ID == "" {
		entry.ID = common.NewLogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to record escalation log entry: %w", err)
	}
	return nil
}
