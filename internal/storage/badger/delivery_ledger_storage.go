package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DeliveryLedgerStore implements interfaces.DeliveryLedgerStorage.
type DeliveryLedgerStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewDeliveryLedgerStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DeliveryLedgerStorage {
	return &DeliveryLedgerStore{db: db, logger: logger}
}

// HasRecent reports whether a delivery has already been sent on channel
// for key within the given window, in seconds.
func (s *DeliveryLedgerStore) HasRecent(ctx context.Context, channel models.DeliveryChannel, key string, within int64) (bool, error) {
	cutoff := time.Now().Add(-time.Duration(within) * time.Second)

	var rows []models.DeliveryLedgerEntry
	query := badgerhold.Where("Channel").Eq(channel).
		And("Key").Eq(key).
		And("SentAt").Ge(cutoff).
		And("Status").Eq(models.DeliveryStatusSent)
	if err := s.db.Store().Find(&rows, query); err != nil {
		return false, fmt.Errorf("failed to check delivery ledger: %w", err)
	}
	return len(rows) > 0, nil
}

func (s *DeliveryLedgerStore) Record(ctx context.Context, entry *models.DeliveryLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = common.NewDeliveryID()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now()
	}
	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to record delivery ledger entry: %w", err)
	}
	return nil
}
