// Package dedup implements the Deduplication Ledger (C11): a thin
// channel-aware wrapper over DeliveryLedgerStorage that supplies the
// "within" window interfaces.DedupLedger's narrower contract doesn't
// carry per call.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

const (
	defaultEmailWindowSeconds = 5 * 60
	defaultNoteWindowSeconds  = 24 * 60 * 60
)

// Service implements interfaces.DedupLedger over a DeliveryLedgerStorage.
type Service struct {
	storage            interfaces.DeliveryLedgerStorage
	noteWindowSeconds  int64
	emailWindowSeconds int64
	logger             arbor.ILogger
}

var _ interfaces.DedupLedger = (*Service)(nil)

// NewService builds a dedup ledger with configured or default windows:
// 5 minutes for email channels, 24 hours for the note channel.
func NewService(storage interfaces.DeliveryLedgerStorage, cfg common.DedupConfig, logger arbor.ILogger) *Service {
	noteWindow := cfg.NoteWindowSeconds
	if noteWindow == 0 {
		noteWindow = defaultNoteWindowSeconds
	}
	emailWindow := cfg.EmailWindowSeconds
	if emailWindow == 0 {
		emailWindow = defaultEmailWindowSeconds
	}
	return &Service{
		storage:            storage,
		noteWindowSeconds:  noteWindow,
		emailWindowSeconds: emailWindow,
		logger:             logger,
	}
}

// HasRecent reports whether channel/key has a sent entry within that
// channel's configured window.
func (s *Service) HasRecent(ctx context.Context, channel string, key string) (bool, error) {
	within := s.windowFor(models.DeliveryChannel(channel))
	hit, err := s.storage.HasRecent(ctx, models.DeliveryChannel(channel), key, within)
	if err != nil {
		return false, fmt.Errorf("dedup ledger lookup failed for channel %s: %w", channel, err)
	}
	return hit, nil
}

// Record logs a delivery attempt, regardless of outcome, so every
// emission (successful or not) is auditable.
func (s *Service) Record(ctx context.Context, channel string, key string, externalID string, status string) error {
	entry := &models.DeliveryLedgerEntry{
		ID:         uuid.NewString(),
		Channel:    models.DeliveryChannel(channel),
		Key:        key,
		SentAt:     time.Now(),
		ExternalID: externalID,
		Status:     models.DeliveryStatus(status),
	}
	if err := s.storage.Record(ctx, entry); err != nil {
		return fmt.Errorf("failed to record delivery ledger entry for channel %s: %w", channel, err)
	}
	s.logger.Debug().Str("channel", channel).Str("key", key).Str("status", status).Msg("delivery ledger entry recorded")
	return nil
}

func (s *Service) windowFor(channel models.DeliveryChannel) int64 {
	if channel == models.ChannelNote {
		return s.noteWindowSeconds
	}
	return s.emailWindowSeconds
}
