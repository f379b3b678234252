// Package detector implements the Applicant Detector (C5): discovers
// candidates needing vetting by unioning three layered strategies.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
)

const onlineApplicantQuery = `status:"Online Applicant"`

// Service implements interfaces.ApplicantDetector.
type Service struct {
	applications interfaces.ApplicationStorage
	ats          interfaces.ATSClient
	cfg          common.VettingConfig
	atsCfg       common.ATSConfig
	logger       arbor.ILogger
}

var _ interfaces.ApplicantDetector = (*Service)(nil)

func NewService(
	applications interfaces.ApplicationStorage,
	ats interfaces.ATSClient,
	cfg common.VettingConfig,
	atsCfg common.ATSConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		applications: applications,
		ats:          ats,
		cfg:          cfg,
		atsCfg:       atsCfg,
		logger:       logger,
	}
}

// Detect unions the primary (inbound applications), fallback (recent
// "Online Applicant" status), and supplementary (automation-owned,
// stale) strategies, deduplicated by candidate id and capped at
// batchSize. Overflow is not queued: it is simply re-detected next
// cycle, since every strategy re-derives its result set from current
// state rather than consuming a persisted backlog.
func (s *Service) Detect(ctx context.Context, batchSize int) ([]interfaces.DetectedCandidate, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	seen := make(map[string]bool)
	var out []interfaces.DetectedCandidate

	add := func(candidateID, appliedJobID string) bool {
		if seen[candidateID] {
			return false
		}
		seen[candidateID] = true
		out = append(out, interfaces.DetectedCandidate{CandidateID: candidateID, AppliedJobID: appliedJobID})
		return len(out) >= batchSize
	}

	full, err := s.primary(ctx, add)
	if err != nil {
		return nil, fmt.Errorf("primary detection strategy failed: %w", err)
	}
	if full {
		return out, nil
	}

	full, err = s.fallback(ctx, add)
	if err != nil {
		s.logger.Warn().Err(err).Msg("fallback detection strategy failed, continuing with primary results")
	} else if full {
		return out, nil
	}

	if err := s.supplementary(ctx, add); err != nil {
		s.logger.Warn().Err(err).Msg("supplementary detection strategy failed, continuing with prior results")
	}

	return out, nil
}

// primary surfaces inbound application records awaiting vetting.
func (s *Service) primary(ctx context.Context, add func(candidateID, appliedJobID string) bool) (bool, error) {
	apps, err := s.applications.UnvettedProcessed(ctx, s.cfg.BatchSize*4)
	if err != nil {
		return false, err
	}
	for _, app := range apps {
		if !app.NeedsVetting() {
			continue
		}
		if add(app.CandidateID, app.AppliedJobID) {
			return true, nil
		}
	}
	return false, nil
}

// fallback searches the ATS for candidates recently marked "Online
// Applicant", covering applicants whose inbound email never reached
// the mail sink (e.g. applied directly through the careers portal).
func (s *Service) fallback(ctx context.Context, add func(candidateID, appliedJobID string) bool) (bool, error) {
	window := s.cfg.FallbackWindowMinutes
	if window <= 0 {
		window = 30
	}
	candidates, err := s.ats.SearchCandidates(ctx, onlineApplicantQuery, window)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if add(c.CandidateID, "") {
			return true, nil
		}
	}
	return false, nil
}

// supplementary searches for candidates owned by the configured
// automation agent that have gone unvetted for the configured window,
// catching candidates a batch import attributed to the automation
// account rather than a human recruiter.
func (s *Service) supplementary(ctx context.Context, add func(candidateID, appliedJobID string) bool) error {
	if s.atsCfg.AutomationOwnerID == "" {
		return nil
	}
	windowHours := s.cfg.SupplementaryWindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	query := fmt.Sprintf(`owner.id:%s`, s.atsCfg.AutomationOwnerID)
	candidates, err := s.ats.SearchCandidates(ctx, query, 0)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-time.Duration(windowHours) * time.Hour)
	for _, c := range candidates {
		if s.vettedRecently(ctx, c.CandidateID, cutoff) {
			continue
		}
		if add(c.CandidateID, "") {
			return nil
		}
	}
	return nil
}

// vettedRecently reports whether any of the candidate's applications
// carries a vetted_at timestamp after cutoff.
func (s *Service) vettedRecently(ctx context.Context, candidateID string, cutoff time.Time) bool {
	apps, err := s.applications.ByCandidate(ctx, candidateID)
	if err != nil {
		return false
	}
	for _, app := range apps {
		if app.VettedAt != nil && app.VettedAt.After(cutoff) {
			return true
		}
	}
	return false
}
