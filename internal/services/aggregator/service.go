// Package aggregator implements the Aggregator & Writer (C10): merges
// every scored (candidate, job) pair, writes the ATS note, and sends the
// one consolidated qualification email per candidate.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

// Service implements interfaces.Aggregator.
type Service struct {
	runs         interfaces.VettingRunStorage
	applications interfaces.ApplicationStorage
	requirements interfaces.RequirementsStorage
	jobs         interfaces.JobCacheStorage
	ats          interfaces.ATSClient
	mailer       interfaces.Mailer
	dedup        interfaces.DedupLedger
	scoring      common.ScoringConfig
	mail         common.MailConfig
	logger       arbor.ILogger
}

var _ interfaces.Aggregator = (*Service)(nil)

func NewService(
	runs interfaces.VettingRunStorage,
	applications interfaces.ApplicationStorage,
	requirements interfaces.RequirementsStorage,
	jobs interfaces.JobCacheStorage,
	ats interfaces.ATSClient,
	mailer interfaces.Mailer,
	dedup interfaces.DedupLedger,
	scoring common.ScoringConfig,
	mail common.MailConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		runs:         runs,
		applications: applications,
		requirements: requirements,
		jobs:         jobs,
		ats:          ats,
		mailer:       mailer,
		dedup:        dedup,
		scoring:      scoring,
		mail:         mail,
		logger:       logger,
	}
}

// qualifiedPair pairs a JobMatch with the job's owner and title, looked
// up once per job so note/email composition doesn't repeat the lookup.
type qualifiedPair struct {
	match models.JobMatch
	job   *models.Job
}

// Aggregate implements 4.10 end to end for one candidate's completed run.
func (s *Service) Aggregate(ctx context.Context, input interfaces.AggregationInput) error {
	run, err := s.runs.GetRun(ctx, input.RunID)
	if err != nil {
		return fmt.Errorf("failed to load vetting run: %w", err)
	}

	matches, err := s.runs.MatchesForRun(ctx, input.RunID)
	if err != nil {
		return fmt.Errorf("failed to load job matches: %w", err)
	}

	pairs := make([]qualifiedPair, 0, len(matches))
	highest := 0
	for _, m := range matches {
		if m.Score > highest {
			highest = m.Score
		}
		threshold := s.scoring.MatchThresholdDefault
		if req, err := s.requirements.Get(ctx, m.JobID); err == nil && req != nil {
			threshold = req.EffectiveThreshold(s.scoring.MatchThresholdDefault)
		}
		m.IsQualified = m.Score >= threshold
		m.IsAppliedJob = m.JobID == input.AppliedJobID

		job, _, _ := s.jobs.Get(ctx, m.JobID)
		pairs = append(pairs, qualifiedPair{match: m, job: job})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].match.Score > pairs[j].match.Score })

	qualified := make([]qualifiedPair, 0, len(pairs))
	for _, p := range pairs {
		if p.match.IsQualified {
			qualified = append(qualified, p)
		}
	}

	run.HighestScore = highest
	run.Qualified = len(qualified) > 0

	noteTitle, noteBody := composeNote(input, pairs, qualified)

	noteID, err := s.writeNote(ctx, input, noteBody, noteTitle)
	if err != nil {
		s.logger.Error().Err(err).Str("candidate_id", input.CandidateID).Msg("failed to write candidate note")
		run.Error = err.Error()
	} else {
		run.NoteID = noteID
	}

	if len(qualified) > 0 {
		if err := s.notify(ctx, input, qualified); err != nil {
			s.logger.Error().Err(err).Str("candidate_id", input.CandidateID).Msg("failed to send qualification email")
		}
	}

	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.VettingRunCompleted
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update vetting run: %w", err)
	}

	if err := s.applications.MarkVetted(ctx, input.CandidateID, now); err != nil {
		s.logger.Warn().Err(err).Str("candidate_id", input.CandidateID).Msg("failed to mark applications vetted")
	}

	return nil
}

// writeNote applies the note dedup gate: (candidate_id, note_kind, resume
// content hash) within 24h suppresses creation, matching a stable run
// whose resume hasn't changed since the last note was written.
func (s *Service) writeNote(ctx context.Context, input interfaces.AggregationInput, body, title string) (string, error) {
	dedupKey := fmt.Sprintf("%s:AI_VETTING:%s", input.CandidateID, input.ResumeContentHash)
	recent, err := s.dedup.HasRecent(ctx, string(models.ChannelNote), dedupKey)
	if err == nil && recent {
		return "", nil
	}

	noteID, sendErr := s.ats.CreateCandidateNote(ctx, input.CandidateID, title, body)
	status := string(models.DeliveryStatusSent)
	if sendErr != nil {
		status = string(models.DeliveryStatusFailed)
	}
	if recErr := s.dedup.Record(ctx, string(models.ChannelNote), dedupKey, noteID, status); recErr != nil {
		s.logger.Warn().Err(recErr).Msg("failed to record note delivery in dedup ledger")
	}
	return noteID, sendErr
}

// notify composes and sends one consolidated email, gated by a
// 5-minute dedup window keyed on the recipient set fingerprint.
func (s *Service) notify(ctx context.Context, input interfaces.AggregationInput, qualified []qualifiedPair) error {
	to, cc := resolveRecipients(input.AppliedJobID, qualified)
	if len(to) == 0 {
		return nil
	}

	fingerprint := recipientFingerprint(to, cc)
	dedupKey := fmt.Sprintf("%s:%s", fingerprint, input.CandidateID)
	recent, err := s.dedup.HasRecent(ctx, string(models.ChannelEmailQualified), dedupKey)
	if err == nil && recent {
		return nil
	}

	subject, htmlBody, textBody := composeEmail(input, qualified, to[0])

	deliveryID, sendErr := s.mailer.Send(ctx, to, cc, nil, subject, htmlBody, textBody)
	status := string(models.DeliveryStatusSent)
	if sendErr != nil {
		status = string(models.DeliveryStatusFailed)
	}
	if recErr := s.dedup.Record(ctx, string(models.ChannelEmailQualified), dedupKey, deliveryID, status); recErr != nil {
		s.logger.Warn().Err(recErr).Msg("failed to record qualification email in dedup ledger")
	}
	return sendErr
}

// resolveRecipients picks the applied job's owner as the primary
// recipient (falling back to the first qualifying job's owner), ccing
// every other qualifying job's owner, deduplicated by email.
func resolveRecipients(appliedJobID string, qualified []qualifiedPair) (to []string, cc []string) {
	var primary string
	seenCC := make(map[string]bool)

	for _, p := range qualified {
		if p.job == nil || p.job.Owner.Email == "" {
			continue
		}
		if p.match.IsAppliedJob {
			primary = p.job.Owner.Email
		}
	}
	if primary == "" && len(qualified) > 0 && qualified[0].job != nil {
		primary = qualified[0].job.Owner.Email
	}
	if primary == "" {
		return nil, nil
	}
	seenCC[primary] = true

	for _, p := range qualified {
		if p.job == nil || p.job.Owner.Email == "" {
			continue
		}
		if seenCC[p.job.Owner.Email] {
			continue
		}
		seenCC[p.job.Owner.Email] = true
		cc = append(cc, p.job.Owner.Email)
	}

	return []string{primary}, cc
}

func recipientFingerprint(to, cc []string) string {
	all := append(append([]string{}, to...), cc...)
	sort.Strings(all)
	return strings.Join(all, ",")
}
