// Package vetting wires the Applicant Detector (C5) through the
// Aggregator (C10) into the single "vetting" cycle handler the
// scheduler drives: detect candidates, extract resumes, pre-filter
// jobs, score and escalate, then aggregate.
package vetting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	"github.com/ternarybob/vetting-core/internal/services/kv"
	"github.com/ternarybob/vetting-core/internal/services/llm"
	"github.com/ternarybob/vetting-core/internal/services/scorer"
	"github.com/ternarybob/vetting-core/internal/services/workers"
	vetcoreerrors "github.com/ternarybob/vetting-core/internal/vetcore/errors"
)

const resumeRetryPrefix = "resume_retry:"
const maxResumeRetries = 3

// Pipeline implements the per-cycle handler that the scheduler's
// "vetting" cycle invokes.
type Pipeline struct {
	detector     interfaces.ApplicantDetector
	resumes      interfaces.ResumeExtractor
	jobs         interfaces.JobCacheStorage
	requirements interfaces.RequirementsStorage
	runs         interfaces.VettingRunStorage
	auditLog     interfaces.AuditLogStorage
	filter       interfaces.EmbeddingFilter
	scorerL2     interfaces.Scorer
	scorerL3     interfaces.Scorer
	aggregator   interfaces.Aggregator
	ats          interfaces.ATSClient
	kv           *kv.Service
	requirementsLLM *llm.ProviderFactory
	requirementsModel string

	atsCfg     common.ATSConfig
	vettingCfg common.VettingConfig
	scoringCfg common.ScoringConfig
	workerSize int

	logger arbor.ILogger
}

func NewPipeline(
	detector interfaces.ApplicantDetector,
	resumes interfaces.ResumeExtractor,
	jobs interfaces.JobCacheStorage,
	requirements interfaces.RequirementsStorage,
	runs interfaces.VettingRunStorage,
	auditLog interfaces.AuditLogStorage,
	filter interfaces.EmbeddingFilter,
	scorerL2 interfaces.Scorer,
	scorerL3 interfaces.Scorer,
	aggregator interfaces.Aggregator,
	ats interfaces.ATSClient,
	kvService *kv.Service,
	requirementsLLM *llm.ProviderFactory,
	requirementsModel string,
	atsCfg common.ATSConfig,
	vettingCfg common.VettingConfig,
	scoringCfg common.ScoringConfig,
	workerSize int,
	logger arbor.ILogger,
) *Pipeline {
	if workerSize <= 0 {
		workerSize = 8
	}
	return &Pipeline{
		detector:          detector,
		resumes:           resumes,
		jobs:              jobs,
		requirements:      requirements,
		runs:              runs,
		auditLog:          auditLog,
		filter:            filter,
		scorerL2:          scorerL2,
		scorerL3:          scorerL3,
		aggregator:        aggregator,
		ats:               ats,
		kv:                kvService,
		requirementsLLM:   requirementsLLM,
		requirementsModel: requirementsModel,
		atsCfg:            atsCfg,
		vettingCfg:        vettingCfg,
		scoringCfg:        scoringCfg,
		workerSize:        workerSize,
		logger:            logger,
	}
}

// Run is the scheduler's "vetting" CycleHandler.
func (p *Pipeline) Run(ctx context.Context) error {
	batchSize := p.vettingCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}

	detected, err := p.detector.Detect(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("applicant detection failed: %w", err)
	}
	if len(detected) == 0 {
		return nil
	}

	pool := workers.NewPool(p.vettingCfg.CandidateConcurrency, p.logger)
	pool.Start()

	for _, candidate := range detected {
		candidate := candidate
		_ = pool.Submit(func(ctx context.Context) error {
			if err := p.vetOne(ctx, candidate); err != nil {
				p.logger.Warn().Err(err).Str("candidate_id", candidate.CandidateID).Msg("candidate vetting failed")
			}
			return nil
		})
	}
	pool.Wait()

	return nil
}

// vetOne runs C6 through C10 for a single detected candidate.
func (p *Pipeline) vetOne(ctx context.Context, candidate interfaces.DetectedCandidate) error {
	resume, err := p.resumes.Extract(ctx, candidate.CandidateID)
	if err != nil {
		if vetcoreerrors.IsTransient(err) || errors.Is(err, vetcoreerrors.ErrData) {
			return p.handleResumeFailure(ctx, candidate.CandidateID, err)
		}
		return err
	}
	_ = p.kv.Delete(ctx, resumeRetryPrefix+candidate.CandidateID)

	candidateJobs, err := p.jobs.AllByTearsheets(ctx, p.atsCfg.TearsheetIDs)
	if err != nil {
		return fmt.Errorf("failed to load job pool: %w", err)
	}

	jobByID := make(map[string]*models.Job, len(candidateJobs))
	for i := range candidateJobs {
		jobByID[candidateJobs[i].JobID] = &candidateJobs[i]
	}

	if candidate.AppliedJobID != "" {
		if _, ok := jobByID[candidate.AppliedJobID]; !ok {
			appliedJob, err := p.ats.GetJob(ctx, candidate.AppliedJobID)
			if err == nil && appliedJob.IsOpen() {
				jobByID[appliedJob.JobID] = appliedJob
				candidateJobs = append(candidateJobs, *appliedJob)
			}
		}
	}

	pairs, err := p.filter.Filter(ctx, candidate.CandidateID, resume.RawText, candidate.AppliedJobID, candidateJobs)
	if err != nil {
		return fmt.Errorf("embedding filter failed: %w", err)
	}
	if len(pairs) == 0 {
		return nil
	}

	run := &models.VettingRun{
		ID:          common.NewRunID(),
		CandidateID: candidate.CandidateID,
		StartedAt:   time.Now(),
		Status:      models.VettingRunRunning,
	}
	if err := p.runs.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create vetting run: %w", err)
	}

	matches := p.scorePairs(ctx, run.ID, candidate, pairs, jobByID)

	for i := range matches {
		if err := p.runs.SaveMatch(ctx, &matches[i]); err != nil {
			p.logger.Warn().Err(err).Str("job_id", matches[i].JobID).Msg("failed to persist job match")
		}
	}

	return p.aggregator.Aggregate(ctx, interfaces.AggregationInput{
		CandidateID:       candidate.CandidateID,
		RunID:             run.ID,
		AppliedJobID:      candidate.AppliedJobID,
		ResumeContentHash: resume.ContentHash,
	})
}

// scorePairs scores every surviving pair with a bounded worker pool.
// Per the aggregator's concurrency discipline, workers return pure
// values only; every durable write happens afterward on this
// goroutine.
func (p *Pipeline) scorePairs(
	ctx context.Context,
	runID string,
	candidate interfaces.DetectedCandidate,
	pairs []interfaces.EmbeddingFilterPair,
	jobByID map[string]*models.Job,
) []models.JobMatch {
	results := make([]models.JobMatch, len(pairs))
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workerSize)

	for i, pair := range pairs {
		job, ok := jobByID[pair.JobID]
		if !ok {
			continue
		}
		i, pair, job := i, pair, job
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.scorePair(ctx, runID, candidate, pair, job)
		}()
	}
	wg.Wait()
	return results
}

func (p *Pipeline) scorePair(
	ctx context.Context,
	runID string,
	candidate interfaces.DetectedCandidate,
	pair interfaces.EmbeddingFilterPair,
	job *models.Job,
) models.JobMatch {
	match := models.JobMatch{
		ID:           common.NewMatchID(),
		VettingRunID: runID,
		JobID:        job.JobID,
		IsAppliedJob: job.JobID == candidate.AppliedJobID,
		CreatedAt:    time.Now(),
	}

	requirements := p.ensureRequirements(ctx, job)

	callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	input := interfaces.ScoreInput{
		CandidateID:  candidate.CandidateID,
		JobID:        job.JobID,
		Requirements: requirements.Active(),
		Location:     job.Location,
		WorkType:     job.WorkType,
		IsAppliedJob: match.IsAppliedJob,
	}

	result, layer, err := p.scoreWithRetry(callCtx, input)
	if err != nil {
		match.Error = err.Error()
		match.LayerUsed = layer
		return match
	}

	match.Score = result.MatchScore
	match.Summary = result.MatchSummary
	match.Skills = result.SkillsMatch
	match.Experience = result.ExperienceMatch
	match.Gaps = result.GapsIdentified
	match.YearsAnalysis = result.YearsAnalysis
	match.LayerUsed = layer
	match.IsQualified = match.Score >= requirements.EffectiveThreshold(p.scoringCfg.MatchThresholdDefault)

	return match
}

// scoreWithRetry runs Layer 2, retrying transient failures twice with
// backoff, then escalates to Layer 3 when the result falls in the
// escalation band.
func (p *Pipeline) scoreWithRetry(ctx context.Context, input interfaces.ScoreInput) (*interfaces.ScoreResult, models.LayerUsed, error) {
	var result *interfaces.ScoreResult
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		result, err = p.scorerL2.Score(ctx, input)
		if err == nil {
			break
		}
		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	if err != nil {
		return nil, models.LayerL2, fmt.Errorf("layer 2 scoring failed: %w", err)
	}

	layer := models.LayerL2
	if scorer.ShouldEscalate(p.scorerL2.IsPremium(), result.MatchScore, p.scoringCfg.EscalationLow, p.scoringCfg.EscalationHigh) {
		l2Score := result.MatchScore
		l3Result, l3Err := p.scorerL3.Score(ctx, input)
		if l3Err == nil {
			p.recordEscalation(ctx, input, l2Score, l3Result.MatchScore)
			result = l3Result
			layer = models.LayerL3
		} else {
			p.logger.Warn().Err(l3Err).Str("job_id", input.JobID).Msg("layer 3 escalation failed, keeping layer 2 result")
		}
	}

	return result, layer, nil
}

func (p *Pipeline) recordEscalation(ctx context.Context, input interfaces.ScoreInput, l2Score, l3Score int) {
	entry := &models.EscalationLogEntry{
		ID:               common.NewLogID(),
		CandidateID:      input.CandidateID,
		JobID:            input.JobID,
		L2Score:          l2Score,
		L3Score:          l3Score,
		Delta:            l3Score - l2Score,
		CrossedThreshold: (l2Score >= p.scoringCfg.MatchThresholdDefault) != (l3Score >= p.scoringCfg.MatchThresholdDefault),
		CreatedAt:        time.Now(),
	}
	if err := p.auditLog.RecordEscalation(ctx, entry); err != nil {
		p.logger.Warn().Err(err).Str("job_id", input.JobID).Msg("failed to record escalation audit entry")
	}
}

// ensureRequirements returns the job's requirements row, extracting
// AIExtracted via the configured model on first sight or whenever the
// job's posting has never been extracted. CustomOverride and Threshold
// are never touched here (RQ-1).
func (p *Pipeline) ensureRequirements(ctx context.Context, job *models.Job) *models.JobRequirements {
	req, err := p.requirements.Get(ctx, job.JobID)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to load job requirements, using blank")
		req = &models.JobRequirements{JobID: job.JobID}
	}
	if req.AIExtracted != "" || p.requirementsLLM == nil {
		return req
	}

	extracted, extractErr := p.extractRequirements(ctx, job)
	if extractErr != nil {
		p.logger.Warn().Err(extractErr).Str("job_id", job.JobID).Msg("requirements extraction failed, scoring against raw description")
		req.AIExtracted = job.DescriptionHTML
		return req
	}

	req.AIExtracted = extracted
	req.LastExtraction = time.Now()
	if err := p.requirements.Upsert(ctx, req); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to persist extracted requirements")
	}
	return req
}

func (p *Pipeline) extractRequirements(ctx context.Context, job *models.Job) (string, error) {
	resp, err := p.requirementsLLM.GenerateContent(ctx, &llm.ContentRequest{
		Model: p.requirementsModel,
		Messages: []interfaces.Message{
			{Role: "system", Content: "Extract the mandatory requirements from a job posting as a concise bullet list. Omit preferred/nice-to-have items or mark them clearly as preferred."},
			{Role: "user", Content: job.Title + "\n\n" + job.DescriptionHTML},
		},
		Temperature: 0,
		MaxTokens:   800,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// handleResumeFailure implements 4.6's retry-then-dead-letter policy:
// up to 3 cycles of ResumeUnavailable are silently skipped; the 4th
// logs a dead-letter warning and clears the counter so the candidate
// is still re-detected (and retried) going forward.
func (p *Pipeline) handleResumeFailure(ctx context.Context, candidateID string, cause error) error {
	key := resumeRetryPrefix + candidateID
	raw, _ := p.kv.Get(ctx, key)
	count := 0
	fmt.Sscanf(raw, "%d", &count)
	count++

	if count > maxResumeRetries {
		p.logger.Error().Str("candidate_id", candidateID).Err(cause).Msg("resume extraction dead-lettered after repeated failures")
		_ = p.kv.Delete(ctx, key)
		return nil
	}

	_ = p.kv.Set(ctx, key, fmt.Sprintf("%d", count), "resume extraction retry counter")
	p.logger.Warn().Str("candidate_id", candidateID).Int("attempt", count).Err(cause).Msg("resume unavailable, will retry next cycle")
	return nil
}
