package vetting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	"github.com/ternarybob/vetting-core/internal/services/kv"
	vetcoreerrors "github.com/ternarybob/vetting-core/internal/vetcore/errors"
)

type fakeDetector struct {
	candidates []interfaces.DetectedCandidate
	err        error
}

func (f *fakeDetector) Detect(ctx context.Context, batchSize int) ([]interfaces.DetectedCandidate, error) {
	return f.candidates, f.err
}

type fakeResumeExtractor struct {
	mu      sync.Mutex
	resumes map[string]*interfaces.ExtractedResume
	errs    map[string]error
}

func newFakeResumeExtractor() *fakeResumeExtractor {
	return &fakeResumeExtractor{resumes: make(map[string]*interfaces.ExtractedResume), errs: make(map[string]error)}
}

func (f *fakeResumeExtractor) Extract(ctx context.Context, candidateID string) (*interfaces.ExtractedResume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[candidateID]; ok {
		return nil, err
	}
	if r, ok := f.resumes[candidateID]; ok {
		return r, nil
	}
	return &interfaces.ExtractedResume{RawText: "resume text", ContentHash: "hash-1", Filename: "resume.pdf"}, nil
}

type fakePipelineJobCache struct {
	jobs []models.Job
}

func (f *fakePipelineJobCache) SaveAll(ctx context.Context, jobs []models.Job) error { return nil }
func (f *fakePipelineJobCache) Get(ctx context.Context, jobID string) (*models.Job, bool, error) {
	for i := range f.jobs {
		if f.jobs[i].JobID == jobID {
			return &f.jobs[i], true, nil
		}
	}
	return nil, false, nil
}
func (f *fakePipelineJobCache) CountByTearsheet(ctx context.Context, tearsheetID string) (int, error) {
	return len(f.jobs), nil
}
func (f *fakePipelineJobCache) AllByTearsheets(ctx context.Context, tearsheetIDs []string) ([]models.Job, error) {
	return f.jobs, nil
}

type fakePipelineRequirements struct {
	mu   sync.Mutex
	rows map[string]*models.JobRequirements
}

func newFakePipelineRequirements() *fakePipelineRequirements {
	return &fakePipelineRequirements{rows: make(map[string]*models.JobRequirements)}
}

func (f *fakePipelineRequirements) Get(ctx context.Context, jobID string) (*models.JobRequirements, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[jobID]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}
func (f *fakePipelineRequirements) Upsert(ctx context.Context, req *models.JobRequirements) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[req.JobID] = req
	return nil
}
func (f *fakePipelineRequirements) SyncWithActiveJobs(ctx context.Context, activeJobIDs map[string]bool) (int, error) {
	return 0, nil
}
func (f *fakePipelineRequirements) All(ctx context.Context) ([]models.JobRequirements, error) {
	return nil, nil
}

type fakeVettingRunStorage struct {
	mu      sync.Mutex
	runs    []models.VettingRun
	matches []models.JobMatch
}

func (f *fakeVettingRunStorage) CreateRun(ctx context.Context, run *models.VettingRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}
func (f *fakeVettingRunStorage) UpdateRun(ctx context.Context, run *models.VettingRun) error { return nil }
func (f *fakeVettingRunStorage) GetRun(ctx context.Context, id string) (*models.VettingRun, error) {
	return nil, nil
}
func (f *fakeVettingRunStorage) SaveMatch(ctx context.Context, match *models.JobMatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, *match)
	return nil
}
func (f *fakeVettingRunStorage) MatchesForRun(ctx context.Context, runID string) ([]models.JobMatch, error) {
	return nil, nil
}
func (f *fakeVettingRunStorage) RunningOlderThan(ctx context.Context, cutoffUnixSeconds int64) ([]models.VettingRun, error) {
	return nil, nil
}
func (f *fakeVettingRunStorage) MarkAllRunningFailed(ctx context.Context, reason string) (int, error) {
	return 0, nil
}

type fakeAuditLog struct {
	mu          sync.Mutex
	escalations []models.EscalationLogEntry
}

func (f *fakeAuditLog) RecordFilter(ctx context.Context, entry *models.FilterLogEntry) error {
	return nil
}
func (f *fakeAuditLog) RecordEscalation(ctx context.Context, entry *models.EscalationLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations = append(f.escalations, *entry)
	return nil
}

type fakeFilter struct {
	pairs []interfaces.EmbeddingFilterPair
	err   error
}

func (f *fakeFilter) Filter(ctx context.Context, candidateID, resumeText string, appliedJobID string, candidateJobs []models.Job) ([]interfaces.EmbeddingFilterPair, error) {
	return f.pairs, f.err
}

type fakeScorer struct {
	mu        sync.Mutex
	premium   bool
	calls     int
	failTimes int
	result    *interfaces.ScoreResult
	err       error
}

func (f *fakeScorer) Score(ctx context.Context, input interfaces.ScoreInput) (*interfaces.ScoreResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.err != nil && call <= f.failTimes {
		return nil, f.err
	}
	return f.result, nil
}
func (f *fakeScorer) IsPremium() bool { return f.premium }

type fakeAggregator struct {
	mu     sync.Mutex
	inputs []interfaces.AggregationInput
	err    error
}

func (f *fakeAggregator) Aggregate(ctx context.Context, input interfaces.AggregationInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return f.err
}

type fakePipelineATS struct {
	jobs map[string]*models.Job
}

func (f *fakePipelineATS) Authenticate(ctx context.Context) error { return nil }
func (f *fakePipelineATS) ListTearsheetJobs(ctx context.Context, tearsheetID string) ([]models.Job, error) {
	return nil, nil
}
func (f *fakePipelineATS) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	if j, ok := f.jobs[jobID]; ok {
		return j, nil
	}
	return nil, errors.New("not found")
}
func (f *fakePipelineATS) DownloadResume(ctx context.Context, candidateID string) ([]byte, string, string, error) {
	return nil, "", "", nil
}
func (f *fakePipelineATS) CreateCandidateNote(ctx context.Context, candidateID, title, bodyHTML string) (string, error) {
	return "", nil
}
func (f *fakePipelineATS) SearchCandidates(ctx context.Context, query string, createdSinceMinutes int) ([]models.Candidate, error) {
	return nil, nil
}

type fakePipelineKVStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakePipelineKVStorage() *fakePipelineKVStorage {
	return &fakePipelineKVStorage{values: make(map[string]string)}
}
func (f *fakePipelineKVStorage) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return v, nil
}
func (f *fakePipelineKVStorage) GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error) {
	return nil, nil
}
func (f *fakePipelineKVStorage) Set(ctx context.Context, key, value, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}
func (f *fakePipelineKVStorage) Upsert(ctx context.Context, key, value, description string) (bool, error) {
	return true, nil
}
func (f *fakePipelineKVStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}
func (f *fakePipelineKVStorage) DeleteAll(ctx context.Context) error { return nil }
func (f *fakePipelineKVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	return nil, nil
}
func (f *fakePipelineKVStorage) GetAll(ctx context.Context) (map[string]string, error) {
	return nil, nil
}
func (f *fakePipelineKVStorage) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	return nil, nil
}

var (
	_ interfaces.ApplicantDetector  = (*fakeDetector)(nil)
	_ interfaces.ResumeExtractor    = (*fakeResumeExtractor)(nil)
	_ interfaces.JobCacheStorage    = (*fakePipelineJobCache)(nil)
	_ interfaces.RequirementsStorage = (*fakePipelineRequirements)(nil)
	_ interfaces.VettingRunStorage  = (*fakeVettingRunStorage)(nil)
	_ interfaces.AuditLogStorage    = (*fakeAuditLog)(nil)
	_ interfaces.EmbeddingFilter    = (*fakeFilter)(nil)
	_ interfaces.Scorer             = (*fakeScorer)(nil)
	_ interfaces.Aggregator         = (*fakeAggregator)(nil)
	_ interfaces.ATSClient          = (*fakePipelineATS)(nil)
	_ interfaces.KeyValueStorage    = (*fakePipelineKVStorage)(nil)
)

type pipelineDeps struct {
	detector     *fakeDetector
	resumes      *fakeResumeExtractor
	jobs         *fakePipelineJobCache
	requirements *fakePipelineRequirements
	runs         *fakeVettingRunStorage
	auditLog     *fakeAuditLog
	filter       *fakeFilter
	scorerL2     *fakeScorer
	scorerL3     *fakeScorer
	aggregator   *fakeAggregator
	ats          *fakePipelineATS
	kvStorage    *fakePipelineKVStorage
}

func newTestPipeline(scoring common.ScoringConfig, vetting common.VettingConfig) (*Pipeline, *pipelineDeps) {
	deps := &pipelineDeps{
		detector:     &fakeDetector{},
		resumes:      newFakeResumeExtractor(),
		jobs:         &fakePipelineJobCache{},
		requirements: newFakePipelineRequirements(),
		runs:         &fakeVettingRunStorage{},
		auditLog:     &fakeAuditLog{},
		filter:       &fakeFilter{},
		scorerL2:     &fakeScorer{result: &interfaces.ScoreResult{MatchScore: 90}},
		scorerL3:     &fakeScorer{premium: true, result: &interfaces.ScoreResult{MatchScore: 95}},
		aggregator:   &fakeAggregator{},
		ats:          &fakePipelineATS{jobs: make(map[string]*models.Job)},
		kvStorage:    newFakePipelineKVStorage(),
	}
	kvService := kv.NewService(deps.kvStorage, arbor.NewLogger())

	p := NewPipeline(
		deps.detector,
		deps.resumes,
		deps.jobs,
		deps.requirements,
		deps.runs,
		deps.auditLog,
		deps.filter,
		deps.scorerL2,
		deps.scorerL3,
		deps.aggregator,
		deps.ats,
		kvService,
		nil,
		"",
		common.ATSConfig{TearsheetIDs: []string{"ts-1"}},
		vetting,
		scoring,
		4,
		arbor.NewLogger(),
	)
	return p, deps
}

func TestRun_EmptyDetectionIsNoop(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{MatchThresholdDefault: 80, EscalationLow: 70, EscalationHigh: 90}, common.VettingConfig{CandidateConcurrency: 2})
	deps.detector.candidates = nil

	err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deps.aggregator.inputs)
}

func TestRun_FanOutVetsEachCandidate(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{MatchThresholdDefault: 80, EscalationLow: 70, EscalationHigh: 90}, common.VettingConfig{CandidateConcurrency: 2})
	deps.detector.candidates = []interfaces.DetectedCandidate{
		{CandidateID: "cand-1", AppliedJobID: "job-1"},
		{CandidateID: "cand-2", AppliedJobID: "job-2"},
	}
	deps.jobs.jobs = []models.Job{
		{JobID: "job-1", Status: "open"},
		{JobID: "job-2", Status: "open"},
	}
	deps.filter.pairs = []interfaces.EmbeddingFilterPair{{JobID: "job-1", Similarity: 0.9}}

	err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, deps.aggregator.inputs, 2)
}

func TestVetOne_ResumeTransientFailureIsHandledNotFatal(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	deps.resumes.errs["cand-1"] = fmt.Errorf("download timed out: %w", vetcoreerrors.ErrTransientExternal)

	err := p.vetOne(context.Background(), interfaces.DetectedCandidate{CandidateID: "cand-1"})
	assert.NoError(t, err)
}

func TestVetOne_ResumeDataFailureIsHandledNotFatal(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	deps.resumes.errs["cand-1"] = fmt.Errorf("missing attachment: %w", vetcoreerrors.ErrData)

	err := p.vetOne(context.Background(), interfaces.DetectedCandidate{CandidateID: "cand-1"})
	assert.NoError(t, err)
}

func TestVetOne_ResumeFatalFailurePropagates(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	deps.resumes.errs["cand-1"] = fmt.Errorf("bad state: %w", vetcoreerrors.ErrFatalInternal)

	err := p.vetOne(context.Background(), interfaces.DetectedCandidate{CandidateID: "cand-1"})
	assert.Error(t, err)
}

func TestVetOne_ZeroSurvivingPairsSkipsAggregate(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	deps.jobs.jobs = []models.Job{{JobID: "job-1", Status: "open"}}
	deps.filter.pairs = nil

	err := p.vetOne(context.Background(), interfaces.DetectedCandidate{CandidateID: "cand-1"})
	require.NoError(t, err)
	assert.Empty(t, deps.aggregator.inputs)
}

func TestVetOne_AppliedJobFetchedWhenNotInTearsheetSet(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{MatchThresholdDefault: 80, EscalationLow: 70, EscalationHigh: 90}, common.VettingConfig{})
	deps.jobs.jobs = nil
	openJob := &models.Job{JobID: "job-applied", Status: "active"}
	deps.ats.jobs["job-applied"] = openJob
	deps.filter.pairs = []interfaces.EmbeddingFilterPair{{JobID: "job-applied", Similarity: 0.95}}

	err := p.vetOne(context.Background(), interfaces.DetectedCandidate{CandidateID: "cand-1", AppliedJobID: "job-applied"})
	require.NoError(t, err)
	require.Len(t, deps.aggregator.inputs, 1)
	assert.Equal(t, "job-applied", deps.aggregator.inputs[0].AppliedJobID)
}

func TestVetOne_PersistsMatchesAfterScoringCompletes(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{MatchThresholdDefault: 50, EscalationLow: 70, EscalationHigh: 90}, common.VettingConfig{})
	deps.jobs.jobs = []models.Job{{JobID: "job-1", Status: "open"}}
	deps.filter.pairs = []interfaces.EmbeddingFilterPair{{JobID: "job-1", Similarity: 0.9}}
	deps.scorerL2.result = &interfaces.ScoreResult{MatchScore: 60}

	err := p.vetOne(context.Background(), interfaces.DetectedCandidate{CandidateID: "cand-1"})
	require.NoError(t, err)
	require.Len(t, deps.runs.matches, 1)
	assert.True(t, deps.runs.matches[0].IsQualified)
	assert.Equal(t, models.LayerL2, deps.runs.matches[0].LayerUsed)
}

func TestScoreWithRetry_RetriesThenSucceeds(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{EscalationLow: 1000, EscalationHigh: 1000}, common.VettingConfig{})
	deps.scorerL2.err = errors.New("rate limited")
	deps.scorerL2.failTimes = 2
	deps.scorerL2.result = &interfaces.ScoreResult{MatchScore: 88}

	result, layer, err := p.scoreWithRetry(context.Background(), interfaces.ScoreInput{})
	require.NoError(t, err)
	assert.Equal(t, 88, result.MatchScore)
	assert.Equal(t, models.LayerL2, layer)
	assert.Equal(t, 3, deps.scorerL2.calls)
}

func TestScoreWithRetry_FailsAfterThreeAttempts(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	deps.scorerL2.err = errors.New("down")
	deps.scorerL2.failTimes = 10

	_, layer, err := p.scoreWithRetry(context.Background(), interfaces.ScoreInput{})
	assert.Error(t, err)
	assert.Equal(t, models.LayerL2, layer)
	assert.Equal(t, 3, deps.scorerL2.calls)
}

func TestScoreWithRetry_EscalatesWhenWithinBand(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{EscalationLow: 50, EscalationHigh: 95}, common.VettingConfig{})
	deps.scorerL2.premium = false
	deps.scorerL2.result = &interfaces.ScoreResult{MatchScore: 70}
	deps.scorerL3.result = &interfaces.ScoreResult{MatchScore: 85}

	result, layer, err := p.scoreWithRetry(context.Background(), interfaces.ScoreInput{CandidateID: "c1", JobID: "j1"})
	require.NoError(t, err)
	assert.Equal(t, 85, result.MatchScore)
	assert.Equal(t, models.LayerL3, layer)
	require.Len(t, deps.auditLog.escalations, 1)
	assert.Equal(t, 15, deps.auditLog.escalations[0].Delta)
}

func TestScoreWithRetry_DormantWhenScorerIsPremium(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{EscalationLow: 50, EscalationHigh: 95}, common.VettingConfig{})
	deps.scorerL2.premium = true
	deps.scorerL2.result = &interfaces.ScoreResult{MatchScore: 70}

	_, layer, err := p.scoreWithRetry(context.Background(), interfaces.ScoreInput{})
	require.NoError(t, err)
	assert.Equal(t, models.LayerL2, layer)
	assert.Equal(t, 0, deps.scorerL3.calls)
	assert.Empty(t, deps.auditLog.escalations)
}

func TestScoreWithRetry_L3FailureFallsBackToL2Result(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{EscalationLow: 50, EscalationHigh: 95}, common.VettingConfig{})
	deps.scorerL2.premium = false
	deps.scorerL2.result = &interfaces.ScoreResult{MatchScore: 70}
	deps.scorerL3.err = errors.New("l3 unavailable")
	deps.scorerL3.failTimes = 10

	result, layer, err := p.scoreWithRetry(context.Background(), interfaces.ScoreInput{})
	require.NoError(t, err)
	assert.Equal(t, 70, result.MatchScore)
	assert.Equal(t, models.LayerL2, layer)
	assert.Empty(t, deps.auditLog.escalations)
}

func TestEnsureRequirements_NilLLMSkipsExtraction(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	job := &models.Job{JobID: "job-1", DescriptionHTML: "do things"}
	deps.requirements.rows["job-1"] = &models.JobRequirements{JobID: "job-1"}

	req := p.ensureRequirements(context.Background(), job)
	assert.Empty(t, req.AIExtracted)
}

func TestEnsureRequirements_AlreadyExtractedSkipsReextraction(t *testing.T) {
	p, _ := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	job := &models.Job{JobID: "job-1"}
	req := p.ensureRequirements(context.Background(), job)
	assert.Equal(t, "job-1", req.JobID)
}

func TestEnsureRequirements_NeverTouchesCustomOverrideOrThreshold(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	deps.requirements.rows["job-1"] = &models.JobRequirements{
		JobID:          "job-1",
		AIExtracted:    "already extracted",
		CustomOverride: "recruiter override",
		Threshold:      65,
	}
	job := &models.Job{JobID: "job-1"}

	req := p.ensureRequirements(context.Background(), job)
	assert.Equal(t, "recruiter override", req.CustomOverride)
	assert.Equal(t, 65, req.Threshold)
	assert.Equal(t, "recruiter override", req.Active())
}

func TestHandleResumeFailure_PersistsCounterBelowThreshold(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})

	err := p.handleResumeFailure(context.Background(), "cand-1", errors.New("download timed out"))
	require.NoError(t, err)

	v, getErr := deps.kvStorage.Get(context.Background(), resumeRetryPrefix+"cand-1")
	require.NoError(t, getErr)
	assert.Equal(t, "1", v)
}

func TestHandleResumeFailure_DeadLettersOnFourthFailure(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{}, common.VettingConfig{})
	key := resumeRetryPrefix + "cand-1"
	require.NoError(t, deps.kvStorage.Set(context.Background(), key, "3", ""))

	err := p.handleResumeFailure(context.Background(), "cand-1", errors.New("still failing"))
	require.NoError(t, err)

	_, getErr := deps.kvStorage.Get(context.Background(), key)
	assert.Error(t, getErr)
}

func TestHandleResumeFailure_ClearedOnSubsequentSuccess(t *testing.T) {
	p, deps := newTestPipeline(common.ScoringConfig{MatchThresholdDefault: 50}, common.VettingConfig{})
	key := resumeRetryPrefix + "cand-1"
	require.NoError(t, deps.kvStorage.Set(context.Background(), key, "2", ""))
	deps.filter.pairs = nil

	err := p.vetOne(context.Background(), interfaces.DetectedCandidate{CandidateID: "cand-1"})
	require.NoError(t, err)

	_, getErr := deps.kvStorage.Get(context.Background(), key)
	assert.Error(t, getErr)
}
