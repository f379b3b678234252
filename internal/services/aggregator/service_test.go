package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

type fakeRunStorage struct {
	run         *models.VettingRun
	matches     []models.JobMatch
	updatedRun  *models.VettingRun
}

func (f *fakeRunStorage) CreateRun(ctx context.Context, run *models.VettingRun) error { return nil }
func (f *fakeRunStorage) UpdateRun(ctx context.Context, run *models.VettingRun) error {
	f.updatedRun = run
	return nil
}
func (f *fakeRunStorage) GetRun(ctx context.Context, id string) (*models.VettingRun, error) {
	return f.run, nil
}
func (f *fakeRunStorage) SaveMatch(ctx context.Context, match *models.JobMatch) error { return nil }
func (f *fakeRunStorage) MatchesForRun(ctx context.Context, runID string) ([]models.JobMatch, error) {
	return f.matches, nil
}
func (f *fakeRunStorage) RunningOlderThan(ctx context.Context, cutoff int64) ([]models.VettingRun, error) {
	return nil, nil
}
func (f *fakeRunStorage) MarkAllRunningFailed(ctx context.Context, reason string) (int, error) {
	return 0, nil
}

type fakeRequirementsStorage struct {
	byJob map[string]*models.JobRequirements
}

func (f *fakeRequirementsStorage) Get(ctx context.Context, jobID string) (*models.JobRequirements, error) {
	return f.byJob[jobID], nil
}
func (f *fakeRequirementsStorage) Upsert(ctx context.Context, req *models.JobRequirements) error {
	return nil
}
func (f *fakeRequirementsStorage) SyncWithActiveJobs(ctx context.Context, activeJobIDs map[string]bool) (int, error) {
	return 0, nil
}
func (f *fakeRequirementsStorage) All(ctx context.Context) ([]models.JobRequirements, error) {
	return nil, nil
}

type fakeJobCacheStorage struct {
	byID map[string]*models.Job
}

func (f *fakeJobCacheStorage) SaveAll(ctx context.Context, jobs []models.Job) error { return nil }
func (f *fakeJobCacheStorage) Get(ctx context.Context, jobID string) (*models.Job, bool, error) {
	j, ok := f.byID[jobID]
	return j, ok, nil
}
func (f *fakeJobCacheStorage) CountByTearsheet(ctx context.Context, tearsheetID string) (int, error) {
	return 0, nil
}
func (f *fakeJobCacheStorage) AllByTearsheets(ctx context.Context, tearsheetIDs []string) ([]models.Job, error) {
	return nil, nil
}

type fakeAggregatorATSClient struct {
	noteID string
	noteErr error
	lastCandidateID, lastTitle, lastBody string
}

func (f *fakeAggregatorATSClient) Authenticate(ctx context.Context) error { return nil }
func (f *fakeAggregatorATSClient) ListTearsheetJobs(ctx context.Context, tearsheetID string) ([]models.Job, error) {
	return nil, nil
}
func (f *fakeAggregatorATSClient) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeAggregatorATSClient) DownloadResume(ctx context.Context, candidateID string) ([]byte, string, string, error) {
	return nil, "", "", nil
}
func (f *fakeAggregatorATSClient) CreateCandidateNote(ctx context.Context, candidateID, title, bodyHTML string) (string, error) {
	f.lastCandidateID, f.lastTitle, f.lastBody = candidateID, title, bodyHTML
	return f.noteID, f.noteErr
}
func (f *fakeAggregatorATSClient) SearchCandidates(ctx context.Context, query string, createdSinceMinutes int) ([]models.Candidate, error) {
	return nil, nil
}

type fakeMailer struct {
	sent     bool
	to, cc   []string
	deliveryID string
}

func (f *fakeMailer) Send(ctx context.Context, to, cc, bcc []string, subject, htmlBody, textFallback string) (string, error) {
	f.sent = true
	f.to = to
	f.cc = cc
	return f.deliveryID, nil
}

type fakeDedupLedger struct {
	recentKeys map[string]bool
	recorded   []string
}

func (f *fakeDedupLedger) HasRecent(ctx context.Context, channel string, key string) (bool, error) {
	return f.recentKeys[channel+"|"+key], nil
}
func (f *fakeDedupLedger) Record(ctx context.Context, channel string, key string, externalID string, status string) error {
	f.recorded = append(f.recorded, channel+"|"+key)
	return nil
}

var (
	_ interfaces.VettingRunStorage   = (*fakeRunStorage)(nil)
	_ interfaces.RequirementsStorage = (*fakeRequirementsStorage)(nil)
	_ interfaces.JobCacheStorage     = (*fakeJobCacheStorage)(nil)
	_ interfaces.ATSClient           = (*fakeAggregatorATSClient)(nil)
	_ interfaces.Mailer              = (*fakeMailer)(nil)
	_ interfaces.DedupLedger         = (*fakeDedupLedger)(nil)
)

func newTestService(runs *fakeRunStorage, reqs *fakeRequirementsStorage, jobs *fakeJobCacheStorage, ats *fakeAggregatorATSClient, mailer *fakeMailer, dedup *fakeDedupLedger) *Service {
	return NewService(runs, &fakeApplicationStorage2{}, reqs, jobs, ats, mailer, dedup,
		common.ScoringConfig{MatchThresholdDefault: 80}, common.MailConfig{}, arbor.NewLogger())
}

type fakeApplicationStorage2 struct{}

func (f *fakeApplicationStorage2) Ingest(ctx context.Context, app *models.Application) (bool, error) {
	return true, nil
}
func (f *fakeApplicationStorage2) UnvettedProcessed(ctx context.Context, limit int) ([]models.Application, error) {
	return nil, nil
}
func (f *fakeApplicationStorage2) MarkVetted(ctx context.Context, candidateID string, vettedAt time.Time) error {
	return nil
}
func (f *fakeApplicationStorage2) ByCandidate(ctx context.Context, candidateID string) ([]models.Application, error) {
	return nil, nil
}

func TestAggregate_QualifiesAboveThresholdAndSendsEmail(t *testing.T) {
	runs := &fakeRunStorage{
		run: &models.VettingRun{ID: "run-1", CandidateID: "cand-1"},
		matches: []models.JobMatch{
			{JobID: "job-1", Score: 90},
			{JobID: "job-2", Score: 40},
		},
	}
	jobs := &fakeJobCacheStorage{byID: map[string]*models.Job{
		"job-1": {JobID: "job-1", Title: "Backend Engineer", Owner: models.Owner{Email: "owner1@example.com", Name: "Owner One"}},
		"job-2": {JobID: "job-2", Title: "Frontend Engineer", Owner: models.Owner{Email: "owner2@example.com", Name: "Owner Two"}},
	}}
	ats := &fakeAggregatorATSClient{noteID: "note-1"}
	mailer := &fakeMailer{deliveryID: "delivery-1"}
	dedup := &fakeDedupLedger{recentKeys: map[string]bool{}}

	svc := newTestService(runs, &fakeRequirementsStorage{}, jobs, ats, mailer, dedup)

	err := svc.Aggregate(context.Background(), interfaces.AggregationInput{
		CandidateID: "cand-1", RunID: "run-1", AppliedJobID: "job-1",
	})
	require.NoError(t, err)

	require.NotNil(t, runs.updatedRun)
	assert.Equal(t, 90, runs.updatedRun.HighestScore)
	assert.True(t, runs.updatedRun.Qualified)
	assert.Equal(t, models.VettingRunCompleted, runs.updatedRun.Status)
	assert.Equal(t, "note-1", runs.updatedRun.NoteID)
	assert.True(t, mailer.sent)
}

func TestAggregate_NoQualifyingPairsSkipsEmail(t *testing.T) {
	runs := &fakeRunStorage{
		run:     &models.VettingRun{ID: "run-1", CandidateID: "cand-1"},
		matches: []models.JobMatch{{JobID: "job-1", Score: 40}},
	}
	jobs := &fakeJobCacheStorage{byID: map[string]*models.Job{
		"job-1": {JobID: "job-1", Title: "Backend Engineer"},
	}}
	ats := &fakeAggregatorATSClient{noteID: "note-1"}
	mailer := &fakeMailer{}
	dedup := &fakeDedupLedger{recentKeys: map[string]bool{}}

	svc := newTestService(runs, &fakeRequirementsStorage{}, jobs, ats, mailer, dedup)

	err := svc.Aggregate(context.Background(), interfaces.AggregationInput{CandidateID: "cand-1", RunID: "run-1"})
	require.NoError(t, err)

	assert.False(t, runs.updatedRun.Qualified)
	assert.False(t, mailer.sent)
}

func TestAggregate_CustomThresholdOverridesGlobalDefault(t *testing.T) {
	runs := &fakeRunStorage{
		run:     &models.VettingRun{ID: "run-1", CandidateID: "cand-1"},
		matches: []models.JobMatch{{JobID: "job-1", Score: 70}},
	}
	jobs := &fakeJobCacheStorage{byID: map[string]*models.Job{"job-1": {JobID: "job-1", Title: "x"}}}
	reqs := &fakeRequirementsStorage{byJob: map[string]*models.JobRequirements{
		"job-1": {JobID: "job-1", CustomOverride: "senior backend role", Threshold: 60},
	}}
	ats := &fakeAggregatorATSClient{}
	mailer := &fakeMailer{}
	dedup := &fakeDedupLedger{recentKeys: map[string]bool{}}

	svc := newTestService(runs, reqs, jobs, ats, mailer, dedup)

	err := svc.Aggregate(context.Background(), interfaces.AggregationInput{CandidateID: "cand-1", RunID: "run-1"})
	require.NoError(t, err)
	assert.True(t, runs.updatedRun.Qualified)
}

func TestAggregate_NoteDedupSkipsATSCall(t *testing.T) {
	runs := &fakeRunStorage{
		run:     &models.VettingRun{ID: "run-1", CandidateID: "cand-1"},
		matches: []models.JobMatch{{JobID: "job-1", Score: 40}},
	}
	jobs := &fakeJobCacheStorage{byID: map[string]*models.Job{"job-1": {JobID: "job-1", Title: "x"}}}
	ats := &fakeAggregatorATSClient{}
	mailer := &fakeMailer{}
	dedup := &fakeDedupLedger{recentKeys: map[string]bool{
		string(models.ChannelNote) + "|cand-1:AI_VETTING:hash-1": true,
	}}

	svc := newTestService(runs, &fakeRequirementsStorage{}, jobs, ats, mailer, dedup)

	err := svc.Aggregate(context.Background(), interfaces.AggregationInput{
		CandidateID: "cand-1", RunID: "run-1", ResumeContentHash: "hash-1",
	})
	require.NoError(t, err)
	assert.Empty(t, ats.lastCandidateID)
}

func TestResolveRecipients_AppliedJobOwnerIsPrimary(t *testing.T) {
	qualified := []qualifiedPair{
		{match: models.JobMatch{JobID: "job-1"}, job: &models.Job{Owner: models.Owner{Email: "a@example.com"}}},
		{match: models.JobMatch{JobID: "job-2", IsAppliedJob: true}, job: &models.Job{Owner: models.Owner{Email: "b@example.com"}}},
	}

	to, cc := resolveRecipients("job-2", qualified)

	assert.Equal(t, []string{"b@example.com"}, to)
	assert.Equal(t, []string{"a@example.com"}, cc)
}

func TestResolveRecipients_FallsBackToFirstQualifierWhenNoAppliedJob(t *testing.T) {
	qualified := []qualifiedPair{
		{match: models.JobMatch{JobID: "job-1"}, job: &models.Job{Owner: models.Owner{Email: "a@example.com"}}},
	}

	to, cc := resolveRecipients("", qualified)

	assert.Equal(t, []string{"a@example.com"}, to)
	assert.Empty(t, cc)
}

func TestRecipientFingerprint_IsOrderIndependent(t *testing.T) {
	fp1 := recipientFingerprint([]string{"a@example.com"}, []string{"b@example.com", "c@example.com"})
	fp2 := recipientFingerprint([]string{"a@example.com"}, []string{"c@example.com", "b@example.com"})
	assert.Equal(t, fp1, fp2)
}
