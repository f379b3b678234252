package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	vetcoreerrors "github.com/ternarybob/vetting-core/internal/vetcore/errors"
)

type fakeFeedATS struct {
	jobsByTearsheet map[string][]models.Job
	err             error
}

func (f *fakeFeedATS) Authenticate(ctx context.Context) error { return nil }
func (f *fakeFeedATS) ListTearsheetJobs(ctx context.Context, tearsheetID string) ([]models.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.jobsByTearsheet[tearsheetID], nil
}
func (f *fakeFeedATS) GetJob(ctx context.Context, jobID string) (*models.Job, error) { return nil, nil }
func (f *fakeFeedATS) DownloadResume(ctx context.Context, candidateID string) ([]byte, string, string, error) {
	return nil, "", "", nil
}
func (f *fakeFeedATS) CreateCandidateNote(ctx context.Context, candidateID, title, bodyHTML string) (string, error) {
	return "", nil
}
func (f *fakeFeedATS) SearchCandidates(ctx context.Context, query string, createdSinceMinutes int) ([]models.Candidate, error) {
	return nil, nil
}

type fakeFeedBuilder struct {
	out []byte
	err error
}

func (f *fakeFeedBuilder) Build(ctx context.Context, jobs []models.Job, tags map[string]interfaces.ClassificationTag) ([]byte, error) {
	return f.out, f.err
}

type fakeFeedPublisher struct {
	published []byte
	err       error
}

func (f *fakeFeedPublisher) Publish(ctx context.Context, body []byte) error {
	f.published = body
	return f.err
}

type fakeFeedMailer struct {
	sent bool
}

func (f *fakeFeedMailer) Send(ctx context.Context, to, cc, bcc []string, subject, htmlBody, textFallback string) (string, error) {
	f.sent = true
	return "delivery-1", nil
}

type fakeFeedDedup struct {
	mu       sync.Mutex
	recent   bool
	recorded []string
}

func (f *fakeFeedDedup) HasRecent(ctx context.Context, channel string, key string) (bool, error) {
	return f.recent, nil
}
func (f *fakeFeedDedup) Record(ctx context.Context, channel string, key string, externalID string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, channel+":"+key)
	return nil
}

type fakeFeedKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeFeedKV() *fakeFeedKV { return &fakeFeedKV{values: make(map[string]string)} }

func (f *fakeFeedKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return v, nil
}
func (f *fakeFeedKV) GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error) {
	return nil, nil
}
func (f *fakeFeedKV) Set(ctx context.Context, key, value, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}
func (f *fakeFeedKV) Upsert(ctx context.Context, key, value, description string) (bool, error) {
	return true, nil
}
func (f *fakeFeedKV) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeFeedKV) DeleteAll(ctx context.Context) error          { return nil }
func (f *fakeFeedKV) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	return nil, nil
}
func (f *fakeFeedKV) GetAll(ctx context.Context) (map[string]string, error) { return nil, nil }
func (f *fakeFeedKV) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	return nil, nil
}

var (
	_ interfaces.ATSClient      = (*fakeFeedATS)(nil)
	_ interfaces.FeedBuilder    = (*fakeFeedBuilder)(nil)
	_ interfaces.FeedPublisher  = (*fakeFeedPublisher)(nil)
	_ interfaces.Mailer         = (*fakeFeedMailer)(nil)
	_ interfaces.DedupLedger    = (*fakeFeedDedup)(nil)
	_ interfaces.KeyValueStorage = (*fakeFeedKV)(nil)
)

func TestRun_FrozenReturnsPolicyBlockWithoutPublishing(t *testing.T) {
	publisher := &fakeFeedPublisher{}
	svc := NewService(&fakeFeedATS{}, NewNullClassifier(), &fakeFeedBuilder{}, publisher, &fakeFeedMailer{}, &fakeFeedDedup{}, newFakeFeedKV(),
		common.ATSConfig{}, common.FeedConfig{Frozen: true}, nil, arbor.NewLogger())

	err := svc.Run(context.Background())
	assert.ErrorIs(t, err, vetcoreerrors.ErrPolicyBlock)
	assert.Nil(t, publisher.published)
}

func TestRun_ZeroJobSafeguardTripsAboveFloorAndAlerts(t *testing.T) {
	mailer := &fakeFeedMailer{}
	dedup := &fakeFeedDedup{}
	kv := newFakeFeedKV()
	kv.values[lastPublishedCountKey] = "10"
	ats := &fakeFeedATS{jobsByTearsheet: map[string][]models.Job{"ts-1": {}}}

	svc := NewService(ats, NewNullClassifier(), &fakeFeedBuilder{}, &fakeFeedPublisher{}, mailer, dedup, kv,
		common.ATSConfig{TearsheetIDs: []string{"ts-1"}}, common.FeedConfig{}, []string{"ops@example.com"}, arbor.NewLogger())

	err := svc.Run(context.Background())
	assert.ErrorIs(t, err, vetcoreerrors.ErrPolicyBlock)
	assert.True(t, mailer.sent)
	require.Len(t, dedup.recorded, 1)
}

func TestRun_ZeroJobsBelowFloorDoesNotTripSafeguard(t *testing.T) {
	kv := newFakeFeedKV()
	kv.values[lastPublishedCountKey] = "2"
	ats := &fakeFeedATS{jobsByTearsheet: map[string][]models.Job{"ts-1": {}}}
	publisher := &fakeFeedPublisher{}

	svc := NewService(ats, NewNullClassifier(), &fakeFeedBuilder{out: []byte("<source/>")}, publisher, &fakeFeedMailer{}, &fakeFeedDedup{}, kv,
		common.ATSConfig{TearsheetIDs: []string{"ts-1"}}, common.FeedConfig{}, nil, arbor.NewLogger())

	err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("<source/>"), publisher.published)
}

func TestRun_DeduplicatesJobsAcrossTearsheetsAndExcludesConfigured(t *testing.T) {
	ats := &fakeFeedATS{jobsByTearsheet: map[string][]models.Job{
		"ts-1": {{JobID: "1"}, {JobID: "2"}},
		"ts-2": {{JobID: "2"}, {JobID: "3"}},
	}}
	builder := &fakeFeedBuilder{out: []byte("ok")}
	svc := NewService(ats, NewNullClassifier(), builder, &fakeFeedPublisher{}, &fakeFeedMailer{}, &fakeFeedDedup{}, newFakeFeedKV(),
		common.ATSConfig{TearsheetIDs: []string{"ts-1", "ts-2"}, ExcludeJobIDs: []string{"3"}}, common.FeedConfig{}, nil, arbor.NewLogger())

	jobs, err := svc.collectJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	err = svc.Run(context.Background())
	require.NoError(t, err)
}

func TestRun_PublishFailureAlertsAndPropagates(t *testing.T) {
	mailer := &fakeFeedMailer{}
	publisher := &fakeFeedPublisher{err: errors.New("upload refused")}
	svc := NewService(&fakeFeedATS{}, NewNullClassifier(), &fakeFeedBuilder{out: []byte("ok")}, publisher, mailer, &fakeFeedDedup{}, newFakeFeedKV(),
		common.ATSConfig{}, common.FeedConfig{}, []string{"ops@example.com"}, arbor.NewLogger())

	err := svc.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, mailer.sent)
}

func TestRun_PersistsLastPublishedJobCount(t *testing.T) {
	kv := newFakeFeedKV()
	ats := &fakeFeedATS{jobsByTearsheet: map[string][]models.Job{"ts-1": {{JobID: "1"}, {JobID: "2"}}}}
	svc := NewService(ats, NewNullClassifier(), &fakeFeedBuilder{out: []byte("ok")}, &fakeFeedPublisher{}, &fakeFeedMailer{}, &fakeFeedDedup{}, kv,
		common.ATSConfig{TearsheetIDs: []string{"ts-1"}}, common.FeedConfig{}, nil, arbor.NewLogger())

	err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", kv.values[lastPublishedCountKey])
}

func TestAlert_SkipsSendWhenRecentlyDeduped(t *testing.T) {
	mailer := &fakeFeedMailer{}
	dedup := &fakeFeedDedup{recent: true}
	svc := NewService(&fakeFeedATS{}, NewNullClassifier(), &fakeFeedBuilder{}, &fakeFeedPublisher{}, mailer, dedup, newFakeFeedKV(),
		common.ATSConfig{}, common.FeedConfig{}, []string{"ops@example.com"}, arbor.NewLogger())

	svc.alert(context.Background(), "channel", "key", "subject", "body")
	assert.False(t, mailer.sent)
}
