package feed

import (
	"context"
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

type fakeFeedReferences struct {
	tokens map[string]string
	err    error
}

func (f *fakeFeedReferences) LoadOrMint(ctx context.Context, jobIDs []string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(jobIDs))
	for _, id := range jobIDs {
		if tok, ok := f.tokens[id]; ok {
			out[id] = tok
			continue
		}
		out[id] = "ref-" + id
	}
	return out, nil
}
func (f *fakeFeedReferences) OperatorRefresh(ctx context.Context, jobIDs []string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeFeedReferences) GC(ctx context.Context, stillPresent map[string]bool, olderThanDays int) (int, error) {
	return 0, nil
}
func (f *fakeFeedReferences) All(ctx context.Context) ([]models.JobReference, error) {
	return nil, nil
}

var _ interfaces.ReferenceStorage = (*fakeFeedReferences)(nil)

func TestBuild_SortsJobsByJobIDAscending(t *testing.T) {
	b := NewBuilder(&fakeFeedReferences{}, common.FeedConfig{CompanyName: "Acme", ApplyURLBase: "https://acme.example/apply/"}, arbor.NewLogger())
	jobs := []models.Job{
		{JobID: "20", Title: "Engineer", Status: "open"},
		{JobID: "5", Title: "Analyst", Status: "open"},
	}

	out, err := b.Build(context.Background(), jobs, nil)
	require.NoError(t, err)

	var parsed feedSource
	require.NoError(t, xml.Unmarshal(out, &parsed))
	require.Len(t, parsed.Jobs, 2)
	assert.Equal(t, "5", parsed.Jobs[0].BhatsID)
	assert.Equal(t, "20", parsed.Jobs[1].BhatsID)
}

func TestBuild_SkipsJobsFailingValidation(t *testing.T) {
	b := NewBuilder(&fakeFeedReferences{}, common.FeedConfig{}, arbor.NewLogger())
	jobs := []models.Job{
		{JobID: "", Title: "Missing required job id"},
		{JobID: "1", Title: "Valid job"},
	}

	out, err := b.Build(context.Background(), jobs, nil)
	require.NoError(t, err)

	var parsed feedSource
	require.NoError(t, xml.Unmarshal(out, &parsed))
	require.Len(t, parsed.Jobs, 1)
	assert.Equal(t, "1", parsed.Jobs[0].BhatsID)
}

func TestBuild_IncludesClassificationTagsAndLocation(t *testing.T) {
	b := NewBuilder(&fakeFeedReferences{}, common.FeedConfig{CompanyName: "Acme", ApplyURLBase: "https://acme.example/apply/"}, arbor.NewLogger())
	jobs := []models.Job{
		{JobID: "1", Title: "Engineer", PostedAt: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), Location: models.Location{City: "Austin", State: "TX", Country: "US"}},
	}
	tags := map[string]interfaces.ClassificationTag{
		"1": {JobFunction: "Engineering", JobIndustries: "Software", SeniorityLevel: "Senior"},
	}

	out, err := b.Build(context.Background(), jobs, tags)
	require.NoError(t, err)

	var parsed feedSource
	require.NoError(t, xml.Unmarshal(out, &parsed))
	require.Len(t, parsed.Jobs, 1)
	job := parsed.Jobs[0]
	assert.Equal(t, "Engineering", job.Category)
	assert.Equal(t, "Senior", job.SeniorityLevel)
	assert.Equal(t, "2026-01-15", job.Date)
	assert.Equal(t, "Austin", job.City)
	assert.Equal(t, "https://acme.example/apply/1", job.URL)
}

func TestBuild_ReferenceStoreFailurePropagates(t *testing.T) {
	b := NewBuilder(&fakeFeedReferences{err: assert.AnError}, common.FeedConfig{}, arbor.NewLogger())
	jobs := []models.Job{{JobID: "1", Title: "Engineer"}}

	_, err := b.Build(context.Background(), jobs, nil)
	assert.Error(t, err)
}

func TestBuild_EmptyJobListProducesEmptySource(t *testing.T) {
	b := NewBuilder(&fakeFeedReferences{}, common.FeedConfig{CompanyName: "Acme"}, arbor.NewLogger())
	out, err := b.Build(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<source>")
}
