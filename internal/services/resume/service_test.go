package resume

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

type fakeResumeATS struct {
	raw         []byte
	filename    string
	contentType string
	err         error
}

func (f *fakeResumeATS) Authenticate(ctx context.Context) error { return nil }
func (f *fakeResumeATS) ListTearsheetJobs(ctx context.Context, tearsheetID string) ([]models.Job, error) {
	return nil, nil
}
func (f *fakeResumeATS) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeResumeATS) DownloadResume(ctx context.Context, candidateID string) ([]byte, string, string, error) {
	return f.raw, f.filename, f.contentType, f.err
}
func (f *fakeResumeATS) CreateCandidateNote(ctx context.Context, candidateID, title, bodyHTML string) (string, error) {
	return "", nil
}
func (f *fakeResumeATS) SearchCandidates(ctx context.Context, query string, createdSinceMinutes int) ([]models.Candidate, error) {
	return nil, nil
}

type fakeResumeCache struct {
	entries map[string]*models.ResumeCacheEntry
	hits    []string
	putErr  error
}

func newFakeResumeCache() *fakeResumeCache {
	return &fakeResumeCache{entries: make(map[string]*models.ResumeCacheEntry)}
}

func (f *fakeResumeCache) Get(ctx context.Context, contentHash string) (*models.ResumeCacheEntry, bool, error) {
	e, ok := f.entries[contentHash]
	return e, ok, nil
}
func (f *fakeResumeCache) Put(ctx context.Context, entry *models.ResumeCacheEntry) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[entry.ContentHash] = entry
	return nil
}
func (f *fakeResumeCache) RecordHit(ctx context.Context, contentHash string) error {
	f.hits = append(f.hits, contentHash)
	return nil
}

type fakePDFExtractor struct {
	pages []interfaces.PDFPageContent
	err   error
}

func (f *fakePDFExtractor) ExtractPages(ctx context.Context, raw []byte) ([]interfaces.PDFPageContent, error) {
	return f.pages, f.err
}

var (
	_ interfaces.ATSClient         = (*fakeResumeATS)(nil)
	_ interfaces.ResumeCacheStorage = (*fakeResumeCache)(nil)
	_ interfaces.PDFExtractor      = (*fakePDFExtractor)(nil)
)

func TestExtract_TXTPassesThroughAfterNormalization(t *testing.T) {
	ats := &fakeResumeATS{raw: []byte("  Go   Engineer  "), filename: "resume.txt"}
	cache := newFakeResumeCache()
	svc := NewService(ats, cache, &fakePDFExtractor{}, arbor.NewLogger())

	result, err := svc.Extract(context.Background(), "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "Go Engineer", result.RawText)
	assert.False(t, result.CacheHit)
}

func TestExtract_PDFJoinsPagesWithBlankLine(t *testing.T) {
	ats := &fakeResumeATS{raw: []byte("%PDF-bytes"), filename: "resume.pdf"}
	cache := newFakeResumeCache()
	pdf := &fakePDFExtractor{pages: []interfaces.PDFPageContent{{Text: "Page one"}, {Text: "Page two"}}}
	svc := NewService(ats, cache, pdf, arbor.NewLogger())

	result, err := svc.Extract(context.Background(), "cand-1")
	require.NoError(t, err)
	assert.Contains(t, result.RawText, "Page one")
	assert.Contains(t, result.RawText, "Page two")
}

func TestExtract_ServesFromCacheOnContentHashHit(t *testing.T) {
	ats := &fakeResumeATS{raw: []byte("same bytes"), filename: "resume.txt"}
	cache := newFakeResumeCache()
	svc := NewService(ats, cache, &fakePDFExtractor{}, arbor.NewLogger())

	first, err := svc.Extract(context.Background(), "cand-1")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := svc.Extract(context.Background(), "cand-1")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Len(t, cache.hits, 1)
}

func TestExtract_DownloadFailureReturnsResumeUnavailable(t *testing.T) {
	ats := &fakeResumeATS{err: errors.New("attachment not found")}
	svc := NewService(ats, newFakeResumeCache(), &fakePDFExtractor{}, arbor.NewLogger())

	_, err := svc.Extract(context.Background(), "cand-1")
	assert.ErrorIs(t, err, ErrResumeUnavailable)
}

func TestExtract_EmptyAttachmentReturnsResumeUnavailable(t *testing.T) {
	ats := &fakeResumeATS{raw: []byte{}, filename: "resume.txt"}
	svc := NewService(ats, newFakeResumeCache(), &fakePDFExtractor{}, arbor.NewLogger())

	_, err := svc.Extract(context.Background(), "cand-1")
	assert.ErrorIs(t, err, ErrResumeUnavailable)
}

func TestExtract_PDFExtractionFailureReturnsResumeUnavailable(t *testing.T) {
	ats := &fakeResumeATS{raw: []byte("%PDF"), filename: "resume.pdf"}
	pdf := &fakePDFExtractor{err: errors.New("corrupt pdf")}
	svc := NewService(ats, newFakeResumeCache(), pdf, arbor.NewLogger())

	_, err := svc.Extract(context.Background(), "cand-1")
	assert.ErrorIs(t, err, ErrResumeUnavailable)
}

func TestExtract_UnknownExtensionFallsBackToPDFPath(t *testing.T) {
	ats := &fakeResumeATS{raw: []byte("raw"), filename: "resume"}
	pdf := &fakePDFExtractor{pages: []interfaces.PDFPageContent{{Text: "fallback text"}}}
	svc := NewService(ats, newFakeResumeCache(), pdf, arbor.NewLogger())

	result, err := svc.Extract(context.Background(), "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "fallback text", result.RawText)
}

func TestExtractLegacyDOC_StripsNonPrintableBytesToSingleSpaces(t *testing.T) {
	raw := []byte{'H', 'i', 0x00, 0x01, 'b', 'y', 'e'}
	got := extractLegacyDOC(raw)
	assert.Equal(t, "Hi bye", got)
}
