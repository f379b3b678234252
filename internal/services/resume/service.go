// Package resume implements the Resume Extractor & Cache (C6): downloads
// the best resume attachment, serves from a content-addressed cache when
// possible, and otherwise extracts and normalizes the raw text.
package resume

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nguyenthenguyen/docx"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	vetcoreerrors "github.com/ternarybob/vetting-core/internal/vetcore/errors"
)

// ErrResumeUnavailable surfaces to callers when extraction fails; per
// 4.6 this skips vetting for the candidate this cycle rather than
// failing the run terminally.
var ErrResumeUnavailable = fmt.Errorf("resume unavailable: %w", vetcoreerrors.ErrData)

// Service implements interfaces.ResumeExtractor.
type Service struct {
	ats     interfaces.ATSClient
	cache   interfaces.ResumeCacheStorage
	pdf     interfaces.PDFExtractor
	logger  arbor.ILogger
	tempDir string
}

var _ interfaces.ResumeExtractor = (*Service)(nil)

func NewService(ats interfaces.ATSClient, cache interfaces.ResumeCacheStorage, pdf interfaces.PDFExtractor, logger arbor.ILogger) *Service {
	tempDir := filepath.Join(os.TempDir(), "vetting-core-resume")
	os.MkdirAll(tempDir, 0755)
	return &Service{ats: ats, cache: cache, pdf: pdf, logger: logger, tempDir: tempDir}
}

// Extract downloads the candidate's best resume attachment (the ATS
// client already applies 4.6's scoring function), serves from cache on
// a content-hash hit, and otherwise extracts by format and normalizes.
func (s *Service) Extract(ctx context.Context, candidateID string) (*interfaces.ExtractedResume, error) {
	raw, filename, _, err := s.ats.DownloadResume(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResumeUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty attachment", ErrResumeUnavailable)
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	if entry, found, err := s.cache.Get(ctx, hash); err == nil && found && entry.RawText != "" {
		if recErr := s.cache.RecordHit(ctx, hash); recErr != nil {
			s.logger.Warn().Err(recErr).Str("content_hash", hash).Msg("failed to record resume cache hit")
		}
		return &interfaces.ExtractedResume{
			ContentHash: hash,
			RawText:     entry.RawText,
			Filename:    filename,
			CacheHit:    true,
		}, nil
	}

	rawText, err := s.extractByFormat(ctx, raw, filename)
	if err != nil {
		s.logger.Warn().Err(err).Str("candidate_id", candidateID).Str("filename", filename).Msg("resume extraction failed")
		return nil, fmt.Errorf("%w: %v", ErrResumeUnavailable, err)
	}

	normalized := normalize(rawText)

	entry := &models.ResumeCacheEntry{
		ContentHash:  hash,
		RawText:      normalized,
		HitCount:     1,
		LastAccessed: time.Now(),
		CreatedAt:    time.Now(),
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("content_hash", hash).Msg("failed to persist resume cache entry")
	}

	return &interfaces.ExtractedResume{
		ContentHash: hash,
		RawText:     normalized,
		Filename:    filename,
		CacheHit:    false,
	}, nil
}

// extractByFormat dispatches by file extension: PDF via the block-aware
// extractor, DOCX via a structured OOXML parser, DOC via a best-effort
// legacy text scan (no actively-maintained pure-Go binary .doc parser
// exists in the wider ecosystem, so this falls back to stripping
// non-printable bytes rather than a real structured parse), TXT as-is.
func (s *Service) extractByFormat(ctx context.Context, raw []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return s.extractPDF(ctx, raw)
	case ".docx":
		return s.extractDOCX(raw)
	case ".doc":
		return extractLegacyDOC(raw), nil
	case ".txt":
		return string(raw), nil
	default:
		return s.extractPDF(ctx, raw)
	}
}

func (s *Service) extractPDF(ctx context.Context, raw []byte) (string, error) {
	pages, err := s.pdf.ExtractPages(ctx, raw)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(page.Text)
	}
	return b.String(), nil
}

func (s *Service) extractDOCX(raw []byte) (string, error) {
	tempFile := filepath.Join(s.tempDir, fmt.Sprintf("resume_%d.docx", time.Now().UnixNano()))
	if err := os.WriteFile(tempFile, raw, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp docx file: %w", err)
	}
	defer os.Remove(tempFile)

	r, err := docx.ReadDocxFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	return r.Editable().GetContent(), nil
}

// extractLegacyDOC keeps only printable ASCII/UTF-8 runs, a coarse
// approximation of the embedded text in a binary .doc container.
func extractLegacyDOC(raw []byte) string {
	var b strings.Builder
	lastWasSpace := true
	for _, r := range raw {
		printable := r >= 0x20 && r < 0x7f
		if printable {
			b.WriteByte(r)
			lastWasSpace = r == ' '
			continue
		}
		if !lastWasSpace {
			b.WriteByte(' ')
			lastWasSpace = true
		}
	}
	return b.String()
}
