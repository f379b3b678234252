// -----------------------------------------------------------------------
// PDF Extractor Service - Extract text content from PDF documents
// Uses pdfcpu for Go-native PDF processing, falling back to ledongthuc/pdf
// when pdfcpu's content extraction comes back empty (common for PDFs
// generated by resume builders that embed text in unusual content streams).
// -----------------------------------------------------------------------

package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
)

// Extractor implements interfaces.PDFExtractor using pdfcpu as the primary
// engine and ledongthuc/pdf as a fallback per page.
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

var _ interfaces.PDFExtractor = (*Extractor)(nil)

// NewExtractor creates a new PDF extractor service.
func NewExtractor(logger arbor.ILogger) *Extractor {
	tempDir := filepath.Join(os.TempDir(), "vetting-core-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Extractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// ExtractPages extracts text content by page from raw PDF bytes.
func (e *Extractor) ExtractPages(ctx context.Context, raw []byte) ([]interfaces.PDFPageContent, error) {
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%d.pdf", os.Getpid()))
	if err := os.WriteFile(tempFile, raw, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%d", os.Getpid()))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	pageTexts := make(map[int]string)
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Msg("pdfcpu content extraction failed, falling back to ledongthuc/pdf")
	} else {
		files, _ := os.ReadDir(outDir)
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
			if err != nil {
				continue
			}
			var pageNum int
			if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
				pageTexts[pageNum] = string(content)
			} else if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
				pageTexts[pageNum] = string(content)
			}
		}
	}

	needsFallback := false
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if strings.TrimSpace(pageTexts[pageNum]) == "" {
			needsFallback = true
			break
		}
	}
	if needsFallback {
		if fallbackPages, err := extractWithFallback(tempFile); err != nil {
			e.logger.Debug().Err(err).Msg("fallback PDF extraction also failed")
		} else {
			for pageNum, text := range fallbackPages {
				if strings.TrimSpace(pageTexts[pageNum]) == "" {
					pageTexts[pageNum] = text
				}
			}
		}
	}

	pages := make([]interfaces.PDFPageContent, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pages = append(pages, interfaces.PDFPageContent{PageNumber: pageNum, Text: strings.TrimSpace(pageTexts[pageNum])})
	}

	return pages, nil
}

// extractWithFallback reads plain text per page using ledongthuc/pdf,
// which recovers text from content streams pdfcpu's page-split leaves
// empty for some producers (common with resume-builder PDFs). Panics from
// malformed PDF structures are recovered rather than propagated: a corrupt
// page should fall back to whatever pdfcpu already produced, not abort
// the whole extraction.
func extractWithFallback(pdfPath string) (result map[int]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during fallback PDF extraction: %v", r)
		}
	}()

	f, reader, openErr := pdflib.Open(pdfPath)
	if openErr != nil {
		return nil, fmt.Errorf("failed to open PDF for fallback extraction: %w", openErr)
	}
	defer f.Close()

	result = make(map[int]string)
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		result[pageNum] = text
	}
	return result, nil
}
