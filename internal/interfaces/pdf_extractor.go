package interfaces

import "context"

// PDFPageContent represents extracted content from a single PDF page.
type PDFPageContent struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// PDFExtractor abstracts text extraction from a resume PDF so the
// extraction backend (pdfcpu, a fallback text-stream reader) can be
// swapped without touching the resume cache or normalization pass.
type PDFExtractor interface {
	// ExtractPages extracts text content block-by-block, preserving
	// paragraph breaks between pages.
	ExtractPages(ctx context.Context, raw []byte) ([]PDFPageContent, error)
}
