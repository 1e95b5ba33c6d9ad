// Package ocr extracts text from PDF-sourced bill documents. It is used
// only as a fallback when the primary text extraction comes back under the
// configured minimum length.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/diet-tracker/billsync/internal/config"
)

// Result is extracted text plus the extractor's confidence in it.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Extractor extracts text content from PDF bytes.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (Result, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
