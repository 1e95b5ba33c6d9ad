package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText runs pdftotext -layout on the given PDF bytes. Confidence is
// a coarse signal: pdftotext either finds an embedded text layer or it
// doesn't, so short output gets low confidence.
func (p *PdfToText) ExtractText(ctx context.Context, pdf []byte) (Result, error) {
	tmp, err := os.CreateTemp("", "billsync-*.pdf")
	if err != nil {
		return Result{}, eris.Wrap(err, "ocr: create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return Result{}, eris.Wrap(err, "ocr: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return Result{}, eris.Wrap(err, "ocr: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", tmp.Name(), "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, eris.Wrapf(err, "ocr: pdftotext failed: %s", stderr.String())
	}

	text := stdout.String()
	confidence := 0.9
	if utf8.RuneCountInString(text) < 50 {
		confidence = 0.3
	}
	return Result{Text: text, Confidence: confidence}, nil
}
