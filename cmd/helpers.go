package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/audit"
	"github.com/diet-tracker/billsync/internal/complete"
	"github.com/diet-tracker/billsync/internal/ocr"
	"github.com/diet-tracker/billsync/internal/scraper"
	"github.com/diet-tracker/billsync/internal/store"
)

// openStore opens the configured store backend. Callers own Close.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// newScraper builds the HTTP scraper with the OCR fallback wired in. OCR
// setup failure degrades to no fallback rather than blocking the run.
func newScraper() scraper.Scraper {
	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		zap.L().Warn("ocr unavailable, pdf fallback disabled", zap.Error(err))
		extractor = nil
	}
	return scraper.NewHTTP(cfg.Scraper, extractor)
}

// newAuditor builds the auditor over an open store.
func newAuditor(st store.Store) *audit.Auditor {
	return audit.New(st, cfg.Audit)
}

// newProcessor builds the completion processor over an open store.
func newProcessor(st store.Store) *complete.Processor {
	return complete.New(st, newScraper(), cfg.Completion)
}
