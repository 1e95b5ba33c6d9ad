package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/mapper"
	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/ocr"
	"github.com/diet-tracker/billsync/internal/resilience"
)

// HTTPScraper fetches the structured bill snapshots published by the
// scraping tier, one feed per chamber, with a per-chamber rate limiter so
// government hosts are never hit faster than policy allows.
type HTTPScraper struct {
	client   *http.Client
	cfg      config.ScraperConfig
	baseURLs map[model.House]string
	limiters map[model.House]*rate.Limiter
	ocr      ocr.Extractor
}

// NewHTTP creates an HTTPScraper. The OCR extractor is optional; without it
// the PDF fallback is skipped.
func NewHTTP(cfg config.ScraperConfig, extractor ocr.Extractor) *HTTPScraper {
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 30
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 0.5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "billsync/1.0"
	}

	newLimiter := func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &HTTPScraper{
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		cfg:    cfg,
		baseURLs: map[model.House]string{
			model.HouseRepresentatives: strings.TrimRight(cfg.RepresentativesBaseURL, "/"),
			model.HouseCouncillors:     strings.TrimRight(cfg.CouncillorsBaseURL, "/"),
		},
		// Each chamber gets its own limiter: the two hosts are unrelated
		// and one slow chamber must not starve the other.
		limiters: map[model.House]*rate.Limiter{
			model.HouseRepresentatives: newLimiter(),
			model.HouseCouncillors:     newLimiter(),
		},
		ocr: extractor,
	}
}

// FetchBillList fetches the session's bill list for one chamber.
func (s *HTTPScraper) FetchBillList(ctx context.Context, house model.House, session int) ([]mapper.RawRecord, error) {
	base, ok := s.baseURLs[house]
	if !ok || base == "" {
		return nil, eris.Errorf("scraper: no base url configured for house %q", house)
	}
	url := fmt.Sprintf("%s/sessions/%d/bills.json", base, session)

	body, err := s.fetch(ctx, house, url)
	if err != nil {
		return nil, err
	}

	var records []mapper.RawRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, eris.Wrapf(err, "scraper: decode bill list %s", url)
	}

	for i := range records {
		if records[i].House == "" {
			records[i].House = house
		}
	}
	return records, nil
}

// FetchBillDetail fetches one bill's detail record. When the outline text
// comes back under the configured minimum length and the record points at a
// PDF, the OCR fallback fills it in.
func (s *HTTPScraper) FetchBillDetail(ctx context.Context, house model.House, url string) (*mapper.RawRecord, error) {
	body, err := s.fetch(ctx, house, url)
	if err != nil {
		return nil, err
	}

	var record mapper.RawRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, eris.Wrapf(err, "scraper: decode bill detail %s", url)
	}
	if record.House == "" {
		record.House = house
	}
	if record.SourceURL == "" {
		record.SourceURL = url
	}

	s.maybeOCR(ctx, house, &record)
	return &record, nil
}

// maybeOCR replaces a too-short outline with PDF-extracted text when the
// record carries a pdf_url. Failures are logged and ignored: a thin outline
// is a quality issue, not a fetch failure.
func (s *HTTPScraper) maybeOCR(ctx context.Context, house model.House, record *mapper.RawRecord) {
	if s.ocr == nil {
		return
	}
	pdfURL, _ := record.Fields["pdf_url"].(string)
	if pdfURL == "" {
		return
	}
	outline, _ := record.Fields["議案要旨"].(string)
	if utf8.RuneCountInString(outline) >= s.cfg.MinTextLength {
		return
	}

	pdf, err := s.fetch(ctx, house, pdfURL)
	if err != nil {
		zap.L().Warn("scraper: pdf fetch for ocr failed",
			zap.String("url", pdfURL), zap.Error(err))
		return
	}
	res, err := s.ocr.ExtractText(ctx, pdf)
	if err != nil {
		zap.L().Warn("scraper: ocr extraction failed",
			zap.String("url", pdfURL), zap.Error(err))
		return
	}
	if utf8.RuneCountInString(res.Text) > utf8.RuneCountInString(outline) {
		record.Fields["議案要旨"] = strings.TrimSpace(res.Text)
		zap.L().Debug("scraper: outline filled from pdf",
			zap.String("url", pdfURL),
			zap.Float64("confidence", res.Confidence))
	}
}

// fetch performs a rate-limited GET with bounded retry on 429/5xx and
// transient network errors.
func (s *HTTPScraper) fetch(ctx context.Context, house model.House, url string) ([]byte, error) {
	lim := s.limiters[house]

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "scraper: rate limiter wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "scraper: create request %s", url)
		}
		req.Header.Set("User-Agent", s.cfg.UserAgent)
		req.Header.Set("Accept", "application/json, application/pdf;q=0.9, */*;q=0.1")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, eris.Wrapf(lastErr, "scraper: fetch %s", url)
			}
			zap.L().Warn("scraper: request failed, retrying",
				zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(err))
			s.backoff(ctx, attempt)
			continue
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = resilience.NewTransientError(
				eris.Errorf("scraper: http %d from %s", resp.StatusCode, url),
				resp.StatusCode,
			)
			zap.L().Warn("scraper: transient status, retrying",
				zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
			s.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, eris.Errorf("scraper: unexpected status %d from %s", resp.StatusCode, url)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "scraper: read body %s", url)
		}
		return body, nil
	}

	return nil, eris.Wrapf(lastErr, "scraper: retries exhausted for %s", url)
}

func (s *HTTPScraper) backoff(ctx context.Context, attempt int) {
	base := time.Second
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
