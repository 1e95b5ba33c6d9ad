// Package scraper fetches per-chamber bill records. Implementations
// self-throttle: callers await the scraper's own rate limiting instead of
// layering a second limiter on top.
package scraper

import (
	"context"

	"github.com/diet-tracker/billsync/internal/mapper"
	"github.com/diet-tracker/billsync/internal/model"
)

// Scraper fetches raw bill records for one session or one detail page.
type Scraper interface {
	FetchBillList(ctx context.Context, house model.House, session int) ([]mapper.RawRecord, error)
	FetchBillDetail(ctx context.Context, house model.House, url string) (*mapper.RawRecord, error)
}
