// Package complete remediates quality issues found by the auditor. For each
// issue it tries a fixed sequence of strategies, cheapest first, and stops
// at the first one that measurably improves the record.
package complete

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/mapper"
	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/scraper"
	"github.com/diet-tracker/billsync/internal/store"
	"github.com/diet-tracker/billsync/internal/validate"
)

// Processor attempts to complete bills flagged by the auditor.
type Processor struct {
	store   store.Store
	scraper scraper.Scraper
	cfg     config.CompletionConfig
}

// New creates a Processor. The scraper may be nil, in which case the two
// fetch strategies are skipped and only local re-derivation is attempted.
func New(st store.Store, sc scraper.Scraper, cfg config.CompletionConfig) *Processor {
	if cfg.RefetchTimeoutSecs <= 0 {
		cfg.RefetchTimeoutSecs = 60
	}
	return &Processor{store: st, scraper: sc, cfg: cfg}
}

// strategies is the fixed attempt order. Manual review is not listed: it is
// the fallback when everything else fails.
var strategies = []model.Strategy{
	model.StrategyRefetch,
	model.StrategyCrossChamber,
	model.StrategyRederive,
}

// Complete tries to remediate one issue. A strategy succeeds only when it
// strictly raises the quality score without introducing new validation
// errors; on success the improved bill is persisted and re-validated state
// is reflected in the outcome. Issues no strategy can fix are routed to
// manual review rather than reported as errors.
func (p *Processor) Complete(ctx context.Context, issue model.QualityIssue) (model.CompletionOutcome, error) {
	log := zap.L().With(
		zap.String("component", "complete"),
		zap.String("bill_number", issue.Identity.BillNumber),
		zap.Int("session", issue.Identity.DietSession),
		zap.String("issue", string(issue.Type)))

	bill, err := p.loadBill(ctx, issue)
	if err != nil {
		return model.CompletionOutcome{}, err
	}
	if bill == nil {
		// Orphaned-history issues have no bill to complete.
		return model.CompletionOutcome{
			AppliedStrategy:      model.StrategyManualReview,
			RequiresManualReview: true,
			Detail:               "no stored bill for this issue",
		}, nil
	}

	baseline := validate.Validate(bill)

	for _, strategy := range strategies {
		candidate, tried, err := p.apply(ctx, strategy, bill)
		if err != nil {
			log.Warn("completion strategy failed",
				zap.String("strategy", string(strategy)), zap.Error(err))
			continue
		}
		if !tried {
			continue
		}

		after := validate.Validate(candidate)
		if !improved(baseline, after) {
			log.Debug("completion strategy did not improve record",
				zap.String("strategy", string(strategy)),
				zap.Float64("before", baseline.QualityScore),
				zap.Float64("after", after.QualityScore))
			continue
		}

		candidate.QualityScore = after.QualityScore
		candidate.Draft = !after.IsValid
		candidate.LastUpdated = time.Now().UTC()
		if _, err := p.store.Upsert(ctx, candidate); err != nil {
			return model.CompletionOutcome{}, eris.Wrap(err, "complete: persist improved bill")
		}

		log.Info("bill completed",
			zap.String("strategy", string(strategy)),
			zap.Float64("score", after.QualityScore))
		return model.CompletionOutcome{
			AppliedStrategy: strategy,
			Success:         true,
			NewQualityScore: after.QualityScore,
			Detail:          fmt.Sprintf("score %.2f -> %.2f", baseline.QualityScore, after.QualityScore),
		}, nil
	}

	return model.CompletionOutcome{
		AppliedStrategy:      model.StrategyManualReview,
		RequiresManualReview: true,
		Detail:               "no automated strategy improved the record",
	}, nil
}

// loadBill resolves the issue's subject, by row ID when present and by
// identity otherwise.
func (p *Processor) loadBill(ctx context.Context, issue model.QualityIssue) (*model.CanonicalBill, error) {
	if issue.BillID != "" {
		b, err := p.store.GetBill(ctx, issue.BillID)
		if err != nil {
			return nil, eris.Wrap(err, "complete: load bill by id")
		}
		if b != nil {
			return b, nil
		}
	}
	if issue.Identity.BillNumber == "" {
		return nil, nil
	}
	b, err := p.store.GetByIdentity(ctx, issue.Identity)
	if err != nil {
		return nil, eris.Wrap(err, "complete: load bill by identity")
	}
	return b, nil
}

// apply runs one strategy and returns the candidate record. tried=false
// means the strategy's preconditions were not met (no source URL, no
// scraper) and it should not count as a failed attempt.
func (p *Processor) apply(ctx context.Context, strategy model.Strategy, bill *model.CanonicalBill) (candidate *model.CanonicalBill, tried bool, err error) {
	switch strategy {
	case model.StrategyRefetch:
		return p.refetch(ctx, bill)
	case model.StrategyCrossChamber:
		return p.crossChamber(ctx, bill)
	case model.StrategyRederive:
		return p.rederive(bill)
	default:
		return nil, false, eris.Errorf("complete: unknown strategy %q", strategy)
	}
}

// refetch re-pulls the bill's own detail page and fills fields the stored
// record is missing. Populated fields are never overwritten.
func (p *Processor) refetch(ctx context.Context, bill *model.CanonicalBill) (*model.CanonicalBill, bool, error) {
	if p.scraper == nil || bill.SourceURL == "" {
		return nil, false, nil
	}
	house := bill.SourceHouse
	if !house.Valid() {
		house = bill.HouseOfOrigin
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.RefetchTimeoutSecs)*time.Second)
	defer cancel()

	raw, err := p.scraper.FetchBillDetail(ctx, house, bill.SourceURL)
	if err != nil {
		return nil, true, eris.Wrap(err, "complete: refetch detail")
	}
	fresh, err := mapper.Map(*raw)
	if err != nil {
		return nil, true, eris.Wrap(err, "complete: map refetched record")
	}
	return fillMissing(bill, fresh), true, nil
}

// crossChamber looks the bill up in the other chamber's session list. The
// chambers publish overlapping but differently detailed records, so the
// opposite house often carries exactly the fields the origin house omits.
func (p *Processor) crossChamber(ctx context.Context, bill *model.CanonicalBill) (*model.CanonicalBill, bool, error) {
	if p.scraper == nil {
		return nil, false, nil
	}
	other := bill.HouseOfOrigin.Other()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.RefetchTimeoutSecs)*time.Second)
	defer cancel()

	records, err := p.scraper.FetchBillList(ctx, other, bill.DietSession)
	if err != nil {
		return nil, true, eris.Wrap(err, "complete: cross-chamber list")
	}

	for _, raw := range records {
		fresh, err := mapper.Map(raw)
		if err != nil {
			continue
		}
		if fresh.DietSession == 0 {
			fresh.DietSession = bill.DietSession
		}
		if fresh.BillNumber != bill.BillNumber || fresh.DietSession != bill.DietSession {
			continue
		}
		return fillMissing(bill, fresh), true, nil
	}
	return nil, true, eris.Errorf("complete: bill %s not found in %s session %d list",
		bill.BillNumber, other, bill.DietSession)
}

// rederive extracts key provisions from the stored outline without touching
// any populated field.
func (p *Processor) rederive(bill *model.CanonicalBill) (*model.CanonicalBill, bool, error) {
	if len(bill.KeyProvisions) > 0 || bill.BillOutline == nil {
		return nil, false, nil
	}
	provisions := DeriveProvisions(*bill.BillOutline)
	if len(provisions) == 0 {
		return nil, true, eris.New("complete: outline yielded no provisions")
	}
	candidate := *bill
	candidate.KeyProvisions = provisions
	return &candidate, true, nil
}

// fillMissing copies fields from fresh into a copy of base, only where base
// has nothing. Identity, stage, and process sub-state are left alone: those
// belong to the integration manager's merge, not completion.
func fillMissing(base *model.CanonicalBill, fresh *model.CanonicalBill) *model.CanonicalBill {
	out := *base

	fillStr := func(dst **string, src *string) {
		if *dst == nil && src != nil && *src != "" {
			v := *src
			*dst = &v
		}
	}
	fillStr(&out.Title, fresh.Title)
	fillStr(&out.BillOutline, fresh.BillOutline)
	fillStr(&out.BackgroundContext, fresh.BackgroundContext)
	fillStr(&out.ExpectedEffects, fresh.ExpectedEffects)
	fillStr(&out.ImplementationDate, fresh.ImplementationDate)
	fillStr(&out.SubmitterType, fresh.SubmitterType)
	fillStr(&out.SponsoringMinistry, fresh.SponsoringMinistry)
	fillStr(&out.SubmissionDate, fresh.SubmissionDate)

	if out.BillType == nil && fresh.BillType != nil {
		v := *fresh.BillType
		out.BillType = &v
	}
	if len(out.KeyProvisions) == 0 {
		out.KeyProvisions = append([]string(nil), fresh.KeyProvisions...)
	}
	if len(out.RelatedLaws) == 0 {
		out.RelatedLaws = append([]string(nil), fresh.RelatedLaws...)
	}
	if len(out.SubmittingMembers) == 0 {
		out.SubmittingMembers = append([]string(nil), fresh.SubmittingMembers...)
	}
	// Supporters are only tracked by the Representatives feed; copying them
	// from a Councillors record would trip validation.
	if len(out.SupportingMembers) == 0 && fresh.SourceHouse != model.HouseCouncillors {
		out.SupportingMembers = append([]string(nil), fresh.SupportingMembers...)
	}

	return &out
}

// improved reports whether the candidate validation result is a strict
// improvement: a higher score with no validation errors the baseline did not
// already have. Counting errors is not enough; trading one error for a
// different one is not an improvement.
func improved(before, after validate.ValidationResult) bool {
	if after.QualityScore <= before.QualityScore {
		return false
	}
	known := make(map[string]bool, len(before.Errors))
	for _, e := range before.Errors {
		known[e] = true
	}
	for _, e := range after.Errors {
		if !known[e] {
			return false
		}
	}
	return true
}
