// Package integrate orchestrates per-session bill integration: concurrent
// per-chamber fetches, identity grouping, map → merge → validate → persist.
package integrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/mapper"
	"github.com/diet-tracker/billsync/internal/merge"
	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/resilience"
	"github.com/diet-tracker/billsync/internal/scraper"
	"github.com/diet-tracker/billsync/internal/store"
	"github.com/diet-tracker/billsync/internal/validate"
)

// Manager runs integration for one Diet session at a time. Per-bill work is
// independent and runs concurrently up to the configured cap; merge itself
// is a pure single-threaded computation over already-fetched data.
type Manager struct {
	store   store.Store
	scraper scraper.Scraper
	prio    merge.Priority
	cfg     config.IntegrationConfig
	now     func() time.Time
}

// NewManager creates a Manager. A nil priority table uses the defaults.
func NewManager(st store.Store, sc scraper.Scraper, prio merge.Priority, cfg config.IntegrationConfig) *Manager {
	if prio == nil {
		prio = merge.DefaultPriority()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.PersistRetries <= 0 {
		cfg.PersistRetries = 3
	}
	return &Manager{
		store:   st,
		scraper: sc,
		prio:    prio,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Integrate fetches both chambers' bill lists for the session, merges
// records that share an identity, validates, and persists. One failing bill
// never aborts the batch; per-item failures come back in the result.
func (m *Manager) Integrate(ctx context.Context, session int) (*model.IntegrationResult, error) {
	log := zap.L().With(zap.String("component", "integrate"), zap.Int("session", session))

	result := &model.IntegrationResult{Session: session}

	records, fetchErrs := m.fetchChambers(ctx, session)
	result.Errors = append(result.Errors, fetchErrs...)
	if len(records) == 0 {
		if len(fetchErrs) > 0 {
			return nil, eris.Errorf("integrate: all chamber fetches failed for session %d", session)
		}
		log.Info("no bills published for session")
		return result, nil
	}

	groups := m.groupByIdentity(session, records, result)
	log.Info("grouped raw records",
		zap.Int("records", len(records)),
		zap.Int("bills", len(groups)),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)

	for _, group := range groups {
		g.Go(func() error {
			outcome := m.processGroup(gctx, group)
			mu.Lock()
			defer mu.Unlock()
			result.BillsProcessed++
			result.ConflictsDetected += outcome.conflicts
			if outcome.created {
				result.BillsCreated++
			}
			if outcome.updated {
				result.BillsUpdated++
			}
			result.Errors = append(result.Errors, outcome.errs...)
			return nil
		})
	}
	// Goroutines only report through the shared result; the group error is
	// always nil unless the context died.
	if err := g.Wait(); err != nil {
		return result, err
	}

	log.Info("integration run complete",
		zap.Int("processed", result.BillsProcessed),
		zap.Int("created", result.BillsCreated),
		zap.Int("updated", result.BillsUpdated),
		zap.Int("conflicts", result.ConflictsDetected),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// fetchChambers fetches both bill lists concurrently. A single chamber
// failing is a per-chamber error, not a run failure; integration proceeds
// with whatever arrived.
func (m *Manager) fetchChambers(ctx context.Context, session int) ([]mapper.RawRecord, []model.IntegrationError) {
	if m.cfg.FetchTimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.FetchTimeoutSecs)*time.Second)
		defer cancel()
	}

	houses := []model.House{model.HouseRepresentatives, model.HouseCouncillors}
	perHouse := make([][]mapper.RawRecord, len(houses))
	fetchErrs := make([]error, len(houses))

	g, gctx := errgroup.WithContext(ctx)
	for i, house := range houses {
		g.Go(func() error {
			recs, err := m.scraper.FetchBillList(gctx, house, session)
			perHouse[i] = recs
			fetchErrs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var records []mapper.RawRecord
	var errs []model.IntegrationError
	for i, house := range houses {
		if fetchErrs[i] != nil {
			zap.L().Error("chamber fetch failed",
				zap.String("house", string(house)),
				zap.Int("session", session),
				zap.Error(fetchErrs[i]),
			)
			errs = append(errs, model.IntegrationError{
				Identity: model.Identity{DietSession: session, HouseOfOrigin: house},
				Phase:    "fetch",
				Message:  fetchErrs[i].Error(),
			})
			continue
		}
		records = append(records, perHouse[i]...)
	}
	return records, errs
}

// billGroup is the set of partial records sharing one bill identity.
type billGroup struct {
	key      string
	partials []*model.CanonicalBill
}

// groupByIdentity maps raw records and buckets them by normalized
// bill_number + session. Records the mapper rejects (unknown chamber) are
// recorded as errors; records without a bill number cannot be grouped and
// are processed standalone.
func (m *Manager) groupByIdentity(session int, records []mapper.RawRecord, result *model.IntegrationResult) []billGroup {
	byKey := make(map[string]*billGroup)
	var order []string

	for i, raw := range records {
		partial, err := mapper.Map(raw)
		if err != nil {
			result.Errors = append(result.Errors, model.IntegrationError{
				Identity: model.Identity{DietSession: session, HouseOfOrigin: raw.House},
				Phase:    "map",
				Message:  err.Error(),
			})
			continue
		}
		if partial.DietSession == 0 {
			partial.DietSession = session
		}

		key := fmt.Sprintf("%s#%d", partial.BillNumber, partial.DietSession)
		if partial.BillNumber == "" {
			key = fmt.Sprintf("#unnumbered-%d", i)
		}

		grp, ok := byKey[key]
		if !ok {
			grp = &billGroup{key: key}
			byKey[key] = grp
			order = append(order, key)
		}
		grp.partials = append(grp.partials, partial)
	}

	groups := make([]billGroup, 0, len(order))
	for _, key := range order {
		grp := byKey[key]
		reconcileOrigin(grp.partials)
		groups = append(groups, *grp)
	}
	return groups
}

// reconcileOrigin settles house_of_origin for a group whose chambers use
// different numbering schemes. The chamber that published submission info
// (submitters or a submission date) is the originator; when neither or both
// did, the House of Representatives snapshot wins as the tiebreak.
func reconcileOrigin(partials []*model.CanonicalBill) {
	if len(partials) < 2 {
		return
	}
	origin := model.House("")
	for _, p := range partials {
		if len(p.SubmittingMembers) > 0 || p.SubmissionDate != nil {
			origin = p.SourceHouse
			break
		}
	}
	if origin == "" {
		origin = model.HouseRepresentatives
	}
	for _, p := range partials {
		p.HouseOfOrigin = origin
	}
}

type groupOutcome struct {
	created   bool
	updated   bool
	conflicts int
	errs      []model.IntegrationError
}

// processGroup merges, validates, and persists one bill. Invalid records
// are persisted as drafts and surfaced as errors rather than dropped, so
// completion and migration can still target them.
func (m *Manager) processGroup(ctx context.Context, group billGroup) groupOutcome {
	var out groupOutcome

	res, err := merge.Merge(group.partials, m.prio)
	if err != nil {
		// Identity mismatches inside a group mean the grouping logic fed
		// the merger garbage; log loudly, it is a bug, not bad data.
		zap.L().Error("merge failed for group",
			zap.String("group", group.key),
			zap.Error(err),
		)
		out.errs = append(out.errs, model.IntegrationError{
			Identity: group.partials[0].Identity(),
			Phase:    "merge",
			Message:  err.Error(),
		})
		return out
	}

	bill := res.Merged
	out.conflicts = len(res.Conflicts)

	existing, err := m.store.GetByIdentity(ctx, bill.Identity())
	if err != nil {
		out.errs = append(out.errs, model.IntegrationError{
			Identity: bill.Identity(),
			Phase:    "load",
			Message:  err.Error(),
		})
		return out
	}

	var history []*model.ProcessHistoryEntry
	if existing != nil {
		bill.ID = existing.ID
		history = m.diffStages(existing, bill)
		fillFromExisting(bill, existing)
	}

	vres := validate.Validate(bill)
	bill.QualityScore = vres.QualityScore
	bill.Draft = !vres.IsValid
	bill.LastUpdated = m.now()
	if !vres.IsValid {
		out.errs = append(out.errs, model.IntegrationError{
			Identity: bill.Identity(),
			Phase:    "validate",
			Message:  fmt.Sprintf("persisted as draft: %v", vres.Errors),
		})
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = m.cfg.PersistRetries
	retryCfg.OnRetry = resilience.RetryLogger("integrate", "upsert")

	billID, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		return m.store.Upsert(ctx, bill)
	})
	if err != nil {
		out.errs = append(out.errs, model.IntegrationError{
			Identity: bill.Identity(),
			Phase:    "persist",
			Message:  err.Error(),
		})
		return out
	}

	for _, entry := range history {
		entry.BillID = billID
		if err := m.store.AppendHistory(ctx, entry); err != nil {
			out.errs = append(out.errs, model.IntegrationError{
				Identity: bill.Identity(),
				Phase:    "history",
				Message:  err.Error(),
			})
		}
	}

	out.created = existing == nil
	out.updated = existing != nil
	return out
}

// diffStages compares the stored stage against the fresh merge and prepares
// ledger entries. The government site is the source of truth, so a backward
// transition is still applied — but it is recorded as a regression so the
// auditor can surface it for human review.
func (m *Manager) diffStages(existing, fresh *model.CanonicalBill) []*model.ProcessHistoryEntry {
	if fresh.CurrentStage == "" {
		fresh.CurrentStage = existing.CurrentStage
		return nil
	}
	if fresh.CurrentStage == existing.CurrentStage {
		return nil
	}

	actionType := model.ActionStageChange
	notes := ""
	switch {
	case fresh.CurrentStage == model.StageCarriedOver:
		actionType = model.ActionCarryOver
		fresh.ApplyCarryOver()
	case model.IsRegression(existing.CurrentStage, fresh.CurrentStage):
		actionType = model.ActionStageRegression
		notes = fmt.Sprintf("stage moved backwards: %s -> %s", existing.CurrentStage, fresh.CurrentStage)
		zap.L().Warn("stage regression detected",
			zap.String("bill", existing.BillNumber),
			zap.Int("session", existing.DietSession),
			zap.String("from", string(existing.CurrentStage)),
			zap.String("to", string(fresh.CurrentStage)),
		)
	}

	entry := &model.ProcessHistoryEntry{
		Stage:      fresh.CurrentStage,
		House:      fresh.HouseOfOrigin,
		ActionDate: m.now(),
		ActionType: actionType,
		Notes:      notes,
		Details: map[string]any{
			"previous_stage": string(existing.CurrentStage),
		},
	}
	if len(fresh.CommitteeAssignments) > 0 {
		for name := range fresh.CommitteeAssignments {
			entry.Committee = name
			break
		}
	}
	if r, ok := fresh.VotingResults["result"]; ok {
		entry.Result = r
	}
	return []*model.ProcessHistoryEntry{entry}
}

// fillFromExisting backfills fields the fresh scrape did not provide from
// the stored record, so a thinner re-scrape never erases known data. Fresh
// values always win; enrichment-owned fields are always carried over.
func fillFromExisting(fresh, existing *model.CanonicalBill) {
	if fresh.Title == nil {
		fresh.Title = existing.Title
	}
	if fresh.BillType == nil {
		fresh.BillType = existing.BillType
	}
	if fresh.BillOutline == nil {
		fresh.BillOutline = existing.BillOutline
	}
	if fresh.BackgroundContext == nil {
		fresh.BackgroundContext = existing.BackgroundContext
	}
	if fresh.ExpectedEffects == nil {
		fresh.ExpectedEffects = existing.ExpectedEffects
	}
	if fresh.KeyProvisions == nil {
		fresh.KeyProvisions = existing.KeyProvisions
	}
	if fresh.ImplementationDate == nil {
		fresh.ImplementationDate = existing.ImplementationDate
	}
	if fresh.RelatedLaws == nil {
		fresh.RelatedLaws = existing.RelatedLaws
	}
	if fresh.SubmitterType == nil {
		fresh.SubmitterType = existing.SubmitterType
	}
	if fresh.SubmittingMembers == nil {
		fresh.SubmittingMembers = existing.SubmittingMembers
	}
	if fresh.SupportingMembers == nil {
		fresh.SupportingMembers = existing.SupportingMembers
	}
	if fresh.SponsoringMinistry == nil {
		fresh.SponsoringMinistry = existing.SponsoringMinistry
	}
	if fresh.SubmissionDate == nil {
		fresh.SubmissionDate = existing.SubmissionDate
	}
	if fresh.CurrentStage != model.StageCarriedOver {
		if fresh.CommitteeAssignments == nil {
			fresh.CommitteeAssignments = existing.CommitteeAssignments
		}
		if fresh.VotingResults == nil {
			fresh.VotingResults = existing.VotingResults
		}
		if fresh.InterHouseStatus == nil {
			fresh.InterHouseStatus = existing.InterHouseStatus
		}
	}
	if fresh.Amendments == nil {
		fresh.Amendments = existing.Amendments
	}
	if fresh.SourceURL == "" {
		fresh.SourceURL = existing.SourceURL
	}

	fresh.Category = existing.Category
	fresh.IssueTags = existing.IssueTags
}
