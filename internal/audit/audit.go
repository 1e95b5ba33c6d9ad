// Package audit scans the stored bill corpus for data-quality problems.
// The auditor is strictly read-only: it never writes to the store, and its
// findings live only in the report artifact it produces.
package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/store"
	"github.com/diet-tracker/billsync/internal/validate"
)

// Auditor runs quality checks over the bill corpus.
type Auditor struct {
	store store.Store
	cfg   config.AuditConfig
	now   func() time.Time
}

// New creates an Auditor.
func New(st store.Store, cfg config.AuditConfig) *Auditor {
	if cfg.StaleDays <= 0 {
		cfg.StaleDays = 14
	}
	if cfg.QualityScoreThreshold <= 0 {
		cfg.QualityScoreThreshold = 0.6
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 300
	}
	return &Auditor{store: st, cfg: cfg, now: time.Now}
}

// Run audits every stored bill (optionally limited to one Diet session) and
// returns a report with issues in remediation-priority order.
func (a *Auditor) Run(ctx context.Context, session int) (*model.AuditReport, error) {
	log := zap.L().With(zap.String("component", "audit"))

	ctx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.TimeoutSecs)*time.Second)
	defer cancel()

	bills, err := a.store.ListAll(ctx, store.BillFilter{Session: session})
	if err != nil {
		return nil, eris.Wrap(err, "audit: list bills")
	}

	var issues []model.QualityIssue
	scoreSum := 0.0
	for i := range bills {
		b := &bills[i]
		issues = append(issues, a.checkBill(b)...)
		scoreSum += b.QualityScore
	}

	issues = append(issues, a.checkDuplicates(bills)...)

	regressions, err := a.checkStageRegressions(ctx, bills)
	if err != nil {
		return nil, err
	}
	issues = append(issues, regressions...)

	orphans, err := a.checkOrphanedHistory(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, orphans...)

	rankIssues(issues)

	byType := make(map[model.IssueType]int)
	for _, is := range issues {
		byType[is.Type]++
	}

	avg := 0.0
	if len(bills) > 0 {
		avg = scoreSum / float64(len(bills))
	}

	report := &model.AuditReport{
		GeneratedAt: a.now().UTC(),
		Session:     session,
		Totals: model.AuditSummary{
			BillsAudited:   len(bills),
			IssuesFound:    len(issues),
			ByType:         byType,
			AverageQuality: avg,
		},
		Issues: issues,
		ByType: byType,
	}

	log.Info("audit complete",
		zap.Int("bills", len(bills)),
		zap.Int("issues", len(issues)),
		zap.Float64("average_quality", avg))
	return report, nil
}

// checkBill runs the per-record checks against one stored bill.
func (a *Auditor) checkBill(b *model.CanonicalBill) []model.QualityIssue {
	var issues []model.QualityIssue
	id := b.Identity()

	add := func(t model.IssueType, sev model.Severity, detail string) {
		issues = append(issues, model.QualityIssue{
			BillID:      b.ID,
			Identity:    id,
			Type:        t,
			Severity:    sev,
			Detail:      detail,
			LastUpdated: b.LastUpdated,
		})
	}

	res := validate.Validate(b)
	for _, e := range res.Errors {
		add(model.IssueMissingRequiredField, model.SeverityError, e)
	}
	for _, w := range res.Warnings {
		// The validator's two warnings map onto distinct audit categories.
		switch {
		case strings.HasPrefix(w, "outline"):
			add(model.IssueShortOutline, model.SeverityWarning, w)
		default:
			add(model.IssueMissingProvisions, model.SeverityWarning, w)
		}
	}

	if age := a.now().Sub(b.LastUpdated); age > time.Duration(a.cfg.StaleDays)*24*time.Hour {
		add(model.IssueStaleData, model.SeverityWarning,
			fmt.Sprintf("not updated for %d days", int(age.Hours()/24)))
	}

	if len(b.Conflicts) > 0 {
		for _, c := range b.Conflicts {
			add(model.IssueConflictingSource, model.SeverityWarning,
				fmt.Sprintf("sources disagreed on %s (resolved by %s)", c.Field, c.ResolvedBy))
		}
	}

	if b.QualityScore < a.cfg.QualityScoreThreshold {
		add(model.IssueLowQualityScore, model.SeverityWarning,
			fmt.Sprintf("quality score %.2f below threshold %.2f", b.QualityScore, a.cfg.QualityScoreThreshold))
	}

	if b.Category == nil || *b.Category == "" {
		add(model.IssueCategoryMissing, model.SeverityInfo, "no policy category assigned")
	}

	return issues
}

// checkDuplicates finds identity triples that resolve to more than one
// stored record. The unique constraint on the bills table makes this
// unreachable through the normal write path; it catches rows created before
// the constraint existed or imported from elsewhere.
func (a *Auditor) checkDuplicates(bills []model.CanonicalBill) []model.QualityIssue {
	seen := make(map[model.Identity][]*model.CanonicalBill)
	for i := range bills {
		id := bills[i].Identity()
		seen[id] = append(seen[id], &bills[i])
	}

	var issues []model.QualityIssue
	for id, group := range seen {
		if len(group) < 2 {
			continue
		}
		for _, b := range group {
			issues = append(issues, model.QualityIssue{
				BillID:               b.ID,
				Identity:             id,
				Type:                 model.IssueDuplicateIdentity,
				Severity:             model.SeverityError,
				Detail:               fmt.Sprintf("%d records share this identity", len(group)),
				LastUpdated:          b.LastUpdated,
				RequiresManualReview: true,
			})
		}
	}
	return issues
}

// checkStageRegressions surfaces bills whose ledger records a backward stage
// transition. The integration manager applies regressions because the source
// site wins, but each one needs a human decision: either the site corrected
// itself or the earlier record was wrong.
func (a *Auditor) checkStageRegressions(ctx context.Context, bills []model.CanonicalBill) ([]model.QualityIssue, error) {
	entries, err := a.store.HistoryByAction(ctx, model.ActionStageRegression)
	if err != nil {
		return nil, eris.Wrap(err, "audit: stage regressions")
	}

	inScope := make(map[string]*model.CanonicalBill, len(bills))
	for i := range bills {
		inScope[bills[i].ID] = &bills[i]
	}

	var issues []model.QualityIssue
	seen := make(map[string]bool)
	for _, e := range entries {
		b, ok := inScope[e.BillID]
		// Entries for out-of-scope or deleted bills are not this check's
		// concern; one issue per bill is enough however many times it moved.
		if !ok || seen[e.BillID] {
			continue
		}
		seen[e.BillID] = true

		detail := fmt.Sprintf("stage moved backwards to %s", e.Stage)
		if prev, ok := e.Details["previous_stage"].(string); ok && prev != "" {
			detail = fmt.Sprintf("stage moved backwards: %s -> %s", prev, e.Stage)
		}
		issues = append(issues, model.QualityIssue{
			BillID:               b.ID,
			Identity:             b.Identity(),
			Type:                 model.IssueStageRegression,
			Severity:             model.SeverityWarning,
			Detail:               detail,
			LastUpdated:          b.LastUpdated,
			RequiresManualReview: true,
		})
	}
	return issues, nil
}

// checkOrphanedHistory finds process-history rows whose bill no longer
// exists. Cascading deletes should prevent these; finding one means the
// ledger and the bills table diverged outside the application.
func (a *Auditor) checkOrphanedHistory(ctx context.Context) ([]model.QualityIssue, error) {
	entries, err := a.store.OrphanedHistory(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "audit: orphaned history")
	}

	var issues []model.QualityIssue
	for _, e := range entries {
		issues = append(issues, model.QualityIssue{
			BillID:               e.BillID,
			Type:                 model.IssueOrphanedProcessHistory,
			Severity:             model.SeverityError,
			Detail:               fmt.Sprintf("history entry %s references missing bill %s", e.ID, e.BillID),
			LastUpdated:          e.ActionDate,
			RequiresManualReview: true,
		})
	}
	return issues, nil
}

// rankIssues sorts issues for remediation: structural categories first, and
// within a category the longest-unattended record first. The sort is stable
// so equal-rank issues keep their discovery order.
func rankIssues(issues []model.QualityIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		wi, wj := issues[i].Type.RankWeight(), issues[j].Type.RankWeight()
		if wi != wj {
			return wi < wj
		}
		return issues[i].LastUpdated.Before(issues[j].LastUpdated)
	})
}
