// Package migration orchestrates a full quality-remediation run: audit the
// corpus, plan remediations, optionally execute them, and audit again to
// measure the effect. A dry run produces the plan and stops before any
// store mutation.
package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/audit"
	"github.com/diet-tracker/billsync/internal/complete"
	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/model"
)

// Phase names, in execution order.
const (
	PhaseAudit   = "audit"
	PhasePlan    = "plan"
	PhaseGate    = "gate"
	PhaseExecute = "execute"
	PhaseReaudit = "reaudit"
)

// Service runs the five-phase migration.
type Service struct {
	auditor   *audit.Auditor
	processor *complete.Processor
	cfg       config.MigrationConfig
	now       func() time.Time
}

// New creates a migration Service.
func New(a *audit.Auditor, p *complete.Processor, cfg config.MigrationConfig) *Service {
	if cfg.PhaseTimeoutSecs <= 0 {
		cfg.PhaseTimeoutSecs = 600
	}
	return &Service{auditor: a, processor: p, cfg: cfg, now: time.Now}
}

// Options control one migration run.
type Options struct {
	Session int
	DryRun  bool
}

// Run executes the migration. Infrastructure failures in the audit, plan,
// or re-audit phases abort the run; per-bill failures during execute are
// recorded and skipped so one bad record cannot block the rest.
//
// The returned report is non-nil even on error so callers can export
// partial results.
func (s *Service) Run(ctx context.Context, opts Options) (*model.MigrationReport, error) {
	log := zap.L().With(
		zap.String("component", "migration"),
		zap.Bool("dry_run", opts.DryRun))

	report := &model.MigrationReport{
		ID:        uuid.NewString(),
		DryRun:    opts.DryRun,
		StartedAt: s.now().UTC(),
	}
	defer func() { report.CompletedAt = s.now().UTC() }()

	// Phase 1: audit.
	before, err := s.phaseAudit(ctx, report, PhaseAudit, opts.Session)
	if err != nil {
		return report, err
	}
	sum := before.Summary()
	report.Before = &sum

	// Phase 2: plan.
	plan := s.phasePlan(report, before)
	report.Plan = plan

	// Phase 3: gate. A dry run ends here with zero writes performed.
	if opts.DryRun {
		s.record(report, PhaseGate, model.PhaseComplete, 0, nil)
		s.record(report, PhaseExecute, model.PhaseSkipped, 0, nil)
		s.record(report, PhaseReaudit, model.PhaseSkipped, 0, nil)
		log.Info("dry run complete", zap.Int("planned_actions", len(plan.Actions)))
		return report, nil
	}
	s.record(report, PhaseGate, model.PhaseComplete, 0, nil)

	// Phase 4: execute.
	report.Actions = s.phaseExecute(ctx, report, plan)

	// Phase 5: re-audit.
	after, err := s.phaseAudit(ctx, report, PhaseReaudit, opts.Session)
	if err != nil {
		return report, err
	}
	afterSum := after.Summary()
	report.After = &afterSum

	log.Info("migration complete",
		zap.String("id", report.ID),
		zap.Int("actions", len(report.Actions)),
		zap.Int("issues_before", sum.IssuesFound),
		zap.Int("issues_after", afterSum.IssuesFound))
	return report, nil
}

func (s *Service) phaseAudit(ctx context.Context, report *model.MigrationReport, name string, session int) (*model.AuditReport, error) {
	start := s.now()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.PhaseTimeoutSecs)*time.Second)
	defer cancel()

	ar, err := s.auditor.Run(ctx, session)
	if err != nil {
		err = eris.Wrapf(err, "migration: %s phase", name)
		s.record(report, name, model.PhaseFailed, s.now().Sub(start), err)
		return nil, err
	}
	s.record(report, name, model.PhaseComplete, s.now().Sub(start), nil)
	return ar, nil
}

func (s *Service) phasePlan(report *model.MigrationReport, ar *model.AuditReport) *model.MigrationPlan {
	start := s.now()
	plan := &model.MigrationPlan{GeneratedAt: s.now().UTC()}
	for _, issue := range ar.Issues {
		plan.Actions = append(plan.Actions, model.PlannedAction{
			BillID:   issue.BillID,
			Identity: issue.Identity,
			Issue:    issue,
			Strategy: recommendStrategy(issue),
		})
	}
	s.record(report, PhasePlan, model.PhaseComplete, s.now().Sub(start), nil)
	return plan
}

func (s *Service) phaseExecute(ctx context.Context, report *model.MigrationReport, plan *model.MigrationPlan) []model.ActionOutcome {
	log := zap.L().With(zap.String("component", "migration"))
	start := s.now()

	outcomes := make([]model.ActionOutcome, 0, len(plan.Actions))
	attempted := make(map[string]bool)

	for _, action := range plan.Actions {
		out := model.ActionOutcome{
			BillID:    action.BillID,
			Identity:  action.Identity,
			IssueType: action.Issue.Type,
			Strategy:  action.Strategy,
		}

		switch {
		case action.Strategy == model.StrategyManualReview:
			out.Status = model.ActionSkipped
			out.Error = "requires manual review"
		case action.BillID != "" && attempted[action.BillID]:
			// One completion pass per bill; later issues against the same
			// record are re-evaluated by the re-audit phase.
			out.Status = model.ActionSkipped
		default:
			attempted[action.BillID] = true
			result, err := s.processor.Complete(ctx, action.Issue)
			switch {
			case err != nil:
				out.Status = model.ActionFailed
				out.Error = err.Error()
				log.Warn("migration action failed",
					zap.String("bill_number", action.Identity.BillNumber), zap.Error(err))
			case result.Success:
				out.Status = model.ActionSuccess
				out.Strategy = result.AppliedStrategy
				out.NewQualityScore = result.NewQualityScore
			default:
				out.Status = model.ActionSkipped
				out.Strategy = result.AppliedStrategy
				out.Error = result.Detail
			}
		}
		outcomes = append(outcomes, out)

		if ctx.Err() != nil {
			s.record(report, PhaseExecute, model.PhaseFailed, s.now().Sub(start), ctx.Err())
			return outcomes
		}
	}

	s.record(report, PhaseExecute, model.PhaseComplete, s.now().Sub(start), nil)
	return outcomes
}

func (s *Service) record(report *model.MigrationReport, name string, status model.PhaseStatus, d time.Duration, err error) {
	pr := model.PhaseResult{Name: name, Status: status, DurationMs: d.Milliseconds()}
	if err != nil {
		pr.Error = err.Error()
	}
	report.Phases = append(report.Phases, pr)
}

// recommendStrategy maps an issue category onto the strategy most likely to
// fix it. The completion processor still works through its full chain at
// execute time; this is the planner's label for operator review.
func recommendStrategy(issue model.QualityIssue) model.Strategy {
	switch issue.Type {
	case model.IssueMissingRequiredField, model.IssueShortOutline,
		model.IssueStaleData, model.IssueLowQualityScore:
		return model.StrategyRefetch
	case model.IssueMissingProvisions:
		return model.StrategyRederive
	case model.IssueConflictingSource:
		return model.StrategyCrossChamber
	default:
		// Duplicates, orphaned history, and missing categories need a human
		// or the enrichment pass.
		return model.StrategyManualReview
	}
}

// Export writes the report as JSON into the configured export directory and
// returns the file path.
func (s *Service) Export(report *model.MigrationReport) (string, error) {
	dir := s.cfg.ExportDir
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "migration: create export dir")
	}

	name := fmt.Sprintf("migration-%s-%s.json",
		report.StartedAt.Format("20060102-150405"), report.ID[:8])
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "migration: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "migration: write report")
	}
	return path, nil
}
