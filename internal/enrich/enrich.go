// Package enrich fills in LLM-assisted classification: the policy category
// and issue tags that neither chamber's feed carries. Enrichment is
// best-effort and per-bill; a failed call leaves the record untouched.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/store"
	"github.com/diet-tracker/billsync/internal/validate"
	"github.com/diet-tracker/billsync/pkg/anthropic"
)

// categories is the closed vocabulary the classifier must pick from.
var categories = []string{
	"economy_finance",
	"taxation",
	"social_security",
	"labor",
	"education",
	"environment_energy",
	"foreign_affairs_defense",
	"justice_public_safety",
	"agriculture",
	"technology_digital",
	"governance_administration",
	"other",
}

const systemPrompt = `You classify bills before the National Diet of Japan.
Given a bill's title and outline (in Japanese), respond with a single JSON
object and nothing else:
{"category": "<one category slug>", "issue_tags": ["<up to 5 short Japanese tags>"]}
The category must be one of: %s.`

// Enricher assigns categories and issue tags to stored bills.
type Enricher struct {
	store  store.Store
	client anthropic.Client
	cfg    config.EnrichConfig
}

// New creates an Enricher.
func New(st store.Store, client anthropic.Client, cfg config.EnrichConfig) *Enricher {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Enricher{store: st, client: client, cfg: cfg}
}

// Result summarizes one enrichment run.
type Result struct {
	Candidates int `json:"candidates"`
	Enriched   int `json:"enriched"`
	Failed     int `json:"failed"`
}

// Run classifies up to limit bills that have no category yet. Limit <= 0
// means no limit. Per-bill failures are logged and counted, never fatal.
func (e *Enricher) Run(ctx context.Context, limit int) (Result, error) {
	log := zap.L().With(zap.String("component", "enrich"))

	bills, err := e.store.ListAll(ctx, store.BillFilter{})
	if err != nil {
		return Result{}, eris.Wrap(err, "enrich: list bills")
	}

	var res Result
	var usage anthropic.TokenUsage
	for i := range bills {
		b := &bills[i]
		if b.Category != nil && *b.Category != "" {
			continue
		}
		if b.Title == nil || *b.Title == "" {
			continue
		}
		res.Candidates++
		if limit > 0 && res.Enriched+res.Failed >= limit {
			continue
		}

		cls, u, err := e.classify(ctx, b)
		usage.InputTokens += u.InputTokens
		usage.OutputTokens += u.OutputTokens
		if err != nil {
			res.Failed++
			log.Warn("enrichment failed",
				zap.String("bill_number", b.BillNumber),
				zap.Int("session", b.DietSession),
				zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		b.Category = &cls.Category
		b.IssueTags = cls.IssueTags
		// Any field change recomputes the score before persisting.
		vres := validate.Validate(b)
		b.QualityScore = vres.QualityScore
		b.Draft = !vres.IsValid
		b.LastUpdated = time.Now().UTC()
		if _, err := e.store.Upsert(ctx, b); err != nil {
			res.Failed++
			log.Warn("enrichment persist failed",
				zap.String("bill_number", b.BillNumber), zap.Error(err))
			continue
		}
		res.Enriched++
	}

	usage.LogCost(e.cfg.Model, "enrich")
	log.Info("enrichment complete",
		zap.Int("candidates", res.Candidates),
		zap.Int("enriched", res.Enriched),
		zap.Int("failed", res.Failed))
	return res, nil
}

type classification struct {
	Category  string   `json:"category"`
	IssueTags []string `json:"issue_tags"`
}

func (e *Enricher) classify(ctx context.Context, b *model.CanonicalBill) (*classification, anthropic.TokenUsage, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "議案件名: %s\n", *b.Title)
	if b.BillOutline != nil && *b.BillOutline != "" {
		fmt.Fprintf(&sb, "議案要旨: %s\n", *b.BillOutline)
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    fmt.Sprintf(systemPrompt, strings.Join(categories, ", ")),
		Messages: []anthropic.Message{
			{Role: "user", Content: sb.String()},
		},
	})
	if err != nil {
		return nil, anthropic.TokenUsage{}, err
	}

	var cls classification
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &cls); err != nil {
		return nil, resp.Usage, eris.Wrapf(err, "enrich: parse classification %q", resp.Text)
	}
	if !validCategory(cls.Category) {
		return nil, resp.Usage, eris.Errorf("enrich: unknown category %q", cls.Category)
	}
	if len(cls.IssueTags) > 5 {
		cls.IssueTags = cls.IssueTags[:5]
	}
	return &cls, resp.Usage, nil
}

// extractJSON trims any prose the model wrapped around the JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

func validCategory(c string) bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}
