// Package merge combines per-chamber partial bill records into one
// canonical record, resolving field-level disagreements by source priority
// and keeping every disagreement auditable.
package merge

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/diet-tracker/billsync/internal/model"
)

// IdentityMismatchError reports two input records that do not share the same
// bill identity. The caller is responsible for grouping records before
// merging; this occurring means the grouping logic is broken.
type IdentityMismatchError struct {
	A, B model.Identity
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("merge: identity mismatch: %s/%d/%s vs %s/%d/%s",
		e.A.BillNumber, e.A.DietSession, e.A.HouseOfOrigin,
		e.B.BillNumber, e.B.DietSession, e.B.HouseOfOrigin)
}

// Result is the outcome of one merge call.
type Result struct {
	Merged    *model.CanonicalBill
	Conflicts []model.FieldConflict
}

// Merge combines the partial records (in source order) into one canonical
// bill. If only one source provides a non-empty value for a field, it is
// taken. If sources provide different non-empty values, the priority table
// resolves the winner and a conflict entry is recorded regardless, so the
// resolution stays auditable. Identical values across sources are not
// conflicts. Merging the same inputs twice yields an identical record and
// an identical conflict list.
func Merge(records []*model.CanonicalBill, prio Priority) (*Result, error) {
	if len(records) == 0 {
		return nil, eris.New("merge: no records")
	}
	if prio == nil {
		prio = DefaultPriority()
	}

	if err := checkIdentities(records); err != nil {
		return nil, err
	}

	m := &merger{prio: prio}
	out := &model.CanonicalBill{}

	// Identity: first record that carries each component wins (components
	// are already guaranteed consistent).
	for _, r := range records {
		if out.BillNumber == "" {
			out.BillNumber = r.BillNumber
		}
		if out.DietSession == 0 {
			out.DietSession = r.DietSession
		}
		if out.HouseOfOrigin == "" {
			out.HouseOfOrigin = r.HouseOfOrigin
		}
		if out.SourceURL == "" {
			out.SourceURL = r.SourceURL
		}
		if r.LastUpdated.After(out.LastUpdated) {
			out.LastUpdated = r.LastUpdated
		}
	}

	out.Title = mergeStrPtr(m, "title", records, func(b *model.CanonicalBill) *string { return b.Title })
	out.BillType = mergeBillType(m, records)
	out.BillOutline = mergeStrPtr(m, "bill_outline", records, func(b *model.CanonicalBill) *string { return b.BillOutline })
	out.BackgroundContext = mergeStrPtr(m, "background_context", records, func(b *model.CanonicalBill) *string { return b.BackgroundContext })
	out.ExpectedEffects = mergeStrPtr(m, "expected_effects", records, func(b *model.CanonicalBill) *string { return b.ExpectedEffects })
	out.KeyProvisions = mergeList(m, "key_provisions", records, func(b *model.CanonicalBill) []string { return b.KeyProvisions })
	out.ImplementationDate = mergeStrPtr(m, "implementation_date", records, func(b *model.CanonicalBill) *string { return b.ImplementationDate })
	out.RelatedLaws = mergeList(m, "related_laws", records, func(b *model.CanonicalBill) []string { return b.RelatedLaws })

	out.SubmitterType = mergeStrPtr(m, "submitter_type", records, func(b *model.CanonicalBill) *string { return b.SubmitterType })
	out.SubmittingMembers = mergeList(m, "submitting_members", records, func(b *model.CanonicalBill) []string { return b.SubmittingMembers })
	out.SupportingMembers = mergeList(m, "supporting_members", records, func(b *model.CanonicalBill) []string { return b.SupportingMembers })
	out.SponsoringMinistry = mergeStrPtr(m, "sponsoring_ministry", records, func(b *model.CanonicalBill) *string { return b.SponsoringMinistry })
	out.SubmissionDate = mergeStrPtr(m, "submission_date", records, func(b *model.CanonicalBill) *string { return b.SubmissionDate })

	out.CurrentStage = mergeStage(m, records)
	out.CommitteeAssignments = mergeCommittees(m, records)
	out.VotingResults = mergeVotes(m, records)
	out.Amendments = mergeAmendments(m, records)
	out.InterHouseStatus = mergeStrPtr(m, "inter_house_status", records, func(b *model.CanonicalBill) *string { return b.InterHouseStatus })

	out.Conflicts = m.conflicts

	return &Result{Merged: out, Conflicts: m.conflicts}, nil
}

// checkIdentities verifies all records that carry an identity component
// agree on it. Unset components (empty number, zero session) are partials
// still awaiting cross-source completion, not mismatches.
func checkIdentities(records []*model.CanonicalBill) error {
	var ref model.Identity
	for _, r := range records {
		id := r.Identity()
		if id.BillNumber != "" {
			if ref.BillNumber != "" && ref.BillNumber != id.BillNumber {
				return &IdentityMismatchError{A: ref, B: id}
			}
			ref.BillNumber = id.BillNumber
		}
		if id.DietSession != 0 {
			if ref.DietSession != 0 && ref.DietSession != id.DietSession {
				return &IdentityMismatchError{A: ref, B: id}
			}
			ref.DietSession = id.DietSession
		}
		if id.HouseOfOrigin != "" {
			if ref.HouseOfOrigin != "" && ref.HouseOfOrigin != id.HouseOfOrigin {
				return &IdentityMismatchError{A: ref, B: id}
			}
			ref.HouseOfOrigin = id.HouseOfOrigin
		}
	}
	return nil
}

type merger struct {
	prio      Priority
	conflicts []model.FieldConflict
}

// candidate is one source's value for a field, with a stable string
// rendering used for conflict records.
type candidate[T any] struct {
	house    model.House
	val      T
	rendered string
}

// resolve picks the winner among candidates and records a conflict when
// more than one distinct value exists. Candidates are in input order; the
// priority table overrides input order when it names a house that actually
// provided a value.
func resolve[T any](m *merger, field string, cands []candidate[T]) (T, bool) {
	var zero T
	if len(cands) == 0 {
		return zero, false
	}

	distinct := false
	for _, c := range cands[1:] {
		if c.rendered != cands[0].rendered {
			distinct = true
			break
		}
	}

	winner := cands[0]
	if distinct {
		if pref, ok := m.prio[field]; ok {
			for _, c := range cands {
				if c.house == pref {
					winner = c
					break
				}
			}
		}
		values := make(map[model.House]string, len(cands))
		for _, c := range cands {
			values[c.house] = c.rendered
		}
		m.conflicts = append(m.conflicts, model.FieldConflict{
			Field:          field,
			ValuesBySource: values,
			ResolvedBy:     winner.house,
		})
	}

	return winner.val, true
}

func mergeStrPtr(m *merger, field string, records []*model.CanonicalBill, get func(*model.CanonicalBill) *string) *string {
	var cands []candidate[string]
	for _, r := range records {
		if v := get(r); v != nil && *v != "" {
			cands = append(cands, candidate[string]{house: r.SourceHouse, val: *v, rendered: *v})
		}
	}
	if v, ok := resolve(m, field, cands); ok {
		return &v
	}
	return nil
}

func mergeList(m *merger, field string, records []*model.CanonicalBill, get func(*model.CanonicalBill) []string) []string {
	var cands []candidate[[]string]
	for _, r := range records {
		if v := get(r); len(v) > 0 {
			cands = append(cands, candidate[[]string]{house: r.SourceHouse, val: v, rendered: strings.Join(v, ",")})
		}
	}
	v, _ := resolve(m, field, cands)
	return v
}

func mergeBillType(m *merger, records []*model.CanonicalBill) *model.BillType {
	var cands []candidate[model.BillType]
	for _, r := range records {
		if r.BillType != nil && *r.BillType != "" {
			cands = append(cands, candidate[model.BillType]{house: r.SourceHouse, val: *r.BillType, rendered: string(*r.BillType)})
		}
	}
	if v, ok := resolve(m, "bill_type", cands); ok {
		return &v
	}
	return nil
}

func mergeStage(m *merger, records []*model.CanonicalBill) model.Stage {
	var cands []candidate[model.Stage]
	for _, r := range records {
		if r.CurrentStage != "" {
			cands = append(cands, candidate[model.Stage]{house: r.SourceHouse, val: r.CurrentStage, rendered: string(r.CurrentStage)})
		}
	}
	v, _ := resolve(m, "current_stage", cands)
	return v
}

func mergeCommittees(m *merger, records []*model.CanonicalBill) map[string]model.CommitteeAssignment {
	var cands []candidate[map[string]model.CommitteeAssignment]
	for _, r := range records {
		if len(r.CommitteeAssignments) > 0 {
			cands = append(cands, candidate[map[string]model.CommitteeAssignment]{
				house:    r.SourceHouse,
				val:      r.CommitteeAssignments,
				rendered: renderJSON(r.CommitteeAssignments),
			})
		}
	}
	// Identical maps with different iteration orders render identically:
	// encoding/json sorts map keys.
	v, _ := resolve(m, "committee_assignments", cands)
	return cloneMap(v)
}

func mergeVotes(m *merger, records []*model.CanonicalBill) map[string]string {
	var cands []candidate[map[string]string]
	for _, r := range records {
		if len(r.VotingResults) > 0 {
			cands = append(cands, candidate[map[string]string]{
				house:    r.SourceHouse,
				val:      r.VotingResults,
				rendered: renderJSON(r.VotingResults),
			})
		}
	}
	v, _ := resolve(m, "voting_results", cands)
	return cloneMap(v)
}

func mergeAmendments(m *merger, records []*model.CanonicalBill) []model.Amendment {
	var cands []candidate[[]model.Amendment]
	for _, r := range records {
		if len(r.Amendments) > 0 {
			cands = append(cands, candidate[[]model.Amendment]{house: r.SourceHouse, val: r.Amendments, rendered: renderJSON(r.Amendments)})
		}
	}
	v, _ := resolve(m, "amendments", cands)
	return slices.Clone(v)
}

func renderJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
