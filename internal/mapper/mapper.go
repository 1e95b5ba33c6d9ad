// Package mapper translates chamber-native scraped records into partial
// canonical bills. The two chambers differ only in field names and value
// shapes, so each is described by a mapping table rather than its own parser.
package mapper

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/model"
)

// ErrUnsupportedSource is returned when a raw record is tagged with an
// unknown chamber.
var ErrUnsupportedSource = eris.New("mapper: unsupported source house")

// RawRecord is one loosely-typed scraped record, tagged with the chamber it
// came from.
type RawRecord struct {
	House     model.House    `json:"house"`
	SourceURL string         `json:"source_url,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// fieldTables maps chamber-native field names to canonical field keys.
// Only the House of Representatives table carries supporters (賛成者);
// the Councillors feed does not publish them.
var fieldTables = map[model.House]map[string]string{
	model.HouseRepresentatives: {
		"国会回次":     "diet_session",
		"議案番号":     "bill_number",
		"議案件名":     "title",
		"議案種類":     "bill_type",
		"提出者":      "submitting_members",
		"議案提出の賛成者": "supporting_members",
		"提出年月日":    "submission_date",
		"議案要旨":     "bill_outline",
		"提出の背景":    "background_context",
		"期待される効果":  "expected_effects",
		"主な規定":     "key_provisions",
		"施行期日":     "implementation_date",
		"関係法律":     "related_laws",
		"所管省庁":     "sponsoring_ministry",
		"経過":       "current_stage",
		"付託委員会":    "committee_assignments",
		"採決結果":     "voting_results",
		"修正案":      "amendments",
		"両院関係":     "inter_house_status",
	},
	model.HouseCouncillors: {
		"国会回次":    "diet_session",
		"議案番号":    "bill_number",
		"件名":      "title",
		"種別":      "bill_type",
		"発議者":     "submitting_members",
		"提出日":     "submission_date",
		"議案要旨":    "bill_outline",
		"提出の背景":   "background_context",
		"期待される効果": "expected_effects",
		"主な規定":    "key_provisions",
		"施行日":     "implementation_date",
		"関係法律":    "related_laws",
		"所管省庁":    "sponsoring_ministry",
		"審議状況":    "current_stage",
		"付託委員会":   "committee_assignments",
		"本会議投票結果": "voting_results",
		"修正":      "amendments",
		"両院関係":    "inter_house_status",
	},
}

// Map converts a raw chamber record into a partial CanonicalBill. Only
// fields the source actually provides are populated; everything else stays
// unset so the merger can tell "absent" from "empty". A missing bill number
// or title is not an error here — validation is deferred so the merger can
// still attempt cross-source completion.
func Map(raw RawRecord) (*model.CanonicalBill, error) {
	table, ok := fieldTables[raw.House]
	if !ok {
		return nil, eris.Wrapf(ErrUnsupportedSource, "house %q", raw.House)
	}

	bill := &model.CanonicalBill{
		SourceHouse: raw.House,
		SourceURL:   raw.SourceURL,
	}

	for name, val := range raw.Fields {
		key, ok := table[strings.TrimSpace(name)]
		if !ok {
			zap.L().Debug("mapper: unmapped field",
				zap.String("house", string(raw.House)),
				zap.String("field", name),
			)
			continue
		}
		applyField(bill, key, val)
	}

	// A bill's chamber of origin defaults to the chamber that published it;
	// cross-chamber snapshots override this during identity grouping.
	if bill.HouseOfOrigin == "" {
		bill.HouseOfOrigin = raw.House
	}

	return bill, nil
}

// applyField sets one canonical field from a raw value. Blank values are
// treated as absent, never as empty strings.
func applyField(b *model.CanonicalBill, key string, val any) {
	switch key {
	case "diet_session":
		if n := ParseSession(toString(val)); n > 0 {
			b.DietSession = n
		}
	case "bill_number":
		if s := NormalizeBillNumber(toString(val)); s != "" {
			b.BillNumber = s
		}
	case "title":
		setString(&b.Title, val)
	case "bill_type":
		if bt := parseBillType(toString(val)); bt != "" {
			b.BillType = &bt
		}
	case "submitting_members":
		b.SubmittingMembers = toStringList(val)
	case "supporting_members":
		b.SupportingMembers = toStringList(val)
	case "submission_date":
		setString(&b.SubmissionDate, val)
	case "bill_outline":
		setString(&b.BillOutline, val)
	case "background_context":
		setString(&b.BackgroundContext, val)
	case "expected_effects":
		setString(&b.ExpectedEffects, val)
	case "key_provisions":
		b.KeyProvisions = toStringList(val)
	case "implementation_date":
		setString(&b.ImplementationDate, val)
	case "related_laws":
		b.RelatedLaws = toStringList(val)
	case "sponsoring_ministry":
		setString(&b.SponsoringMinistry, val)
	case "current_stage":
		if st := StageFromStatus(toString(val)); st != "" {
			b.CurrentStage = st
		}
	case "committee_assignments":
		b.CommitteeAssignments = toCommittees(val)
	case "voting_results":
		b.VotingResults = toVotingResults(val)
	case "amendments":
		b.Amendments = toAmendments(val)
	case "inter_house_status":
		setString(&b.InterHouseStatus, val)
	}
}

func setString(dst **string, val any) {
	if s := strings.TrimSpace(toString(val)); s != "" {
		*dst = &s
	}
}

// parseBillType classifies the Japanese bill-type label. 閣法 (cabinet) is
// government-submitted; 衆法/参法 are member bills.
func parseBillType(s string) model.BillType {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "閣法"), strings.Contains(s, "政府"), strings.Contains(s, "内閣"):
		return model.BillTypeGovernment
	case strings.Contains(s, "衆法"), strings.Contains(s, "参法"), strings.Contains(s, "議員"):
		return model.BillTypeMember
	}
	return ""
}

// stageLabels maps scraped Japanese deliberation statuses onto stages.
// Longest labels are matched first, so 継続審査 wins over 審査.
var stageLabels = []struct {
	label string
	stage model.Stage
}{
	{"継続審査", model.StageCarriedOver},
	{"閉会中審査", model.StageCarriedOver},
	{"委員会審査中", model.StageCommitteeDeliberation},
	{"委員会付託", model.StageCommitteeReferral},
	{"付託", model.StageCommitteeReferral},
	{"本会議採決待ち", model.StageFloorVotePending},
	{"本会議", model.StageFloorVotePending},
	{"他院送付", model.StageInterHouseReferral},
	{"送付", model.StageInterHouseReferral},
	{"成立", model.StagePassedBothHouses},
	{"可決", model.StagePassedCurrentHouse},
	{"否決", model.StageRejected},
	{"撤回", model.StageWithdrawn},
	{"未提出", model.StagePreSubmission},
	{"審査中", model.StageCommitteeDeliberation},
}

// StageFromStatus maps a scraped status label to a stage. Labels already in
// canonical form pass through; unknown labels yield the empty stage so the
// field stays unset.
func StageFromStatus(s string) model.Stage {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if st := model.Stage(s); st.Valid() {
		return st
	}
	for _, m := range stageLabels {
		if strings.Contains(s, m.label) {
			return m.stage
		}
	}
	return ""
}

func toCommittees(val any) map[string]model.CommitteeAssignment {
	switch v := val.(type) {
	case string:
		name := strings.TrimSpace(v)
		if name == "" {
			return nil
		}
		return map[string]model.CommitteeAssignment{name: {Status: "referred"}}
	case map[string]any:
		if len(v) == 0 {
			return nil
		}
		out := make(map[string]model.CommitteeAssignment, len(v))
		for name, meta := range v {
			ca := model.CommitteeAssignment{}
			if m, ok := meta.(map[string]any); ok {
				ca.Status = toString(m["status"])
				ca.ReferredDate = toString(m["referred_date"])
			} else {
				ca.Status = toString(meta)
			}
			out[strings.TrimSpace(name)] = ca
		}
		return out
	}
	return nil
}

func toVotingResults(val any) map[string]string {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return map[string]string{"result": s}
	case map[string]any:
		if len(v) == 0 {
			return nil
		}
		out := make(map[string]string, len(v))
		for k, raw := range v {
			out[k] = toString(raw)
		}
		return out
	case map[string]string:
		if len(v) == 0 {
			return nil
		}
		return v
	}
	return nil
}

func toAmendments(val any) []model.Amendment {
	items, ok := val.([]any)
	if !ok {
		return nil
	}
	var out []model.Amendment
	for _, item := range items {
		switch a := item.(type) {
		case string:
			if s := strings.TrimSpace(a); s != "" {
				out = append(out, model.Amendment{Title: s})
			}
		case map[string]any:
			out = append(out, model.Amendment{
				Title:    toString(a["title"]),
				Proposer: toString(a["proposer"]),
				Result:   toString(a["result"]),
				Date:     toString(a["date"]),
			})
		}
	}
	return out
}
