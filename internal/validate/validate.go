// Package validate checks canonical bills against required-field and
// quality rules and computes the data quality score. Everything here is a
// pure function over its input; the quality score on a stored bill is only
// ever written from this package's output.
package validate

import (
	"fmt"
	"unicode/utf8"

	"github.com/diet-tracker/billsync/internal/model"
)

// Outline length thresholds, in runes (scraped text is Japanese, so byte
// length would triple-count).
const (
	// MinOutlineLength is the shortest outline that avoids a warning.
	MinOutlineLength = 50
	// LongOutlineLength marks an outline long enough that empty key
	// provisions indicate a failed extraction rather than a short bill.
	LongOutlineLength = 200
)

// ValidationResult is the outcome of validating one bill.
type ValidationResult struct {
	IsValid      bool     `json:"is_valid"`
	Errors       []string `json:"errors,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	QualityScore float64  `json:"quality_score"`
}

// Validate checks required fields, emits quality warnings, and computes the
// completeness score.
func Validate(b *model.CanonicalBill) ValidationResult {
	res := ValidationResult{}

	if b.BillNumber == "" {
		res.Errors = append(res.Errors, "bill_number is required")
	}
	if b.Title == nil || *b.Title == "" {
		res.Errors = append(res.Errors, "title is required")
	}
	if b.DietSession <= 0 {
		res.Errors = append(res.Errors, "diet_session is required")
	}

	// Only the House of Representatives tracks supporters; a Councillors
	// snapshot carrying them indicates a mapping or source defect.
	if len(b.SupportingMembers) > 0 && b.SourceHouse == model.HouseCouncillors {
		res.Errors = append(res.Errors, "supporting_members populated from house_of_councillors source")
	}

	if b.BillOutline != nil {
		if n := utf8.RuneCountInString(*b.BillOutline); n > 0 && n < MinOutlineLength {
			res.Warnings = append(res.Warnings, fmt.Sprintf("outline too short (%d chars)", n))
		}
		if utf8.RuneCountInString(*b.BillOutline) >= LongOutlineLength && len(b.KeyProvisions) == 0 {
			res.Warnings = append(res.Warnings, "provisions not extracted from long outline")
		}
	}

	res.IsValid = len(res.Errors) == 0
	res.QualityScore = Score(b)
	return res
}
