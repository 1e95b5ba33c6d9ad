package mapper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var (
	multiSpaceRe  = regexp.MustCompile(`\s{2,}`)
	sessionNumRe  = regexp.MustCompile(`第?(\d+)回?`)
	billNumLongRe = regexp.MustCompile(`^第?(\d+)回国会第?(\d+)号$`)
)

// toString renders a raw scraped value as a string.
func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		// JSON numbers decode as float64; sessions and bill numbers are whole.
		return strconv.FormatInt(int64(s), 10)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// toStringList renders a raw value as a list of trimmed, non-empty strings.
// Scraped member lists arrive either as arrays or as 、/, separated strings.
func toStringList(val any) []string {
	var parts []string
	switch v := val.(type) {
	case nil:
		return nil
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			parts = append(parts, toString(item))
		}
	case string:
		parts = strings.FieldsFunc(v, func(r rune) bool {
			return r == '、' || r == ',' || r == '，' || r == '\n'
		})
	default:
		return nil
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeBillNumber folds full-width digits to ASCII, collapses
// whitespace, and canonicalizes the long 第N回国会第M号 form to "N-M" so the
// two chambers' numbering styles group under one identity.
func NormalizeBillNumber(s string) string {
	s = width.Narrow.String(strings.TrimSpace(s))
	s = multiSpaceRe.ReplaceAllString(s, " ")
	if m := billNumLongRe.FindStringSubmatch(s); m != nil {
		return m[1] + "-" + m[2]
	}
	return s
}

// ParseSession extracts the Diet session number from values like "217",
// "第217回" or full-width "２１７".
func ParseSession(s string) int {
	s = width.Narrow.String(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if m := sessionNumRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
