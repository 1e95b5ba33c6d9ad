package complete

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// minProvisionRunes drops fragments too short to stand as a provision.
	minProvisionRunes = 10
	// maxProvisions caps the derived list; an outline is a summary, not the
	// full article text.
	maxProvisions = 10
)

// enumMarkers are the item prefixes Diet bill outlines use for their
// provision lists.
var enumMarkers = []string{
	"一、", "二、", "三、", "四、", "五、", "六、", "七、", "八、", "九、", "十、",
	"１　", "２　", "３　", "４　", "５　", "６　", "７　", "８　", "９　",
	"1.", "2.", "3.", "4.", "5.", "6.", "7.", "8.", "9.",
	"・",
}

// DeriveProvisions extracts a key-provision list from an outline. When the
// outline carries an enumerated list it is split on the markers; otherwise
// it falls back to sentence splitting on the Japanese full stop.
func DeriveProvisions(outline string) []string {
	outline = strings.TrimSpace(outline)
	if outline == "" {
		return nil
	}

	segments := splitEnumerated(outline)
	if len(segments) < 2 {
		segments = strings.Split(outline, "。")
	}

	var provisions []string
	for _, seg := range segments {
		seg = strings.Trim(strings.TrimSpace(seg), "。")
		if utf8.RuneCountInString(seg) < minProvisionRunes {
			continue
		}
		provisions = append(provisions, seg)
		if len(provisions) == maxProvisions {
			break
		}
	}
	return provisions
}

// splitEnumerated splits the outline at enumeration markers, returning the
// whole text as a single segment when no marker is present.
func splitEnumerated(outline string) []string {
	cuts := []int{0}
	for _, marker := range enumMarkers {
		from := 0
		for {
			i := strings.Index(outline[from:], marker)
			if i < 0 {
				break
			}
			cuts = append(cuts, from+i)
			from += i + len(marker)
		}
	}
	if len(cuts) == 1 {
		return []string{outline}
	}

	sort.Ints(cuts)
	var segments []string
	for i, start := range cuts {
		end := len(outline)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		seg := outline[start:end]
		for _, marker := range enumMarkers {
			seg = strings.TrimPrefix(seg, marker)
		}
		segments = append(segments, seg)
	}
	return segments
}
