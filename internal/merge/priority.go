package merge

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/diet-tracker/billsync/internal/model"
)

// Priority maps a canonical field name to the chamber whose value wins when
// sources disagree. Fields without an entry resolve by input order, and the
// conflict is still recorded either way.
type Priority map[string]model.House

// DefaultPriority returns the documented resolution rules: the House of
// Representatives is authoritative for submission and supporter fields
// (only it tracks supporters), the House of Councillors for process and
// committee fields. Everything else is deliberately left to input order —
// per-field authority beyond these cases is policy, not fact, and belongs
// in configuration.
func DefaultPriority() Priority {
	return Priority{
		"submitter_type":        model.HouseRepresentatives,
		"submitting_members":    model.HouseRepresentatives,
		"supporting_members":    model.HouseRepresentatives,
		"submission_date":       model.HouseRepresentatives,
		"current_stage":         model.HouseCouncillors,
		"committee_assignments": model.HouseCouncillors,
		"voting_results":        model.HouseCouncillors,
		"amendments":            model.HouseCouncillors,
		"inter_house_status":    model.HouseCouncillors,
	}
}

// LoadPriority reads a YAML field→house override table and layers it over
// the defaults. An empty path returns the defaults unchanged.
func LoadPriority(path string) (Priority, error) {
	if path == "" {
		return DefaultPriority(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "merge: read priority file %s", path)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "merge: parse priority file %s", path)
	}

	prio := DefaultPriority()
	for field, house := range raw {
		h := model.House(house)
		if !h.Valid() {
			return nil, eris.Errorf("merge: priority file %s: unknown house %q for field %q", path, house, field)
		}
		prio[field] = h
	}
	return prio, nil
}
