package model

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"
)

// CombatEncounter is the initiative/round/combatant tracker for one combat
// session. Counters and Combatants are opaque JSON: only size and depth are
// validated, not shape, so clients can attach trackers this server does not
// know about.
type CombatEncounter struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	LibraryID      int64          `gorm:"index:idx_encounter_library;not null" json:"libraryId"`
	Name           string         `gorm:"size:128;not null" json:"name"`
	Description    string         `gorm:"type:text" json:"description"`
	Round          int            `gorm:"default:1" json:"round"`
	InitativeCount int            `gorm:"default:0" json:"initativeCount"`
	Counters       datatypes.JSON `json:"counters"`
	Combatants     datatypes.JSON `json:"combatants"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Combatant is the typed view of one entry in the combatants array. Extra
// holds the original JSON object so fields beyond the known set (flags,
// homebrew trackers) survive a decode/encode round-trip.
type Combatant struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Initiative float64         `json:"initiative"`
	HP         int             `json:"hp"`
	MaxHP      int             `json:"maxHp"`
	AC         int             `json:"ac"`
	Conditions []string        `json:"conditions,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	ItemID     *int64          `json:"itemId,omitempty"`
	Extra      json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the full original object
// in Extra.
func (c *Combatant) UnmarshalJSON(data []byte) error {
	type plain Combatant
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Combatant(p)
	c.Extra = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON merges the known fields over the original object kept in
// Extra, so unknown fields pass through while typed edits win.
func (c Combatant) MarshalJSON() ([]byte, error) {
	type plain Combatant
	known, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return known, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(c.Extra, &merged); err != nil {
		// Original entry was not an object; emit it untouched.
		return append([]byte(nil), c.Extra...), nil
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// DecodeCombatants parses the opaque combatants column. Entries that do not
// decode into the known shape are kept verbatim in Extra.
func DecodeCombatants(raw datatypes.JSON) ([]Combatant, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rawList []json.RawMessage
	if err := json.Unmarshal(raw, &rawList); err != nil {
		return nil, err
	}
	out := make([]Combatant, 0, len(rawList))
	for _, r := range rawList {
		var c Combatant
		if err := json.Unmarshal(r, &c); err != nil {
			c = Combatant{Extra: r}
		}
		out = append(out, c)
	}
	return out, nil
}

// SortCombatants orders combatants descending by initiative, stable for ties.
func SortCombatants(list []Combatant) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Initiative > list[j].Initiative
	})
}

// SortRawCombatants reorders the opaque combatants array descending by
// initiative without decoding the entries into the typed struct, so every
// byte of each entry passes through untouched. Entries with no readable
// initiative sort as zero.
func SortRawCombatants(raw datatypes.JSON) (datatypes.JSON, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	var rawList []json.RawMessage
	if err := json.Unmarshal(raw, &rawList); err != nil {
		return nil, err
	}
	keys := make([]float64, len(rawList))
	for i, r := range rawList {
		var peek struct {
			Initiative float64 `json:"initiative"`
		}
		if err := json.Unmarshal(r, &peek); err == nil {
			keys[i] = peek.Initiative
		}
	}
	idx := make([]int, len(rawList))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return keys[idx[i]] > keys[idx[j]]
	})
	ordered := make([]json.RawMessage, len(rawList))
	for i, at := range idx {
		ordered[i] = rawList[at]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// EncodeCombatants serializes combatants back to the opaque column format.
func EncodeCombatants(list []Combatant) (datatypes.JSON, error) {
	b, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
