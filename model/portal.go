package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// PortalView is a player-facing display surface within a library. It shows a
// sequence of display items and optionally mirrors a linked combat encounter.
// EncounterID is a nullable FK; the encounter does not know which portal
// views reference it.
type PortalView struct {
	ID                  int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	LibraryID           int64          `gorm:"index:idx_portal_library;not null" json:"libraryId"`
	EncounterID         *int64         `gorm:"index:idx_portal_encounter" json:"encounterId"`
	Name                string         `gorm:"size:128;not null" json:"name"`
	ShowEncounter       bool           `gorm:"default:false" json:"showEncounter"`
	ShowHealth          bool           `gorm:"default:false" json:"showHealth"`
	ShowAC              bool           `gorm:"default:false" json:"showAC"`
	ShowActions         bool           `gorm:"default:false" json:"showActions"`
	AutoResetImageState bool           `gorm:"default:false" json:"autoResetImageState"`
	CurrentItem         int            `gorm:"default:0" json:"currentItem"`
	Items               datatypes.JSON `json:"items"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Portal item kinds recognized by PortalItem.
const (
	PortalItemImage     = "image"
	PortalItemStatBlock = "statblock"
	PortalItemNote      = "note"
	PortalItemEncounter = "encounter"
)

// PortalItem is one entry in a portal view's items array: a tagged union of
// known kinds with Raw carrying the original JSON for kinds this server does
// not recognize.
type PortalItem struct {
	Kind        string          `json:"kind"`
	Title       string          `json:"title,omitempty"`
	FileID      *int64          `json:"fileId,omitempty"`
	ItemID      *int64          `json:"itemId,omitempty"`
	EncounterID *int64          `json:"encounterId,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// DecodePortalItems parses the opaque items column into the tagged union.
// Unknown kinds keep their raw JSON in Raw.
func DecodePortalItems(raw datatypes.JSON) ([]PortalItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rawList []json.RawMessage
	if err := json.Unmarshal(raw, &rawList); err != nil {
		return nil, err
	}
	out := make([]PortalItem, 0, len(rawList))
	for _, r := range rawList {
		var it PortalItem
		if err := json.Unmarshal(r, &it); err != nil {
			it = PortalItem{}
		}
		switch it.Kind {
		case PortalItemImage, PortalItemStatBlock, PortalItemNote, PortalItemEncounter:
		default:
			it.Raw = r
		}
		out = append(out, it)
	}
	return out, nil
}
