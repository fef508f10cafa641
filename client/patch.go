// Package client implements the editing-side synchronization core: optimistic
// local state with snapshot rollback, a trailing-edge debounce gate in front
// of persistence, and a push-channel subscriber for portal commands.
package client

import (
	"encoding/json"

	"github.com/hoshizuki/campfire/server/model"
	"gorm.io/datatypes"
)

// EncounterPatch is a partial update to a combat encounter. Nil fields are
// left untouched; Combatants and Counters are replaced wholesale, never
// merged, so callers must pass the full desired array.
type EncounterPatch struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Round          *int            `json:"round,omitempty"`
	InitativeCount *int            `json:"initativeCount,omitempty"`
	Combatants     *datatypes.JSON `json:"combatants,omitempty"`
	Counters       *datatypes.JSON `json:"counters,omitempty"`
}

// overlay returns p with every field set in next taking precedence. Used by
// the debounce gate to coalesce a burst of patches into one.
func (p EncounterPatch) overlay(next EncounterPatch) EncounterPatch {
	if next.Name != nil {
		p.Name = next.Name
	}
	if next.Description != nil {
		p.Description = next.Description
	}
	if next.Round != nil {
		p.Round = next.Round
	}
	if next.InitativeCount != nil {
		p.InitativeCount = next.InitativeCount
	}
	if next.Combatants != nil {
		p.Combatants = next.Combatants
	}
	if next.Counters != nil {
		p.Counters = next.Counters
	}
	return p
}

// applyTo shallow-merges the patch onto enc in place.
func (p EncounterPatch) applyTo(enc *model.CombatEncounter) {
	if p.Name != nil {
		enc.Name = *p.Name
	}
	if p.Description != nil {
		enc.Description = *p.Description
	}
	if p.Round != nil {
		enc.Round = *p.Round
	}
	if p.InitativeCount != nil {
		enc.InitativeCount = *p.InitativeCount
	}
	if p.Combatants != nil {
		enc.Combatants = *p.Combatants
	}
	if p.Counters != nil {
		enc.Counters = *p.Counters
	}
}

// NullableID marshals as the wrapped value, or JSON null when ID is nil.
// It lets a portal patch express "unlink the encounter" explicitly.
type NullableID struct {
	ID *int64
}

func (n NullableID) MarshalJSON() ([]byte, error) {
	if n.ID == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.ID)
}

// PortalPatch is a partial update to a portal view. Items is replaced
// wholesale. A non-nil EncounterID with a nil inner ID unlinks the encounter.
type PortalPatch struct {
	Name                *string         `json:"name,omitempty"`
	EncounterID         *NullableID     `json:"encounterId,omitempty"`
	ShowEncounter       *bool           `json:"showEncounter,omitempty"`
	ShowHealth          *bool           `json:"showHealth,omitempty"`
	ShowAC              *bool           `json:"showAC,omitempty"`
	ShowActions         *bool           `json:"showActions,omitempty"`
	AutoResetImageState *bool           `json:"autoResetImageState,omitempty"`
	CurrentItem         *int            `json:"currentItem,omitempty"`
	Items               *datatypes.JSON `json:"items,omitempty"`
}

func (p PortalPatch) overlay(next PortalPatch) PortalPatch {
	if next.Name != nil {
		p.Name = next.Name
	}
	if next.EncounterID != nil {
		p.EncounterID = next.EncounterID
	}
	if next.ShowEncounter != nil {
		p.ShowEncounter = next.ShowEncounter
	}
	if next.ShowHealth != nil {
		p.ShowHealth = next.ShowHealth
	}
	if next.ShowAC != nil {
		p.ShowAC = next.ShowAC
	}
	if next.ShowActions != nil {
		p.ShowActions = next.ShowActions
	}
	if next.AutoResetImageState != nil {
		p.AutoResetImageState = next.AutoResetImageState
	}
	if next.CurrentItem != nil {
		p.CurrentItem = next.CurrentItem
	}
	if next.Items != nil {
		p.Items = next.Items
	}
	return p
}

func (p PortalPatch) applyTo(portal *model.PortalView) {
	if p.Name != nil {
		portal.Name = *p.Name
	}
	if p.EncounterID != nil {
		portal.EncounterID = p.EncounterID.ID
	}
	if p.ShowEncounter != nil {
		portal.ShowEncounter = *p.ShowEncounter
	}
	if p.ShowHealth != nil {
		portal.ShowHealth = *p.ShowHealth
	}
	if p.ShowAC != nil {
		portal.ShowAC = *p.ShowAC
	}
	if p.ShowActions != nil {
		portal.ShowActions = *p.ShowActions
	}
	if p.AutoResetImageState != nil {
		portal.AutoResetImageState = *p.AutoResetImageState
	}
	if p.CurrentItem != nil {
		portal.CurrentItem = *p.CurrentItem
	}
	if p.Items != nil {
		portal.Items = *p.Items
	}
}
