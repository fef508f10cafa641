package client

import (
	"sync"

	"github.com/hoshizuki/campfire/server/model"
)

// EncounterStore holds the client's in-memory encounter state. Apply merges
// a patch optimistically and returns the pre-patch snapshot; Revert restores
// it if persistence later fails. Observers see every optimistic apply
// synchronously, before any network round-trip.
type EncounterStore struct {
	mu         sync.Mutex
	encounters map[int64]model.CombatEncounter
	observers  []func(model.CombatEncounter)
}

// NewEncounterStore creates an empty EncounterStore.
func NewEncounterStore() *EncounterStore {
	return &EncounterStore{encounters: make(map[int64]model.CombatEncounter)}
}

// Observe registers a callback invoked on every state change.
func (s *EncounterStore) Observe(fn func(model.CombatEncounter)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Put replaces the stored state for an encounter, e.g. after a fetch.
func (s *EncounterStore) Put(enc model.CombatEncounter) {
	s.mu.Lock()
	s.encounters[enc.ID] = enc
	obs := s.observers
	s.mu.Unlock()
	for _, fn := range obs {
		fn(enc)
	}
}

// Get returns the stored state for an encounter.
func (s *EncounterStore) Get(id int64) (model.CombatEncounter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, ok := s.encounters[id]
	return enc, ok
}

// Apply shallow-merges patch onto the stored encounter and notifies
// observers. Array fields are replaced wholesale, and the combatants list is
// resorted descending by initiative on every apply, not only after
// persistence. Returns the pre-patch snapshot for later rollback.
// If the encounter is not in the store the apply is a no-op: there is
// nothing to merge into and nothing to revert to, callers must fetch first.
func (s *EncounterStore) Apply(id int64, patch EncounterPatch) (snapshot model.CombatEncounter, ok bool) {
	s.mu.Lock()
	current, exists := s.encounters[id]
	if !exists {
		s.mu.Unlock()
		return model.CombatEncounter{}, false
	}
	snapshot = current
	patch.applyTo(&current)
	if patch.Combatants != nil {
		// Resort on the raw entries: combatants are opaque beyond the
		// initiative key and must not be reshaped by the client.
		if raw, err := model.SortRawCombatants(current.Combatants); err == nil {
			current.Combatants = raw
		}
	}
	s.encounters[id] = current
	obs := s.observers
	s.mu.Unlock()

	for _, fn := range obs {
		fn(current)
	}
	return snapshot, true
}

// Revert restores a previously captured snapshot. Only the entity whose id
// matches the snapshot is touched, so a concurrent optimistic edit to a
// different encounter survives the rollback.
func (s *EncounterStore) Revert(snapshot model.CombatEncounter) {
	s.mu.Lock()
	if _, exists := s.encounters[snapshot.ID]; !exists {
		s.mu.Unlock()
		return
	}
	s.encounters[snapshot.ID] = snapshot
	obs := s.observers
	s.mu.Unlock()
	for _, fn := range obs {
		fn(snapshot)
	}
}

// Drop removes an encounter from the store, e.g. after a deleted broadcast.
func (s *EncounterStore) Drop(id int64) {
	s.mu.Lock()
	delete(s.encounters, id)
	s.mu.Unlock()
}

// PortalStore is the portal-view counterpart of EncounterStore.
type PortalStore struct {
	mu        sync.Mutex
	portals   map[int64]model.PortalView
	observers []func(model.PortalView)
}

// NewPortalStore creates an empty PortalStore.
func NewPortalStore() *PortalStore {
	return &PortalStore{portals: make(map[int64]model.PortalView)}
}

// Observe registers a callback invoked on every state change.
func (s *PortalStore) Observe(fn func(model.PortalView)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Put replaces the stored state for a portal view.
func (s *PortalStore) Put(portal model.PortalView) {
	s.mu.Lock()
	s.portals[portal.ID] = portal
	obs := s.observers
	s.mu.Unlock()
	for _, fn := range obs {
		fn(portal)
	}
}

// Get returns the stored state for a portal view.
func (s *PortalStore) Get(id int64) (model.PortalView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	portal, ok := s.portals[id]
	return portal, ok
}

// Apply shallow-merges patch onto the stored portal view; same contract as
// EncounterStore.Apply.
func (s *PortalStore) Apply(id int64, patch PortalPatch) (snapshot model.PortalView, ok bool) {
	s.mu.Lock()
	current, exists := s.portals[id]
	if !exists {
		s.mu.Unlock()
		return model.PortalView{}, false
	}
	snapshot = current
	patch.applyTo(&current)
	s.portals[id] = current
	obs := s.observers
	s.mu.Unlock()

	for _, fn := range obs {
		fn(current)
	}
	return snapshot, true
}

// Revert restores a previously captured snapshot by its id.
func (s *PortalStore) Revert(snapshot model.PortalView) {
	s.mu.Lock()
	if _, exists := s.portals[snapshot.ID]; !exists {
		s.mu.Unlock()
		return
	}
	s.portals[snapshot.ID] = snapshot
	obs := s.observers
	s.mu.Unlock()
	for _, fn := range obs {
		fn(snapshot)
	}
}

// Drop removes a portal view from the store.
func (s *PortalStore) Drop(id int64) {
	s.mu.Lock()
	delete(s.portals, id)
	s.mu.Unlock()
}
