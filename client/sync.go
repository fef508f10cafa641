package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hoshizuki/campfire/server/model"
	"go.uber.org/zap"
)

// Transport is what the sync core needs from the REST layer. *API satisfies
// it; tests substitute a fake.
type Transport interface {
	GetEncounter(ctx context.Context, libraryID, encounterID int64) (*model.CombatEncounter, error)
	UpdateEncounter(ctx context.Context, libraryID, encounterID int64, patch EncounterPatch, sendToPortal bool) error
	GetPortal(ctx context.Context, libraryID, portalID int64) (*model.PortalView, error)
	UpdatePortal(ctx context.Context, libraryID, portalID int64, patch PortalPatch) error
}

// DefaultDebounce is the quiet window for coalesced encounter edits.
const DefaultDebounce = 500 * time.Millisecond

// UpdateOptions controls one update call.
type UpdateOptions struct {
	// Debounce routes the patch through the trailing-edge gate. Structural
	// changes (combatant add/remove) should leave this false so they
	// persist immediately.
	Debounce bool
	// NotifyPortal cascades a refetch-encounter command to the library's
	// active portal, when that portal is linked to the updated encounter.
	NotifyPortal bool
}

// SyncClient is the editing client's synchronization core: optimistic local
// stores, one debounce gate per entity, and the REST transport behind them.
type SyncClient struct {
	Encounters *EncounterStore
	Portals    *PortalStore

	transport Transport
	active    *ActivePortalFile
	delay     time.Duration
	onError   func(error)
	logger    *zap.Logger

	mu           sync.Mutex
	encGates     map[int64]*Gate[EncounterPatch, model.CombatEncounter]
	portalGates  map[int64]*Gate[PortalPatch, model.PortalView]
	encGateMeta  map[int64]encGateMeta
}

type encGateMeta struct {
	libraryID    int64
	sendToPortal bool
}

// NewSyncClient creates a SyncClient. onError receives persistence failures
// after local state has already been rolled back; it may be nil. active may
// be nil when the client never drives a live display.
func NewSyncClient(transport Transport, active *ActivePortalFile, delay time.Duration, onError func(error), logger *zap.Logger) *SyncClient {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &SyncClient{
		Encounters:  NewEncounterStore(),
		Portals:     NewPortalStore(),
		transport:   transport,
		active:      active,
		delay:       delay,
		onError:     onError,
		logger:      logger,
		encGates:    make(map[int64]*Gate[EncounterPatch, model.CombatEncounter]),
		portalGates: make(map[int64]*Gate[PortalPatch, model.PortalView]),
		encGateMeta: make(map[int64]encGateMeta),
	}
}

// ErrNotLoaded is returned when a patch addresses an entity the local store
// has never fetched.
var ErrNotLoaded = errors.New("entity not loaded, fetch it first")

// FetchEncounter loads an encounter into the local store.
func (c *SyncClient) FetchEncounter(ctx context.Context, libraryID, encounterID int64) error {
	enc, err := c.transport.GetEncounter(ctx, libraryID, encounterID)
	if err != nil {
		return err
	}
	c.Encounters.Put(*enc)
	return nil
}

// FetchPortal loads a portal view into the local store.
func (c *SyncClient) FetchPortal(ctx context.Context, libraryID, portalID int64) error {
	portal, err := c.transport.GetPortal(ctx, libraryID, portalID)
	if err != nil {
		return err
	}
	c.Portals.Put(*portal)
	return nil
}

// UpdateEncounter applies patch optimistically and persists it, debounced or
// immediate per opts. The optimistic apply is synchronous; by the time this
// returns, observers have already seen the new state. A failed immediate
// persist rolls back before the error is returned; a failed debounced
// persist rolls back to the window-opening snapshot and reports through the
// onError callback.
func (c *SyncClient) UpdateEncounter(ctx context.Context, libraryID, encounterID int64, patch EncounterPatch, opts UpdateOptions) error {
	snapshot, ok := c.Encounters.Apply(encounterID, patch)
	if !ok {
		return ErrNotLoaded
	}

	sendToPortal := opts.NotifyPortal && c.encounterDrivesActivePortal(libraryID, encounterID)

	if !opts.Debounce {
		if err := c.transport.UpdateEncounter(ctx, libraryID, encounterID, patch, sendToPortal); err != nil {
			c.Encounters.Revert(snapshot)
			return err
		}
		return nil
	}

	c.encounterGate(libraryID, encounterID, sendToPortal).Register(patch, snapshot)
	return nil
}

// encounterGate returns the debounce gate for one encounter, creating it on
// first use. Gates are per-entity so concurrent edits to two encounters
// debounce independently.
func (c *SyncClient) encounterGate(libraryID, encounterID int64, sendToPortal bool) *Gate[EncounterPatch, model.CombatEncounter] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.encGateMeta[encounterID] = encGateMeta{libraryID: libraryID, sendToPortal: sendToPortal}
	if g, ok := c.encGates[encounterID]; ok {
		return g
	}
	g := NewGate(c.delay, EncounterPatch.overlay, func(patch EncounterPatch, snapshot model.CombatEncounter) {
		c.mu.Lock()
		meta := c.encGateMeta[encounterID]
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.transport.UpdateEncounter(ctx, meta.libraryID, encounterID, patch, meta.sendToPortal); err != nil {
			c.Encounters.Revert(snapshot)
			c.onError(err)
		}
	})
	c.encGates[encounterID] = g
	return g
}

// UpdatePortal applies patch optimistically and persists it; same contract
// as UpdateEncounter.
func (c *SyncClient) UpdatePortal(ctx context.Context, libraryID, portalID int64, patch PortalPatch, opts UpdateOptions) error {
	snapshot, ok := c.Portals.Apply(portalID, patch)
	if !ok {
		return ErrNotLoaded
	}

	if !opts.Debounce {
		if err := c.transport.UpdatePortal(ctx, libraryID, portalID, patch); err != nil {
			c.Portals.Revert(snapshot)
			return err
		}
		return nil
	}

	c.portalGate(libraryID, portalID).Register(patch, snapshot)
	return nil
}

func (c *SyncClient) portalGate(libraryID, portalID int64) *Gate[PortalPatch, model.PortalView] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.portalGates[portalID]; ok {
		return g
	}
	g := NewGate(c.delay, PortalPatch.overlay, func(patch PortalPatch, snapshot model.PortalView) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.transport.UpdatePortal(ctx, libraryID, portalID, patch); err != nil {
			c.Portals.Revert(snapshot)
			c.onError(err)
		}
	})
	c.portalGates[portalID] = g
	return g
}

// Flush fires every pending debounce window immediately, e.g. on shutdown.
func (c *SyncClient) Flush() {
	c.mu.Lock()
	gates := make([]interface{ Flush() }, 0, len(c.encGates)+len(c.portalGates))
	for _, g := range c.encGates {
		gates = append(gates, g)
	}
	for _, g := range c.portalGates {
		gates = append(gates, g)
	}
	c.mu.Unlock()
	for _, g := range gates {
		g.Flush()
	}
}

// LinkEncounter points a portal view at an encounter, or unlinks with a nil
// encounterID. When the encounter is present in the local store a
// cross-library link is rejected before any network call; otherwise the
// server's validation is the backstop.
func (c *SyncClient) LinkEncounter(ctx context.Context, libraryID, portalID int64, encounterID *int64) error {
	if encounterID != nil {
		if enc, ok := c.Encounters.Get(*encounterID); ok && enc.LibraryID != libraryID {
			return errors.New("encounter belongs to a different library")
		}
	}
	patch := PortalPatch{EncounterID: &NullableID{ID: encounterID}}
	return c.UpdatePortal(ctx, libraryID, portalID, patch, UpdateOptions{})
}

// ActivePortalFor returns the client's active portal for a library, if set.
func (c *SyncClient) ActivePortalFor(libraryID int64) (ActivePortal, bool) {
	if c.active == nil {
		return ActivePortal{}, false
	}
	return c.active.Get(libraryID)
}

// SetActivePortal designates the portal driving the live display.
func (c *SyncClient) SetActivePortal(p ActivePortal) error {
	if c.active == nil {
		return errors.New("no active portal storage configured")
	}
	return c.active.Set(p)
}

// encounterDrivesActivePortal reports whether the library's active portal is
// linked to the given encounter. A notify-portal update to any other
// encounter must not cascade.
func (c *SyncClient) encounterDrivesActivePortal(libraryID, encounterID int64) bool {
	active, ok := c.ActivePortalFor(libraryID)
	if !ok {
		return false
	}
	portal, ok := c.Portals.Get(active.PortalViewID)
	if !ok {
		return false
	}
	return portal.EncounterID != nil && *portal.EncounterID == encounterID
}
