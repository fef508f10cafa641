package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hoshizuki/campfire/server/model"
)

// API is the thin REST transport the sync core persists through. Update
// responses are drained and discarded on purpose: applying the server's
// echo to local state would clobber newer optimistic edits made while the
// request was in flight.
type API struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewAPI creates an API client for the given server base URL and JWT token.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
}

// StatusError is a non-2xx REST response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

func (a *API) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetEncounter fetches the current encounter state.
func (a *API) GetEncounter(ctx context.Context, libraryID, encounterID int64) (*model.CombatEncounter, error) {
	var enc model.CombatEncounter
	path := fmt.Sprintf("/api/libraries/%d/encounters/%d", libraryID, encounterID)
	if err := a.do(ctx, http.MethodGet, path, nil, &enc); err != nil {
		return nil, err
	}
	return &enc, nil
}

// UpdateEncounter persists an encounter patch. sendToPortal asks the server
// to cascade a refetch-encounter command to linked portal subscribers.
func (a *API) UpdateEncounter(ctx context.Context, libraryID, encounterID int64, patch EncounterPatch, sendToPortal bool) error {
	path := fmt.Sprintf("/api/libraries/%d/encounters/%d", libraryID, encounterID)
	if sendToPortal {
		path += "?sendToPortal=true"
	}
	return a.do(ctx, http.MethodPut, path, patch, nil)
}

// GetPortal fetches the current portal view state.
func (a *API) GetPortal(ctx context.Context, libraryID, portalID int64) (*model.PortalView, error) {
	var portal model.PortalView
	path := fmt.Sprintf("/api/libraries/%d/portals/%d", libraryID, portalID)
	if err := a.do(ctx, http.MethodGet, path, nil, &portal); err != nil {
		return nil, err
	}
	return &portal, nil
}

// UpdatePortal persists a portal view patch.
func (a *API) UpdatePortal(ctx context.Context, libraryID, portalID int64, patch PortalPatch) error {
	path := fmt.Sprintf("/api/libraries/%d/portals/%d", libraryID, portalID)
	return a.do(ctx, http.MethodPut, path, patch, nil)
}

// Versions reads the library's version counter triple.
func (a *API) Versions(ctx context.Context, libraryID int64) (*model.LibraryVersion, error) {
	var row model.LibraryVersion
	path := fmt.Sprintf("/api/libraries/%d/versions", libraryID)
	if err := a.do(ctx, http.MethodGet, path, nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// VersionsBatch reads counters for several libraries in one round-trip.
func (a *API) VersionsBatch(ctx context.Context, libraryIDs []int64) ([]model.LibraryVersion, error) {
	var out struct {
		Versions []model.LibraryVersion `json:"versions"`
	}
	body := map[string][]int64{"libraryIds": libraryIDs}
	if err := a.do(ctx, http.MethodPost, "/api/versions/batch", body, &out); err != nil {
		return nil, err
	}
	return out.Versions, nil
}
