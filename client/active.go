package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ActivePortal marks which portal view a client treats as "the one driving a
// live display" for a library. It is client-local: two DM clients can each
// have a different active portal for the same library, which is accepted.
type ActivePortal struct {
	LibraryID    int64  `json:"libraryId"`
	PortalViewID int64  `json:"portalViewId"`
	Name         string `json:"name"`
}

// ActivePortalFile is an explicitly owned handle on the persisted
// active-portal selection, one JSON file per client. Open it once per client
// lifecycle and pass it down; it is not a package-level singleton.
type ActivePortalFile struct {
	mu     sync.Mutex
	path   string
	active map[string]ActivePortal // library ID → selection
}

// OpenActivePortalFile loads the selection file at path, creating parent
// directories on first save. A missing file is an empty selection.
func OpenActivePortalFile(path string) (*ActivePortalFile, error) {
	f := &ActivePortalFile{path: path, active: make(map[string]ActivePortal)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &f.active); err != nil {
		return nil, err
	}
	return f, nil
}

// DefaultActivePortalPath returns the per-user selection file location.
func DefaultActivePortalPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "campfire", "active_portals.json"), nil
}

// Get returns the active portal for a library, if one is set.
func (f *ActivePortalFile) Get(libraryID int64) (ActivePortal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.active[strconv.FormatInt(libraryID, 10)]
	return p, ok
}

// Set records the active portal for a library and saves the file.
func (f *ActivePortalFile) Set(p ActivePortal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[strconv.FormatInt(p.LibraryID, 10)] = p
	return f.save()
}

// Clear removes the selection for a library and saves the file.
func (f *ActivePortalFile) Clear(libraryID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, strconv.FormatInt(libraryID, 10))
	return f.save()
}

// save writes the file. Caller holds the lock.
func (f *ActivePortalFile) save() error {
	data, err := json.MarshalIndent(f.active, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o644)
}
