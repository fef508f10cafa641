package scheduler_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/scheduler"
	"github.com/hoshizuki/campfire/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeStorageFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	if age > 0 {
		old := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, old, old))
	}
	return path
}

func TestSweepOrphanFiles(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dir := t.TempDir()

	referenced := writeStorageFile(t, dir, "keep-referenced.png", 3*time.Hour)
	oldOrphan := writeStorageFile(t, dir, "stale-orphan.png", 3*time.Hour)
	freshOrphan := writeStorageFile(t, dir, "fresh-orphan.png", 0)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	require.NoError(t, db.Create(&model.UserFile{
		LibraryID:   1,
		Name:        "map.png",
		StoragePath: referenced,
		ContentType: "image/png",
		SizeBytes:   7,
		UploadedBy:  1,
	}).Error)

	scheduler.SweepOrphanFiles(db, dir, zap.NewNop())

	assert.FileExists(t, referenced, "referenced file must survive the sweep")
	assert.FileExists(t, freshOrphan, "files inside the grace window must survive")
	assert.NoFileExists(t, oldOrphan, "stale unreferenced file must be removed")
	assert.DirExists(t, filepath.Join(dir, "subdir"))
}

func TestSweepOrphanFiles_MissingDir(t *testing.T) {
	db := testutil.SetupTestDB(t)
	// Must not error or panic when the storage dir does not exist yet.
	scheduler.SweepOrphanFiles(db, filepath.Join(t.TempDir(), "nope"), zap.NewNop())
}
