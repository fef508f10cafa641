package scheduler

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hoshizuki/campfire/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// orphanGrace keeps freshly written files out of the sweep so an upload that
// has hit disk but not yet committed its row is never collected.
const orphanGrace = time.Hour

// SweepOrphanFiles removes files in the storage dir that no user_files row
// references. Intended to run on a ticker; upload failures between the disk
// write and the DB insert leave such orphans behind.
func SweepOrphanFiles(db *gorm.DB, storageDir string, logger *zap.Logger) {
	entries, err := os.ReadDir(storageDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("orphan sweep: read dir failed", zap.Error(err))
		}
		return
	}

	var paths []string
	if err := db.Model(&model.UserFile{}).Pluck("storage_path", &paths).Error; err != nil {
		logger.Warn("orphan sweep: path query failed", zap.Error(err))
		return
	}
	known := make(map[string]bool, len(paths))
	for _, p := range paths {
		known[filepath.Base(p)] = true
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || known[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) < orphanGrace {
			continue
		}
		if err := os.Remove(filepath.Join(storageDir, e.Name())); err != nil {
			logger.Warn("orphan sweep: remove failed",
				zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("orphan sweep removed files", zap.Int("count", removed))
	}
}
