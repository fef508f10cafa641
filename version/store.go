// Package version implements the per-library staleness counters. A counter
// bump must run on the same transaction handle as the content write it
// tracks: a client that observes itemsVersion=N is then guaranteed the
// corresponding item content committed with it.
package version

import (
	"fmt"

	"github.com/hoshizuki/campfire/server/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads and bumps LibraryVersion rows.
type Store struct{}

// NewStore creates a version Store.
func NewStore() *Store {
	return &Store{}
}

var counterColumns = map[string]string{
	model.CounterVersion:      "version",
	model.CounterTagsVersion:  "tags_version",
	model.CounterItemsVersion: "items_version",
}

// Bump atomically increments one counter for the library, creating the row
// (all counters = 1) if absent. tx must be the transaction of the content
// mutation being tracked; the bump commits or rolls back with it.
func (s *Store) Bump(tx *gorm.DB, libraryID int64, counter string) error {
	col, ok := counterColumns[counter]
	if !ok {
		return fmt.Errorf("version: unknown counter %q", counter)
	}
	if err := s.ensureRow(tx, libraryID); err != nil {
		return err
	}
	return tx.Model(&model.LibraryVersion{}).
		Where("library_id = ?", libraryID).
		UpdateColumn(col, gorm.Expr(col+" + ?", 1)).Error
}

// Read returns the current counter triple, creating the row if absent.
func (s *Store) Read(db *gorm.DB, libraryID int64) (*model.LibraryVersion, error) {
	if err := s.ensureRow(db, libraryID); err != nil {
		return nil, err
	}
	var v model.LibraryVersion
	if err := db.First(&v, "library_id = ?", libraryID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadBatch returns the counter triple for each id in input order, creating
// missing rows in a single batch insert.
func (s *Store) ReadBatch(db *gorm.DB, libraryIDs []int64) ([]model.LibraryVersion, error) {
	if len(libraryIDs) == 0 {
		return nil, nil
	}

	var existing []model.LibraryVersion
	if err := db.Where("library_id IN ?", libraryIDs).Find(&existing).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]model.LibraryVersion, len(existing))
	for _, v := range existing {
		byID[v.LibraryID] = v
	}

	var missing []model.LibraryVersion
	for _, id := range libraryIDs {
		if _, ok := byID[id]; !ok {
			missing = append(missing, newRow(id))
		}
	}
	if len(missing) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&missing).Error; err != nil {
			return nil, err
		}
		// Re-read so UpdatedAt and any concurrently created rows are accurate.
		var created []model.LibraryVersion
		ids := make([]int64, len(missing))
		for i, m := range missing {
			ids[i] = m.LibraryID
		}
		if err := db.Where("library_id IN ?", ids).Find(&created).Error; err != nil {
			return nil, err
		}
		for _, v := range created {
			byID[v.LibraryID] = v
		}
	}

	out := make([]model.LibraryVersion, 0, len(libraryIDs))
	for _, id := range libraryIDs {
		out = append(out, byID[id])
	}
	return out, nil
}

func (s *Store) ensureRow(tx *gorm.DB, libraryID int64) error {
	row := newRow(libraryID)
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func newRow(libraryID int64) model.LibraryVersion {
	return model.LibraryVersion{
		LibraryID:    libraryID,
		Version:      1,
		TagsVersion:  1,
		ItemsVersion: 1,
	}
}
