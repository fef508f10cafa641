package model

import "time"

// Version counter names accepted by the version store.
const (
	CounterVersion      = "version"
	CounterTagsVersion  = "tags_version"
	CounterItemsVersion = "items_version"
)

// LibraryVersion holds the per-library staleness counters. Each counter is
// monotonically increasing and is bumped in the same transaction as the
// content write that invalidates it. Counters start at 1 on row creation.
type LibraryVersion struct {
	LibraryID    int64     `gorm:"primaryKey" json:"libraryId"`
	Version      int64     `gorm:"not null;default:1" json:"version"`
	TagsVersion  int64     `gorm:"not null;default:1" json:"tagsVersion"`
	ItemsVersion int64     `gorm:"not null;default:1" json:"itemsVersion"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (LibraryVersion) TableName() string { return "library_versions" }
