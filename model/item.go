package model

import (
	"time"

	"gorm.io/datatypes"
)

// Item kinds as stored in the kind column.
const (
	ItemKindNote      = "note"
	ItemKindStatBlock = "statblock"
	ItemKindImage     = "image"
	ItemKindTable     = "table"
)

// Item is a piece of campaign content (note, stat block, image reference,
// roll table). Body is an opaque JSON document whose shape depends on kind.
type Item struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	LibraryID int64          `gorm:"index:idx_item_library;not null" json:"libraryId"`
	Name      string         `gorm:"size:128;not null" json:"name"`
	Kind      string         `gorm:"size:32;not null" json:"kind"`
	Body      datatypes.JSON `json:"body"`
	FileID    *int64         `json:"fileId"` // optional backing upload
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// UserFile records an uploaded file stored under the storage dir.
type UserFile struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LibraryID   int64     `gorm:"index:idx_file_library;not null" json:"libraryId"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	StoragePath string    `gorm:"size:255;not null" json:"-"`
	ContentType string    `gorm:"size:128" json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedBy  int64     `json:"uploadedBy"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
