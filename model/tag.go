package model

import "time"

// TagFolder groups tags inside a library.
type TagFolder struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LibraryID int64     `gorm:"index:idx_folder_library;not null" json:"libraryId"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Tag labels items within a library. Folder is optional.
type Tag struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LibraryID int64     `gorm:"index:idx_tag_library;not null" json:"libraryId"`
	FolderID  *int64    `gorm:"index:idx_tag_folder" json:"folderId"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	Color     string    `gorm:"size:16" json:"color"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ItemTag links an item to a tag.
type ItemTag struct {
	ItemID int64 `gorm:"primaryKey;index:idx_itemtag_item" json:"itemId"`
	TagID  int64 `gorm:"primaryKey;index:idx_itemtag_tag" json:"tagId"`
}
