package model

import "time"

// Role is a member's access level within a library.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleOwner:  3,
}

// Covers reports whether r grants at least the access of required.
func (r Role) Covers(required Role) bool {
	return roleRank[r] >= roleRank[required]
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Library is a campaign workspace. It owns items, tags, tag folders,
// combat encounters, portal views, user files and a version record.
type Library struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// LibraryMember links an account to a library with a role.
// The creating account is inserted as OWNER.
type LibraryMember struct {
	LibraryID int64     `gorm:"primaryKey;index:idx_member_library" json:"libraryId"`
	AccountID int64     `gorm:"primaryKey;index:idx_member_account" json:"accountId"`
	Role      Role      `gorm:"size:16;not null" json:"role"`
	JoinedAt  time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}
