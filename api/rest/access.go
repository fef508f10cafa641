package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/hoshizuki/campfire/server/middleware"
	"github.com/hoshizuki/campfire/server/model"
	"gorm.io/gorm"
)

// memberRole returns the account's role in the library, or "" if not a member.
func memberRole(db *gorm.DB, libraryID, accountID int64) (model.Role, error) {
	var m model.LibraryMember
	err := db.Where("library_id = ? AND account_id = ?", libraryID, accountID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

// requireRole resolves :id as a library ID, checks membership at the given
// level, and writes the error response itself on failure. Returns the
// library ID and true on success.
func requireRole(c *gin.Context, db *gorm.DB, required model.Role) (int64, bool) {
	libraryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid library id"})
		return 0, false
	}
	accountID := mw.GetAccountID(c)

	role, err := memberRole(db, libraryID, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return 0, false
	}
	if role == "" {
		// Membership is not disclosed to non-members.
		c.JSON(http.StatusNotFound, gin.H{"error": "library not found"})
		return 0, false
	}
	if !role.Covers(required) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		return 0, false
	}
	return libraryID, true
}

// optionalInt64 is a patch field that distinguishes "absent" from an
// explicit null. Set is true whenever the key appeared in the request body.
type optionalInt64 struct {
	Set   bool
	Value *int64
}

func (o *optionalInt64) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// parseIDParam parses a named int64 path parameter.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
