package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoshizuki/campfire/server/broadcast"
	mw "github.com/hoshizuki/campfire/server/middleware"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/version"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LibraryHandler handles library and membership REST endpoints.
type LibraryHandler struct {
	db       *gorm.DB
	versions *version.Store
	notifier *broadcast.Notifier
	logger   *zap.Logger
}

// NewLibraryHandler creates a new LibraryHandler.
func NewLibraryHandler(db *gorm.DB, versions *version.Store, notifier *broadcast.Notifier, logger *zap.Logger) *LibraryHandler {
	return &LibraryHandler{db: db, versions: versions, notifier: notifier, logger: logger}
}

// List handles GET /api/libraries.
func (h *LibraryHandler) List(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var libs []model.Library
	err := h.db.
		Joins("JOIN library_members ON library_members.library_id = libraries.id").
		Where("library_members.account_id = ?", accountID).
		Find(&libs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"libraries": libs})
}

type libraryRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=128"`
	Description string `json:"description"`
}

// Create handles POST /api/libraries. The creator becomes OWNER and the
// version row is seeded in the same transaction.
func (h *LibraryHandler) Create(c *gin.Context) {
	accountID := mw.GetAccountID(c)

	var req libraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lib := model.Library{Name: req.Name, Description: req.Description}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&lib).Error; err != nil {
			return err
		}
		member := model.LibraryMember{
			LibraryID: lib.ID,
			AccountID: accountID,
			Role:      model.RoleOwner,
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		_, err := h.versions.Read(tx, lib.ID)
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, lib)
}

// Get handles GET /api/libraries/:id.
func (h *LibraryHandler) Get(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	var lib model.Library
	if err := h.db.First(&lib, libraryID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "library not found"})
		return
	}
	c.JSON(http.StatusOK, lib)
}

// Update handles PUT /api/libraries/:id.
func (h *LibraryHandler) Update(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	var req libraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result := h.db.Model(&model.Library{}).Where("id = ?", libraryID).
		Updates(map[string]interface{}{"name": req.Name, "description": req.Description})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	var lib model.Library
	if err := h.db.First(&lib, libraryID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "library not found"})
		return
	}
	c.JSON(http.StatusOK, lib)
}

// Delete handles DELETE /api/libraries/:id. The delete cascades to every
// owned entity in one transaction; portal subscribers are notified after
// commit.
func (h *LibraryHandler) Delete(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleOwner)
	if !ok {
		return
	}

	var portals []model.PortalView
	if err := h.db.Select("id").Where("library_id = ?", libraryID).Find(&portals).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		var itemIDs []int64
		if err := tx.Model(&model.Item{}).Where("library_id = ?", libraryID).
			Pluck("id", &itemIDs).Error; err != nil {
			return err
		}
		if len(itemIDs) > 0 {
			if err := tx.Where("item_id IN ?", itemIDs).Delete(&model.ItemTag{}).Error; err != nil {
				return err
			}
		}
		for _, m := range []interface{}{
			&model.Item{}, &model.Tag{}, &model.TagFolder{},
			&model.CombatEncounter{}, &model.PortalView{}, &model.UserFile{},
			&model.LibraryVersion{}, &model.LibraryMember{},
		} {
			if err := tx.Where("library_id = ?", libraryID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Library{}, libraryID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	for _, p := range portals {
		h.notifier.Notify(c.Request.Context(), p.ID, broadcast.Command{Command: broadcast.CmdDeleted})
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ListMembers handles GET /api/libraries/:id/members.
func (h *LibraryHandler) ListMembers(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	var members []model.LibraryMember
	if err := h.db.Where("library_id = ?", libraryID).Find(&members).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type memberRequest struct {
	AccountID int64      `json:"accountId" binding:"required"`
	Role      model.Role `json:"role" binding:"required"`
}

// AddMember handles POST /api/libraries/:id/members.
func (h *LibraryHandler) AddMember(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleOwner)
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}
	var acc model.Account
	if err := h.db.First(&acc, req.AccountID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	member := model.LibraryMember{LibraryID: libraryID, AccountID: req.AccountID, Role: req.Role}
	if err := h.db.Create(&member).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "already a member"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusCreated, member)
}

type roleRequest struct {
	Role model.Role `json:"role" binding:"required"`
}

// UpdateMemberRole handles PUT /api/libraries/:id/members/:account_id.
func (h *LibraryHandler) UpdateMemberRole(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleOwner)
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "account_id")
	if !ok {
		return
	}
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}
	if req.Role != model.RoleOwner {
		if blocked, err := h.isLastOwner(libraryID, targetID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		} else if blocked {
			c.JSON(http.StatusBadRequest, gin.H{"error": "library needs at least one owner"})
			return
		}
	}
	result := h.db.Model(&model.LibraryMember{}).
		Where("library_id = ? AND account_id = ?", libraryID, targetID).
		Update("role", req.Role)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// RemoveMember handles DELETE /api/libraries/:id/members/:account_id.
func (h *LibraryHandler) RemoveMember(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleOwner)
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "account_id")
	if !ok {
		return
	}
	if blocked, err := h.isLastOwner(libraryID, targetID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	} else if blocked {
		c.JSON(http.StatusBadRequest, gin.H{"error": "library needs at least one owner"})
		return
	}
	result := h.db.Where("library_id = ? AND account_id = ?", libraryID, targetID).
		Delete(&model.LibraryMember{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// isLastOwner reports whether target is the library's only OWNER.
func (h *LibraryHandler) isLastOwner(libraryID, targetID int64) (bool, error) {
	var owners []model.LibraryMember
	err := h.db.Where("library_id = ? AND role = ?", libraryID, model.RoleOwner).
		Find(&owners).Error
	if err != nil {
		return false, err
	}
	return len(owners) == 1 && owners[0].AccountID == targetID, nil
}
