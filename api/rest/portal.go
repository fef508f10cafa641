package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/hoshizuki/campfire/server/config"
	"github.com/hoshizuki/campfire/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PortalHandler handles portal view REST endpoints. Every mutation ends in a
// broadcast to the portal's push channel: change-item when only the current
// item index moved, refetch-portal for anything else, deleted on removal.
type PortalHandler struct {
	db       *gorm.DB
	notifier *broadcast.Notifier
	sync     config.SyncConfig
	logger   *zap.Logger
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(db *gorm.DB, notifier *broadcast.Notifier, sync config.SyncConfig, logger *zap.Logger) *PortalHandler {
	return &PortalHandler{db: db, notifier: notifier, sync: sync, logger: logger}
}

// List handles GET /api/libraries/:id/portals.
func (h *PortalHandler) List(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	var portals []model.PortalView
	if err := h.db.Where("library_id = ?", libraryID).Find(&portals).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"portals": portals})
}

// Get handles GET /api/libraries/:id/portals/:portal_id.
func (h *PortalHandler) Get(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	portalID, ok := parseIDParam(c, "portal_id")
	if !ok {
		return
	}
	var portal model.PortalView
	if err := h.db.Where("id = ? AND library_id = ?", portalID, libraryID).First(&portal).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "portal not found"})
		return
	}
	c.JSON(http.StatusOK, portal)
}

type createPortalRequest struct {
	Name        string         `json:"name" binding:"required,min=1,max=128"`
	EncounterID *int64         `json:"encounterId"`
	Items       datatypes.JSON `json:"items"`
}

// Create handles POST /api/libraries/:id/portals.
func (h *PortalHandler) Create(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	var req createPortalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := model.ValidatePayload(req.Items, h.sync.MaxPayloadBytes, h.sync.MaxPayloadDepth); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.EncounterID != nil && !h.encounterInLibrary(*req.EncounterID, libraryID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "encounter does not belong to this library"})
		return
	}

	portal := model.PortalView{
		LibraryID:   libraryID,
		EncounterID: req.EncounterID,
		Name:        req.Name,
		Items:       req.Items,
	}
	if err := h.db.Create(&portal).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, portal)
}

type updatePortalRequest struct {
	Name                *string         `json:"name"`
	EncounterID         optionalInt64   `json:"encounterId"`
	ShowEncounter       *bool           `json:"showEncounter"`
	ShowHealth          *bool           `json:"showHealth"`
	ShowAC              *bool           `json:"showAC"`
	ShowActions         *bool           `json:"showActions"`
	AutoResetImageState *bool           `json:"autoResetImageState"`
	CurrentItem         *int            `json:"currentItem"`
	Items               *datatypes.JSON `json:"items"`
}

// currentItemOnly reports whether the patch touches nothing but the current
// item index. That case gets the cheap change-item broadcast instead of a
// full refetch.
func (r updatePortalRequest) currentItemOnly() bool {
	return r.CurrentItem != nil &&
		r.Name == nil && !r.EncounterID.Set &&
		r.ShowEncounter == nil && r.ShowHealth == nil &&
		r.ShowAC == nil && r.ShowActions == nil &&
		r.AutoResetImageState == nil && r.Items == nil
}

// Update handles PUT /api/libraries/:id/portals/:portal_id. The items array
// is replaced wholesale. encounterId may be set to null to unlink; a non-null
// value must reference an encounter in the same library.
func (h *PortalHandler) Update(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	portalID, ok := parseIDParam(c, "portal_id")
	if !ok {
		return
	}
	var req updatePortalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if *req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		updates["name"] = *req.Name
	}
	if req.EncounterID.Set {
		if req.EncounterID.Value != nil && !h.encounterInLibrary(*req.EncounterID.Value, libraryID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "encounter does not belong to this library"})
			return
		}
		updates["encounter_id"] = req.EncounterID.Value
	}
	if req.ShowEncounter != nil {
		updates["show_encounter"] = *req.ShowEncounter
	}
	if req.ShowHealth != nil {
		updates["show_health"] = *req.ShowHealth
	}
	if req.ShowAC != nil {
		updates["show_ac"] = *req.ShowAC
	}
	if req.ShowActions != nil {
		updates["show_actions"] = *req.ShowActions
	}
	if req.AutoResetImageState != nil {
		updates["auto_reset_image_state"] = *req.AutoResetImageState
	}
	if req.CurrentItem != nil {
		if *req.CurrentItem < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "currentItem must be >= 0"})
			return
		}
		updates["current_item"] = *req.CurrentItem
	}
	if req.Items != nil {
		if err := model.ValidatePayload(*req.Items, h.sync.MaxPayloadBytes, h.sync.MaxPayloadDepth); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["items"] = *req.Items
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty patch"})
		return
	}

	result := h.db.Model(&model.PortalView{}).
		Where("id = ? AND library_id = ?", portalID, libraryID).
		Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "portal not found"})
		return
	}

	if req.currentItemOnly() {
		h.notifier.Notify(c.Request.Context(), portalID, broadcast.Command{
			Command:   broadcast.CmdChangeItem,
			ItemIndex: req.CurrentItem,
		})
	} else {
		h.notifier.Notify(c.Request.Context(), portalID, broadcast.Command{Command: broadcast.CmdRefetchPortal})
	}

	var portal model.PortalView
	_ = h.db.First(&portal, portalID).Error
	c.JSON(http.StatusOK, portal)
}

// Delete handles DELETE /api/libraries/:id/portals/:portal_id. Subscribers
// are told the view is gone so they can tear down their session.
func (h *PortalHandler) Delete(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	portalID, ok := parseIDParam(c, "portal_id")
	if !ok {
		return
	}
	result := h.db.Where("id = ? AND library_id = ?", portalID, libraryID).Delete(&model.PortalView{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "portal not found"})
		return
	}
	h.notifier.Notify(c.Request.Context(), portalID, broadcast.Command{Command: broadcast.CmdDeleted})
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *PortalHandler) encounterInLibrary(encounterID, libraryID int64) bool {
	var count int64
	if err := h.db.Model(&model.CombatEncounter{}).
		Where("id = ? AND library_id = ?", encounterID, libraryID).
		Count(&count).Error; err != nil {
		h.logger.Warn("encounter ownership check failed", zap.Error(err))
		return false
	}
	return count > 0
}
