package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/hoshizuki/campfire/server/config"
	"github.com/hoshizuki/campfire/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EncounterHandler handles combat encounter REST endpoints. Encounters have
// no version counter of their own: connected clients are told to refetch via
// the portal push channel instead of polling.
type EncounterHandler struct {
	db       *gorm.DB
	notifier *broadcast.Notifier
	sync     config.SyncConfig
	logger   *zap.Logger
}

// NewEncounterHandler creates a new EncounterHandler.
func NewEncounterHandler(db *gorm.DB, notifier *broadcast.Notifier, sync config.SyncConfig, logger *zap.Logger) *EncounterHandler {
	return &EncounterHandler{db: db, notifier: notifier, sync: sync, logger: logger}
}

// List handles GET /api/libraries/:id/encounters.
func (h *EncounterHandler) List(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	var encounters []model.CombatEncounter
	if err := h.db.Where("library_id = ?", libraryID).Find(&encounters).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"encounters": encounters})
}

// Get handles GET /api/libraries/:id/encounters/:encounter_id.
func (h *EncounterHandler) Get(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	encounterID, ok := parseIDParam(c, "encounter_id")
	if !ok {
		return
	}
	var enc model.CombatEncounter
	if err := h.db.Where("id = ? AND library_id = ?", encounterID, libraryID).First(&enc).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "encounter not found"})
		return
	}
	c.JSON(http.StatusOK, enc)
}

type createEncounterRequest struct {
	Name        string         `json:"name" binding:"required,min=1,max=128"`
	Description string         `json:"description"`
	Combatants  datatypes.JSON `json:"combatants"`
	Counters    datatypes.JSON `json:"counters"`
}

// Create handles POST /api/libraries/:id/encounters.
func (h *EncounterHandler) Create(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	var req createEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, payload := range []datatypes.JSON{req.Combatants, req.Counters} {
		if err := model.ValidatePayload(payload, h.sync.MaxPayloadBytes, h.sync.MaxPayloadDepth); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	enc := model.CombatEncounter{
		LibraryID:   libraryID,
		Name:        req.Name,
		Description: req.Description,
		Round:       1,
		Combatants:  req.Combatants,
		Counters:    req.Counters,
	}
	if err := h.db.Create(&enc).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, enc)
}

type updateEncounterRequest struct {
	Name           *string         `json:"name"`
	Description    *string         `json:"description"`
	Round          *int            `json:"round"`
	InitativeCount *int            `json:"initativeCount"`
	Combatants     *datatypes.JSON `json:"combatants"`
	Counters       *datatypes.JSON `json:"counters"`
}

// Update handles PUT /api/libraries/:id/encounters/:encounter_id.
// Array-valued fields are replaced wholesale, never merged. With
// ?sendToPortal=true the linked portal views' subscribers are told to
// refetch the encounter after the write commits.
func (h *EncounterHandler) Update(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	encounterID, ok := parseIDParam(c, "encounter_id")
	if !ok {
		return
	}
	var req updateEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Round != nil {
		if *req.Round < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "round must be >= 1"})
			return
		}
		updates["round"] = *req.Round
	}
	if req.InitativeCount != nil {
		if *req.InitativeCount < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "initativeCount must be >= 0"})
			return
		}
		updates["initative_count"] = *req.InitativeCount
	}
	if req.Combatants != nil {
		if err := model.ValidatePayload(*req.Combatants, h.sync.MaxPayloadBytes, h.sync.MaxPayloadDepth); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["combatants"] = *req.Combatants
	}
	if req.Counters != nil {
		if err := model.ValidatePayload(*req.Counters, h.sync.MaxPayloadBytes, h.sync.MaxPayloadDepth); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["counters"] = *req.Counters
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty patch"})
		return
	}

	result := h.db.Model(&model.CombatEncounter{}).
		Where("id = ? AND library_id = ?", encounterID, libraryID).
		Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "encounter not found"})
		return
	}

	// Cascade only after the write is durable.
	if c.Query("sendToPortal") == "true" {
		h.notifyLinkedPortals(c, encounterID)
	}

	var enc model.CombatEncounter
	_ = h.db.First(&enc, encounterID).Error
	c.JSON(http.StatusOK, enc)
}

// Delete handles DELETE /api/libraries/:id/encounters/:encounter_id.
// Portal views linked to the encounter have their link nulled in the same
// transaction, so no dangling reference survives.
func (h *EncounterHandler) Delete(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	encounterID, ok := parseIDParam(c, "encounter_id")
	if !ok {
		return
	}

	var linked []model.PortalView
	if err := h.db.Select("id").Where("encounter_id = ?", encounterID).Find(&linked).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		// Delete first, scoped to the addressed library. When nothing
		// matches the whole transaction rolls back, so an encounter id from
		// another library cannot have its portal links severed here.
		result := tx.Where("id = ? AND library_id = ?", encounterID, libraryID).
			Delete(&model.CombatEncounter{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&model.PortalView{}).
			Where("encounter_id = ?", encounterID).
			Update("encounter_id", nil).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "encounter not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	for _, p := range linked {
		h.notifier.Notify(c.Request.Context(), p.ID, broadcast.Command{Command: broadcast.CmdRefetchPortal})
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// notifyLinkedPortals emits refetch-encounter to every portal view whose
// nullable FK points at the encounter.
func (h *EncounterHandler) notifyLinkedPortals(c *gin.Context, encounterID int64) {
	var linked []model.PortalView
	if err := h.db.Select("id").Where("encounter_id = ?", encounterID).Find(&linked).Error; err != nil {
		h.logger.Warn("linked portal lookup failed", zap.Error(err))
		return
	}
	for _, p := range linked {
		h.notifier.Notify(c.Request.Context(), p.ID, broadcast.Command{
			Command:     broadcast.CmdRefetchEncounter,
			EncounterID: &encounterID,
		})
	}
}
