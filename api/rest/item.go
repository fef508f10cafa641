package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoshizuki/campfire/server/config"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/version"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ItemHandler handles item REST endpoints. Every mutation bumps the
// library's itemsVersion inside the mutation's transaction.
type ItemHandler struct {
	db       *gorm.DB
	versions *version.Store
	sync     config.SyncConfig
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(db *gorm.DB, versions *version.Store, sync config.SyncConfig) *ItemHandler {
	return &ItemHandler{db: db, versions: versions, sync: sync}
}

// List handles GET /api/libraries/:id/items.
func (h *ItemHandler) List(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	q := h.db.Where("library_id = ?", libraryID)
	if kind := c.Query("kind"); kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var items []model.Item
	if err := q.Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Get handles GET /api/libraries/:id/items/:item_id.
func (h *ItemHandler) Get(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "item_id")
	if !ok {
		return
	}
	var item model.Item
	if err := h.db.Where("id = ? AND library_id = ?", itemID, libraryID).First(&item).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	var tagIDs []int64
	_ = h.db.Model(&model.ItemTag{}).Where("item_id = ?", itemID).Pluck("tag_id", &tagIDs).Error
	c.JSON(http.StatusOK, gin.H{"item": item, "tagIds": tagIDs})
}

// Create handles POST /api/libraries/:id/items.
func (h *ItemHandler) Create(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	var req struct {
		Name   string         `json:"name" binding:"required,min=1,max=128"`
		Kind   string         `json:"kind" binding:"required,min=1,max=32"`
		Body   datatypes.JSON `json:"body"`
		FileID *int64         `json:"fileId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := model.ValidatePayload(req.Body, h.sync.MaxPayloadBytes, h.sync.MaxPayloadDepth); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := model.Item{
		LibraryID: libraryID,
		Name:      req.Name,
		Kind:      req.Kind,
		Body:      req.Body,
		FileID:    req.FileID,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return h.versions.Bump(tx, libraryID, model.CounterItemsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Update handles PUT /api/libraries/:id/items/:item_id.
func (h *ItemHandler) Update(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "item_id")
	if !ok {
		return
	}
	var req struct {
		Name   *string         `json:"name"`
		Kind   *string         `json:"kind"`
		Body   *datatypes.JSON `json:"body"`
		FileID *int64          `json:"fileId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Kind != nil {
		updates["kind"] = *req.Kind
	}
	if req.Body != nil {
		if err := model.ValidatePayload(*req.Body, h.sync.MaxPayloadBytes, h.sync.MaxPayloadDepth); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["body"] = *req.Body
	}
	if req.FileID != nil {
		updates["file_id"] = *req.FileID
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty patch"})
		return
	}

	var affected int64
	err := h.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Item{}).
			Where("id = ? AND library_id = ?", itemID, libraryID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		if affected == 0 {
			return nil
		}
		return h.versions.Bump(tx, libraryID, model.CounterItemsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	var item model.Item
	_ = h.db.First(&item, itemID).Error
	c.JSON(http.StatusOK, item)
}

// Delete handles DELETE /api/libraries/:id/items/:item_id.
func (h *ItemHandler) Delete(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "item_id")
	if !ok {
		return
	}

	var affected int64
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", itemID).Delete(&model.ItemTag{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND library_id = ?", itemID, libraryID).Delete(&model.Item{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		if affected == 0 {
			return nil
		}
		return h.versions.Bump(tx, libraryID, model.CounterItemsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type assignTagsRequest struct {
	TagIDs []int64 `json:"tagIds" binding:"required"`
}

// AssignTags handles PUT /api/libraries/:id/items/:item_id/tags.
// The tag set is replaced wholesale.
func (h *ItemHandler) AssignTags(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "item_id")
	if !ok {
		return
	}
	var req assignTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var item model.Item
	if err := h.db.Where("id = ? AND library_id = ?", itemID, libraryID).First(&item).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	// All tags must belong to the same library.
	if len(req.TagIDs) > 0 {
		var tags []model.Tag
		if err := h.db.Where("id IN ? AND library_id = ?", req.TagIDs, libraryID).
			Find(&tags).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if len(tags) != len(req.TagIDs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tag not in library"})
			return
		}
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", itemID).Delete(&model.ItemTag{}).Error; err != nil {
			return err
		}
		for _, tagID := range req.TagIDs {
			if err := tx.Create(&model.ItemTag{ItemID: itemID, TagID: tagID}).Error; err != nil {
				return err
			}
		}
		return h.versions.Bump(tx, libraryID, model.CounterItemsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}
