package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/version"
	"gorm.io/gorm"
)

// TagHandler handles tag and tag folder REST endpoints. Every mutation bumps
// the library's tagsVersion inside the mutation's transaction.
type TagHandler struct {
	db       *gorm.DB
	versions *version.Store
}

// NewTagHandler creates a new TagHandler.
func NewTagHandler(db *gorm.DB, versions *version.Store) *TagHandler {
	return &TagHandler{db: db, versions: versions}
}

// List handles GET /api/libraries/:id/tags.
func (h *TagHandler) List(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	var tags []model.Tag
	if err := h.db.Where("library_id = ?", libraryID).Find(&tags).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	var folders []model.TagFolder
	if err := h.db.Where("library_id = ?", libraryID).Find(&folders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags, "folders": folders})
}

type tagRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=64"`
	Color    string `json:"color" binding:"max=16"`
	FolderID *int64 `json:"folderId"`
}

// Create handles POST /api/libraries/:id/tags.
func (h *TagHandler) Create(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FolderID != nil && !h.folderInLibrary(libraryID, *req.FolderID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folder not in library"})
		return
	}

	tag := model.Tag{LibraryID: libraryID, Name: req.Name, Color: req.Color, FolderID: req.FolderID}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tag).Error; err != nil {
			return err
		}
		return h.versions.Bump(tx, libraryID, model.CounterTagsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, tag)
}

// Update handles PUT /api/libraries/:id/tags/:tag_id.
func (h *TagHandler) Update(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	tagID, ok := parseIDParam(c, "tag_id")
	if !ok {
		return
	}
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FolderID != nil && !h.folderInLibrary(libraryID, *req.FolderID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folder not in library"})
		return
	}

	var affected int64
	err := h.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Tag{}).
			Where("id = ? AND library_id = ?", tagID, libraryID).
			Updates(map[string]interface{}{
				"name": req.Name, "color": req.Color, "folder_id": req.FolderID,
			})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		if affected == 0 {
			return nil // no bump for a miss
		}
		return h.versions.Bump(tx, libraryID, model.CounterTagsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "tag not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// Delete handles DELETE /api/libraries/:id/tags/:tag_id.
func (h *TagHandler) Delete(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	tagID, ok := parseIDParam(c, "tag_id")
	if !ok {
		return
	}

	var affected int64
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tag_id = ?", tagID).Delete(&model.ItemTag{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND library_id = ?", tagID, libraryID).Delete(&model.Tag{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		if affected == 0 {
			return nil
		}
		return h.versions.Bump(tx, libraryID, model.CounterTagsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "tag not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type folderRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// CreateFolder handles POST /api/libraries/:id/tag-folders.
func (h *TagHandler) CreateFolder(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	folder := model.TagFolder{LibraryID: libraryID, Name: req.Name}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&folder).Error; err != nil {
			return err
		}
		return h.versions.Bump(tx, libraryID, model.CounterTagsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, folder)
}

// DeleteFolder handles DELETE /api/libraries/:id/tag-folders/:folder_id.
// Tags in the folder are detached, not deleted.
func (h *TagHandler) DeleteFolder(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	folderID, ok := parseIDParam(c, "folder_id")
	if !ok {
		return
	}

	var affected int64
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Tag{}).
			Where("library_id = ? AND folder_id = ?", libraryID, folderID).
			Update("folder_id", nil).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND library_id = ?", folderID, libraryID).Delete(&model.TagFolder{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		if affected == 0 {
			return nil
		}
		return h.versions.Bump(tx, libraryID, model.CounterTagsVersion)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "folder not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *TagHandler) folderInLibrary(libraryID, folderID int64) bool {
	var folder model.TagFolder
	return h.db.Where("id = ? AND library_id = ?", folderID, libraryID).
		First(&folder).Error == nil
}
