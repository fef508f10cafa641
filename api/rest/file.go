package rest

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hoshizuki/campfire/server/config"
	"github.com/hoshizuki/campfire/server/middleware"
	"github.com/hoshizuki/campfire/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileHandler handles library file uploads. Files live on local disk under
// the configured storage dir with uuid names; the original name is kept only
// in the database row.
type FileHandler struct {
	db      *gorm.DB
	storage config.StorageConfig
	logger  *zap.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(db *gorm.DB, storage config.StorageConfig, logger *zap.Logger) *FileHandler {
	return &FileHandler{db: db, storage: storage, logger: logger}
}

// List handles GET /api/libraries/:id/files.
func (h *FileHandler) List(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	var files []model.UserFile
	if err := h.db.Where("library_id = ?", libraryID).Find(&files).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// Upload handles POST /api/libraries/:id/files (multipart form, field "file").
func (h *FileHandler) Upload(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	maxBytes := h.storage.MaxUploadMB * 1024 * 1024
	if maxBytes > 0 && header.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	if err := os.MkdirAll(h.storage.Dir, 0o755); err != nil {
		h.logger.Error("storage dir create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	storageName := uuid.NewString() + filepath.Ext(header.Filename)
	storagePath := filepath.Join(h.storage.Dir, storageName)
	if err := c.SaveUploadedFile(header, storagePath); err != nil {
		h.logger.Error("file save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	file := model.UserFile{
		LibraryID:   libraryID,
		Name:        filepath.Base(header.Filename),
		StoragePath: storagePath,
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   header.Size,
		UploadedBy:  middleware.GetAccountID(c),
	}
	if err := h.db.Create(&file).Error; err != nil {
		_ = os.Remove(storagePath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, file)
}

// Download handles GET /api/libraries/:id/files/:file_id.
func (h *FileHandler) Download(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	fileID, ok := parseIDParam(c, "file_id")
	if !ok {
		return
	}
	var file model.UserFile
	if err := h.db.Where("id = ? AND library_id = ?", fileID, libraryID).First(&file).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if file.ContentType != "" {
		c.Header("Content-Type", file.ContentType)
	}
	c.FileAttachment(file.StoragePath, file.Name)
}

// Delete handles DELETE /api/libraries/:id/files/:file_id. Items referencing
// the file keep their row but lose the link.
func (h *FileHandler) Delete(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleEditor)
	if !ok {
		return
	}
	fileID, ok := parseIDParam(c, "file_id")
	if !ok {
		return
	}
	var file model.UserFile
	if err := h.db.Where("id = ? AND library_id = ?", fileID, libraryID).First(&file).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Item{}).
			Where("file_id = ?", file.ID).
			Update("file_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&model.UserFile{}, file.ID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := os.Remove(file.StoragePath); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("stored file remove failed", zap.String("path", file.StoragePath), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
