package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/hoshizuki/campfire/server/middleware"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/version"
	"gorm.io/gorm"
)

// VersionHandler serves the per-library version counters that clients poll to
// decide what to refetch.
type VersionHandler struct {
	db       *gorm.DB
	versions *version.Store
}

// NewVersionHandler creates a new VersionHandler.
func NewVersionHandler(db *gorm.DB, versions *version.Store) *VersionHandler {
	return &VersionHandler{db: db, versions: versions}
}

// Get handles GET /api/libraries/:id/versions.
func (h *VersionHandler) Get(c *gin.Context) {
	libraryID, ok := requireRole(c, h.db, model.RoleViewer)
	if !ok {
		return
	}
	row, err := h.versions.Read(h.db, libraryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, row)
}

type batchVersionsRequest struct {
	LibraryIDs []int64 `json:"libraryIds" binding:"required"`
}

// Batch handles POST /api/versions/batch. Only libraries the caller is a
// member of are returned; IDs the caller cannot see are silently dropped so
// the response does not leak library existence.
func (h *VersionHandler) Batch(c *gin.Context) {
	var req batchVersionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID := mw.GetAccountID(c)

	var memberships []model.LibraryMember
	if err := h.db.Where("account_id = ? AND library_id IN ?", accountID, req.LibraryIDs).
		Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	allowed := make(map[int64]bool, len(memberships))
	for _, m := range memberships {
		allowed[m.LibraryID] = true
	}

	visible := make([]int64, 0, len(req.LibraryIDs))
	seen := make(map[int64]bool, len(req.LibraryIDs))
	for _, id := range req.LibraryIDs {
		if allowed[id] && !seen[id] {
			visible = append(visible, id)
			seen[id] = true
		}
	}

	rows, err := h.versions.ReadBatch(h.db, visible)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": rows})
}
