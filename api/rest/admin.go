package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hoshizuki/campfire/server/api/ws"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	sm     *ws.SessionManager
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, sm *ws.SessionManager, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, sm: sm, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var libraries, portals int64
	_ = h.db.Model(&model.Library{}).Count(&libraries).Error
	_ = h.db.Model(&model.PortalView{}).Count(&portals).Error
	c.JSON(http.StatusOK, gin.H{
		"online_viewers":  h.sm.Count(),
		"libraries":       libraries,
		"portal_views":    portals,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListViewers returns a snapshot of all connected viewer sessions.
// GET /api/admin/viewers
func (h *AdminHandler) ListViewers(c *gin.Context) {
	sessions := h.sm.All()
	type viewerInfo struct {
		SessionID     int64   `json:"session_id"`
		AccountID     int64   `json:"account_id"`
		Subscriptions []int64 `json:"subscriptions"`
	}
	result := make([]viewerInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, viewerInfo{
			SessionID:     s.ID,
			AccountID:     s.AccountID,
			Subscriptions: s.Subscriptions(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"viewers": result, "count": len(result)})
}

// KickViewer forcibly disconnects a viewer session by ID.
// POST /api/admin/kick/:id
func (h *AdminHandler) KickViewer(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	s := h.sm.Get(sessionID)
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "viewer not online"})
		return
	}
	s.CancelAllSubscriptions()
	s.Close()
	h.logger.Info("admin kicked viewer", zap.Int64("session_id", sessionID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// BanAccount bans or unbans an account.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Ban {
		status = 0
	}
	result := h.db.Model(&model.Account{}).Where("id = ?", accountID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	// Drop the account's live sessions if it just got banned.
	if req.Ban {
		for _, s := range h.sm.All() {
			if s.AccountID == accountID {
				s.CancelAllSubscriptions()
				s.Close()
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
