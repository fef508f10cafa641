package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/hoshizuki/campfire/server/api/rest"
	"github.com/hoshizuki/campfire/server/api/sse"
	apows "github.com/hoshizuki/campfire/server/api/ws"
	"github.com/hoshizuki/campfire/server/audit"
	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/hoshizuki/campfire/server/cache"
	"github.com/hoshizuki/campfire/server/config"
	dbadapter "github.com/hoshizuki/campfire/server/db"
	mw "github.com/hoshizuki/campfire/server/middleware"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/scheduler"
	"github.com/hoshizuki/campfire/server/version"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- File Storage ----
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	sched.AddTicker("orphan_file_sweep", cfg.Storage.SweepInterval, func() {
		scheduler.SweepOrphanFiles(db, cfg.Storage.Dir, logger)
	})

	// ---- Core Services ----
	versions := version.NewStore()
	notifier := broadcast.NewNotifier(pubsub, logger)
	sm := apows.NewSessionManager(logger)

	sched.AddTicker("viewer_stats", 5*time.Minute, func() {
		logger.Debug("viewer stats", zap.Int("online", sm.Count()))
	})

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	feed := apows.NewPortalFeed(db, pubsub, logger)
	feed.RegisterRoutes(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))
	r.Use(audit.Middleware(auditSvc))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	libH := apirest.NewLibraryHandler(db, versions, notifier, logger)
	tagH := apirest.NewTagHandler(db, versions)
	itemH := apirest.NewItemHandler(db, versions, cfg.Sync)
	encH := apirest.NewEncounterHandler(db, notifier, cfg.Sync, logger)
	portalH := apirest.NewPortalHandler(db, notifier, cfg.Sync, logger)
	verH := apirest.NewVersionHandler(db, versions)
	fileH := apirest.NewFileHandler(db, cfg.Storage, logger)
	adminH := apirest.NewAdminHandler(db, sm, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		authed := api.Group("", mw.Auth(cfg.Security, c))

		libsG := authed.Group("/libraries")
		libsG.GET("", libH.List)
		libsG.POST("", libH.Create)
		libsG.GET("/:id", libH.Get)
		libsG.PUT("/:id", libH.Update)
		libsG.DELETE("/:id", libH.Delete)
		libsG.GET("/:id/members", libH.ListMembers)
		libsG.POST("/:id/members", libH.AddMember)
		libsG.PUT("/:id/members/:account_id", libH.UpdateMemberRole)
		libsG.DELETE("/:id/members/:account_id", libH.RemoveMember)

		libsG.GET("/:id/tags", tagH.List)
		libsG.POST("/:id/tags", tagH.Create)
		libsG.PUT("/:id/tags/:tag_id", tagH.Update)
		libsG.DELETE("/:id/tags/:tag_id", tagH.Delete)
		libsG.POST("/:id/tag-folders", tagH.CreateFolder)
		libsG.DELETE("/:id/tag-folders/:folder_id", tagH.DeleteFolder)

		libsG.GET("/:id/items", itemH.List)
		libsG.POST("/:id/items", itemH.Create)
		libsG.GET("/:id/items/:item_id", itemH.Get)
		libsG.PUT("/:id/items/:item_id", itemH.Update)
		libsG.DELETE("/:id/items/:item_id", itemH.Delete)
		libsG.PUT("/:id/items/:item_id/tags", itemH.AssignTags)

		libsG.GET("/:id/encounters", encH.List)
		libsG.POST("/:id/encounters", encH.Create)
		libsG.GET("/:id/encounters/:encounter_id", encH.Get)
		libsG.PUT("/:id/encounters/:encounter_id", encH.Update)
		libsG.DELETE("/:id/encounters/:encounter_id", encH.Delete)

		libsG.GET("/:id/portals", portalH.List)
		libsG.POST("/:id/portals", portalH.Create)
		libsG.GET("/:id/portals/:portal_id", portalH.Get)
		libsG.PUT("/:id/portals/:portal_id", portalH.Update)
		libsG.DELETE("/:id/portals/:portal_id", portalH.Delete)

		libsG.GET("/:id/versions", verH.Get)
		authed.POST("/versions/batch", verH.Batch)

		libsG.GET("/:id/files", fileH.List)
		libsG.POST("/:id/files", fileH.Upload)
		libsG.GET("/:id/files/:file_id", fileH.Download)
		libsG.DELETE("/:id/files/:file_id", fileH.Delete)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPAllowlist(cfg.Server.AdminAllowedIPs))
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/viewers", adminH.ListViewers)
		adminG.POST("/kick/:id", adminH.KickViewer)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(c, cfg.Security, sm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)
	defer sm.CloseAllSessions()

	// ---- SSE fallback ----
	sseH := sse.NewHandler(db, pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
