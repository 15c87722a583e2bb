package router

import (
	"net/http"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/handlers"
	"github.com/3Eeeecho/go-tgdisk/internal/middlewares"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 包含注册路由所需的所有服务
type Deps struct {
	Uploads   explorer.UploadService
	Files     explorer.FileService
	Reconcile explorer.ReconcileService
	Shares    *handlers.ShareHandler
	Users     *handlers.UserHandler
}

func InitRouter(deps *Deps, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middlewares.Metrics())

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// 公开分享路由，认证可选
		publicShare := v1.Group("/share")
		publicShare.Use(middlewares.OptionalAuthMiddleware(&cfg.JWT))
		{
			publicShare.GET("/:token", deps.Shares.GetSharedFile)
			publicShare.GET("/:token/download", deps.Shares.DownloadShared)
		}

		// 需要认证的路由组
		authenticated := v1.Group("/")
		authenticated.Use(middlewares.AuthMiddleware(&cfg.JWT))

		// 文件和上传相关路由
		fileGroup := authenticated.Group("/files")
		{
			fileGroup.POST("/initiate-upload", handlers.InitiateUpload(deps.Uploads))
			fileGroup.POST("/reconstruct", handlers.ReconstructFiles(deps.Reconcile))

			fileGroup.PUT("/:fileId/chunks/:chunkIndex", handlers.UploadChunk(deps.Uploads, cfg.Upload.MaxChunkSize))
			fileGroup.POST("/:fileId/complete-upload", handlers.CompleteUpload(deps.Uploads))
			fileGroup.POST("/:fileId/abort-upload", handlers.AbortUpload(deps.Uploads))
			fileGroup.GET("/:fileId/upload-progress", handlers.UploadProgress(deps.Uploads))

			fileGroup.GET("/:fileId", handlers.GetFile(deps.Files))
			fileGroup.GET("/:fileId/download", handlers.DownloadFile(deps.Files))
			fileGroup.POST("/:fileId/trash", handlers.TrashFile(deps.Files))
			fileGroup.POST("/:fileId/restore", handlers.RestoreFile(deps.Files))
			fileGroup.DELETE("/:fileId/permanent", handlers.PermanentDeleteFile(deps.Files))

			fileGroup.POST("/:fileId/share-links", deps.Shares.CreateShare)
			fileGroup.GET("/:fileId/share-links", deps.Shares.ListShares)
		}

		authenticated.DELETE("/share-links/:shareId", deps.Shares.RevokeShare)

		// 所有者设置
		settings := authenticated.Group("/settings")
		{
			settings.GET("/usage", deps.Users.GetUsage)
			settings.GET("/telegram-config", deps.Users.GetTelegramConfig)
			settings.PUT("/telegram-config", deps.Users.PutTelegramConfig)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		xerr.Error(c, http.StatusNotFound, xerr.NotFoundCode, "Route not found")
	})

	return router
}
