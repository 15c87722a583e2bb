package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/handlers"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/worker"
	"github.com/3Eeeecho/go-tgdisk/internal/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	app        *App
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer 构建依赖和 HTTP 路由
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}

	//  初始化 Handlers
	engine := router.InitRouter(&router.Deps{
		Uploads:   app.Uploads,
		Files:     app.Files,
		Reconcile: app.Reconcile,
		Shares:    handlers.NewShareHandler(app.Shares),
		Users:     handlers.NewUserHandler(app.Users, app.Creds),
	}, cfg)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		app:        app,
		router:     engine,
		httpServer: httpServer,
	}, nil
}

// Run 启动服务器和 Worker，并处理优雅关机
func (s *Server) Run(ctx context.Context, stopChan chan os.Signal) {
	defer s.app.Close()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	worker.StartAllWorkers(workerCtx, s.app.Config, s.app.Uploads, s.app.Cache)

	// 启动 HTTP 服务器
	go func() {
		logger.Info("Server is running", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")
	stopWorkers()

	// 分片读写可能持续较久，给进行中的请求留出时间
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	logger.Info("Server exited gracefully")
}
