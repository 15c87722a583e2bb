package server

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/crypto"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
	"github.com/3Eeeecho/go-tgdisk/internal/services/admin"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/3Eeeecho/go-tgdisk/internal/services/share"
	"github.com/3Eeeecho/go-tgdisk/internal/setup"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App 持有进程内的全部连接和服务，serve / reconcile / sweep 命令共用
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Cache  cache.Cache

	Creds     admin.CredentialResolver
	Users     admin.UserService
	Uploads   explorer.UploadService
	Files     explorer.FileService
	Reconcile explorer.ReconcileService
	Shares    share.ShareService
}

// NewApp 负责构建所有依赖
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	// 初始化数据库连接
	db, err := setup.InitMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MySQL: %w", err)
	}

	// 初始化 Redis 连接
	redisClient, err := setup.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		setup.CloseMySQL(db)
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	cacheService := setup.InitCache(redisClient)

	cipher, err := crypto.NewTokenCipher(cfg.TokenEncryptionSecret())
	if err != nil {
		setup.CloseRedis(redisClient)
		setup.CloseMySQL(db)
		return nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}
	chunkStorage := setup.InitStorage(&cfg.Telegram, cacheService)

	app := &App{Config: cfg, DB: db, Redis: redisClient, Cache: cacheService}
	app.wire(cipher, chunkStorage)
	return app, nil
}

// wire 初始化 Repositories 和 Services
func (a *App) wire(cipher *crypto.TokenCipher, cs storage.ChunkStorage) {
	cfg := a.Config
	store := repositories.NewStore(a.DB)
	tm := repositories.NewTransactionManager(a.DB)

	a.Creds = admin.NewCredentialResolver(store.Users, cipher, setup.FallbackCredentials(&cfg.Telegram), cfg.Quota.DefaultBytes)
	a.Users = admin.NewUserService(store.Users, cfg.Quota.DefaultBytes)

	reader := explorer.NewRangeReader(store.Files, a.Creds, cs, cfg.Upload.ReadConcurrency)
	a.Uploads = explorer.NewUploadService(store, tm, a.Creds, cs, explorer.UploadOptionsFromConfig(cfg))
	a.Files = explorer.NewFileService(store, tm, a.Creds, cs, reader)
	a.Reconcile = explorer.NewReconcileService(store, tm, a.Creds, cs, cfg.Telegram.HistoryLimit)
	a.Shares = share.NewShareService(store.Shares, store.Files, reader)
}

// Close 释放 Redis 和数据库连接
func (a *App) Close() {
	setup.CloseRedis(a.Redis)
	setup.CloseMySQL(a.DB)
}
