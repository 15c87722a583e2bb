package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/crypto"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
	"go.uber.org/zap"
)

// 凭证来源
const (
	SourceFile = "file" // 文件上的上传快照
	SourceUser = "user" // 所有者自己的配置
	SourceEnv  = "env"  // 进程级默认凭证
	SourceNone = "none"
)

type ResolveOptions struct {
	AllowFallback     bool
	RequireConfigured bool
}

// Resolved 解析结果，token 只在内存中以明文存在
type Resolved struct {
	Source string
	storage.Credentials
}

// OwnerConfigView 对外展示的配置，不包含明文 token
type OwnerConfigView struct {
	Source         string     `json:"source"`
	Configured     bool       `json:"configured"`
	StorageChatID  string     `json:"storageChatId"`
	BotTokenMasked string     `json:"botTokenMasked"`
	ConfiguredAt   *time.Time `json:"configuredAt"`
}

// CredentialResolver 决定一次远端调用使用哪组凭证
type CredentialResolver interface {
	// ForOwner 所有者配置 -> 默认凭证 -> none
	ForOwner(ctx context.Context, ownerID uint64, opts ResolveOptions) (*Resolved, error)
	// ForFile 优先使用文件上的快照，没有时退回 ForOwner
	ForFile(ctx context.Context, file *models.File, opts ResolveOptions) (*Resolved, error)
	// Seal 加密 token，用于写入文件快照
	Seal(token string) (string, error)

	SaveOwnerConfig(ctx context.Context, ownerID uint64, botToken, storageChatID string) (*OwnerConfigView, error)
	DescribeOwnerConfig(ctx context.Context, ownerID uint64) (*OwnerConfigView, error)
}

type credentialResolver struct {
	users        repositories.UserRepository
	cipher       *crypto.TokenCipher
	fallback     storage.Credentials
	defaultQuota int64
	now          func() time.Time
}

var _ CredentialResolver = (*credentialResolver)(nil)

func NewCredentialResolver(users repositories.UserRepository, cipher *crypto.TokenCipher, fallback storage.Credentials, defaultQuota int64) CredentialResolver {
	fallback.Token = strings.TrimSpace(fallback.Token)
	fallback.ChannelID = strings.TrimSpace(fallback.ChannelID)
	return &credentialResolver{
		users:        users,
		cipher:       cipher,
		fallback:     fallback,
		defaultQuota: defaultQuota,
		now:          time.Now,
	}
}

func notConfigured() error {
	return fmt.Errorf("%w: configure a bot token and storage chat id for this account, or set telegram.bot_token and telegram.storage_chat_id", xerr.ErrStorageNotConfigured)
}

func (r *credentialResolver) ForOwner(ctx context.Context, ownerID uint64, opts ResolveOptions) (*Resolved, error) {
	user, err := r.users.FindByID(ctx, ownerID)
	if err != nil && !errors.Is(err, xerr.ErrUserNotFound) {
		return nil, err
	}

	if user != nil && user.HasTelegramConfig() {
		token, err := r.cipher.Decrypt(user.TelegramBotTokenEnc)
		if err != nil {
			logger.Error("ForOwner: stored bot token cannot be decrypted", zap.Uint64("ownerID", ownerID), zap.Error(err))
			return nil, fmt.Errorf("%w: stored bot token cannot be decrypted, save it again", xerr.ErrStorageNotConfigured)
		}
		return &Resolved{Source: SourceUser, Credentials: storage.Credentials{Token: token, ChannelID: user.TelegramStorageChatID}}, nil
	}

	if opts.AllowFallback && r.fallback.Token != "" && r.fallback.ChannelID != "" {
		return &Resolved{Source: SourceEnv, Credentials: r.fallback}, nil
	}

	if opts.RequireConfigured {
		return nil, notConfigured()
	}
	return &Resolved{Source: SourceNone}, nil
}

func (r *credentialResolver) ForFile(ctx context.Context, file *models.File, opts ResolveOptions) (*Resolved, error) {
	if file.HasCredentialSnapshot() {
		token, err := r.cipher.Decrypt(file.StorageTokenEnc)
		if err == nil {
			return &Resolved{Source: SourceFile, Credentials: storage.Credentials{Token: token, ChannelID: file.StorageChatID}}, nil
		}
		logger.Warn("ForFile: credential snapshot unreadable, falling back to owner credentials",
			zap.Uint64("fileID", file.ID), zap.Error(err))
	}
	return r.ForOwner(ctx, file.OwnerID, opts)
}

func (r *credentialResolver) Seal(token string) (string, error) {
	enc, err := r.cipher.Encrypt(token)
	if err != nil {
		return "", fmt.Errorf("credential resolver: seal token: %w", err)
	}
	return enc, nil
}

func (r *credentialResolver) SaveOwnerConfig(ctx context.Context, ownerID uint64, botToken, storageChatID string) (*OwnerConfigView, error) {
	botToken = strings.TrimSpace(botToken)
	storageChatID = strings.TrimSpace(storageChatID)
	if botToken == "" || storageChatID == "" {
		return nil, xerr.Validationf("bot token and storage chat id are required")
	}

	if _, err := r.users.GetOrCreate(ctx, ownerID, r.defaultQuota); err != nil {
		return nil, err
	}
	enc, err := r.Seal(botToken)
	if err != nil {
		return nil, err
	}
	at := r.now()
	if err := r.users.SaveTelegramConfig(ctx, ownerID, enc, storageChatID, at); err != nil {
		return nil, err
	}
	logger.Info("SaveOwnerConfig: telegram storage configured",
		zap.Uint64("ownerID", ownerID),
		zap.String("token", crypto.MaskToken(botToken)),
		zap.String("chatID", storageChatID))

	return &OwnerConfigView{
		Source:         SourceUser,
		Configured:     true,
		StorageChatID:  storageChatID,
		BotTokenMasked: crypto.MaskToken(botToken),
		ConfiguredAt:   &at,
	}, nil
}

func (r *credentialResolver) DescribeOwnerConfig(ctx context.Context, ownerID uint64) (*OwnerConfigView, error) {
	res, err := r.ForOwner(ctx, ownerID, ResolveOptions{AllowFallback: true})
	if err != nil {
		return nil, err
	}
	view := &OwnerConfigView{
		Source:         res.Source,
		Configured:     res.Source != SourceNone,
		StorageChatID:  res.ChannelID,
		BotTokenMasked: crypto.MaskToken(res.Token),
	}
	if res.Source == SourceUser {
		if user, err := r.users.FindByID(ctx, ownerID); err == nil {
			view.ConfiguredAt = user.TelegramConfiguredAt
		}
	}
	return view, nil
}
