package share

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResolveOptions 解析分享时调用方提供的信息
type ResolveOptions struct {
	Password string
	CallerID uint64 // 0 表示匿名访问
}

// ResolvedShare 解析成功的分享和它指向的文件
type ResolvedShare struct {
	Share *models.ShareLink
	File  *models.File
}

// RangePicker 根据文件大小选择读取区间
type RangePicker func(size int64) (*explorer.ByteRange, error)

// ShareService 定义了文件分享服务需要实现的接口
type ShareService interface {
	// CreateShareLink 为可读文件创建分享链接
	CreateShareLink(ctx context.Context, ownerID, fileID uint64, req *models.CreateShareRequest) (*models.ShareLink, error)
	// ResolveShareToken 校验分享并增加访问计数
	ResolveShareToken(ctx context.Context, token string, opts ResolveOptions) (*ResolvedShare, error)
	// ReadShared 解析分享后读取文件内容
	// pick 拿到文件大小后给出读取区间，nil 或返回 nil 时读取全部
	ReadShared(ctx context.Context, token string, opts ResolveOptions, pick RangePicker) (*explorer.ReadResult, *models.ShareLink, error)
	// RevokeShareLink 撤销分享链接
	RevokeShareLink(ctx context.Context, ownerID, shareID uint64) error
	// ListShareLinks 列出文件的所有分享链接
	ListShareLinks(ctx context.Context, ownerID, fileID uint64) ([]models.ShareLink, error)
}

// shareService 是 ShareService 接口的具体实现
type shareService struct {
	shares repositories.ShareRepository
	files  repositories.FileRepository
	reader explorer.RangeReader
	now    func() time.Time
}

// NewShareService 创建一个新的 ShareService 实例
func NewShareService(shares repositories.ShareRepository, files repositories.FileRepository, reader explorer.RangeReader) ShareService {
	return &shareService{
		shares: shares,
		files:  files,
		reader: reader,
		now:    time.Now,
	}
}

// CreateShareLink 处理创建文件分享链接的业务逻辑
func (s *shareService) CreateShareLink(ctx context.Context, ownerID, fileID uint64, req *models.CreateShareRequest) (*models.ShareLink, error) {
	// 1. 验证文件是否存在，并且是否属于当前用户
	file, err := s.files.FindByIDAndOwner(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if !file.IsReadable() {
		return nil, fmt.Errorf("share service: file is %s: %w", file.Status, xerr.ErrFileStatusInvalid)
	}

	// 2. 处理权限和过期时间
	permission := strings.TrimSpace(req.Permission)
	if permission == "" {
		permission = models.SharePermissionDownload
	}
	if permission != models.SharePermissionView && permission != models.SharePermissionDownload {
		return nil, xerr.Validationf("permission must be %q or %q", models.SharePermissionView, models.SharePermissionDownload)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, xerr.Validationf("expiresAt must be in the future")
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	// 3. 如果设置了密码，对其进行哈希处理
	var hashed *string
	if req.Password != nil && *req.Password != "" {
		h, err := utils.HashPassword(*req.Password)
		if err != nil {
			logger.Error("CreateShareLink: failed to hash share password", zap.Uint64("fileID", fileID), zap.Error(err))
			return nil, fmt.Errorf("share service: hash password: %w", xerr.ErrInternalServer)
		}
		hashed = &h
	}

	link := &models.ShareLink{
		Token:        strings.ReplaceAll(uuid.NewString(), "-", ""),
		FileID:       fileID,
		OwnerID:      ownerID,
		Permission:   permission,
		PasswordHash: hashed,
		ExpiresAt:    req.ExpiresAt,
		IsPublic:     isPublic,
	}
	if err := s.shares.Create(ctx, link); err != nil {
		return nil, err
	}

	logger.Info("CreateShareLink: share created",
		zap.Uint64("ownerID", ownerID),
		zap.Uint64("fileID", fileID),
		zap.Uint64("shareID", link.ID),
		zap.String("permission", permission))
	return link, nil
}

// ResolveShareToken 按撤销、过期、可见性、密码、文件状态的顺序校验
func (s *shareService) ResolveShareToken(ctx context.Context, token string, opts ResolveOptions) (*ResolvedShare, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, xerr.ErrShareNotFound
	}
	link, err := s.shares.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.RevokedAt != nil {
		return nil, xerr.ErrShareNotFound
	}
	if link.ExpiresAt != nil && link.ExpiresAt.Before(s.now()) {
		logger.Info("ResolveShareToken: share expired", zap.Uint64("shareID", link.ID))
		return nil, fmt.Errorf("share service: expired at %s: %w", link.ExpiresAt.Format(time.RFC3339), xerr.ErrExpired)
	}
	// 非公开分享只对所有者可见
	if !link.IsPublic && opts.CallerID != link.OwnerID {
		return nil, xerr.ErrShareNotFound
	}
	if link.HasPassword() {
		if opts.Password == "" {
			return nil, xerr.ErrSharePasswordRequired
		}
		if !utils.CheckPasswordHash(opts.Password, *link.PasswordHash) {
			logger.Warn("ResolveShareToken: incorrect share password", zap.Uint64("shareID", link.ID))
			return nil, xerr.ErrSharePasswordIncorrect
		}
	}

	file, err := s.files.FindByID(ctx, link.FileID)
	if err != nil {
		return nil, err
	}
	if !file.IsReadable() {
		return nil, fmt.Errorf("share service: shared file is no longer available: %w", xerr.ErrFileNotFound)
	}

	if err := s.shares.IncrementAccess(ctx, link.ID); err != nil {
		return nil, err
	}
	link.AccessCount++
	return &ResolvedShare{Share: link, File: file}, nil
}

func (s *shareService) ReadShared(ctx context.Context, token string, opts ResolveOptions, pick RangePicker) (*explorer.ReadResult, *models.ShareLink, error) {
	resolved, err := s.ResolveShareToken(ctx, token, opts)
	if err != nil {
		return nil, nil, err
	}
	var rng *explorer.ByteRange
	if pick != nil {
		if rng, err = pick(resolved.File.Size); err != nil {
			return nil, resolved.Share, err
		}
	}
	res, err := s.reader.Read(ctx, resolved.File, rng)
	if err != nil {
		return nil, resolved.Share, err
	}
	return res, resolved.Share, nil
}

// RevokeShareLink 撤销一个分享链接，重复撤销视为成功
func (s *shareService) RevokeShareLink(ctx context.Context, ownerID, shareID uint64) error {
	link, err := s.shares.FindByIDAndOwner(ctx, shareID, ownerID)
	if err != nil {
		return err
	}
	if link.RevokedAt != nil {
		return nil
	}
	if _, err := s.shares.Revoke(ctx, link.ID, s.now()); err != nil {
		return err
	}
	logger.Info("RevokeShareLink: share revoked", zap.Uint64("ownerID", ownerID), zap.Uint64("shareID", shareID))
	return nil
}

func (s *shareService) ListShareLinks(ctx context.Context, ownerID, fileID uint64) ([]models.ShareLink, error) {
	if _, err := s.files.FindByIDAndOwner(ctx, fileID, ownerID); err != nil {
		return nil, err
	}
	return s.shares.ListByFile(ctx, ownerID, fileID)
}
