package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ShareRepository interface {
	Create(ctx context.Context, share *models.ShareLink) error
	FindByToken(ctx context.Context, token string) (*models.ShareLink, error)
	FindByIDAndOwner(ctx context.Context, id, ownerID uint64) (*models.ShareLink, error)
	ListByFile(ctx context.Context, ownerID, fileID uint64) ([]models.ShareLink, error)
	IncrementAccess(ctx context.Context, id uint64) error
	Revoke(ctx context.Context, id uint64, at time.Time) (bool, error)
	// RevokeByFile 撤销文件上所有未撤销的分享，返回撤销数量
	RevokeByFile(ctx context.Context, fileID uint64, at time.Time) (int64, error)
}

type shareRepository struct {
	db *gorm.DB
}

var _ ShareRepository = (*shareRepository)(nil)

func NewShareRepository(db *gorm.DB) ShareRepository {
	return &shareRepository{db: db}
}

func (r *shareRepository) Create(ctx context.Context, share *models.ShareLink) error {
	if err := r.db.WithContext(ctx).Create(share).Error; err != nil {
		logger.Error("CreateShareLink: failed to insert share link", zap.Uint64("fileID", share.FileID), zap.Error(err))
		return fmt.Errorf("share repository: create: %w", xerr.ErrDatabaseError)
	}
	return nil
}

func (r *shareRepository) FindByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	var share models.ShareLink
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrShareNotFound
		}
		return nil, fmt.Errorf("share repository: find by token: %w", xerr.ErrDatabaseError)
	}
	return &share, nil
}

func (r *shareRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uint64) (*models.ShareLink, error) {
	var share models.ShareLink
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrShareNotFound
		}
		return nil, fmt.Errorf("share repository: find: %w", xerr.ErrDatabaseError)
	}
	return &share, nil
}

func (r *shareRepository) ListByFile(ctx context.Context, ownerID, fileID uint64) ([]models.ShareLink, error) {
	var shares []models.ShareLink
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND file_id = ?", ownerID, fileID).
		Order("created_at DESC").
		Find(&shares).Error
	if err != nil {
		return nil, fmt.Errorf("share repository: list: %w", xerr.ErrDatabaseError)
	}
	return shares, nil
}

func (r *shareRepository) IncrementAccess(ctx context.Context, id uint64) error {
	err := r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("id = ?", id).
		Update("access_count", gorm.Expr("access_count + 1")).Error
	if err != nil {
		return fmt.Errorf("share repository: increment access: %w", xerr.ErrDatabaseError)
	}
	return nil
}

func (r *shareRepository) Revoke(ctx context.Context, id uint64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("share repository: revoke: %w", xerr.ErrDatabaseError)
	}
	return res.RowsAffected == 1, nil
}

func (r *shareRepository) RevokeByFile(ctx context.Context, fileID uint64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("file_id = ? AND revoked_at IS NULL", fileID).
		Update("revoked_at", at)
	if res.Error != nil {
		logger.Error("RevokeSharesByFile: failed to revoke share links", zap.Uint64("fileID", fileID), zap.Error(res.Error))
		return 0, fmt.Errorf("share repository: revoke by file: %w", xerr.ErrDatabaseError)
	}
	return res.RowsAffected, nil
}
