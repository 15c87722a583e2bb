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

// UserRepository 所有者配额账本和存储凭证
type UserRepository interface {
	FindByID(ctx context.Context, id uint64) (*models.User, error)
	// GetOrCreate 账本行不存在时按默认配额创建
	GetOrCreate(ctx context.Context, id uint64, defaultQuota int64) (*models.User, error)
	AddUsedBytes(ctx context.Context, id uint64, delta int64) error
	// SubUsedBytes 扣减已用空间，结果不小于 0
	SubUsedBytes(ctx context.Context, id uint64, delta int64) error
	SaveTelegramConfig(ctx context.Context, id uint64, tokenEnc, chatID string, at time.Time) error
}

type userRepository struct {
	db *gorm.DB
}

var _ UserRepository = (*userRepository)(nil)

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrUserNotFound
		}
		logger.Error("FindUserByID: failed to query user", zap.Uint64("userID", id), zap.Error(err))
		return nil, fmt.Errorf("user repository: find: %w", xerr.ErrDatabaseError)
	}
	return &user, nil
}

func (r *userRepository) GetOrCreate(ctx context.Context, id uint64, defaultQuota int64) (*models.User, error) {
	user := models.User{ID: id}
	err := r.db.WithContext(ctx).
		Where(models.User{ID: id}).
		Attrs(models.User{QuotaBytes: defaultQuota}).
		FirstOrCreate(&user).Error
	if err != nil {
		logger.Error("GetOrCreateUser: failed to load quota ledger", zap.Uint64("userID", id), zap.Error(err))
		return nil, fmt.Errorf("user repository: get or create: %w", xerr.ErrDatabaseError)
	}
	return &user, nil
}

func (r *userRepository) AddUsedBytes(ctx context.Context, id uint64, delta int64) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("used_bytes", gorm.Expr("used_bytes + ?", delta))
	if res.Error != nil {
		logger.Error("AddUsedBytes: failed to update ledger", zap.Uint64("userID", id), zap.Int64("delta", delta), zap.Error(res.Error))
		return fmt.Errorf("user repository: add used bytes: %w", xerr.ErrDatabaseError)
	}
	if res.RowsAffected == 0 {
		return xerr.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) SubUsedBytes(ctx context.Context, id uint64, delta int64) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("used_bytes", gorm.Expr("CASE WHEN used_bytes > ? THEN used_bytes - ? ELSE 0 END", delta, delta))
	if res.Error != nil {
		logger.Error("SubUsedBytes: failed to update ledger", zap.Uint64("userID", id), zap.Int64("delta", delta), zap.Error(res.Error))
		return fmt.Errorf("user repository: sub used bytes: %w", xerr.ErrDatabaseError)
	}
	return nil
}

func (r *userRepository) SaveTelegramConfig(ctx context.Context, id uint64, tokenEnc, chatID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"telegram_bot_token_enc":   tokenEnc,
			"telegram_storage_chat_id": chatID,
			"telegram_configured_at":   at,
		})
	if res.Error != nil {
		logger.Error("SaveTelegramConfig: failed to store credentials", zap.Uint64("userID", id), zap.Error(res.Error))
		return fmt.Errorf("user repository: save telegram config: %w", xerr.ErrDatabaseError)
	}
	if res.RowsAffected == 0 {
		return xerr.ErrUserNotFound
	}
	return nil
}
