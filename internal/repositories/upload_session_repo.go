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
	"gorm.io/gorm/clause"
)

type UploadSessionRepository interface {
	Create(ctx context.Context, session *models.UploadSession) error
	FindByFileID(ctx context.Context, fileID uint64) (*models.UploadSession, error)
	// FindByFileIDForUpdate 在事务中加行锁读取，只用于短小的数据库临界区
	FindByFileIDForUpdate(ctx context.Context, fileID uint64) (*models.UploadSession, error)
	Save(ctx context.Context, session *models.UploadSession) error
	// TransitionStatus 条件更新状态，返回是否发生了变更
	TransitionStatus(ctx context.Context, id uint64, from []string, to string) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.UploadSession, error)
}

type uploadSessionRepository struct {
	db *gorm.DB
}

var _ UploadSessionRepository = (*uploadSessionRepository)(nil)

func NewUploadSessionRepository(db *gorm.DB) UploadSessionRepository {
	return &uploadSessionRepository{db: db}
}

func (r *uploadSessionRepository) Create(ctx context.Context, session *models.UploadSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		logger.Error("CreateUploadSession: failed to create session", zap.Uint64("fileID", session.FileID), zap.Error(err))
		return fmt.Errorf("upload session repository: create: %w", xerr.ErrDatabaseError)
	}
	return nil
}

func (r *uploadSessionRepository) find(db *gorm.DB, fileID uint64) (*models.UploadSession, error) {
	var s models.UploadSession
	err := db.Where("file_id = ?", fileID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrUploadSessionNotFound
		}
		logger.Error("FindUploadSession: failed to query session", zap.Uint64("fileID", fileID), zap.Error(err))
		return nil, fmt.Errorf("upload session repository: find: %w", xerr.ErrDatabaseError)
	}
	return &s, nil
}

func (r *uploadSessionRepository) FindByFileID(ctx context.Context, fileID uint64) (*models.UploadSession, error) {
	return r.find(r.db.WithContext(ctx), fileID)
}

func (r *uploadSessionRepository) FindByFileIDForUpdate(ctx context.Context, fileID uint64) (*models.UploadSession, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), fileID)
}

func (r *uploadSessionRepository) Save(ctx context.Context, session *models.UploadSession) error {
	if err := r.db.WithContext(ctx).Save(session).Error; err != nil {
		logger.Error("SaveUploadSession: failed to save session", zap.Uint64("fileID", session.FileID), zap.Error(err))
		return fmt.Errorf("upload session repository: save: %w", xerr.ErrDatabaseError)
	}
	return nil
}

func (r *uploadSessionRepository) TransitionStatus(ctx context.Context, id uint64, from []string, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.UploadSession{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		logger.Error("TransitionUploadSession: conditional update failed", zap.Uint64("sessionID", id), zap.Error(res.Error))
		return false, fmt.Errorf("upload session repository: transition: %w", xerr.ErrDatabaseError)
	}
	return res.RowsAffected == 1, nil
}

func (r *uploadSessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.UploadSession, error) {
	var sessions []models.UploadSession
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", []string{models.UploadStatusPending, models.UploadStatusUploading}, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("upload session repository: list expired: %w", xerr.ErrDatabaseError)
	}
	return sessions, nil
}
