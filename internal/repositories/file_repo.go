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

type FileRepository interface {
	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id uint64) (*models.File, error)
	// FindByIDAndOwner 按所有者限定查找，找不到返回 ErrFileNotFound
	FindByIDAndOwner(ctx context.Context, id, ownerID uint64) (*models.File, error)
	UpdateFields(ctx context.Context, id uint64, fields map[string]any) error
	Delete(ctx context.Context, id uint64) error

	// TransitionStatus 条件更新状态，返回是否发生了变更
	TransitionStatus(ctx context.Context, id uint64, from []string, fields map[string]any) (bool, error)
	// MarkDeleted 仅在 deleted_at 为空时写入，保证配额只扣减一次
	MarkDeleted(ctx context.Context, id uint64, at time.Time) (bool, error)

	// InsertChunkRef 原子的 insert-if-absent，返回是否真正插入
	InsertChunkRef(ctx context.Context, ref *models.ChunkRef) (bool, error)
	ListChunkRefs(ctx context.Context, fileID uint64) ([]models.ChunkRef, error)
	CountChunkRefs(ctx context.Context, fileID uint64) (int64, error)
	DeleteChunkRefs(ctx context.Context, fileID uint64) error
}

type fileRepository struct {
	db *gorm.DB
}

var _ FileRepository = (*fileRepository)(nil)

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *models.File) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		logger.Error("CreateFile: failed to create file record", zap.Uint64("ownerID", file.OwnerID), zap.Error(err))
		return fmt.Errorf("file repository: create: %w", xerr.ErrDatabaseError)
	}
	return nil
}

func (r *fileRepository) FindByID(ctx context.Context, id uint64) (*models.File, error) {
	var file models.File
	err := r.db.WithContext(ctx).First(&file, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrFileNotFound
		}
		logger.Error("FindFileByID: failed to query file", zap.Uint64("fileID", id), zap.Error(err))
		return nil, fmt.Errorf("file repository: find: %w", xerr.ErrDatabaseError)
	}
	return &file, nil
}

func (r *fileRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uint64) (*models.File, error) {
	var file models.File
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrFileNotFound
		}
		logger.Error("FindFileByIDAndOwner: failed to query file",
			zap.Uint64("fileID", id), zap.Uint64("ownerID", ownerID), zap.Error(err))
		return nil, fmt.Errorf("file repository: find: %w", xerr.ErrDatabaseError)
	}
	return &file, nil
}

func (r *fileRepository) UpdateFields(ctx context.Context, id uint64, fields map[string]any) error {
	err := r.db.WithContext(ctx).Model(&models.File{}).Where("id = ?", id).Updates(fields).Error
	if err != nil {
		logger.Error("UpdateFileFields: failed to update file", zap.Uint64("fileID", id), zap.Error(err))
		return fmt.Errorf("file repository: update: %w", xerr.ErrDatabaseError)
	}
	return nil
}

func (r *fileRepository) Delete(ctx context.Context, id uint64) error {
	err := r.db.WithContext(ctx).Delete(&models.File{}, id).Error
	if err != nil {
		logger.Error("DeleteFile: failed to delete file row", zap.Uint64("fileID", id), zap.Error(err))
		return fmt.Errorf("file repository: delete: %w", xerr.ErrDatabaseError)
	}
	return nil
}

func (r *fileRepository) TransitionStatus(ctx context.Context, id uint64, from []string, fields map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.File{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		logger.Error("TransitionFileStatus: conditional update failed", zap.Uint64("fileID", id), zap.Error(res.Error))
		return false, fmt.Errorf("file repository: transition: %w", xerr.ErrDatabaseError)
	}
	return res.RowsAffected == 1, nil
}

func (r *fileRepository) MarkDeleted(ctx context.Context, id uint64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.File{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"deleted_at": at,
			"is_trashed": true,
			"status":     models.FileStatusFailed,
		})
	if res.Error != nil {
		logger.Error("MarkFileDeleted: conditional update failed", zap.Uint64("fileID", id), zap.Error(res.Error))
		return false, fmt.Errorf("file repository: mark deleted: %w", xerr.ErrDatabaseError)
	}
	return res.RowsAffected == 1, nil
}

func (r *fileRepository) InsertChunkRef(ctx context.Context, ref *models.ChunkRef) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ref)
	if res.Error != nil {
		logger.Error("InsertChunkRef: failed to insert chunk ref",
			zap.Uint64("fileID", ref.FileID), zap.Int("chunkIndex", ref.ChunkIndex), zap.Error(res.Error))
		return false, fmt.Errorf("file repository: insert chunk ref: %w", xerr.ErrDatabaseError)
	}
	return res.RowsAffected == 1, nil
}

func (r *fileRepository) ListChunkRefs(ctx context.Context, fileID uint64) ([]models.ChunkRef, error) {
	var refs []models.ChunkRef
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Order("chunk_index ASC").Find(&refs).Error
	if err != nil {
		logger.Error("ListChunkRefs: failed to query chunk refs", zap.Uint64("fileID", fileID), zap.Error(err))
		return nil, fmt.Errorf("file repository: list chunk refs: %w", xerr.ErrDatabaseError)
	}
	return refs, nil
}

func (r *fileRepository) CountChunkRefs(ctx context.Context, fileID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ChunkRef{}).Where("file_id = ?", fileID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("file repository: count chunk refs: %w", xerr.ErrDatabaseError)
	}
	return n, nil
}

func (r *fileRepository) DeleteChunkRefs(ctx context.Context, fileID uint64) error {
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&models.ChunkRef{}).Error
	if err != nil {
		logger.Error("DeleteChunkRefs: failed to clear manifest", zap.Uint64("fileID", fileID), zap.Error(err))
		return fmt.Errorf("file repository: delete chunk refs: %w", xerr.ErrDatabaseError)
	}
	return nil
}
