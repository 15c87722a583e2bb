package repositories

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"gorm.io/gorm"
)

// FolderRepository 目录树由外部维护，这里只做存在性校验
type FolderRepository interface {
	Exists(ctx context.Context, ownerID, folderID uint64) (bool, error)
}

type folderRepository struct {
	db *gorm.DB
}

var _ FolderRepository = (*folderRepository)(nil)

func NewFolderRepository(db *gorm.DB) FolderRepository {
	return &folderRepository{db: db}
}

func (r *folderRepository) Exists(ctx context.Context, ownerID, folderID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Folder{}).
		Where("id = ? AND owner_id = ? AND is_trashed = ?", folderID, ownerID, false).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("folder repository: exists: %w", xerr.ErrDatabaseError)
	}
	return n > 0, nil
}
