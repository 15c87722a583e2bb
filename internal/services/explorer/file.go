package explorer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
	"github.com/3Eeeecho/go-tgdisk/internal/services/admin"
	"go.uber.org/zap"
)

// FileService 文件生命周期：回收站、恢复、永久删除和读取
type FileService interface {
	GetFile(ctx context.Context, ownerID, fileID uint64) (*models.File, error)
	// Trash 只改状态，远端字节和配额都不变
	Trash(ctx context.Context, ownerID, fileID uint64) (*models.File, error)
	Restore(ctx context.Context, ownerID, fileID uint64) (*models.File, error)
	// PermanentDelete 可重复执行，配额只在 deletedAt 首次写入时扣减
	PermanentDelete(ctx context.Context, ownerID, fileID uint64) error
	// Read 读取所有者自己的文件，rng 为 nil 时读取全部
	Read(ctx context.Context, ownerID, fileID uint64, rng *ByteRange) (*ReadResult, error)
}

type fileService struct {
	store   *repositories.Store
	tm      repositories.TransactionManager
	creds   admin.CredentialResolver
	storage storage.ChunkStorage
	reader  RangeReader
	now     func() time.Time
}

func NewFileService(
	store *repositories.Store,
	tm repositories.TransactionManager,
	creds admin.CredentialResolver,
	cs storage.ChunkStorage,
	reader RangeReader,
) FileService {
	return &fileService{
		store:   store,
		tm:      tm,
		creds:   creds,
		storage: cs,
		reader:  reader,
		now:     time.Now,
	}
}

func (s *fileService) GetFile(ctx context.Context, ownerID, fileID uint64) (*models.File, error) {
	file, err := checkOwnedFile(ctx, s.store.Files, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	refs, err := s.store.Files.ListChunkRefs(ctx, fileID)
	if err != nil {
		return nil, err
	}
	file.ChunkRefs = refs
	return file, nil
}

func (s *fileService) Trash(ctx context.Context, ownerID, fileID uint64) (*models.File, error) {
	file, err := checkOwnedFile(ctx, s.store.Files, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status == models.FileStatusTrashed {
		return file, nil
	}
	if file.Status != models.FileStatusActive {
		return nil, fmt.Errorf("file service: cannot trash a file in %s state: %w", file.Status, xerr.ErrFileStatusInvalid)
	}

	now := s.now()
	ok, err := s.store.Files.TransitionStatus(ctx, fileID, []string{models.FileStatusActive}, map[string]any{
		"status":     models.FileStatusTrashed,
		"is_trashed": true,
		"trashed_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.settle(ctx, ownerID, fileID, models.FileStatusTrashed)
	}

	file.Status = models.FileStatusTrashed
	file.IsTrashed = true
	file.TrashedAt = &now
	logger.Info("Trash: file moved to trash", zap.Uint64("ownerID", ownerID), zap.Uint64("fileID", fileID))
	return file, nil
}

func (s *fileService) Restore(ctx context.Context, ownerID, fileID uint64) (*models.File, error) {
	file, err := checkOwnedFile(ctx, s.store.Files, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status == models.FileStatusActive && !file.IsTrashed {
		return file, nil
	}
	if file.Status != models.FileStatusTrashed {
		return nil, fmt.Errorf("file service: cannot restore a file in %s state: %w", file.Status, xerr.ErrFileStatusInvalid)
	}

	ok, err := s.store.Files.TransitionStatus(ctx, fileID, []string{models.FileStatusTrashed}, map[string]any{
		"status":     models.FileStatusActive,
		"is_trashed": false,
		"trashed_at": nil,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.settle(ctx, ownerID, fileID, models.FileStatusActive)
	}

	file.Status = models.FileStatusActive
	file.IsTrashed = false
	file.TrashedAt = nil
	logger.Info("Restore: file restored", zap.Uint64("ownerID", ownerID), zap.Uint64("fileID", fileID))
	return file, nil
}

// settle 条件更新未命中时重新读取，已处于目标状态视为成功
func (s *fileService) settle(ctx context.Context, ownerID, fileID uint64, target string) (*models.File, error) {
	file, err := checkOwnedFile(ctx, s.store.Files, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status != target {
		return nil, fmt.Errorf("file service: file changed to %s concurrently: %w", file.Status, xerr.ErrConflict)
	}
	return file, nil
}

func (s *fileService) PermanentDelete(ctx context.Context, ownerID, fileID uint64) error {
	file, err := s.store.Files.FindByIDAndOwner(ctx, fileID, ownerID)
	if err != nil {
		return err
	}

	// 1. 尽力删除远端消息，失败不阻塞本地状态转换
	refs, err := s.store.Files.ListChunkRefs(ctx, fileID)
	if err != nil {
		return err
	}
	deleted := deleteRemoteChunks(ctx, s.creds, s.storage, file, refs)

	// 2. 以 deletedAt 的首次写入为准扣减配额，并级联撤销分享
	now := s.now()
	released := false
	err = s.tm.WithTransaction(ctx, func(tx *repositories.Store) error {
		current, err := tx.Files.FindByID(ctx, fileID)
		if err != nil {
			return err
		}
		changed, err := tx.Files.MarkDeleted(ctx, fileID, now)
		if err != nil {
			return err
		}
		if err := tx.Files.DeleteChunkRefs(ctx, fileID); err != nil {
			return err
		}
		if changed && (current.Status == models.FileStatusActive || current.Status == models.FileStatusTrashed) {
			if err := tx.Users.SubUsedBytes(ctx, ownerID, current.Size); err != nil {
				return err
			}
			released = true
		}
		if changed && current.Status == models.FileStatusUploading {
			if err := closeOpenSession(ctx, tx, fileID); err != nil {
				return err
			}
		}
		_, err = tx.Shares.RevokeByFile(ctx, fileID, now)
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("PermanentDelete: file deleted",
		zap.Uint64("ownerID", ownerID),
		zap.Uint64("fileID", fileID),
		zap.Int("remoteChunks", len(refs)),
		zap.Int("remoteDeleted", deleted),
		zap.Bool("quotaReleased", released))
	return nil
}

// closeOpenSession 删除上传中的文件时同时中止其会话
func closeOpenSession(ctx context.Context, tx *repositories.Store, fileID uint64) error {
	session, err := tx.Sessions.FindByFileID(ctx, fileID)
	if errors.Is(err, xerr.ErrUploadSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !session.IsOpen() {
		return nil
	}
	_, err = tx.Sessions.TransitionStatus(ctx, session.ID,
		[]string{models.UploadStatusPending, models.UploadStatusUploading}, models.UploadStatusAborted)
	return err
}

func (s *fileService) Read(ctx context.Context, ownerID, fileID uint64, rng *ByteRange) (*ReadResult, error) {
	file, err := checkOwnedFile(ctx, s.store.Files, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if !file.IsReadable() {
		return nil, fmt.Errorf("file service: file is %s: %w", file.Status, xerr.ErrFileStatusInvalid)
	}
	return s.reader.Read(ctx, file, rng)
}
