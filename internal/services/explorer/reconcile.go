package explorer

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
	"github.com/3Eeeecho/go-tgdisk/internal/services/admin"
	"go.uber.org/zap"
)

var errManifestRaced = errors.New("reconcile: manifest populated concurrently")

type ReconcileResult struct {
	ScannedEntries  int      `json:"scannedEntries"`
	RestoredFiles   int      `json:"restoredFiles"`
	RestoredFileIDs []uint64 `json:"restoredFileIds"`
}

// ReconcileService 用远端历史重建丢失的 manifest
type ReconcileService interface {
	Reconcile(ctx context.Context, ownerID uint64) (*ReconcileResult, error)
}

type reconcileService struct {
	store        *repositories.Store
	tm           repositories.TransactionManager
	creds        admin.CredentialResolver
	storage      storage.ChunkStorage
	historyLimit int
}

func NewReconcileService(
	store *repositories.Store,
	tm repositories.TransactionManager,
	creds admin.CredentialResolver,
	cs storage.ChunkStorage,
	historyLimit int,
) ReconcileService {
	return &reconcileService{
		store:        store,
		tm:           tm,
		creds:        creds,
		storage:      cs,
		historyLimit: historyLimit,
	}
}

// matchesChannel 数字 id 只和 chat id 比较，@handle 只和频道用户名比较
func matchesChannel(configured string, entry storage.HistoryEntry) bool {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return false
	}
	if handle, ok := strings.CutPrefix(configured, "@"); ok {
		return entry.ChatUsername != "" && strings.EqualFold(handle, strings.TrimPrefix(entry.ChatUsername, "@"))
	}
	return entry.ChatID == configured
}

type recoveredChunk struct {
	entry   storage.HistoryEntry
	caption storage.ChunkCaption
}

func (s *reconcileService) Reconcile(ctx context.Context, ownerID uint64) (*ReconcileResult, error) {
	resolved, err := s.creds.ForOwner(ctx, ownerID, writeCredentials)
	if err != nil {
		return nil, err
	}
	entries, err := s.storage.ListRecentHistory(ctx, resolved.Credentials, s.historyLimit)
	if err != nil {
		return nil, err
	}

	// 1. 过滤并按 fileId 分组，同一序号出现多次时保留最新的消息
	groups := make(map[uint64]map[int]recoveredChunk)
	for _, entry := range entries {
		if entry.BlobID == "" || !matchesChannel(resolved.ChannelID, entry) {
			continue
		}
		caption, err := storage.DecodeCaption(entry.Caption)
		if err != nil {
			continue
		}
		g, ok := groups[caption.FileID]
		if !ok {
			g = make(map[int]recoveredChunk)
			groups[caption.FileID] = g
		}
		if prev, ok := g[caption.ChunkIndex]; ok && prev.entry.MessageID > entry.MessageID {
			continue
		}
		g[caption.ChunkIndex] = recoveredChunk{entry: entry, caption: caption}
	}

	fileIDs := make([]uint64, 0, len(groups))
	for id := range groups {
		fileIDs = append(fileIDs, id)
	}
	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	result := &ReconcileResult{ScannedEntries: len(entries), RestoredFileIDs: []uint64{}}
	if len(fileIDs) == 0 {
		return result, nil
	}

	sealed, err := s.creds.Seal(resolved.Token)
	if err != nil {
		return nil, err
	}

	// 2. 单个分组失败只跳过该分组
	for _, fileID := range fileIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		restored, err := s.restoreGroup(ctx, ownerID, fileID, groups[fileID], sealed, resolved.ChannelID)
		if err != nil {
			logger.Warn("Reconcile: failed to restore file", zap.Uint64("fileID", fileID), zap.Error(err))
			continue
		}
		if restored {
			result.RestoredFiles++
			result.RestoredFileIDs = append(result.RestoredFileIDs, fileID)
		}
	}

	logger.Info("Reconcile: scan finished",
		zap.Uint64("ownerID", ownerID),
		zap.Int("scannedEntries", result.ScannedEntries),
		zap.Int("groups", len(fileIDs)),
		zap.Int("restoredFiles", result.RestoredFiles))
	return result, nil
}

func (s *reconcileService) restoreGroup(ctx context.Context, ownerID, fileID uint64, group map[int]recoveredChunk, sealed, channelID string) (bool, error) {
	file, err := s.store.Files.FindByIDAndOwner(ctx, fileID, ownerID)
	if errors.Is(err, xerr.ErrFileNotFound) {
		// 其他所有者的文件或已不存在
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if file.IsDeleted() {
		return false, nil
	}
	// 已有 manifest 的文件不覆盖
	n, err := s.store.Files.CountChunkRefs(ctx, fileID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	// 分组必须恰好覆盖 0..chunksCount-1，否则重建出的文件不可读
	if len(group) != file.ChunksCount {
		logger.Warn("Reconcile: incomplete chunk group skipped",
			zap.Uint64("fileID", fileID), zap.Int("found", len(group)), zap.Int("expected", file.ChunksCount))
		return false, nil
	}
	plan := planOf(file)
	refs := make([]models.ChunkRef, 0, len(group))
	for i := 0; i < file.ChunksCount; i++ {
		c, ok := group[i]
		if !ok {
			logger.Warn("Reconcile: chunk missing from history", zap.Uint64("fileID", fileID), zap.Int("chunkIndex", i))
			return false, nil
		}
		// file_size 是可选字段，缺失时按分片计划补齐，不一致则整组跳过
		size := c.entry.Size
		want := plan.ChunkLen(i)
		if size == 0 {
			size = want
		} else if size != want {
			logger.Warn("Reconcile: chunk size disagrees with plan",
				zap.Uint64("fileID", fileID), zap.Int("chunkIndex", i),
				zap.Int64("reported", size), zap.Int64("expected", want))
			return false, nil
		}
		refs = append(refs, models.ChunkRef{
			FileID:       fileID,
			ChunkIndex:   i,
			MessageID:    c.entry.MessageID,
			ChatID:       c.entry.ChatID,
			BlobID:       c.entry.BlobID,
			BlobUniqueID: c.entry.BlobUniqueID,
			Size:         size,
			Checksum:     c.caption.Checksum,
		})
	}

	priorStatus := file.Status
	err = s.tm.WithTransaction(ctx, func(tx *repositories.Store) error {
		for i := range refs {
			ok, err := tx.Files.InsertChunkRef(ctx, &refs[i])
			if err != nil {
				return err
			}
			if !ok {
				return errManifestRaced
			}
		}
		if err := tx.Files.UpdateFields(ctx, fileID, map[string]any{
			"status":            models.FileStatusActive,
			"is_trashed":        false,
			"trashed_at":        nil,
			"storage_token_enc": sealed,
			"storage_chat_id":   channelID,
		}); err != nil {
			return err
		}
		// 上传中断的文件此前没有计入配额
		if priorStatus == models.FileStatusUploading {
			if err := closeCompletedSession(ctx, tx, fileID); err != nil {
				return err
			}
			return tx.Users.AddUsedBytes(ctx, ownerID, file.Size)
		}
		return nil
	})
	if errors.Is(err, errManifestRaced) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// closeCompletedSession 重建成功后把仍在进行的会话标记为完成
func closeCompletedSession(ctx context.Context, tx *repositories.Store, fileID uint64) error {
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
		[]string{models.UploadStatusPending, models.UploadStatusUploading}, models.UploadStatusCompleted)
	return err
}
