package explorer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
	"github.com/3Eeeecho/go-tgdisk/internal/services/admin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sweepBatchSize = 100

type UploadService interface {
	// Initiate 创建 uploading 状态的文件和 pending 会话
	Initiate(ctx context.Context, ownerID uint64, req *models.InitiateUploadRequest) (*models.InitiateUploadResult, error)
	// AcceptChunk 上传一个分片，同一序号重复提交时返回 duplicate
	AcceptChunk(ctx context.Context, ownerID, fileID uint64, uploadID string, chunkIndex int, data []byte) (*models.ChunkAcceptResult, error)
	// Complete 所有分片到齐后激活文件并计入配额
	Complete(ctx context.Context, ownerID, fileID uint64, req *models.CompleteUploadRequest) (*models.File, error)
	// Abort 删除已上传的远端分片并丢弃文件，可重复调用
	Abort(ctx context.Context, ownerID, fileID uint64, uploadID string) error
	// Progress 断点续传时查询已接收的分片
	Progress(ctx context.Context, ownerID, fileID uint64, uploadID string) (*models.UploadProgress, error)
	// SweepExpired 中止所有已过期且仍未结束的会话，返回处理的数量
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type UploadOptions struct {
	DefaultChunkSize int64
	MinChunkSize     int64
	MaxChunkSize     int64
	SessionTTL       time.Duration
	DefaultQuota     int64
}

func UploadOptionsFromConfig(cfg *config.Config) UploadOptions {
	return UploadOptions{
		DefaultChunkSize: cfg.Upload.DefaultChunkSize,
		MinChunkSize:     cfg.Upload.MinChunkSize,
		MaxChunkSize:     cfg.Upload.MaxChunkSize,
		SessionTTL:       cfg.Upload.SessionTTL,
		DefaultQuota:     cfg.Quota.DefaultBytes,
	}
}

type uploadService struct {
	store   *repositories.Store
	tm      repositories.TransactionManager
	creds   admin.CredentialResolver
	storage storage.ChunkStorage
	opts    UploadOptions
	now     func() time.Time
}

func NewUploadService(
	store *repositories.Store,
	tm repositories.TransactionManager,
	creds admin.CredentialResolver,
	cs storage.ChunkStorage,
	opts UploadOptions,
) UploadService {
	return &uploadService{
		store:   store,
		tm:      tm,
		creds:   creds,
		storage: cs,
		opts:    opts,
		now:     time.Now,
	}
}

var writeCredentials = admin.ResolveOptions{AllowFallback: true, RequireConfigured: true}

func (s *uploadService) Initiate(ctx context.Context, ownerID uint64, req *models.InitiateUploadRequest) (*models.InitiateUploadResult, error) {
	name, err := validateFileName(req.Name)
	if err != nil {
		return nil, err
	}
	if req.Size <= 0 {
		return nil, xerr.Validationf("file size must be greater than 0")
	}
	chunkSize := NormalizeChunkSize(req.ChunkSize, s.opts)
	plan := NewChunkPlan(req.Size, chunkSize)

	if req.FolderID != nil {
		ok, err := s.store.Folders.Exists(ctx, ownerID, *req.FolderID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, xerr.ErrDirectoryNotFound
		}
	}

	// 1. 配额检查，trash 中的文件仍然占用配额
	user, err := s.store.Users.GetOrCreate(ctx, ownerID, s.opts.DefaultQuota)
	if err != nil {
		return nil, err
	}
	if user.UsedBytes+req.Size > user.QuotaBytes {
		logger.Warn("Initiate: quota exceeded",
			zap.Uint64("ownerID", ownerID),
			zap.Int64("usedBytes", user.UsedBytes),
			zap.Int64("size", req.Size),
			zap.Int64("quotaBytes", user.QuotaBytes))
		return nil, fmt.Errorf("upload service: %w: %d of %d bytes used, %d requested",
			xerr.ErrQuotaExceeded, user.UsedBytes, user.QuotaBytes, req.Size)
	}

	// 2. 解析凭证并做快照
	resolved, err := s.creds.ForOwner(ctx, ownerID, writeCredentials)
	if err != nil {
		return nil, err
	}
	sealed, err := s.creds.Seal(resolved.Token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ext := fileExtension(name)
	checksum := strings.TrimSpace(req.Checksum)
	if checksum == "" {
		checksum = placeholderChecksum(ownerID, name, req.Size, now)
	}
	file := &models.File{
		OwnerID:         ownerID,
		FolderID:        req.FolderID,
		Name:            name,
		MimeType:        detectMimeType(req.MimeType, ext),
		Extension:       ext,
		Size:            req.Size,
		Checksum:        checksum,
		ChunkSize:       plan.ChunkSize,
		ChunksCount:     plan.Count,
		Status:          models.FileStatusUploading,
		StorageTokenEnc: sealed,
		StorageChatID:   resolved.ChannelID,
	}
	session := &models.UploadSession{
		UploadID:       uuid.NewString(),
		OwnerID:        ownerID,
		TotalChunks:    plan.Count,
		ChunkSize:      plan.ChunkSize,
		ReceivedChunks: models.ChunkIndexSet{},
		Status:         models.UploadStatusPending,
		ExpiresAt:      now.Add(s.opts.SessionTTL),
	}

	// 3. 文件和会话在同一事务中创建
	err = s.tm.WithTransaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Files.Create(ctx, file); err != nil {
			return err
		}
		session.FileID = file.ID
		return tx.Sessions.Create(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Initiate: upload session created",
		zap.Uint64("ownerID", ownerID),
		zap.Uint64("fileID", file.ID),
		zap.String("uploadID", session.UploadID),
		zap.String("credentialSource", resolved.Source),
		zap.Int("totalChunks", plan.Count))

	return &models.InitiateUploadResult{
		FileID:      file.ID,
		UploadID:    session.UploadID,
		ChunkSize:   plan.ChunkSize,
		TotalChunks: plan.Count,
	}, nil
}

// loadSession 会话必须属于 ownerID 且 uploadID 匹配，否则按不存在处理
func (s *uploadService) loadSession(ctx context.Context, ownerID, fileID uint64, uploadID string) (*models.UploadSession, error) {
	session, err := s.store.Sessions.FindByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID || session.UploadID != uploadID {
		return nil, xerr.ErrUploadSessionNotFound
	}
	return session, nil
}

func (s *uploadService) AcceptChunk(ctx context.Context, ownerID, fileID uint64, uploadID string, chunkIndex int, data []byte) (*models.ChunkAcceptResult, error) {
	session, err := s.loadSession(ctx, ownerID, fileID, uploadID)
	if err != nil {
		return nil, err
	}
	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		return nil, xerr.Validationf("chunk index %d out of range [0, %d)", chunkIndex, session.TotalChunks)
	}
	if session.ReceivedChunks.Contains(chunkIndex) {
		return &models.ChunkAcceptResult{
			ChunkIndex:     chunkIndex,
			Duplicate:      true,
			UploadedChunks: session.ReceivedChunks.Len(),
			TotalChunks:    session.TotalChunks,
		}, nil
	}
	if !session.IsOpen() {
		return nil, fmt.Errorf("upload service: session is %s: %w", session.Status, xerr.ErrConflict)
	}
	if session.IsExpired(s.now()) {
		return nil, fmt.Errorf("upload service: session expired at %s: %w", session.ExpiresAt.Format(time.RFC3339), xerr.ErrConflict)
	}

	file, err := checkOwnedFile(ctx, s.store.Files, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status != models.FileStatusUploading {
		return nil, fmt.Errorf("upload service: file is %s: %w", file.Status, xerr.ErrFileStatusInvalid)
	}
	if len(data) == 0 {
		return nil, xerr.Validationf("chunk %d is empty", chunkIndex)
	}
	if want := planOf(file).ChunkLen(chunkIndex); int64(len(data)) != want {
		return nil, xerr.Validationf("chunk %d must be %d bytes, got %d", chunkIndex, want, len(data))
	}

	resolved, err := s.creds.ForFile(ctx, file, writeCredentials)
	if err != nil {
		return nil, err
	}

	// 远端上传可能因限流阻塞数秒，不能放在事务里
	meta := storage.ChunkCaption{
		FileID:     file.ID,
		ChunkIndex: chunkIndex,
		Name:       file.Name,
		Checksum:   chunkChecksum(data),
	}
	remote, err := s.storage.UploadChunk(ctx, resolved.Credentials, meta, data)
	if err != nil {
		logger.Error("AcceptChunk: remote upload failed",
			zap.Uint64("fileID", fileID), zap.Int("chunkIndex", chunkIndex), zap.Error(err))
		return nil, fmt.Errorf("upload service: upload chunk %d: %w", chunkIndex, err)
	}

	var result *models.ChunkAcceptResult
	inserted := false
	err = s.tm.WithTransaction(ctx, func(tx *repositories.Store) error {
		current, err := tx.Sessions.FindByFileIDForUpdate(ctx, fileID)
		if err != nil {
			return err
		}
		if !current.IsOpen() {
			return fmt.Errorf("upload service: session is %s: %w", current.Status, xerr.ErrConflict)
		}

		inserted, err = tx.Files.InsertChunkRef(ctx, &models.ChunkRef{
			FileID:       fileID,
			ChunkIndex:   chunkIndex,
			MessageID:    remote.MessageID,
			ChatID:       remote.ChatID,
			BlobID:       remote.BlobID,
			BlobUniqueID: remote.BlobUniqueID,
			Size:         remote.Size,
			Checksum:     meta.Checksum,
		})
		if err != nil {
			return err
		}

		current.ReceivedChunks.Add(chunkIndex)
		if current.Status == models.UploadStatusPending {
			current.Status = models.UploadStatusUploading
		}
		if err := tx.Sessions.Save(ctx, current); err != nil {
			return err
		}
		result = &models.ChunkAcceptResult{
			ChunkIndex:     chunkIndex,
			Duplicate:      !inserted,
			UploadedChunks: current.ReceivedChunks.Len(),
			TotalChunks:    current.TotalChunks,
		}
		return nil
	})

	// 并发提交同一分片时，输掉插入的一方删除自己多传的消息
	if err != nil || !inserted {
		if !s.storage.DeleteChunk(ctx, resolved.Credentials, remote.ChatID, remote.MessageID) {
			logger.Warn("AcceptChunk: failed to remove redundant remote chunk",
				zap.Uint64("fileID", fileID), zap.Int("chunkIndex", chunkIndex), zap.Int64("messageID", remote.MessageID))
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *uploadService) Complete(ctx context.Context, ownerID, fileID uint64, req *models.CompleteUploadRequest) (*models.File, error) {
	session, err := s.loadSession(ctx, ownerID, fileID, req.UploadID)
	if err != nil {
		return nil, err
	}
	file, err := checkOwnedFile(ctx, s.store.Files, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	// 重复 complete 直接返回，不再次计入配额
	if session.Status == models.UploadStatusCompleted {
		refs, err := s.store.Files.ListChunkRefs(ctx, fileID)
		if err != nil {
			return nil, err
		}
		file.ChunkRefs = refs
		return file, nil
	}
	if !session.IsOpen() {
		return nil, fmt.Errorf("upload service: session is %s: %w", session.Status, xerr.ErrConflict)
	}
	if session.ReceivedChunks.Len() != session.TotalChunks {
		return nil, &xerr.UploadIncompleteError{Received: session.ReceivedChunks.Len(), Total: session.TotalChunks}
	}

	refs, err := s.store.Files.ListChunkRefs(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(refs) != file.ChunksCount {
		return nil, &xerr.UploadIncompleteError{Received: len(refs), Total: file.ChunksCount}
	}
	for i, ref := range refs {
		if ref.ChunkIndex != i {
			logger.Error("Complete: manifest is not contiguous",
				zap.Uint64("fileID", fileID), zap.Int("position", i), zap.Int("chunkIndex", ref.ChunkIndex))
			return nil, fmt.Errorf("upload service: chunk %d missing from manifest: %w", i, xerr.ErrConflict)
		}
	}

	fields := map[string]any{"status": models.FileStatusActive}
	if checksum := strings.TrimSpace(req.Checksum); checksum != "" {
		fields["checksum"] = checksum
	}

	// 会话和文件的状态转换与配额增加原子完成
	err = s.tm.WithTransaction(ctx, func(tx *repositories.Store) error {
		ok, err := tx.Sessions.TransitionStatus(ctx, session.ID,
			[]string{models.UploadStatusPending, models.UploadStatusUploading}, models.UploadStatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("upload service: session changed concurrently: %w", xerr.ErrConflict)
		}
		ok, err = tx.Files.TransitionStatus(ctx, fileID, []string{models.FileStatusUploading}, fields)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("upload service: file left uploading state: %w", xerr.ErrFileStatusInvalid)
		}
		return tx.Users.AddUsedBytes(ctx, ownerID, file.Size)
	})
	if err != nil {
		return nil, err
	}

	file.Status = models.FileStatusActive
	if c, ok := fields["checksum"].(string); ok {
		file.Checksum = c
	}
	file.ChunkRefs = refs

	logger.Info("Complete: upload completed",
		zap.Uint64("ownerID", ownerID),
		zap.Uint64("fileID", fileID),
		zap.Int64("size", file.Size),
		zap.Int("chunks", len(refs)))
	return file, nil
}

func (s *uploadService) Abort(ctx context.Context, ownerID, fileID uint64, uploadID string) error {
	session, err := s.loadSession(ctx, ownerID, fileID, uploadID)
	if err != nil {
		return err
	}
	if session.Status == models.UploadStatusCompleted {
		return fmt.Errorf("upload service: session already completed: %w", xerr.ErrConflict)
	}
	return s.abortSession(ctx, session)
}

// abortSession 先关闭会话阻止新分片写入，再清理远端消息和文件记录。
// 会话已是 aborted 时只清理残留，因此可以安全重试。
func (s *uploadService) abortSession(ctx context.Context, session *models.UploadSession) error {
	if session.Status != models.UploadStatusAborted {
		err := s.tm.WithTransaction(ctx, func(tx *repositories.Store) error {
			ok, err := tx.Sessions.TransitionStatus(ctx, session.ID,
				[]string{models.UploadStatusPending, models.UploadStatusUploading}, models.UploadStatusAborted)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("upload service: session changed concurrently: %w", xerr.ErrConflict)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	file, err := s.store.Files.FindByID(ctx, session.FileID)
	if errors.Is(err, xerr.ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if file.Status != models.FileStatusUploading {
		return nil
	}

	refs, err := s.store.Files.ListChunkRefs(ctx, file.ID)
	if err != nil {
		return err
	}
	deleteRemoteChunks(ctx, s.creds, s.storage, file, refs)

	err = s.tm.WithTransaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Files.DeleteChunkRefs(ctx, file.ID); err != nil {
			return err
		}
		return tx.Files.Delete(ctx, file.ID)
	})
	if err != nil {
		return err
	}

	logger.Info("Abort: upload aborted",
		zap.Uint64("fileID", file.ID),
		zap.String("uploadID", session.UploadID),
		zap.Int("remoteChunks", len(refs)))
	return nil
}

func (s *uploadService) Progress(ctx context.Context, ownerID, fileID uint64, uploadID string) (*models.UploadProgress, error) {
	session, err := s.loadSession(ctx, ownerID, fileID, uploadID)
	if err != nil {
		return nil, err
	}
	received := append([]int{}, session.ReceivedChunks...)
	return &models.UploadProgress{
		FileID:         fileID,
		UploadID:       session.UploadID,
		Status:         session.Status,
		ReceivedChunks: received,
		TotalChunks:    session.TotalChunks,
		ChunkSize:      session.ChunkSize,
	}, nil
}

func (s *uploadService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	sessions, err := s.store.Sessions.ListExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		if err := s.abortSession(ctx, &sessions[i]); err != nil {
			logger.Warn("SweepExpired: failed to abort session",
				zap.Uint64("fileID", sessions[i].FileID), zap.Error(err))
			continue
		}
		swept++
	}
	if swept > 0 {
		logger.Info("SweepExpired: expired sessions aborted", zap.Int("count", swept))
	}
	return swept, nil
}

// deleteRemoteChunks 尽力删除文件的全部远端分片，失败只记录日志
func deleteRemoteChunks(ctx context.Context, creds admin.CredentialResolver, cs storage.ChunkStorage, file *models.File, refs []models.ChunkRef) int {
	if len(refs) == 0 {
		return 0
	}
	resolved, err := creds.ForFile(ctx, file, admin.ResolveOptions{AllowFallback: true})
	if err != nil || resolved.Source == admin.SourceNone {
		logger.Warn("deleteRemoteChunks: no usable credentials, remote chunks left in place",
			zap.Uint64("fileID", file.ID), zap.Int("chunks", len(refs)), zap.Error(err))
		return 0
	}
	deleted := 0
	for _, ref := range refs {
		if cs.DeleteChunk(ctx, resolved.Credentials, ref.ChatID, ref.MessageID) {
			deleted++
			continue
		}
		logger.Warn("deleteRemoteChunks: remote delete failed",
			zap.Uint64("fileID", file.ID), zap.Int("chunkIndex", ref.ChunkIndex), zap.Int64("messageID", ref.MessageID))
	}
	return deleted
}
