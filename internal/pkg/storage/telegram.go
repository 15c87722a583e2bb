package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/crypto"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/telegram"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"go.uber.org/zap"
)

// TelegramStorage 以 Telegram 频道作为分片存储
type TelegramStorage struct {
	pool    *telegram.Pool
	retry   RetryPolicy
	paths   cache.Cache // 可为 nil
	pathTTL time.Duration
}

var _ ChunkStorage = (*TelegramStorage)(nil)

func NewTelegramStorage(pool *telegram.Pool, retry RetryPolicy, paths cache.Cache, pathTTL time.Duration) *TelegramStorage {
	return &TelegramStorage{pool: pool, retry: retry, paths: paths, pathTTL: pathTTL}
}

func (s *TelegramStorage) UploadChunk(ctx context.Context, creds Credentials, meta ChunkCaption, data []byte) (*RemoteChunk, error) {
	caption, err := meta.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode caption: %w", err)
	}
	client := s.pool.Get(creds.Token)
	fileName := fmt.Sprintf("%d.part%04d", meta.FileID, meta.ChunkIndex)

	var msg *telegram.Message
	err = s.retry.Do(ctx, "sendDocument", func(ctx context.Context) error {
		m, err := client.SendDocument(ctx, creds.ChannelID, fileName, caption, data)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		logger.Error("UploadChunk: failed to upload chunk",
			zap.Uint64("fileID", meta.FileID),
			zap.Int("chunkIndex", meta.ChunkIndex),
			zap.String("bot", crypto.Fingerprint(creds.Token)[:12]),
			zap.Error(err))
		return nil, err
	}
	if msg.Document == nil {
		return nil, fmt.Errorf("%w: sendDocument returned no document", xerr.ErrUpstreamRejected)
	}

	return &RemoteChunk{
		MessageID:    msg.MessageID,
		ChatID:       msg.Chat.IDString(),
		BlobID:       msg.Document.FileID,
		BlobUniqueID: msg.Document.FileUniqueID,
		Size:         int64(len(data)),
		Checksum:     meta.Checksum,
	}, nil
}

func (s *TelegramStorage) FetchChunk(ctx context.Context, creds Credentials, blobID string) ([]byte, error) {
	client := s.pool.Get(creds.Token)

	var data []byte
	err := s.retry.Do(ctx, "fetchChunk", func(ctx context.Context) error {
		if path, ok := s.cachedPath(ctx, blobID); ok {
			b, err := client.DownloadFile(ctx, path)
			if err == nil {
				data = b
				return nil
			}
			// 路径过期，重新 getFile
			s.forgetPath(ctx, blobID)
			logger.Debug("FetchChunk: cached file path rejected", zap.String("blobID", blobID), zap.Error(err))
		}

		f, err := client.GetFile(ctx, blobID)
		if err != nil {
			return err
		}
		if f.FilePath == "" {
			return &telegram.APIError{Method: "getFile", Code: 400, Description: "file_path missing"}
		}
		b, err := client.DownloadFile(ctx, f.FilePath)
		if err != nil {
			return err
		}
		s.rememberPath(ctx, blobID, f.FilePath)
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *TelegramStorage) DeleteChunk(ctx context.Context, creds Credentials, chatID string, messageID int64) bool {
	client := s.pool.Get(creds.Token)
	err := s.retry.Do(ctx, "deleteMessage", func(ctx context.Context) error {
		return client.DeleteMessage(ctx, chatID, messageID)
	})
	if err != nil {
		logger.Warn("DeleteChunk: remote message not deleted",
			zap.String("chatID", chatID),
			zap.Int64("messageID", messageID),
			zap.Error(err))
		return false
	}
	return true
}

func (s *TelegramStorage) ListRecentHistory(ctx context.Context, creds Credentials, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	client := s.pool.Get(creds.Token)

	var updates []telegram.Update
	err := s.retry.Do(ctx, "getUpdates", func(ctx context.Context) error {
		u, err := client.GetUpdates(ctx, 0, limit)
		if err != nil {
			return err
		}
		updates = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(updates))
	for _, u := range updates {
		msg := u.Post()
		if msg == nil || msg.Document == nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			MessageID:    msg.MessageID,
			ChatID:       msg.Chat.IDString(),
			ChatUsername: msg.Chat.Username,
			BlobID:       msg.Document.FileID,
			BlobUniqueID: msg.Document.FileUniqueID,
			Size:         msg.Document.FileSize,
			Caption:      msg.Caption,
		})
	}
	return entries, nil
}

func (s *TelegramStorage) cachedPath(ctx context.Context, blobID string) (string, bool) {
	if s.paths == nil {
		return "", false
	}
	var path string
	if err := s.paths.Get(ctx, cache.GenerateFilePathKey(blobID), &path); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("FetchChunk: file path cache unavailable", zap.Error(err))
		}
		return "", false
	}
	return path, path != ""
}

func (s *TelegramStorage) rememberPath(ctx context.Context, blobID, path string) {
	if s.paths == nil || s.pathTTL <= 0 {
		return
	}
	_ = s.paths.Set(ctx, cache.GenerateFilePathKey(blobID), path, s.pathTTL)
}

func (s *TelegramStorage) forgetPath(ctx context.Context, blobID string) {
	if s.paths == nil {
		return
	}
	_ = s.paths.Del(ctx, cache.GenerateFilePathKey(blobID))
}
