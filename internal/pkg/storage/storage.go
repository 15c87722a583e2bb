package storage

import (
	"context"
)

// Credentials 一次调用使用的 bot token 和目标频道
type Credentials struct {
	Token     string
	ChannelID string
}

// RemoteChunk 上传成功后远端返回的定位信息
type RemoteChunk struct {
	MessageID    int64
	ChatID       string
	BlobID       string
	BlobUniqueID string
	Size         int64
	Checksum     string
}

// HistoryEntry 远端历史中的一条带附件消息
type HistoryEntry struct {
	MessageID    int64
	ChatID       string
	ChatUsername string
	BlobID       string
	BlobUniqueID string
	Size         int64
	Caption      string
}

// ChunkStorage 分片存储接口，所有方法都带重试
type ChunkStorage interface {
	// UploadChunk 上传一个分片，caption 中附带重建 manifest 所需的元数据
	UploadChunk(ctx context.Context, creds Credentials, meta ChunkCaption, data []byte) (*RemoteChunk, error)

	// FetchChunk 下载一个分片的完整字节
	FetchChunk(ctx context.Context, creds Credentials, blobID string) ([]byte, error)

	// DeleteChunk 尽力删除分片消息，失败时只返回 false
	DeleteChunk(ctx context.Context, creds Credentials, chatID string, messageID int64) bool

	// ListRecentHistory 拉取最近的远端历史
	ListRecentHistory(ctx context.Context, creds Credentials, limit int) ([]HistoryEntry, error)
}
