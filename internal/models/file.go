package models

import (
	"time"
)

// 文件生命周期状态
const (
	FileStatusUploading = "uploading" // 分片上传中
	FileStatusActive    = "active"    // 可读
	FileStatusTrashed   = "trashed"   // 回收站
	FileStatusFailed    = "failed"    // 永久删除后的终态
)

// File 对应 files 表
type File struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID     uint64     `gorm:"not null;index:idx_files_owner_folder_name,priority:1;index:idx_files_owner_trashed,priority:1" json:"ownerId"`
	FolderID    *uint64    `gorm:"default:null;index:idx_files_owner_folder_name,priority:2" json:"folderId"` // 根目录为 null
	Name        string     `gorm:"type:varchar(255);not null;index:idx_files_owner_folder_name,priority:3" json:"name"`
	MimeType    string     `gorm:"type:varchar(128);not null;default:'application/octet-stream'" json:"mimeType"`
	Extension   string     `gorm:"type:varchar(32);not null;default:''" json:"extension"`
	Size        int64      `gorm:"not null" json:"size"`
	Checksum    string     `gorm:"type:varchar(128);not null;default:''" json:"checksum"`
	ChunkSize   int64      `gorm:"not null" json:"chunkSize"`
	ChunksCount int        `gorm:"not null" json:"chunksCount"`
	Status      string     `gorm:"type:varchar(16);not null;default:'uploading';index" json:"status"`
	IsTrashed   bool       `gorm:"not null;default:false;index:idx_files_owner_trashed,priority:2" json:"isTrashed"`
	TrashedAt   *time.Time `gorm:"default:null" json:"trashedAt"`
	DeletedAt   *time.Time `gorm:"default:null;index" json:"deletedAt"`

	// 上传时的凭证快照，所有者之后更换 token 不影响已上传文件
	StorageTokenEnc string `gorm:"type:text" json:"-"`
	StorageChatID   string `gorm:"type:varchar(128);not null;default:''" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	ChunkRefs []ChunkRef `gorm:"foreignKey:FileID" json:"chunkRefs,omitempty"`
}

func (File) TableName() string {
	return "files"
}

// HasCredentialSnapshot 文件是否携带上传时的凭证
func (f *File) HasCredentialSnapshot() bool {
	return f.StorageTokenEnc != "" && f.StorageChatID != ""
}

// IsDeleted 是否已被永久删除
func (f *File) IsDeleted() bool {
	return f.DeletedAt != nil
}

// IsReadable 可被读取或分享
func (f *File) IsReadable() bool {
	return f.DeletedAt == nil && !f.IsTrashed && f.Status == FileStatusActive
}

// ChunkRef 对应 chunk_refs 表，一行描述一个远端分片
// (file_id, chunk_index) 唯一，保证分片插入幂等
type ChunkRef struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	FileID       uint64    `gorm:"not null;uniqueIndex:idx_chunk_refs_file_index,priority:1" json:"fileId"`
	ChunkIndex   int       `gorm:"not null;uniqueIndex:idx_chunk_refs_file_index,priority:2" json:"chunkIndex"`
	MessageID    int64     `gorm:"not null" json:"messageId"`
	ChatID       string    `gorm:"type:varchar(128);not null" json:"chatId"`
	BlobID       string    `gorm:"type:varchar(255);not null" json:"blobId"`
	BlobUniqueID string    `gorm:"type:varchar(128);not null;default:''" json:"blobUniqueId"`
	Size         int64     `gorm:"not null" json:"size"`
	Checksum     string    `gorm:"type:varchar(64);not null;default:''" json:"checksum"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"-"`
}

func (ChunkRef) TableName() string {
	return "chunk_refs"
}
