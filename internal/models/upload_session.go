package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// 上传会话状态
const (
	UploadStatusPending   = "pending"
	UploadStatusUploading = "uploading"
	UploadStatusCompleted = "completed"
	UploadStatusAborted   = "aborted"
	UploadStatusFailed    = "failed"
)

// UploadSession 对应 upload_sessions 表，一个文件只有一个会话
type UploadSession struct {
	ID             uint64        `gorm:"primaryKey;autoIncrement" json:"-"`
	UploadID       string        `gorm:"type:varchar(36);uniqueIndex;not null" json:"uploadId"`
	OwnerID        uint64        `gorm:"not null;index" json:"ownerId"`
	FileID         uint64        `gorm:"not null;uniqueIndex" json:"fileId"`
	TotalChunks    int           `gorm:"not null" json:"totalChunks"`
	ChunkSize      int64         `gorm:"not null" json:"chunkSize"`
	ReceivedChunks ChunkIndexSet `gorm:"type:json" json:"receivedChunks"`
	Status         string        `gorm:"type:varchar(16);not null;default:'pending';index:idx_upload_sessions_status_expires,priority:1" json:"status"`
	ExpiresAt      time.Time     `gorm:"not null;index:idx_upload_sessions_status_expires,priority:2" json:"expiresAt"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (UploadSession) TableName() string {
	return "upload_sessions"
}

// IsOpen 会话仍可接收分片
func (s *UploadSession) IsOpen() bool {
	return s.Status == UploadStatusPending || s.Status == UploadStatusUploading
}

// IsExpired 超过 expiresAt 的会话视为已放弃
func (s *UploadSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ChunkIndexSet 已接收分片序号集合，以有序 JSON 数组落库
type ChunkIndexSet []int

func (s ChunkIndexSet) Contains(index int) bool {
	i := sort.SearchInts(s, index)
	return i < len(s) && s[i] == index
}

// Add 插入序号并保持有序，已存在时返回 false
func (s *ChunkIndexSet) Add(index int) bool {
	cur := *s
	i := sort.SearchInts(cur, index)
	if i < len(cur) && cur[i] == index {
		return false
	}
	cur = append(cur, 0)
	copy(cur[i+1:], cur[i:])
	cur[i] = index
	*s = cur
	return true
}

func (s ChunkIndexSet) Len() int {
	return len(s)
}

func (s ChunkIndexSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *ChunkIndexSet) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = ChunkIndexSet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("ChunkIndexSet: unsupported scan type %T", value)
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	sort.Ints(out)
	*s = out
	return nil
}
