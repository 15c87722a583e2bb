package models

import (
	"time"
)

const (
	SharePermissionView     = "view"
	SharePermissionDownload = "download"
)

// ShareLink 对应 share_links 表
type ShareLink struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Token        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	FileID       uint64     `gorm:"not null;index" json:"fileId"`
	OwnerID      uint64     `gorm:"not null;index" json:"ownerId"`
	Permission   string     `gorm:"type:varchar(16);not null;default:'download'" json:"permission"`
	PasswordHash *string    `gorm:"type:varchar(255);default:null" json:"-"` // - 表示不输出到 JSON
	ExpiresAt    *time.Time `gorm:"default:null" json:"expiresAt"`
	IsPublic     bool       `gorm:"not null;default:true" json:"isPublic"`
	RevokedAt    *time.Time `gorm:"default:null" json:"revokedAt"`
	AccessCount  int64      `gorm:"not null;default:0" json:"accessCount"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ShareLink) TableName() string {
	return "share_links"
}

// HasPassword 分享是否设置了密码
func (s *ShareLink) HasPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// CreateShareRequest 创建分享链接的请求体
type CreateShareRequest struct {
	Permission string     `json:"permission"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	IsPublic   *bool      `json:"isPublic"`
	Password   *string    `json:"password"`
}

// SharedFileView 分享页展示的文件信息
type SharedFileView struct {
	Token      string    `json:"token"`
	Permission string    `json:"permission"`
	FileID     uint64    `json:"fileId"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
