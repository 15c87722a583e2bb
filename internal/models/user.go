package models

import (
	"time"
)

// User 对应 users 表，身份由外部认证体系提供，这里只保存配额账本和存储凭证
type User struct {
	ID         uint64 `gorm:"primaryKey" json:"id"`
	UsedBytes  int64  `gorm:"not null;default:0" json:"usedBytes"`
	QuotaBytes int64  `gorm:"not null" json:"quotaBytes"`

	// Telegram 存储配置，token 只以密文形式保存
	TelegramBotTokenEnc   string     `gorm:"type:text" json:"-"`
	TelegramStorageChatID string     `gorm:"type:varchar(128);not null;default:''" json:"-"`
	TelegramConfiguredAt  *time.Time `gorm:"default:null" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// HasTelegramConfig 所有者是否配置了自己的存储凭证
func (u *User) HasTelegramConfig() bool {
	return u.TelegramBotTokenEnc != "" && u.TelegramStorageChatID != ""
}
