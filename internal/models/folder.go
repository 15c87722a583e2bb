package models

import "time"

// Folder 对应 folders 表，这里只用于归属校验
type Folder struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   uint64    `gorm:"not null;index:idx_folders_owner_parent,priority:1" json:"ownerId"`
	ParentID  *uint64   `gorm:"default:null;index:idx_folders_owner_parent,priority:2" json:"parentId"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Path      string    `gorm:"type:varchar(1024);not null;default:''" json:"path"`
	IsTrashed bool      `gorm:"not null;default:false" json:"isTrashed"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Folder) TableName() string {
	return "folders"
}
