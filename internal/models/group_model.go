package models

import (
	"time"

	"gorm.io/gorm"
)

// Group 群组模型
// 软删除后可恢复，硬删除（Unscoped）级联成员与消息
type Group struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
	CreatorID   string `gorm:"not null;size:36" json:"creator_id"`

	Creator  *User         `gorm:"foreignKey:CreatorID" json:"-"`
	Members  []GroupMember `gorm:"foreignKey:GroupID" json:"-"`
	Messages []Message     `gorm:"foreignKey:GroupID" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Group) TableName() string {
	return "groups"
}
