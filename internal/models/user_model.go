package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型
// 消息域只读用户表，写操作属于账号体系
type User struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	UserName     string `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Nickname     string `json:"nickname"`
	AvatarURL    string `json:"avatar_url"`
	Roles        string `gorm:"default:member" json:"roles"` // 逗号分隔的角色名，签发 token 时写入 claims
	Status       string `gorm:"default:offline" json:"status"` // online, offline

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
