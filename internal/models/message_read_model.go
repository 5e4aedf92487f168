package models

import "time"

// MessageRead 群消息已读记录
// 联合主键保证 (message, user) 至多一条，写入走 ON CONFLICT DO NOTHING 保证幂等
type MessageRead struct {
	MessageID string    `gorm:"primaryKey;size:36" json:"message_id"`
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`

	Message *Message `gorm:"foreignKey:MessageID" json:"-"`
	User    *User    `gorm:"foreignKey:UserID" json:"-"`
}

func (MessageRead) TableName() string {
	return "message_reads"
}
