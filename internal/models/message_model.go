package models

import (
	"time"

	"gorm.io/gorm"
)

// 消息类型
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// Message 消息模型
// ReceiverID 与 GroupID 二选一：私聊消息设置 ReceiverID，群消息设置 GroupID
// IsRead / ReadAt 仅对私聊消息有意义，群消息的已读状态在 message_reads 表
type Message struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	Content    string  `gorm:"not null" json:"content"`
	MsgType    string  `gorm:"default:text" json:"msg_type"` // text, image, file, system
	SenderID   string  `gorm:"not null;index;size:36" json:"sender_id"`
	ReceiverID *string `gorm:"index;size:36" json:"receiver_id,omitempty"`
	GroupID    *string `gorm:"index;size:36" json:"group_id,omitempty"`
	ParentID   *string `gorm:"size:36" json:"parent_id,omitempty"` // 单层回复引用，须与本消息同会话

	IsRead bool       `gorm:"default:false" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Sender   *User  `gorm:"foreignKey:SenderID" json:"-"`
	Receiver *User  `gorm:"foreignKey:ReceiverID" json:"-"`
	Group    *Group `gorm:"foreignKey:GroupID" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

// IsDirect 是否为私聊消息
func (m *Message) IsDirect() bool {
	return m.ReceiverID != nil
}
