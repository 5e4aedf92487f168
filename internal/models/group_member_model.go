package models

import "time"

// 群成员角色
const (
	GroupRoleAdmin  = "admin"
	GroupRoleMember = "member"
)

// GroupMember 群组成员模型
// 退群只写 LeftAt 不删行，保留历史消息归属；活跃成员即 LeftAt 为空的行
// 唯一索引限制同一 (group, user) 至多一条活跃行，防止并发加人产生重复成员
type GroupMember struct {
	ID       string     `gorm:"primaryKey;size:36" json:"id"`
	GroupID  string     `gorm:"not null;uniqueIndex:idx_group_user_active,where:left_at IS NULL;size:36" json:"group_id"`
	UserID   string     `gorm:"not null;uniqueIndex:idx_group_user_active,where:left_at IS NULL;size:36" json:"user_id"`
	Role     string     `gorm:"default:member" json:"role"` // admin, member
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `gorm:"index" json:"left_at,omitempty"`

	Group *Group `gorm:"foreignKey:GroupID" json:"-"`
	User  *User  `gorm:"foreignKey:UserID" json:"-"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

// IsActive 是否仍在群内
func (m *GroupMember) IsActive() bool {
	return m.LeftAt == nil
}
