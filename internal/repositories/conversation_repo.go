package repositories

import (
	"time"

	"gorm.io/gorm"
)

// DirectConversationRow 私聊会话聚合行：对端用户 + 最近一条消息 + 未读数
type DirectConversationRow struct {
	OtherUserID   string    `gorm:"column:other_user_id"`
	OtherUserName string    `gorm:"column:other_username"`
	OtherNickname string    `gorm:"column:other_nickname"`
	OtherEmail    string    `gorm:"column:other_email"`
	OtherAvatar   string    `gorm:"column:other_avatar"`
	LastMessageID string    `gorm:"column:last_message_id"`
	LastContent   string    `gorm:"column:last_content"`
	LastSenderID  string    `gorm:"column:last_sender_id"`
	LastCreatedAt time.Time `gorm:"column:last_created_at"`
	UnreadCount   int64     `gorm:"column:unread_count"`
}

// GroupConversationRow 群会话聚合行：群信息 + 最近一条消息（可空）+ 未读数
type GroupConversationRow struct {
	GroupID        string     `gorm:"column:group_id"`
	GroupName      string     `gorm:"column:group_name"`
	GroupAvatar    string     `gorm:"column:group_avatar"`
	GroupCreatedAt time.Time  `gorm:"column:group_created_at"`
	LastMessageID  *string    `gorm:"column:last_message_id"`
	LastContent    *string    `gorm:"column:last_content"`
	LastSenderID   *string    `gorm:"column:last_sender_id"`
	LastCreatedAt  *time.Time `gorm:"column:last_created_at"`
	UnreadCount    int64      `gorm:"column:unread_count"`
}

// IConversationRepository 会话目录仓储接口
// 只做分组聚合，两路归并、检索与分页在服务层进行
type IConversationRepository interface {
	DirectConversations(userID string) ([]DirectConversationRow, error)
	GroupConversations(userID string) ([]GroupConversationRow, error)
}

// ConversationRepository 会话目录仓储
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话目录仓储实例
func NewConversationRepository(db *gorm.DB) IConversationRepository {
	return &ConversationRepository{db: db}
}

// DirectConversations 每个私聊对端一行，带最近消息与未读数
func (r *ConversationRepository) DirectConversations(userID string) ([]DirectConversationRow, error) {
	var rows []DirectConversationRow
	err := r.db.Raw(`WITH direct AS (
			SELECT CASE WHEN m.sender_id = @uid THEN m.receiver_id ELSE m.sender_id END AS other_id,
			       m.id, m.content, m.sender_id, m.created_at
			FROM messages m
			WHERE m.deleted_at IS NULL AND m.group_id IS NULL
			  AND (m.sender_id = @uid OR m.receiver_id = @uid)
		), latest AS (
			SELECT DISTINCT ON (other_id) other_id, id, content, sender_id, created_at
			FROM direct
			ORDER BY other_id, created_at DESC, id DESC
		), unread AS (
			SELECT sender_id AS other_id, COUNT(*) AS unread_count
			FROM messages
			WHERE receiver_id = @uid AND is_read = false AND deleted_at IS NULL AND group_id IS NULL
			GROUP BY sender_id
		)
		SELECT u.id AS other_user_id, u.username AS other_username, u.nickname AS other_nickname,
		       u.email AS other_email, u.avatar_url AS other_avatar,
		       l.id AS last_message_id, l.content AS last_content,
		       l.sender_id AS last_sender_id, l.created_at AS last_created_at,
		       COALESCE(un.unread_count, 0) AS unread_count
		FROM latest l
		JOIN users u ON u.id = l.other_id AND u.deleted_at IS NULL
		LEFT JOIN unread un ON un.other_id = l.other_id`,
		map[string]any{"uid": userID}).Scan(&rows).Error
	return rows, err
}

// GroupConversations 用户活跃群每群一行，带最近消息（可空）与未读数
func (r *ConversationRepository) GroupConversations(userID string) ([]GroupConversationRow, error) {
	var rows []GroupConversationRow
	err := r.db.Raw(`SELECT g.id AS group_id, g.name AS group_name, g.avatar_url AS group_avatar,
		       g.created_at AS group_created_at,
		       lm.id AS last_message_id, lm.content AS last_content,
		       lm.sender_id AS last_sender_id, lm.created_at AS last_created_at,
		       (SELECT COUNT(*) FROM messages m2
		        WHERE m2.group_id = g.id AND m2.deleted_at IS NULL AND m2.sender_id <> @uid
		          AND NOT EXISTS (SELECT 1 FROM message_reads mr
		                          WHERE mr.message_id = m2.id AND mr.user_id = @uid)) AS unread_count
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id AND gm.user_id = @uid AND gm.left_at IS NULL
		LEFT JOIN LATERAL (
			SELECT m.id, m.content, m.sender_id, m.created_at
			FROM messages m
			WHERE m.group_id = g.id AND m.deleted_at IS NULL
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON true
		WHERE g.deleted_at IS NULL`,
		map[string]any{"uid": userID}).Scan(&rows).Error
	return rows, err
}
