package repositories

import (
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/Messenger/internal/models"
)

// IMessageRepository 消息仓储接口
type IMessageRepository interface {
	Create(message *models.Message) error
	GetByID(id string) (*models.Message, error)
	GetByIDUnscoped(id string) (*models.Message, error)
	SetRead(id string, readAt *time.Time) error
	MarkConversationRead(userID, otherUserID string, at time.Time) (int64, error)
	UpsertGroupReads(groupID, userID string, at time.Time) (int64, error)
	SoftDelete(id string) error
	Restore(id string) (int64, error)
	HardDelete(id string) error
	GetBetweenUsers(userID, otherUserID string, limit int) ([]models.Message, error)
	GetGroupMessages(groupID string, limit, offset int) ([]models.Message, int64, error)
	CountUnreadDirect(userID string) (int64, error)
	CountUnreadGroup(userID string) (int64, error)
}

// MessageRepository 消息仓储
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储实例
func NewMessageRepository(db *gorm.DB) IMessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建消息
func (r *MessageRepository) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

// GetByID 根据ID获取消息，软删除消息视为不存在
func (r *MessageRepository) GetByID(id string) (*models.Message, error) {
	var message models.Message
	if err := r.db.Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// GetByIDUnscoped 根据ID获取消息，包含软删除行（用于恢复与硬删）
func (r *MessageRepository) GetByIDUnscoped(id string) (*models.Message, error) {
	var message models.Message
	if err := r.db.Unscoped().Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// SetRead 设置私聊消息的已读状态，readAt 为 nil 表示标记未读
func (r *MessageRepository) SetRead(id string, readAt *time.Time) error {
	return r.db.Model(&models.Message{}).Where("id = ?", id).
		Updates(map[string]any{"is_read": readAt != nil, "read_at": readAt}).Error
}

// MarkConversationRead 批量将 otherUserID 发给 userID 的未读私聊消息置为已读
// 单条 UPDATE，整体提交或整体回滚
func (r *MessageRepository) MarkConversationRead(userID, otherUserID string, at time.Time) (int64, error) {
	res := r.db.Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = false", userID, otherUserID).
		Updates(map[string]any{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

// UpsertGroupReads 为群内所有他人发送、尚未读的消息补齐已读记录
// INSERT .. SELECT .. ON CONFLICT DO NOTHING：并发调用安全，重复调用影响行数为 0
func (r *MessageRepository) UpsertGroupReads(groupID, userID string, at time.Time) (int64, error) {
	res := r.db.Exec(`INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ? FROM messages m
		WHERE m.group_id = ? AND m.sender_id <> ? AND m.deleted_at IS NULL
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		userID, at, groupID, userID)
	return res.RowsAffected, res.Error
}

// SoftDelete 软删除消息
func (r *MessageRepository) SoftDelete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.Message{}).Error
}

// Restore 恢复软删除的消息，返回受影响行数（0 表示消息不处于软删除状态）
func (r *MessageRepository) Restore(id string) (int64, error) {
	res := r.db.Unscoped().Model(&models.Message{}).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Update("deleted_at", nil)
	return res.RowsAffected, res.Error
}

// HardDelete 硬删除消息并级联已读记录，单事务内完成
func (r *MessageRepository) HardDelete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.MessageRead{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id = ?", id).Delete(&models.Message{}).Error
	})
}

// GetBetweenUsers 获取两个用户之间的私聊消息，按时间倒序
func (r *MessageRepository) GetBetweenUsers(userID, otherUserID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("group_id IS NULL").
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, otherUserID, otherUserID, userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// GetGroupMessages 获取群消息列表
func (r *MessageRepository) GetGroupMessages(groupID string, limit, offset int) ([]models.Message, int64, error) {
	var messages []models.Message
	var total int64

	q := r.db.Model(&models.Message{}).Where("group_id = ?", groupID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, total, err
}

// CountUnreadDirect 统计用户未读私聊消息数
func (r *MessageRepository) CountUnreadDirect(userID string) (int64, error) {
	var n int64
	err := r.db.Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = false", userID).
		Count(&n).Error
	return n, err
}

// CountUnreadGroup 统计用户未读群消息数
// 仅统计活跃群成员身份对应的群；(group, user) 活跃行唯一，join 不会重复计数
func (r *MessageRepository) CountUnreadGroup(userID string) (int64, error) {
	var n int64
	err := r.db.Model(&models.Message{}).
		Joins("JOIN group_members gm ON gm.group_id = messages.group_id AND gm.user_id = ? AND gm.left_at IS NULL", userID).
		Joins("JOIN groups g ON g.id = messages.group_id AND g.deleted_at IS NULL").
		Where("messages.sender_id <> ?", userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = messages.id AND mr.user_id = ?)", userID).
		Count(&n).Error
	return n, err
}
