package repositories

import (
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/Messenger/internal/models"
)

// IGroupRepository 群组仓储接口
type IGroupRepository interface {
	CreateWithMembers(group *models.Group, members []models.GroupMember) error
	GetByID(id string) (*models.Group, error)
	GetByIDUnscoped(id string) (*models.Group, error)
	SoftDelete(id string) error
	Restore(id string) (int64, error)
	HardDelete(id string) error
	GetActiveMember(groupID, userID string) (*models.GroupMember, error)
	ActiveMemberIDs(groupID string) ([]string, error)
	ActiveMembers(groupID string, limit, offset int) ([]models.GroupMember, int64, error)
	AddMembers(members []models.GroupMember) error
	SetMemberLeft(groupID, userID string, at time.Time) (int64, error)
	UpdateMemberRole(groupID, userID, role string) (int64, error)
	CountActiveAdmins(groupID string) (int64, error)
}

// GroupRepository 群组仓储
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository 创建群组仓储实例
func NewGroupRepository(db *gorm.DB) IGroupRepository {
	return &GroupRepository{db: db}
}

// CreateWithMembers 创建群组并写入初始成员，单事务内完成
func (r *GroupRepository) CreateWithMembers(group *models.Group, members []models.GroupMember) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		return tx.Create(&members).Error
	})
}

// GetByID 根据ID获取群组，软删除群组视为不存在
func (r *GroupRepository) GetByID(id string) (*models.Group, error) {
	var group models.Group
	if err := r.db.Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// GetByIDUnscoped 根据ID获取群组，包含软删除行
func (r *GroupRepository) GetByIDUnscoped(id string) (*models.Group, error) {
	var group models.Group
	if err := r.db.Unscoped().Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// SoftDelete 软删除群组
func (r *GroupRepository) SoftDelete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.Group{}).Error
}

// Restore 恢复软删除的群组，返回受影响行数
func (r *GroupRepository) Restore(id string) (int64, error) {
	res := r.db.Unscoped().Model(&models.Group{}).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Update("deleted_at", nil)
	return res.RowsAffected, res.Error
}

// HardDelete 硬删除群组，级联成员、消息与消息已读记录，单事务内完成
func (r *GroupRepository) HardDelete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM message_reads
			WHERE message_id IN (SELECT id FROM messages WHERE group_id = ?)`, id).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("group_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id = ?", id).Delete(&models.Group{}).Error
	})
}

// GetActiveMember 获取活跃成员行
func (r *GroupRepository) GetActiveMember(groupID, userID string) (*models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.Where("group_id = ? AND user_id = ? AND left_at IS NULL", groupID, userID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ActiveMemberIDs 获取群内所有活跃成员的用户ID
func (r *GroupRepository) ActiveMemberIDs(groupID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND left_at IS NULL", groupID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// ActiveMembers 分页获取活跃成员及用户信息
func (r *GroupRepository) ActiveMembers(groupID string, limit, offset int) ([]models.GroupMember, int64, error) {
	var members []models.GroupMember
	var total int64

	q := r.db.Model(&models.GroupMember{}).Where("group_id = ? AND left_at IS NULL", groupID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("User").
		Order("joined_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&members).Error
	return members, total, err
}

// AddMembers 批量写入成员行
// 活跃行唯一索引兜底并发加人；幂等跳过在服务层基于 ActiveMemberIDs 完成
func (r *GroupRepository) AddMembers(members []models.GroupMember) error {
	if len(members) == 0 {
		return nil
	}
	return r.db.Create(&members).Error
}

// SetMemberLeft 将活跃成员标记为已退出，返回受影响行数
func (r *GroupRepository) SetMemberLeft(groupID, userID string, at time.Time) (int64, error) {
	res := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND left_at IS NULL", groupID, userID).
		Update("left_at", at)
	return res.RowsAffected, res.Error
}

// UpdateMemberRole 更新活跃成员角色，返回受影响行数
func (r *GroupRepository) UpdateMemberRole(groupID, userID, role string) (int64, error) {
	res := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND left_at IS NULL", groupID, userID).
		Update("role", role)
	return res.RowsAffected, res.Error
}

// CountActiveAdmins 统计活跃管理员数
func (r *GroupRepository) CountActiveAdmins(groupID string) (int64, error) {
	var n int64
	err := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND role = ? AND left_at IS NULL", groupID, models.GroupRoleAdmin).
		Count(&n).Error
	return n, err
}
