package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Gopher0727/Messenger/internal/auth"
	"github.com/Gopher0727/Messenger/internal/models"
	"github.com/Gopher0727/Messenger/internal/repositories"
)

// GroupService 群组服务
// 群生命周期与成员名册的唯一写入口；
// 不变式：只要群内还有活跃成员，就至少保留一名活跃管理员
type GroupService struct {
	groupRepo repositories.IGroupRepository
	userRepo  repositories.IUserRepository
	notifier  Notifier
}

// NewGroupService 创建群组服务实例
func NewGroupService(groupRepo repositories.IGroupRepository, userRepo repositories.IUserRepository, notifier Notifier) *GroupService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &GroupService{
		groupRepo: groupRepo,
		userRepo:  userRepo,
		notifier:  notifier,
	}
}

// CreateGroupRequest 创建群组请求
type CreateGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	AvatarURL   string   `json:"avatar_url"`
	MemberIDs   []string `json:"member_ids"`
}

// GroupDTO 群组数据传输对象
type GroupDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AvatarURL   string    `json:"avatar_url"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// GroupMemberDTO 群组成员数据传输对象
type GroupMemberDTO struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Nickname string    `json:"nickname"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func toGroupDTO(g *models.Group) *GroupDTO {
	return &GroupDTO{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		AvatarURL:   g.AvatarURL,
		CreatorID:   g.CreatorID,
		CreatedAt:   g.CreatedAt,
	}
}

// CreateGroup 创建群组
// 创建者作为管理员写入；MemberIDs 去重、排除创建者、过滤不存在的用户后作为普通成员写入
func (s *GroupService) CreateGroup(ctx auth.Context, req *CreateGroupRequest) (*GroupDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return nil, NewValidationError("group name must be 1-100 characters")
	}

	memberIDs, err := s.resolveMemberIDs(req.MemberIDs, ctx.ActorID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	group := &models.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		CreatorID:   ctx.ActorID,
	}
	members := []models.GroupMember{{
		ID:       uuid.NewString(),
		GroupID:  group.ID,
		UserID:   ctx.ActorID,
		Role:     models.GroupRoleAdmin,
		JoinedAt: now,
	}}
	for _, id := range memberIDs {
		members = append(members, models.GroupMember{
			ID:       uuid.NewString(),
			GroupID:  group.ID,
			UserID:   id,
			Role:     models.GroupRoleMember,
			JoinedAt: now,
		})
	}

	if err := s.groupRepo.CreateWithMembers(group, members); err != nil {
		return nil, wrapStorageError("CreateGroup", err)
	}

	dto := toGroupDTO(group)
	s.notifier.Notify(groupConversationKey(group.ID), memberIDs, EventGroupCreated, dto)
	return dto, nil
}

// resolveMemberIDs 去重、排除操作者本人、过滤不存在（或已注销）的用户
func (s *GroupService) resolveMemberIDs(ids []string, actorID string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	deduped := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == actorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	if len(deduped) == 0 {
		return nil, nil
	}
	users, err := s.userRepo.GetByIDs(deduped)
	if err != nil {
		return nil, wrapStorageError("resolveMemberIDs", err)
	}
	existing := make([]string, 0, len(users))
	for i := range users {
		existing = append(existing, users[i].ID)
	}
	return existing, nil
}

// requireActiveAdmin 操作者必须是群的活跃管理员
func (s *GroupService) requireActiveAdmin(groupID, actorID string) error {
	member, err := s.groupRepo.GetActiveMember(groupID, actorID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return NewForbiddenError("not an active member of group %s", groupID)
		}
		return wrapStorageError("requireActiveAdmin", err)
	}
	if member.Role != models.GroupRoleAdmin {
		return NewForbiddenError("admin role required for group %s", groupID)
	}
	return nil
}

// getLiveGroup 获取未删除的群组，软删除或硬删除均视为不存在
func (s *GroupService) getLiveGroup(groupID string) (*models.Group, error) {
	group, err := s.groupRepo.GetByID(groupID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("group %s not found", groupID)
		}
		return nil, wrapStorageError("getLiveGroup", err)
	}
	return group, nil
}

// AddGroupMembersRequest 添加群成员请求
type AddGroupMembersRequest struct {
	MemberIDs []string `json:"member_ids" binding:"required"`
}

// AddGroupMembers 添加群成员
// 已是活跃成员的ID跳过（幂等）；群已删除时整体失败，零部分写入
func (s *GroupService) AddGroupMembers(ctx auth.Context, groupID string, memberIDs []string) ([]GroupMemberDTO, error) {
	if _, err := s.getLiveGroup(groupID); err != nil {
		return nil, err
	}
	if err := s.requireActiveAdmin(groupID, ctx.ActorID); err != nil {
		return nil, err
	}

	resolved, err := s.resolveMemberIDs(memberIDs, "")
	if err != nil {
		return nil, err
	}
	activeIDs, err := s.groupRepo.ActiveMemberIDs(groupID)
	if err != nil {
		return nil, wrapStorageError("AddGroupMembers", err)
	}
	active := make(map[string]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}

	now := time.Now()
	var rows []models.GroupMember
	var added []string
	for _, id := range resolved {
		if _, ok := active[id]; ok {
			continue
		}
		rows = append(rows, models.GroupMember{
			ID:       uuid.NewString(),
			GroupID:  groupID,
			UserID:   id,
			Role:     models.GroupRoleMember,
			JoinedAt: now,
		})
		added = append(added, id)
	}
	if err := s.groupRepo.AddMembers(rows); err != nil {
		return nil, wrapStorageError("AddGroupMembers", err)
	}

	dtos := make([]GroupMemberDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, GroupMemberDTO{
			UserID:   rows[i].UserID,
			Role:     rows[i].Role,
			JoinedAt: rows[i].JoinedAt,
		})
	}
	s.notifier.Notify(groupConversationKey(groupID), added, EventMemberAdded, map[string]any{"group_id": groupID, "member_ids": added})
	return dtos, nil
}

// RemoveGroupMember 移除群成员
// 写 LeftAt 而非删行，保留历史消息归属；管理员可移除任何人，成员只能移除自己；
// 群内还有其他活跃成员时不允许移除最后一名管理员
func (s *GroupService) RemoveGroupMember(ctx auth.Context, groupID, memberID string) error {
	if _, err := s.getLiveGroup(groupID); err != nil {
		return err
	}
	if ctx.ActorID != memberID {
		if err := s.requireActiveAdmin(groupID, ctx.ActorID); err != nil {
			return err
		}
	}

	target, err := s.groupRepo.GetActiveMember(groupID, memberID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return NewNotFoundError("user %s is not an active member of group %s", memberID, groupID)
		}
		return wrapStorageError("RemoveGroupMember", err)
	}

	if target.Role == models.GroupRoleAdmin {
		if err := s.checkLastAdminLeaving(groupID); err != nil {
			return err
		}
	}

	affected, err := s.groupRepo.SetMemberLeft(groupID, memberID, time.Now())
	if err != nil {
		return wrapStorageError("RemoveGroupMember", err)
	}
	if affected == 0 {
		return NewNotFoundError("user %s is not an active member of group %s", memberID, groupID)
	}

	s.notifier.Notify(groupConversationKey(groupID), []string{memberID}, EventMemberRemoved, map[string]string{
		"group_id": groupID, "member_id": memberID,
	})
	return nil
}

// checkLastAdminLeaving 移除管理员前的不变式检查
// 唯一的例外：被移除的管理员同时是群里最后一名活跃成员
func (s *GroupService) checkLastAdminLeaving(groupID string) error {
	admins, err := s.groupRepo.CountActiveAdmins(groupID)
	if err != nil {
		return wrapStorageError("checkLastAdminLeaving", err)
	}
	if admins > 1 {
		return nil
	}
	memberIDs, err := s.groupRepo.ActiveMemberIDs(groupID)
	if err != nil {
		return wrapStorageError("checkLastAdminLeaving", err)
	}
	if len(memberIDs) > 1 {
		return NewConflictError("group %s must keep at least one active admin", groupID)
	}
	return nil
}

// UpdateGroupMemberRoleRequest 更新成员角色请求
type UpdateGroupMemberRoleRequest struct {
	MemberID string `json:"member_id" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// UpdateGroupMemberRole 更新群成员角色
// 拒绝将最后一名活跃管理员降为普通成员
func (s *GroupService) UpdateGroupMemberRole(ctx auth.Context, groupID, memberID, role string) (*GroupMemberDTO, error) {
	if role != models.GroupRoleAdmin && role != models.GroupRoleMember {
		return nil, NewValidationError("role must be admin or member")
	}
	if _, err := s.getLiveGroup(groupID); err != nil {
		return nil, err
	}
	if err := s.requireActiveAdmin(groupID, ctx.ActorID); err != nil {
		return nil, err
	}

	target, err := s.groupRepo.GetActiveMember(groupID, memberID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("user %s is not an active member of group %s", memberID, groupID)
		}
		return nil, wrapStorageError("UpdateGroupMemberRole", err)
	}

	if target.Role == models.GroupRoleAdmin && role == models.GroupRoleMember {
		admins, err := s.groupRepo.CountActiveAdmins(groupID)
		if err != nil {
			return nil, wrapStorageError("UpdateGroupMemberRole", err)
		}
		if admins <= 1 {
			return nil, NewConflictError("cannot demote the last active admin of group %s", groupID)
		}
	}

	if _, err := s.groupRepo.UpdateMemberRole(groupID, memberID, role); err != nil {
		return nil, wrapStorageError("UpdateGroupMemberRole", err)
	}

	dto := &GroupMemberDTO{UserID: memberID, Role: role, JoinedAt: target.JoinedAt}
	s.notifier.Notify(groupConversationKey(groupID), []string{memberID}, EventMemberRoleChanged, map[string]string{
		"group_id": groupID, "member_id": memberID, "role": role,
	})
	return dto, nil
}

// canManageGroup 群的活跃管理员，或持有群组管理权限
func (s *GroupService) canManageGroup(ctx auth.Context, groupID string) error {
	if ctx.Has(auth.PermGroupsManage) {
		return nil
	}
	return s.requireActiveAdmin(groupID, ctx.ActorID)
}

// DeleteGroup 软删除群组（隐藏，可恢复）
func (s *GroupService) DeleteGroup(ctx auth.Context, groupID string) (*GroupDTO, error) {
	group, err := s.getLiveGroup(groupID)
	if err != nil {
		return nil, err
	}
	if err := s.canManageGroup(ctx, groupID); err != nil {
		return nil, err
	}
	memberIDs, _ := s.groupRepo.ActiveMemberIDs(groupID)
	if err := s.groupRepo.SoftDelete(groupID); err != nil {
		return nil, wrapStorageError("DeleteGroup", err)
	}

	dto := toGroupDTO(group)
	s.notifier.Notify(groupConversationKey(groupID), memberIDs, EventGroupDeleted, dto)
	return dto, nil
}

// RestoreGroup 恢复软删除的群组
func (s *GroupService) RestoreGroup(ctx auth.Context, groupID string) (*GroupDTO, error) {
	group, err := s.groupRepo.GetByIDUnscoped(groupID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("group %s not found", groupID)
		}
		return nil, wrapStorageError("RestoreGroup", err)
	}
	if err := s.canManageGroup(ctx, groupID); err != nil {
		return nil, err
	}
	affected, err := s.groupRepo.Restore(groupID)
	if err != nil {
		return nil, wrapStorageError("RestoreGroup", err)
	}
	if affected == 0 {
		return nil, NewConflictError("group %s is not deleted", groupID)
	}

	memberIDs, _ := s.groupRepo.ActiveMemberIDs(groupID)
	dto := toGroupDTO(group)
	s.notifier.Notify(groupConversationKey(groupID), memberIDs, EventGroupRestored, dto)
	return dto, nil
}

// HardDeleteGroup 硬删除群组，级联成员与消息，不可恢复
// ACTIVE 与 DELETED 状态均可直接硬删
func (s *GroupService) HardDeleteGroup(ctx auth.Context, groupID string) error {
	if _, err := s.groupRepo.GetByIDUnscoped(groupID); err != nil {
		if repositories.IsNotFound(err) {
			return NewNotFoundError("group %s not found", groupID)
		}
		return wrapStorageError("HardDeleteGroup", err)
	}
	if err := s.canManageGroup(ctx, groupID); err != nil {
		return err
	}
	memberIDs, _ := s.groupRepo.ActiveMemberIDs(groupID)
	if err := s.groupRepo.HardDelete(groupID); err != nil {
		return wrapStorageError("HardDeleteGroup", err)
	}

	s.notifier.Notify(groupConversationKey(groupID), memberIDs, EventGroupHardDeleted, map[string]string{"group_id": groupID})
	return nil
}

// GetGroupMembers 分页获取活跃成员列表，仅成员可见
func (s *GroupService) GetGroupMembers(ctx auth.Context, groupID string, page, pageSize int) ([]GroupMemberDTO, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	if _, err := s.getLiveGroup(groupID); err != nil {
		return nil, 0, err
	}
	if _, err := s.groupRepo.GetActiveMember(groupID, ctx.ActorID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, 0, NewForbiddenError("not an active member of group %s", groupID)
		}
		return nil, 0, wrapStorageError("GetGroupMembers", err)
	}

	members, total, err := s.groupRepo.ActiveMembers(groupID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, wrapStorageError("GetGroupMembers", err)
	}
	dtos := make([]GroupMemberDTO, 0, len(members))
	for i := range members {
		dto := GroupMemberDTO{
			UserID:   members[i].UserID,
			Role:     members[i].Role,
			JoinedAt: members[i].JoinedAt,
		}
		if members[i].User != nil {
			dto.Username = members[i].User.UserName
			dto.Nickname = members[i].User.Nickname
		}
		dtos = append(dtos, dto)
	}
	return dtos, total, nil
}
