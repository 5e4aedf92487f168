package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/Messenger/internal/services"
)

// GroupHandler 群组处理器
type GroupHandler struct {
	groupService *services.GroupService
	logger       *zap.Logger
}

// NewGroupHandler 创建群组处理器实例
func NewGroupHandler(groupService *services.GroupService, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
		logger:       logger,
	}
}

// Create 创建群组，创建者自动成为管理员
func (h *GroupHandler) Create(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
		return
	}

	group, err := h.groupService.CreateGroup(ctx, &req)
	if err != nil {
		respondError(c, h.logger, "CreateGroup", err)
		return
	}
	respondOK(c, group)
}

// AddMembers 批量拉人进群
func (h *GroupHandler) AddMembers(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	var req struct {
		MemberIDs []string `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
		return
	}

	members, err := h.groupService.AddGroupMembers(ctx, c.Param("groupId"), req.MemberIDs)
	if err != nil {
		respondError(c, h.logger, "AddGroupMembers", err)
		return
	}
	respondOK(c, members)
}

// RemoveMember 踢人或主动退群
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	if err := h.groupService.RemoveGroupMember(ctx, c.Param("groupId"), c.Param("userId")); err != nil {
		respondError(c, h.logger, "RemoveGroupMember", err)
		return
	}
	respondOK(c, nil)
}

// UpdateMemberRole 调整成员角色
func (h *GroupHandler) UpdateMemberRole(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
		return
	}

	member, err := h.groupService.UpdateGroupMemberRole(ctx, c.Param("groupId"), c.Param("userId"), req.Role)
	if err != nil {
		respondError(c, h.logger, "UpdateGroupMemberRole", err)
		return
	}
	respondOK(c, member)
}

// Members 获取群成员列表
func (h *GroupHandler) Members(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	members, total, err := h.groupService.GetGroupMembers(ctx, c.Param("groupId"), page, pageSize)
	if err != nil {
		respondError(c, h.logger, "GetGroupMembers", err)
		return
	}
	respondOK(c, gin.H{
		"members": members,
		"total":   total,
		"page":    page,
	})
}

// Delete 软删除群组
func (h *GroupHandler) Delete(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	group, err := h.groupService.DeleteGroup(ctx, c.Param("groupId"))
	if err != nil {
		respondError(c, h.logger, "DeleteGroup", err)
		return
	}
	respondOK(c, group)
}

// Restore 恢复软删除的群组
func (h *GroupHandler) Restore(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	group, err := h.groupService.RestoreGroup(ctx, c.Param("groupId"))
	if err != nil {
		respondError(c, h.logger, "RestoreGroup", err)
		return
	}
	respondOK(c, group)
}

// HardDelete 物理删除群组及其全部消息
func (h *GroupHandler) HardDelete(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	if err := h.groupService.HardDeleteGroup(ctx, c.Param("groupId")); err != nil {
		respondError(c, h.logger, "HardDeleteGroup", err)
		return
	}
	respondOK(c, nil)
}
