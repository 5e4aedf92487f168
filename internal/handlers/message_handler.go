package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/Messenger/internal/services"
)

// MessageHandler 消息处理器
type MessageHandler struct {
	messageService *services.MessageService
	logger         *zap.Logger
}

// NewMessageHandler 创建消息处理器实例
func NewMessageHandler(messageService *services.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		logger:         logger,
	}
}

// SendMessage 发送消息（私聊或群聊，二选一）
func (h *MessageHandler) SendMessage(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	var req services.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
		return
	}

	message, err := h.messageService.SendMessage(ctx, &req)
	if err != nil {
		respondError(c, h.logger, "SendMessage", err)
		return
	}
	respondOK(c, message)
}

// MarkAsRead 标记单条私聊消息已读
func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	message, err := h.messageService.MarkMessageAsRead(ctx, c.Param("messageId"), ctx.ActorID)
	if err != nil {
		respondError(c, h.logger, "MarkAsRead", err)
		return
	}
	respondOK(c, message)
}

// MarkAsUnread 标记单条私聊消息未读
func (h *MessageHandler) MarkAsUnread(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	message, err := h.messageService.MarkMessageAsUnread(ctx, c.Param("messageId"), ctx.ActorID)
	if err != nil {
		respondError(c, h.logger, "MarkAsUnread", err)
		return
	}
	respondOK(c, message)
}

// MarkConversationAsRead 把与某用户的私聊会话整体标记已读
func (h *MessageHandler) MarkConversationAsRead(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	affected, err := h.messageService.MarkConversationAsRead(ctx, ctx.ActorID, c.Param("userId"))
	if err != nil {
		respondError(c, h.logger, "MarkConversationAsRead", err)
		return
	}
	respondOK(c, affected)
}

// MarkGroupAsRead 把群聊会话整体标记已读
func (h *MessageHandler) MarkGroupAsRead(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	affected, err := h.messageService.MarkGroupMessagesAsRead(ctx, ctx.ActorID, c.Param("groupId"))
	if err != nil {
		respondError(c, h.logger, "MarkGroupAsRead", err)
		return
	}
	respondOK(c, affected)
}

// Delete 软删除消息
func (h *MessageHandler) Delete(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	message, err := h.messageService.DeleteMessage(ctx, c.Param("messageId"))
	if err != nil {
		respondError(c, h.logger, "DeleteMessage", err)
		return
	}
	respondOK(c, message)
}

// Restore 恢复软删除的消息
func (h *MessageHandler) Restore(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	message, err := h.messageService.RestoreMessage(ctx, c.Param("messageId"))
	if err != nil {
		respondError(c, h.logger, "RestoreMessage", err)
		return
	}
	respondOK(c, message)
}

// HardDelete 物理删除消息及其已读记录
func (h *MessageHandler) HardDelete(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	message, err := h.messageService.HardDeleteMessage(ctx, c.Param("messageId"))
	if err != nil {
		respondError(c, h.logger, "HardDeleteMessage", err)
		return
	}
	respondOK(c, message)
}

// GetDirectMessages 获取与某用户的私聊历史
func (h *MessageHandler) GetDirectMessages(c *gin.Context) {
	userID := c.GetString("userID")
	_, pageSize := pagination(c)

	messages, err := h.messageService.GetMessagesBetweenUsers(userID, c.Param("userId"), pageSize)
	if err != nil {
		respondError(c, h.logger, "GetDirectMessages", err)
		return
	}
	respondOK(c, messages)
}

// GetGroupMessages 获取群组消息列表
func (h *MessageHandler) GetGroupMessages(c *gin.Context) {
	ctx, ok := mustAuth(c)
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	messages, total, err := h.messageService.GetGroupMessages(ctx, c.Param("groupId"), page, pageSize)
	if err != nil {
		respondError(c, h.logger, "GetGroupMessages", err)
		return
	}
	respondOK(c, gin.H{
		"messages": messages,
		"total":    total,
		"page":     page,
	})
}
