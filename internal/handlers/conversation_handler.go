package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/Messenger/internal/services"
)

// ConversationHandler 会话目录处理器
type ConversationHandler struct {
	conversationService *services.ConversationService
	logger              *zap.Logger
}

// NewConversationHandler 创建会话目录处理器实例
func NewConversationHandler(conversationService *services.ConversationService, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		logger:              logger,
	}
}

// List 获取合并后的会话目录（私聊 + 群聊），支持搜索与分页
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	page, pageSize := pagination(c)
	search := c.Query("search")

	conversations, total, err := h.conversationService.ListConversations(userID, page, pageSize, search)
	if err != nil {
		respondError(c, h.logger, "ListConversations", err)
		return
	}
	respondOK(c, gin.H{
		"conversations": conversations,
		"total":         total,
		"page":          page,
	})
}

// UnreadCount 获取未读总数（私聊 + 群聊分项）
func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	userID := c.GetString("userID")

	counts, err := h.conversationService.GetTotalUnreadMessagesCount(userID)
	if err != nil {
		respondError(c, h.logger, "GetTotalUnreadMessagesCount", err)
		return
	}
	respondOK(c, counts)
}
