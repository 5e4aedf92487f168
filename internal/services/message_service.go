package services

import (
	"strings"
	"time"

	"github.com/Gopher0727/Messenger/internal/auth"
	"github.com/Gopher0727/Messenger/internal/models"
	"github.com/Gopher0727/Messenger/internal/repositories"
	"github.com/Gopher0727/Messenger/utils/snowflake"
)

// MessageService 消息服务
// 消息的全部写入口：创建、已读状态、软删/恢复/硬删都经由这里，
// 归属与会话上下文校验在持久化前完成
type MessageService struct {
	messageRepo repositories.IMessageRepository
	groupRepo   repositories.IGroupRepository
	userRepo    repositories.IUserRepository
	notifier    Notifier
	idGen       *snowflake.Generator
}

// NewMessageService 创建消息服务实例
func NewMessageService(
	messageRepo repositories.IMessageRepository,
	groupRepo repositories.IGroupRepository,
	userRepo repositories.IUserRepository,
	notifier Notifier,
	idGen *snowflake.Generator,
) *MessageService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &MessageService{
		messageRepo: messageRepo,
		groupRepo:   groupRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		idGen:       idGen,
	}
}

// SendMessageRequest 发送消息请求
// ReceiverID 与 GroupID 必须恰好设置一个
type SendMessageRequest struct {
	Content    string  `json:"content" binding:"required"`
	MsgType    string  `json:"msg_type"`
	ReceiverID *string `json:"receiver_id"`
	GroupID    *string `json:"group_id"`
	ParentID   *string `json:"parent_id"`
}

// MessageDTO 消息数据传输对象
type MessageDTO struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	MsgType    string     `json:"msg_type"`
	SenderID   string     `json:"sender_id"`
	ReceiverID *string    `json:"receiver_id,omitempty"`
	GroupID    *string    `json:"group_id,omitempty"`
	ParentID   *string    `json:"parent_id,omitempty"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AffectedDTO 批量操作的影响行数
type AffectedDTO struct {
	Count int64 `json:"count"`
}

func toMessageDTO(m *models.Message) *MessageDTO {
	return &MessageDTO{
		ID:         m.ID,
		Content:    m.Content,
		MsgType:    m.MsgType,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		GroupID:    m.GroupID,
		ParentID:   m.ParentID,
		IsRead:     m.IsRead,
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
	}
}

var validMsgTypes = map[string]bool{
	models.MessageTypeText:   true,
	models.MessageTypeImage:  true,
	models.MessageTypeFile:   true,
	models.MessageTypeSystem: true,
}

// SendMessage 发送消息
// 私聊推送给接收者，群消息推送给除发送者外的所有活跃成员
func (s *MessageService) SendMessage(ctx auth.Context, req *SendMessageRequest) (*MessageDTO, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" || len(content) > 5000 {
		return nil, NewValidationError("message content must be 1-5000 characters")
	}
	if (req.ReceiverID == nil) == (req.GroupID == nil) {
		return nil, NewValidationError("exactly one of receiver_id and group_id must be set")
	}
	if req.MsgType == "" {
		req.MsgType = models.MessageTypeText
	}
	if !validMsgTypes[req.MsgType] {
		return nil, NewValidationError("unknown message type %q", req.MsgType)
	}

	var recipients []string
	if req.ReceiverID != nil {
		if *req.ReceiverID == ctx.ActorID {
			return nil, NewValidationError("cannot send a message to yourself")
		}
		if _, err := s.userRepo.GetByID(*req.ReceiverID); err != nil {
			if repositories.IsNotFound(err) {
				return nil, NewNotFoundError("receiver %s not found", *req.ReceiverID)
			}
			return nil, wrapStorageError("SendMessage", err)
		}
		recipients = []string{*req.ReceiverID}
	} else {
		if _, err := s.groupRepo.GetByID(*req.GroupID); err != nil {
			if repositories.IsNotFound(err) {
				return nil, NewNotFoundError("group %s not found", *req.GroupID)
			}
			return nil, wrapStorageError("SendMessage", err)
		}
		if _, err := s.groupRepo.GetActiveMember(*req.GroupID, ctx.ActorID); err != nil {
			if repositories.IsNotFound(err) {
				return nil, NewForbiddenError("not an active member of group %s", *req.GroupID)
			}
			return nil, wrapStorageError("SendMessage", err)
		}
		ids, err := s.groupRepo.ActiveMemberIDs(*req.GroupID)
		if err != nil {
			return nil, wrapStorageError("SendMessage", err)
		}
		for _, id := range ids {
			if id != ctx.ActorID {
				recipients = append(recipients, id)
			}
		}
	}

	if req.ParentID != nil {
		if err := s.checkParentContext(ctx.ActorID, req); err != nil {
			return nil, err
		}
	}

	message := &models.Message{
		ID:         s.idGen.NextString(),
		Content:    content,
		MsgType:    req.MsgType,
		SenderID:   ctx.ActorID,
		ReceiverID: req.ReceiverID,
		GroupID:    req.GroupID,
		ParentID:   req.ParentID,
	}
	if err := s.messageRepo.Create(message); err != nil {
		return nil, wrapStorageError("SendMessage", err)
	}

	dto := toMessageDTO(message)
	s.notifier.Notify(conversationKeyOf(message), recipients, EventMessageCreated, dto)
	return dto, nil
}

// checkParentContext 回复引用必须与新消息处于同一会话上下文
func (s *MessageService) checkParentContext(senderID string, req *SendMessageRequest) error {
	parent, err := s.messageRepo.GetByID(*req.ParentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return NewNotFoundError("parent message %s not found", *req.ParentID)
		}
		return wrapStorageError("SendMessage", err)
	}
	if req.GroupID != nil {
		if parent.GroupID == nil || *parent.GroupID != *req.GroupID {
			return NewValidationError("parent message belongs to a different conversation")
		}
		return nil
	}
	if parent.ReceiverID == nil {
		return NewValidationError("parent message belongs to a different conversation")
	}
	samePair := (parent.SenderID == senderID && *parent.ReceiverID == *req.ReceiverID) ||
		(parent.SenderID == *req.ReceiverID && *parent.ReceiverID == senderID)
	if !samePair {
		return NewValidationError("parent message belongs to a different conversation")
	}
	return nil
}

// canActFor 操作自己的已读状态，或持有消息管理权限
func canActFor(ctx auth.Context, userID string) bool {
	return ctx.ActorID == userID || ctx.Has(auth.PermMessagesManage)
}

// MarkMessageAsRead 标记私聊消息已读
func (s *MessageService) MarkMessageAsRead(ctx auth.Context, messageID, userID string) (*MessageDTO, error) {
	return s.setDirectRead(ctx, messageID, userID, true)
}

// MarkMessageAsUnread 标记私聊消息未读
func (s *MessageService) MarkMessageAsUnread(ctx auth.Context, messageID, userID string) (*MessageDTO, error) {
	return s.setDirectRead(ctx, messageID, userID, false)
}

func (s *MessageService) setDirectRead(ctx auth.Context, messageID, userID string, read bool) (*MessageDTO, error) {
	if !canActFor(ctx, userID) {
		return nil, NewForbiddenError("cannot change read state for another user")
	}
	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("message %s not found", messageID)
		}
		return nil, wrapStorageError("setDirectRead", err)
	}
	if !message.IsDirect() {
		return nil, NewValidationError("read flag applies to direct messages only")
	}
	if *message.ReceiverID != userID {
		return nil, NewForbiddenError("user %s is not the receiver of message %s", userID, messageID)
	}

	var readAt *time.Time
	event := EventMessageUnread
	if read {
		now := time.Now()
		readAt = &now
		event = EventMessageRead
	}
	if err := s.messageRepo.SetRead(messageID, readAt); err != nil {
		return nil, wrapStorageError("setDirectRead", err)
	}
	message.IsRead = read
	message.ReadAt = readAt

	dto := toMessageDTO(message)
	s.notifier.Notify(conversationKeyOf(message), []string{message.SenderID}, event, dto)
	return dto, nil
}

// MarkConversationAsRead 将 otherUserID 发给 userID 的全部未读私聊置为已读
// 单条事务性 UPDATE，返回影响行数
func (s *MessageService) MarkConversationAsRead(ctx auth.Context, userID, otherUserID string) (*AffectedDTO, error) {
	if !canActFor(ctx, userID) {
		return nil, NewForbiddenError("cannot mark another user's conversation as read")
	}
	count, err := s.messageRepo.MarkConversationRead(userID, otherUserID, time.Now())
	if err != nil {
		return nil, wrapStorageError("MarkConversationAsRead", err)
	}
	if count > 0 {
		s.notifier.Notify(directConversationKey(userID, otherUserID), []string{otherUserID}, EventConversationRead, map[string]string{
			"user_id": userID, "other_user_id": otherUserID,
		})
	}
	return &AffectedDTO{Count: count}, nil
}

// MarkGroupMessagesAsRead 为用户补齐群内全部未读消息的已读记录
// upsert 实现，重复或并发调用安全，第二次调用返回 0
func (s *MessageService) MarkGroupMessagesAsRead(ctx auth.Context, userID, groupID string) (*AffectedDTO, error) {
	if !canActFor(ctx, userID) {
		return nil, NewForbiddenError("cannot mark group messages read for another user")
	}
	if _, err := s.groupRepo.GetByID(groupID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("group %s not found", groupID)
		}
		return nil, wrapStorageError("MarkGroupMessagesAsRead", err)
	}
	if _, err := s.groupRepo.GetActiveMember(groupID, userID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewForbiddenError("user %s is not an active member of group %s", userID, groupID)
		}
		return nil, wrapStorageError("MarkGroupMessagesAsRead", err)
	}
	count, err := s.messageRepo.UpsertGroupReads(groupID, userID, time.Now())
	if err != nil {
		return nil, wrapStorageError("MarkGroupMessagesAsRead", err)
	}
	return &AffectedDTO{Count: count}, nil
}

// recipientsOf 消息相关方（私聊对端，或群内除操作者外的活跃成员）
func conversationKeyOf(message *models.Message) string {
	if message.IsDirect() {
		return directConversationKey(message.SenderID, *message.ReceiverID)
	}
	return groupConversationKey(*message.GroupID)
}

func (s *MessageService) recipientsOf(message *models.Message, actorID string) []string {
	if message.IsDirect() {
		other := *message.ReceiverID
		if other == actorID {
			other = message.SenderID
		}
		return []string{other}
	}
	ids, err := s.groupRepo.ActiveMemberIDs(*message.GroupID)
	if err != nil {
		return nil
	}
	out := ids[:0]
	for _, id := range ids {
		if id != actorID {
			out = append(out, id)
		}
	}
	return out
}

// checkOwnership 仅发送者或持有消息管理权限者可删除/恢复
func checkOwnership(ctx auth.Context, message *models.Message) error {
	if message.SenderID != ctx.ActorID && !ctx.Has(auth.PermMessagesManage) {
		return NewForbiddenError("only the sender may modify message %s", message.ID)
	}
	return nil
}

// DeleteMessage 软删除消息
func (s *MessageService) DeleteMessage(ctx auth.Context, messageID string) (*MessageDTO, error) {
	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("message %s not found", messageID)
		}
		return nil, wrapStorageError("DeleteMessage", err)
	}
	if err := checkOwnership(ctx, message); err != nil {
		return nil, err
	}
	if err := s.messageRepo.SoftDelete(messageID); err != nil {
		return nil, wrapStorageError("DeleteMessage", err)
	}

	dto := toMessageDTO(message)
	s.notifier.Notify(conversationKeyOf(message), s.recipientsOf(message, ctx.ActorID), EventMessageDeleted, dto)
	return dto, nil
}

// RestoreMessage 恢复软删除的消息
// 消息必须处于软删除状态，否则返回冲突
func (s *MessageService) RestoreMessage(ctx auth.Context, messageID string) (*MessageDTO, error) {
	message, err := s.messageRepo.GetByIDUnscoped(messageID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("message %s not found", messageID)
		}
		return nil, wrapStorageError("RestoreMessage", err)
	}
	if err := checkOwnership(ctx, message); err != nil {
		return nil, err
	}
	affected, err := s.messageRepo.Restore(messageID)
	if err != nil {
		return nil, wrapStorageError("RestoreMessage", err)
	}
	if affected == 0 {
		return nil, NewConflictError("message %s is not deleted", messageID)
	}

	dto := toMessageDTO(message)
	s.notifier.Notify(conversationKeyOf(message), s.recipientsOf(message, ctx.ActorID), EventMessageRestored, dto)
	return dto, nil
}

// HardDeleteMessage 硬删除消息，不可恢复，级联已读记录
func (s *MessageService) HardDeleteMessage(ctx auth.Context, messageID string) (*MessageDTO, error) {
	message, err := s.messageRepo.GetByIDUnscoped(messageID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("message %s not found", messageID)
		}
		return nil, wrapStorageError("HardDeleteMessage", err)
	}
	if err := checkOwnership(ctx, message); err != nil {
		return nil, err
	}
	recipients := s.recipientsOf(message, ctx.ActorID)
	if err := s.messageRepo.HardDelete(messageID); err != nil {
		return nil, wrapStorageError("HardDeleteMessage", err)
	}

	dto := toMessageDTO(message)
	s.notifier.Notify(conversationKeyOf(message), recipients, EventMessageHardDeleted, dto)
	return dto, nil
}

// GetMessagesBetweenUsers 获取两个用户之间的私聊消息
// 只读查询：查不到返回空集合，不报错
func (s *MessageService) GetMessagesBetweenUsers(userID, otherUserID string, limit int) ([]MessageDTO, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages, err := s.messageRepo.GetBetweenUsers(userID, otherUserID, limit)
	if err != nil {
		return nil, wrapStorageError("GetMessagesBetweenUsers", err)
	}
	dtos := make([]MessageDTO, 0, len(messages))
	for i := range messages {
		dtos = append(dtos, *toMessageDTO(&messages[i]))
	}
	return dtos, nil
}

// GetGroupMessages 获取群消息列表，仅活跃成员可见
func (s *MessageService) GetGroupMessages(ctx auth.Context, groupID string, page, pageSize int) ([]MessageDTO, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	if _, err := s.groupRepo.GetActiveMember(groupID, ctx.ActorID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, 0, NewForbiddenError("not an active member of group %s", groupID)
		}
		return nil, 0, wrapStorageError("GetGroupMessages", err)
	}
	messages, total, err := s.messageRepo.GetGroupMessages(groupID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, wrapStorageError("GetGroupMessages", err)
	}
	dtos := make([]MessageDTO, 0, len(messages))
	for i := range messages {
		dtos = append(dtos, *toMessageDTO(&messages[i]))
	}
	return dtos, total, nil
}
