package services

import (
	"sort"
	"strings"
	"time"

	"github.com/Gopher0727/Messenger/internal/repositories"
)

// ConversationService 会话目录服务
// 私聊对端与活跃群两路合并成一个按最近活动排序的视图；
// 未读数与最近消息按需现算，不维护任何落库聚合
type ConversationService struct {
	convRepo    repositories.IConversationRepository
	messageRepo repositories.IMessageRepository
}

// NewConversationService 创建会话目录服务实例
func NewConversationService(convRepo repositories.IConversationRepository, messageRepo repositories.IMessageRepository) *ConversationService {
	return &ConversationService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
	}
}

// 会话类型
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// LastMessageDTO 会话内最近一条消息
type LastMessageDTO struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationDTO 会话条目
// 私聊条目 ID 为对端用户ID，群条目 ID 为群ID
type ConversationDTO struct {
	Type         string          `json:"type"` // direct, group
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Nickname     string          `json:"nickname,omitempty"`
	Email        string          `json:"email,omitempty"`
	AvatarURL    string          `json:"avatar_url"`
	LastMessage  *LastMessageDTO `json:"last_message,omitempty"`
	UnreadCount  int64           `json:"unread_count"`
	LastActivity time.Time       `json:"last_activity"`
}

// ListConversations 列出用户的会话
// 检索过滤在分页前进行；两路合并后统一分页，避免任何一路被饿死
func (s *ConversationService) ListConversations(userID string, page, pageSize int, search string) ([]ConversationDTO, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	directRows, err := s.convRepo.DirectConversations(userID)
	if err != nil {
		return nil, 0, wrapStorageError("ListConversations", err)
	}
	groupRows, err := s.convRepo.GroupConversations(userID)
	if err != nil {
		return nil, 0, wrapStorageError("ListConversations", err)
	}

	merged := make([]ConversationDTO, 0, len(directRows)+len(groupRows))
	for i := range directRows {
		r := &directRows[i]
		merged = append(merged, ConversationDTO{
			Type:     ConversationDirect,
			ID:       r.OtherUserID,
			Name:     r.OtherUserName,
			Nickname: r.OtherNickname,
			Email:    r.OtherEmail,
			AvatarURL: r.OtherAvatar,
			LastMessage: &LastMessageDTO{
				ID:        r.LastMessageID,
				Content:   r.LastContent,
				SenderID:  r.LastSenderID,
				CreatedAt: r.LastCreatedAt,
			},
			UnreadCount:  r.UnreadCount,
			LastActivity: r.LastCreatedAt,
		})
	}
	for i := range groupRows {
		r := &groupRows[i]
		dto := ConversationDTO{
			Type:         ConversationGroup,
			ID:           r.GroupID,
			Name:         r.GroupName,
			AvatarURL:    r.GroupAvatar,
			UnreadCount:  r.UnreadCount,
			LastActivity: r.GroupCreatedAt, // 尚无消息的群按建群时间排序
		}
		if r.LastMessageID != nil {
			dto.LastMessage = &LastMessageDTO{
				ID:        *r.LastMessageID,
				Content:   *r.LastContent,
				SenderID:  *r.LastSenderID,
				CreatedAt: *r.LastCreatedAt,
			}
			dto.LastActivity = *r.LastCreatedAt
		}
		merged = append(merged, dto)
	}

	if search != "" {
		merged = filterConversations(merged, search)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].LastActivity.After(merged[j].LastActivity)
	})

	total := int64(len(merged))
	start := (page - 1) * pageSize
	if start >= len(merged) {
		return []ConversationDTO{}, total, nil
	}
	end := start + pageSize
	if end > len(merged) {
		end = len(merged)
	}
	return merged[start:end], total, nil
}

// filterConversations 按对端用户名/昵称/邮箱或群名过滤，大小写不敏感
func filterConversations(items []ConversationDTO, search string) []ConversationDTO {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), needle) ||
			strings.Contains(strings.ToLower(item.Nickname), needle) ||
			strings.Contains(strings.ToLower(item.Email), needle) {
			out = append(out, item)
		}
	}
	return out
}

// UnreadCountDTO 未读角标
type UnreadCountDTO struct {
	Direct int64 `json:"direct"`
	Group  int64 `json:"group"`
	Total  int64 `json:"total"`
}

// GetTotalUnreadMessagesCount 计算用户未读角标
// 未读私聊 + 活跃群内他人发送且无已读记录的消息数，始终现算
func (s *ConversationService) GetTotalUnreadMessagesCount(userID string) (*UnreadCountDTO, error) {
	direct, err := s.messageRepo.CountUnreadDirect(userID)
	if err != nil {
		return nil, wrapStorageError("GetTotalUnreadMessagesCount", err)
	}
	group, err := s.messageRepo.CountUnreadGroup(userID)
	if err != nil {
		return nil, wrapStorageError("GetTotalUnreadMessagesCount", err)
	}
	return &UnreadCountDTO{Direct: direct, Group: group, Total: direct + group}, nil
}
