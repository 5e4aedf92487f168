package services

// 实时事件名
// 推送载荷即各 mutation 返回的 DTO，JSON 序列化后经 user:{id} 房间下发
const (
	EventMessageCreated     = "message.created"
	EventMessageRead        = "message.read"
	EventMessageUnread      = "message.unread"
	EventConversationRead   = "conversation.read"
	EventMessageDeleted     = "message.deleted"
	EventMessageRestored    = "message.restored"
	EventMessageHardDeleted = "message.hard_deleted"
	EventGroupCreated       = "group.created"
	EventGroupDeleted       = "group.deleted"
	EventGroupRestored      = "group.restored"
	EventGroupHardDeleted   = "group.hard_deleted"
	EventMemberAdded        = "group.member_added"
	EventMemberRemoved      = "group.member_removed"
	EventMemberRoleChanged  = "group.member_role_changed"
)

// Notifier 实时推送出口
// fire-and-forget：推送失败不回滚已提交的变更，也不向调用方返回错误；
// 没有在线会话时事件直接丢弃，下一次查询反映真实状态
// conversationID 是事件所属会话的分区键，同一会话的事件按提交顺序投递
type Notifier interface {
	Notify(conversationID string, userIDs []string, event string, payload any)
}

// directConversationKey 私聊会话键，与参与者顺序无关
func directConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "direct:" + a + ":" + b
}

// groupConversationKey 群聊会话键
func groupConversationKey(groupID string) string {
	return "group:" + groupID
}

// NopNotifier 空实现，用于测试与降级启动
type NopNotifier struct{}

func (NopNotifier) Notify(string, []string, string, any) {}
