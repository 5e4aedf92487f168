package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/Messenger/internal/auth"
	"github.com/Gopher0727/Messenger/internal/models"
	"github.com/Gopher0727/Messenger/utils/snowflake"
)

func strPtr(s string) *string { return &s }

func actor(id string, perms ...string) auth.Context {
	return auth.NewContext(id, nil, perms)
}

type msgFixture struct {
	svc      *MessageService
	messages *fakeMessageRepo
	groups   *fakeGroupRepo
	users    *fakeUserRepo
	notifier *recordingNotifier
}

// newMsgFixture 三个用户，alice 和 bob 在群 g1 中（alice 是管理员），carol 不在
func newMsgFixture(t *testing.T) *msgFixture {
	t.Helper()
	users := newFakeUserRepo(
		&models.User{ID: "alice", UserName: "alice"},
		&models.User{ID: "bob", UserName: "bob"},
		&models.User{ID: "carol", UserName: "carol"},
	)
	groups := newFakeGroupRepo()
	now := time.Now()
	require.NoError(t, groups.CreateWithMembers(
		&models.Group{ID: "g1", Name: "team", CreatorID: "alice"},
		[]models.GroupMember{
			{ID: "m1", GroupID: "g1", UserID: "alice", Role: models.GroupRoleAdmin, JoinedAt: now},
			{ID: "m2", GroupID: "g1", UserID: "bob", Role: models.GroupRoleMember, JoinedAt: now},
		},
	))
	messages := newFakeMessageRepo(groups)
	notifier := &recordingNotifier{}
	svc := NewMessageService(messages, groups, users, notifier, snowflake.NewGenerator(1))
	return &msgFixture{svc: svc, messages: messages, groups: groups, users: users, notifier: notifier}
}

func TestSendMessage(t *testing.T) {
	t.Run("direct message reaches the receiver", func(t *testing.T) {
		f := newMsgFixture(t)

		dto, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content:    "hi bob",
			ReceiverID: strPtr("bob"),
		})
		require.NoError(t, err)
		assert.Equal(t, "alice", dto.SenderID)
		assert.Equal(t, "bob", *dto.ReceiverID)
		assert.Equal(t, models.MessageTypeText, dto.MsgType)
		assert.False(t, dto.IsRead)

		events := f.notifier.byEvent(EventMessageCreated)
		require.Len(t, events, 1)
		assert.Equal(t, []string{"bob"}, events[0].UserIDs)
		assert.Equal(t, "direct:alice:bob", events[0].ConversationID)
	})

	t.Run("group message fans out to other active members", func(t *testing.T) {
		f := newMsgFixture(t)

		_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "hello team",
			GroupID: strPtr("g1"),
		})
		require.NoError(t, err)

		events := f.notifier.byEvent(EventMessageCreated)
		require.Len(t, events, 1)
		assert.Equal(t, []string{"bob"}, events[0].UserIDs)
		assert.Equal(t, "group:g1", events[0].ConversationID)
	})

	t.Run("rejects when both receiver and group are set", func(t *testing.T) {
		f := newMsgFixture(t)

		_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content:    "hi",
			ReceiverID: strPtr("bob"),
			GroupID:    strPtr("g1"),
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects when neither receiver nor group is set", func(t *testing.T) {
		f := newMsgFixture(t)

		_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{Content: "hi"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects empty and oversized content", func(t *testing.T) {
		f := newMsgFixture(t)

		_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content:    "   ",
			ReceiverID: strPtr("bob"),
		})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content:    strings.Repeat("x", 5001),
			ReceiverID: strPtr("bob"),
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects unknown message type", func(t *testing.T) {
		f := newMsgFixture(t)

		_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content:    "hi",
			MsgType:    "carrier-pigeon",
			ReceiverID: strPtr("bob"),
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects sending to yourself", func(t *testing.T) {
		f := newMsgFixture(t)

		_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content:    "note to self",
			ReceiverID: strPtr("alice"),
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown receiver is not found", func(t *testing.T) {
		f := newMsgFixture(t)

		_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content:    "hi",
			ReceiverID: strPtr("ghost"),
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("non-member cannot post to the group", func(t *testing.T) {
		f := newMsgFixture(t)

		_, err := f.svc.SendMessage(actor("carol"), &SendMessageRequest{
			Content: "let me in",
			GroupID: strPtr("g1"),
		})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("reply must stay in the same conversation", func(t *testing.T) {
		f := newMsgFixture(t)

		parent, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "in group", GroupID: strPtr("g1"),
		})
		require.NoError(t, err)

		// 引用群消息回复到私聊
		_, err = f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content:    "reply",
			ReceiverID: strPtr("bob"),
			ParentID:   strPtr(parent.ID),
		})
		assert.ErrorIs(t, err, ErrValidation)

		// 同群回复合法
		reply, err := f.svc.SendMessage(actor("bob"), &SendMessageRequest{
			Content:  "reply",
			GroupID:  strPtr("g1"),
			ParentID: strPtr(parent.ID),
		})
		require.NoError(t, err)
		assert.Equal(t, parent.ID, *reply.ParentID)
	})

	t.Run("message ids are creation ordered", func(t *testing.T) {
		f := newMsgFixture(t)

		first, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "1", ReceiverID: strPtr("bob"),
		})
		require.NoError(t, err)
		second, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "2", ReceiverID: strPtr("bob"),
		})
		require.NoError(t, err)
		assert.Less(t, first.ID, second.ID)
	})
}

func TestDirectReadFlag(t *testing.T) {
	send := func(t *testing.T, f *msgFixture, from, to, content string) *MessageDTO {
		t.Helper()
		dto, err := f.svc.SendMessage(actor(from), &SendMessageRequest{
			Content: content, ReceiverID: strPtr(to),
		})
		require.NoError(t, err)
		return dto
	}

	t.Run("receiver marks read then unread", func(t *testing.T) {
		f := newMsgFixture(t)
		msg := send(t, f, "alice", "bob", "hi")

		read, err := f.svc.MarkMessageAsRead(actor("bob"), msg.ID, "bob")
		require.NoError(t, err)
		assert.True(t, read.IsRead)
		require.NotNil(t, read.ReadAt)

		unread, err := f.svc.MarkMessageAsUnread(actor("bob"), msg.ID, "bob")
		require.NoError(t, err)
		assert.False(t, unread.IsRead)
		assert.Nil(t, unread.ReadAt)

		// 发送者收到两次状态回执
		assert.Len(t, f.notifier.byEvent(EventMessageRead), 1)
		assert.Len(t, f.notifier.byEvent(EventMessageUnread), 1)
	})

	t.Run("only the receiver may flip the flag", func(t *testing.T) {
		f := newMsgFixture(t)
		msg := send(t, f, "alice", "bob", "hi")

		// carol 替 bob 操作
		_, err := f.svc.MarkMessageAsRead(actor("carol"), msg.ID, "bob")
		assert.ErrorIs(t, err, ErrForbidden)

		// 发送者也不能把自己标记成已读方
		_, err = f.svc.MarkMessageAsRead(actor("alice"), msg.ID, "alice")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("manage permission allows acting for another user", func(t *testing.T) {
		f := newMsgFixture(t)
		msg := send(t, f, "alice", "bob", "hi")

		_, err := f.svc.MarkMessageAsRead(actor("carol", string(auth.PermMessagesManage)), msg.ID, "bob")
		assert.NoError(t, err)
	})

	t.Run("group messages have no per-message flag", func(t *testing.T) {
		f := newMsgFixture(t)
		dto, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "hi", GroupID: strPtr("g1"),
		})
		require.NoError(t, err)

		_, err = f.svc.MarkMessageAsRead(actor("bob"), dto.ID, "bob")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing message is not found", func(t *testing.T) {
		f := newMsgFixture(t)
		_, err := f.svc.MarkMessageAsRead(actor("bob"), "nope", "bob")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMarkConversationAsRead(t *testing.T) {
	t.Run("marks all unread from the peer and reports the count", func(t *testing.T) {
		f := newMsgFixture(t)
		for _, content := range []string{"one", "two", "three"} {
			_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
				Content: content, ReceiverID: strPtr("bob"),
			})
			require.NoError(t, err)
		}
		// 反向消息不受影响
		_, err := f.svc.SendMessage(actor("bob"), &SendMessageRequest{
			Content: "reply", ReceiverID: strPtr("alice"),
		})
		require.NoError(t, err)

		affected, err := f.svc.MarkConversationAsRead(actor("bob"), "bob", "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(3), affected.Count)

		unread, err := f.messages.CountUnreadDirect("bob")
		require.NoError(t, err)
		assert.Equal(t, int64(0), unread)

		// 第二次调用没有可改行
		again, err := f.svc.MarkConversationAsRead(actor("bob"), "bob", "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(0), again.Count)

		// 只在确有变化时通知对端
		assert.Len(t, f.notifier.byEvent(EventConversationRead), 1)
	})

	t.Run("cannot mark for another user without permission", func(t *testing.T) {
		f := newMsgFixture(t)
		_, err := f.svc.MarkConversationAsRead(actor("carol"), "bob", "alice")
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestMarkGroupMessagesAsRead(t *testing.T) {
	t.Run("records reads for messages from others and is idempotent", func(t *testing.T) {
		f := newMsgFixture(t)
		for _, content := range []string{"a", "b"} {
			_, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
				Content: content, GroupID: strPtr("g1"),
			})
			require.NoError(t, err)
		}
		// bob 自己的消息不计
		_, err := f.svc.SendMessage(actor("bob"), &SendMessageRequest{
			Content: "mine", GroupID: strPtr("g1"),
		})
		require.NoError(t, err)

		affected, err := f.svc.MarkGroupMessagesAsRead(actor("bob"), "bob", "g1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), affected.Count)

		again, err := f.svc.MarkGroupMessagesAsRead(actor("bob"), "bob", "g1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), again.Count)

		// 新消息到达后只补新增的那条
		_, err = f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "c", GroupID: strPtr("g1"),
		})
		require.NoError(t, err)
		third, err := f.svc.MarkGroupMessagesAsRead(actor("bob"), "bob", "g1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), third.Count)
	})

	t.Run("requires active membership", func(t *testing.T) {
		f := newMsgFixture(t)
		_, err := f.svc.MarkGroupMessagesAsRead(actor("carol"), "carol", "g1")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("deleted group is not found", func(t *testing.T) {
		f := newMsgFixture(t)
		require.NoError(t, f.groups.SoftDelete("g1"))
		_, err := f.svc.MarkGroupMessagesAsRead(actor("bob"), "bob", "g1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMessageLifecycle(t *testing.T) {
	send := func(t *testing.T, f *msgFixture) *MessageDTO {
		t.Helper()
		dto, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "hi", ReceiverID: strPtr("bob"),
		})
		require.NoError(t, err)
		return dto
	}

	t.Run("soft delete hides the message until restore", func(t *testing.T) {
		f := newMsgFixture(t)
		msg := send(t, f)

		_, err := f.svc.DeleteMessage(actor("alice"), msg.ID)
		require.NoError(t, err)
		_, err = f.messages.GetByID(msg.ID)
		assert.Error(t, err)

		restored, err := f.svc.RestoreMessage(actor("alice"), msg.ID)
		require.NoError(t, err)
		assert.Equal(t, msg.ID, restored.ID)
		_, err = f.messages.GetByID(msg.ID)
		assert.NoError(t, err)
	})

	t.Run("restoring a live message conflicts", func(t *testing.T) {
		f := newMsgFixture(t)
		msg := send(t, f)

		_, err := f.svc.RestoreMessage(actor("alice"), msg.ID)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("only the sender or a manager may delete", func(t *testing.T) {
		f := newMsgFixture(t)
		msg := send(t, f)

		_, err := f.svc.DeleteMessage(actor("bob"), msg.ID)
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = f.svc.DeleteMessage(actor("carol", string(auth.PermMessagesManage)), msg.ID)
		assert.NoError(t, err)
	})

	t.Run("hard delete removes the row and its read records", func(t *testing.T) {
		f := newMsgFixture(t)
		dto, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "hi", GroupID: strPtr("g1"),
		})
		require.NoError(t, err)
		_, err = f.svc.MarkGroupMessagesAsRead(actor("bob"), "bob", "g1")
		require.NoError(t, err)

		_, err = f.svc.HardDeleteMessage(actor("alice"), dto.ID)
		require.NoError(t, err)

		_, err = f.messages.GetByIDUnscoped(dto.ID)
		assert.Error(t, err)
		assert.Empty(t, f.messages.groupReads)
	})

	t.Run("hard delete works from the deleted state too", func(t *testing.T) {
		f := newMsgFixture(t)
		msg := send(t, f)

		_, err := f.svc.DeleteMessage(actor("alice"), msg.ID)
		require.NoError(t, err)
		_, err = f.svc.HardDeleteMessage(actor("alice"), msg.ID)
		require.NoError(t, err)
		_, err = f.messages.GetByIDUnscoped(msg.ID)
		assert.Error(t, err)
	})
}

func TestMessageQueries(t *testing.T) {
	t.Run("direct history between two users is empty when none exist", func(t *testing.T) {
		f := newMsgFixture(t)
		msgs, err := f.svc.GetMessagesBetweenUsers("alice", "carol", 50)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("group history requires active membership", func(t *testing.T) {
		f := newMsgFixture(t)
		_, _, err := f.svc.GetGroupMessages(actor("carol"), "g1", 1, 50)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("soft deleted messages disappear from history", func(t *testing.T) {
		f := newMsgFixture(t)
		msg, err := f.svc.SendMessage(actor("alice"), &SendMessageRequest{
			Content: "hi", ReceiverID: strPtr("bob"),
		})
		require.NoError(t, err)
		_, err = f.svc.DeleteMessage(actor("alice"), msg.ID)
		require.NoError(t, err)

		msgs, err := f.svc.GetMessagesBetweenUsers("alice", "bob", 50)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}
