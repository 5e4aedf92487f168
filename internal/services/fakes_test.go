package services

import (
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/Messenger/internal/models"
)

// 内存仓储，保持与 postgres 实现相同的可见性语义：
// 软删除行对 scoped 查询不可见，活跃成员指 left_at 为空

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByUserName(username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UserName == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByIDs(ids []string) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateStatus(id string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Status = status
	}
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	// 群消息已读记录 (messageID, userID) -> readAt
	groupReads map[[2]string]time.Time
	// 群成员关系来源，未读统计按活跃成员过滤
	groups *fakeGroupRepo
}

func newFakeMessageRepo(groups *fakeGroupRepo) *fakeMessageRepo {
	return &fakeMessageRepo{
		messages:   make(map[string]*models.Message),
		groupReads: make(map[[2]string]time.Time),
		groups:     groups,
	}
}

func (r *fakeMessageRepo) Create(message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	cp := *message
	r.messages[message.ID] = &cp
	return nil
}

func (r *fakeMessageRepo) GetByID(id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) GetByIDUnscoped(id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) SetRead(id string, readAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.IsRead = readAt != nil
	m.ReadAt = readAt
	return nil
}

func (r *fakeMessageRepo) MarkConversationRead(userID, otherUserID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.DeletedAt.Valid || m.ReceiverID == nil {
			continue
		}
		if m.SenderID == otherUserID && *m.ReceiverID == userID && !m.IsRead {
			m.IsRead = true
			t := at
			m.ReadAt = &t
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) UpsertGroupReads(groupID, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.DeletedAt.Valid || m.GroupID == nil || *m.GroupID != groupID || m.SenderID == userID {
			continue
		}
		key := [2]string{m.ID, userID}
		if _, ok := r.groupReads[key]; ok {
			continue
		}
		r.groupReads[key] = at
		count++
	}
	return count, nil
}

func (r *fakeMessageRepo) SoftDelete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	return nil
}

func (r *fakeMessageRepo) Restore(id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || !m.DeletedAt.Valid {
		return 0, nil
	}
	m.DeletedAt = gorm.DeletedAt{}
	return 1, nil
}

func (r *fakeMessageRepo) HardDelete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
	for key := range r.groupReads {
		if key[0] == id {
			delete(r.groupReads, key)
		}
	}
	return nil
}

func (r *fakeMessageRepo) GetBetweenUsers(userID, otherUserID string, limit int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.messages {
		if m.DeletedAt.Valid || m.ReceiverID == nil {
			continue
		}
		pair := (m.SenderID == userID && *m.ReceiverID == otherUserID) ||
			(m.SenderID == otherUserID && *m.ReceiverID == userID)
		if pair {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMessageRepo) GetGroupMessages(groupID string, limit, offset int) ([]models.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []models.Message
	for _, m := range r.messages {
		if m.DeletedAt.Valid || m.GroupID == nil || *m.GroupID != groupID {
			continue
		}
		all = append(all, *m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *fakeMessageRepo) CountUnreadDirect(userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.DeletedAt.Valid || m.ReceiverID == nil {
			continue
		}
		if *m.ReceiverID == userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) CountUnreadGroup(userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.DeletedAt.Valid || m.GroupID == nil || m.SenderID == userID {
			continue
		}
		if !r.groups.countsUnreadFor(*m.GroupID, userID) {
			continue
		}
		if _, ok := r.groupReads[[2]string{m.ID, userID}]; !ok {
			count++
		}
	}
	return count, nil
}

type fakeGroupRepo struct {
	mu      sync.Mutex
	groups  map[string]*models.Group
	deleted map[string]bool
	members []*models.GroupMember
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{
		groups:  make(map[string]*models.Group),
		deleted: make(map[string]bool),
	}
}

func (r *fakeGroupRepo) CreateWithMembers(group *models.Group, members []models.GroupMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	cp := *group
	r.groups[group.ID] = &cp
	for i := range members {
		m := members[i]
		r.members = append(r.members, &m)
	}
	return nil
}

func (r *fakeGroupRepo) GetByID(id string) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok || r.deleted[id] {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGroupRepo) GetByIDUnscoped(id string) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGroupRepo) SoftDelete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.deleted[id] = true
	return nil
}

func (r *fakeGroupRepo) Restore(id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.deleted[id] {
		return 0, nil
	}
	delete(r.deleted, id)
	return 1, nil
}

func (r *fakeGroupRepo) HardDelete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
	delete(r.deleted, id)
	kept := r.members[:0]
	for _, m := range r.members {
		if m.GroupID != id {
			kept = append(kept, m)
		}
	}
	r.members = kept
	return nil
}

// countsUnreadFor 对齐未读统计的 join 条件：群未删除且用户是活跃成员
func (r *fakeGroupRepo) countsUnreadFor(groupID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted[groupID] {
		return false
	}
	for _, m := range r.members {
		if m.GroupID == groupID && m.UserID == userID && m.LeftAt == nil {
			return true
		}
	}
	return false
}

func (r *fakeGroupRepo) GetActiveMember(groupID, userID string) (*models.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.GroupID == groupID && m.UserID == userID && m.LeftAt == nil {
			cp := *m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeGroupRepo) ActiveMemberIDs(groupID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, m := range r.members {
		if m.GroupID == groupID && m.LeftAt == nil {
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}

func (r *fakeGroupRepo) ActiveMembers(groupID string, limit, offset int) ([]models.GroupMember, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []models.GroupMember
	for _, m := range r.members {
		if m.GroupID == groupID && m.LeftAt == nil {
			all = append(all, *m)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *fakeGroupRepo) AddMembers(members []models.GroupMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range members {
		m := members[i]
		r.members = append(r.members, &m)
	}
	return nil
}

func (r *fakeGroupRepo) SetMemberLeft(groupID, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.GroupID == groupID && m.UserID == userID && m.LeftAt == nil {
			t := at
			m.LeftAt = &t
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeGroupRepo) UpdateMemberRole(groupID, userID, role string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.GroupID == groupID && m.UserID == userID && m.LeftAt == nil {
			m.Role = role
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeGroupRepo) CountActiveAdmins(groupID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.members {
		if m.GroupID == groupID && m.LeftAt == nil && m.Role == models.GroupRoleAdmin {
			count++
		}
	}
	return count, nil
}

// recordingNotifier 记录推送调用，断言事件与接收者
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	ConversationID string
	UserIDs        []string
	Event          string
	Payload        any
}

func (n *recordingNotifier) Notify(conversationID string, userIDs []string, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{ConversationID: conversationID, UserIDs: userIDs, Event: event, Payload: payload})
}

func (n *recordingNotifier) byEvent(event string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
