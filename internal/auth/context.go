package auth

// Permission 权限点名称，来自 token claims
type Permission string

const (
	PermMessagesManage Permission = "messages:manage" // 可删除/恢复任意消息
	PermGroupsManage   Permission = "groups:manage"   // 可恢复/硬删任意群组
)

// Context 每次调用携带的操作者上下文
// 由认证中间件从 JWT claims 构建，消息域只消费不签发
type Context struct {
	ActorID     string
	Permissions map[Permission]struct{}
	Roles       []string
}

// NewContext 构建操作者上下文
func NewContext(actorID string, roles []string, perms []string) Context {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[Permission(p)] = struct{}{}
	}
	return Context{
		ActorID:     actorID,
		Permissions: set,
		Roles:       roles,
	}
}

// Has 是否持有指定权限
func (c Context) Has(p Permission) bool {
	_, ok := c.Permissions[p]
	return ok
}
