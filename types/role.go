package types

// Role 调用方角色，来自 JWT claims。
type Role string

const (
	RoleUser       Role = "user"
	RoleAgent      Role = "agent"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// RolePermissions 角色到权限描述的映射表。
// 路由器的 system prompt 和鉴权检查共用这张表，新增角色只需加一行。
var RolePermissions = map[Role][]string{
	RoleUser:       {"ask_questions", "voice_chat"},
	RoleAgent:      {"ask_questions", "voice_chat", "access_customer_context"},
	RoleAdmin:      {"ask_questions", "voice_chat", "access_customer_context", "manage_agents"},
	RoleSuperAdmin: {"ask_questions", "voice_chat", "access_customer_context", "manage_agents", "manage_platform"},
}

// Valid 判断角色是否已注册。
func (r Role) Valid() bool {
	_, ok := RolePermissions[r]
	return ok
}

// Permissions 返回角色的权限列表，未知角色返回 nil。
func (r Role) Permissions() []string {
	return RolePermissions[r]
}

// Identity 已解析的调用方身份，在会话进入 ACTIVE 前确定一次。
type Identity struct {
	UserID       string `json:"user_id"`
	Role         Role   `json:"role"`
	Organization string `json:"organization,omitempty"`
}
