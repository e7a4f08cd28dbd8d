package router

import (
	"fmt"
	"strings"

	"github.com/voxflow/voxflow/types"
)

// BuildPreamble 构建提供者调用的 system preamble：
// 身份行 + 角色权限摘要（查 types.RolePermissions 表）+ 最近 window 个回合.
func BuildPreamble(identity types.Identity, turns []types.Turn, window int) string {
	var b strings.Builder

	b.WriteString("You are a helpful voice assistant. Keep replies concise and natural to speak aloud.\n")
	fmt.Fprintf(&b, "The caller has role %q", identity.Role)
	if identity.Organization != "" {
		fmt.Fprintf(&b, " in organization %q", identity.Organization)
	}
	b.WriteString(".\n")

	if perms := identity.Role.Permissions(); len(perms) > 0 {
		fmt.Fprintf(&b, "Role permissions: %s.\n", strings.Join(perms, ", "))
	}

	if window <= 0 {
		window = 5
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	if len(turns) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "User: %s\n", t.UserText)
			fmt.Fprintf(&b, "Assistant: %s\n", t.AssistantText)
		}
	}

	return b.String()
}
