package core

import "github.com/axiomchronicles/drevoid-server/internal/proto"

// minRoles is the privilege matrix: the minimum role required per
// action. Actions absent from the table are open to any authenticated
// session. The dispatcher consults this once, before any mutation.
var minRoles = map[string]Role{
	proto.TypeKickUser:    RoleModerator,
	proto.TypeMuteUser:    RoleModerator,
	proto.TypeUnmuteUser:  RoleModerator,
	proto.TypeSetTopic:    RoleModerator,
	proto.TypeClearRoom:   RoleModerator,
	proto.TypeBanUser:     RoleAdmin,
	proto.TypeUnbanUser:   RoleAdmin,
	proto.TypePromoteUser: RoleAdmin,
	proto.TypeDemoteUser:  RoleAdmin,
	proto.TypeLockRoom:    RoleAdmin,
	proto.TypeUnlockRoom:  RoleAdmin,
}

// RequiredRole returns the minimum role for an action and whether the
// action is privileged at all.
func RequiredRole(action string) (Role, bool) {
	role, ok := minRoles[action]
	return role, ok
}
