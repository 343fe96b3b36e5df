package permission

// Built-in permissions.
const (
	ProfileSelf    = "profile.self"
	SessionsSelf   = "sessions.self"
	AccountsManage = "accounts.manage"
	RolesAssign    = "roles.assign"
)

// Built-in role names. They match account.Role values.
const (
	RoleStandard      = "standard"
	RoleModerator     = "moderator"
	RoleAdministrator = "administrator"
)

// Standard returns a frozen RoleManager for the built-in roles:
//
//	standard       profile.self, sessions.self
//	moderator      + accounts.manage
//	administrator  + roles.assign
func Standard() *RoleManager {
	reg := NewRegistry()
	for _, p := range []string{ProfileSelf, SessionsSelf, AccountsManage, RolesAssign} {
		if _, err := reg.Register(p); err != nil {
			panic(err)
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	roles := []struct {
		name  string
		perms []string
	}{
		{RoleStandard, []string{ProfileSelf, SessionsSelf}},
		{RoleModerator, []string{ProfileSelf, SessionsSelf, AccountsManage}},
		{RoleAdministrator, []string{ProfileSelf, SessionsSelf, AccountsManage, RolesAssign}},
	}
	for _, r := range roles {
		if err := rm.RegisterRole(r.name, r.perms...); err != nil {
			panic(err)
		}
	}
	rm.Freeze()
	return rm
}
