package rbac

import (
	"strconv"
	"strings"
)

// BaseAuthority is granted to every user that holds at least one role.
const BaseAuthority = "ROLE_MANAGER"

// Module is a menu/feature grouping node. Modules form a forest through Parent.
type Module struct {
	ID     int64
	Name   string
	Parent *Module
}

// Command is a leaf permission unit. A nil Module marks a global command.
type Command struct {
	ID     int64
	Name   string
	Module *Module
}

// Role groups commands and authority tokens.
type Role struct {
	ID           int64
	Name         string
	SuperManager bool
	Authorities  []string
	Commands     []Command
}

// User is an account together with its assigned roles, in assignment order.
type User struct {
	ID                 int64
	Username           string
	RealName           string
	Description        string
	Roles              []Role
	Enabled            bool
	AccountExpired     bool
	AccountLocked      bool
	CredentialsExpired bool
}

// IsSuperManager reports whether any of the user's roles carries the super-manager flag.
func (u *User) IsSuperManager() bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if role.SuperManager {
			return true
		}
	}
	return false
}

// RoleTokens renders the roles as "role-<id>" joined by commas.
func (u *User) RoleTokens() string {
	if u == nil || len(u.Roles) == 0 {
		return ""
	}
	tokens := make([]string, len(u.Roles))
	for i, role := range u.Roles {
		tokens[i] = "role-" + strconv.FormatInt(role.ID, 10)
	}
	return strings.Join(tokens, ",")
}

// AuthoritiesString joins authorities with commas.
func AuthoritiesString(authorities []string) string {
	return strings.Join(authorities, ",")
}
