package rbac

// Principal describes the authenticated actor as seen by the authentication boundary.
type Principal interface {
	GetID() int64
	IsEnabled() bool
	IsAccountNonExpired() bool
	IsAccountNonLocked() bool
	IsCredentialsNonExpired() bool
	Authorities() []string
}

var _ Principal = (*User)(nil)

// GetID returns the user identifier.
func (u *User) GetID() int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// IsEnabled reports whether the account is enabled. A nil user is never enabled.
func (u *User) IsEnabled() bool { return u != nil && u.Enabled }

// IsAccountNonExpired reports whether the account is still valid.
func (u *User) IsAccountNonExpired() bool { return u != nil && !u.AccountExpired }

// IsAccountNonLocked reports whether the account is unlocked.
func (u *User) IsAccountNonLocked() bool { return u != nil && !u.AccountLocked }

// IsCredentialsNonExpired reports whether the credentials are still valid.
func (u *User) IsCredentialsNonExpired() bool { return u != nil && !u.CredentialsExpired }

// Authorities returns the granted authorities; see ResolveAuthorities.
func (u *User) Authorities() []string { return ResolveAuthorities(u) }
