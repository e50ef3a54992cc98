package users

import "time"

// Account represents a stored user account without its role assignments.
type Account struct {
	ID                 int64
	Username           string
	RealName           string
	Description        string
	Enabled            bool
	AccountExpired     bool
	AccountLocked      bool
	CredentialsExpired bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
