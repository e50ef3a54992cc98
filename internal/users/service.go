package users

import (
	"context"
	"errors"
	"strings"

	"github.com/apdplat/authz/internal/rbac"
)

// ErrNotFound indicates that the requested account does not exist.
var ErrNotFound = errors.New("users: not found")

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (Account, error)
	FindByUsername(ctx context.Context, username string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

// RoleLoader returns the linked roles assigned to a user.
type RoleLoader interface {
	RolesForUser(ctx context.Context, userID int64) ([]rbac.Role, error)
}

// Service assembles authorization-ready users.
type Service struct {
	repo  RepositoryPort
	roles RoleLoader
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleLoader) *Service {
	return &Service{repo: repo, roles: roles}
}

// ListAccounts returns all accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// Load returns the user with its roles in assignment order.
func (s *Service) Load(ctx context.Context, id int64) (*rbac.User, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, account)
}

// LoadByUsername returns the user identified by its login name.
func (s *Service) LoadByUsername(ctx context.Context, username string) (*rbac.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrNotFound
	}
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, account)
}

func (s *Service) assemble(ctx context.Context, account Account) (*rbac.User, error) {
	roles, err := s.roles.RolesForUser(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &rbac.User{
		ID:                 account.ID,
		Username:           account.Username,
		RealName:           account.RealName,
		Description:        account.Description,
		Roles:              roles,
		Enabled:            account.Enabled,
		AccountExpired:     account.AccountExpired,
		AccountLocked:      account.AccountLocked,
		CredentialsExpired: account.CredentialsExpired,
	}, nil
}
