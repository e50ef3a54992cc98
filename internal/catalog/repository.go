package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	listModulesSQL  = `SELECT id, name, parent_id FROM modules ORDER BY id`
	listCommandsSQL = `SELECT id, name, module_id FROM commands ORDER BY id`
	listUserRoleSQL = `
SELECT r.id, r.name, r.super_manager,
       COALESCE((SELECT array_agg(a.authority ORDER BY a.authority)
                   FROM role_authorities a WHERE a.role_id = r.id), '{}') AS authorities,
       COALESCE((SELECT array_agg(rc.command_id ORDER BY rc.position, rc.command_id)
                   FROM role_commands rc WHERE rc.role_id = r.id), '{}') AS command_ids
  FROM user_roles ur
  JOIN roles r ON r.id = ur.role_id
 WHERE ur.user_id = $1
 ORDER BY r.id`
)

// Source lists the raw catalog rows.
type Source interface {
	ListModules(ctx context.Context) ([]ModuleRow, error)
	ListCommands(ctx context.Context) ([]CommandRow, error)
}

// RoleSource lists the roles assigned to a user.
type RoleSource interface {
	ListRolesForUser(ctx context.Context, userID int64) ([]RoleRow, error)
}

// Repository provides PostgreSQL backed catalog persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListModules returns all modules ordered by id.
func (r *Repository) ListModules(ctx context.Context) ([]ModuleRow, error) {
	rows, err := r.pool.Query(ctx, listModulesSQL)
	if err != nil {
		return nil, fmt.Errorf("catalog: list modules: %w", err)
	}
	modules, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ModuleRow, error) {
		var m ModuleRow
		err := row.Scan(&m.ID, &m.Name, &m.ParentID)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scan modules: %w", err)
	}
	return modules, nil
}

// ListCommands returns all commands ordered by id.
func (r *Repository) ListCommands(ctx context.Context) ([]CommandRow, error) {
	rows, err := r.pool.Query(ctx, listCommandsSQL)
	if err != nil {
		return nil, fmt.Errorf("catalog: list commands: %w", err)
	}
	commands, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CommandRow, error) {
		var c CommandRow
		err := row.Scan(&c.ID, &c.Name, &c.ModuleID)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scan commands: %w", err)
	}
	return commands, nil
}

// ListRolesForUser returns the user's roles ordered by role id.
func (r *Repository) ListRolesForUser(ctx context.Context, userID int64) ([]RoleRow, error) {
	rows, err := r.pool.Query(ctx, listUserRoleSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list roles for user %d: %w", userID, err)
	}
	defer rows.Close()
	var roles []RoleRow
	for rows.Next() {
		var role RoleRow
		if err := rows.Scan(&role.ID, &role.Name, &role.SuperManager, &role.Authorities, &role.CommandIDs); err != nil {
			return nil, fmt.Errorf("catalog: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate roles: %w", err)
	}
	return roles, nil
}
