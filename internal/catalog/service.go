package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/apdplat/authz/internal/rbac"
)

// ErrInvalidRow indicates a stored row that fails validation.
var ErrInvalidRow = errors.New("catalog: invalid row")

// Service exposes the catalog as linked domain values. It implements rbac.Catalog.
type Service struct {
	source    Source
	roles     RoleSource
	logger    *slog.Logger
	validator *validator.Validate
}

var (
	_ rbac.Catalog         = (*Service)(nil)
	_ rbac.CatalogSnapshot = (*Service)(nil)
)

// NewService builds Service instance.
func NewService(source Source, roles RoleSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:    source,
		roles:     roles,
		logger:    logger,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Graph loads modules and commands concurrently and links them.
func (s *Service) Graph(ctx context.Context) (*Graph, error) {
	var (
		modules  []ModuleRow
		commands []CommandRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		modules, err = s.source.ListModules(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		commands, err = s.source.ListCommands(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, row := range modules {
		if err := s.validator.Struct(row); err != nil {
			return nil, fmt.Errorf("%w: module %d: %w", ErrInvalidRow, row.ID, err)
		}
	}
	for _, row := range commands {
		if err := s.validator.Struct(row); err != nil {
			return nil, fmt.Errorf("%w: command %d: %w", ErrInvalidRow, row.ID, err)
		}
	}
	graph, err := BuildGraph(modules, commands)
	if err != nil {
		s.logger.Error("catalog build graph", slog.Any("error", err))
		return nil, err
	}
	return graph, nil
}

// AllCommands returns every command known to the system.
func (s *Service) AllCommands(ctx context.Context) ([]rbac.Command, error) {
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Commands(), nil
}

// AllModules returns every module known to the system.
func (s *Service) AllModules(ctx context.Context) ([]*rbac.Module, error) {
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Modules(), nil
}

// Snapshot returns commands and modules linked from the same graph load.
func (s *Service) Snapshot(ctx context.Context) ([]rbac.Command, []*rbac.Module, error) {
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, nil, err
	}
	return graph.Commands(), graph.Modules(), nil
}

// RolesForUser returns the user's roles with commands linked to the catalog.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]rbac.Role, error) {
	rows, err := s.roles.ListRolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []rbac.Role{}, nil
	}
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	roles := make([]rbac.Role, 0, len(rows))
	for _, row := range rows {
		if err := s.validator.Struct(row); err != nil {
			return nil, fmt.Errorf("%w: role %d: %w", ErrInvalidRow, row.ID, err)
		}
		role, missing := graph.Role(row)
		if len(missing) > 0 {
			s.logger.Warn("catalog role references unknown commands",
				slog.Int64("role_id", row.ID),
				slog.Any("command_ids", missing))
		}
		roles = append(roles, role)
	}
	return roles, nil
}
