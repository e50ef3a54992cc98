package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apdplat/authz/internal/rbac"
)

type stubSource struct {
	modules      []ModuleRow
	commands     []CommandRow
	roles        map[int64][]RoleRow
	err          error
	moduleCalls  atomic.Int32
	commandCalls atomic.Int32
}

func (s *stubSource) ListModules(ctx context.Context) ([]ModuleRow, error) {
	s.moduleCalls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.modules, nil
}

func (s *stubSource) ListCommands(ctx context.Context) ([]CommandRow, error) {
	s.commandCalls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.commands, nil
}

func (s *stubSource) ListRolesForUser(ctx context.Context, userID int64) ([]RoleRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.roles[userID], nil
}

func newStubSource() *stubSource {
	return &stubSource{
		modules:  sampleModules(),
		commands: sampleCommands(),
		roles: map[int64][]RoleRow{
			7: {
				{ID: 1, Name: "editor", Authorities: []string{"editor"}, CommandIDs: []int64{10}},
				{ID: 2, Name: "reader", Authorities: []string{"viewer"}, CommandIDs: []int64{11, 12}},
			},
		},
	}
}

func TestServiceAllCommandsAndModules(t *testing.T) {
	src := newStubSource()
	svc := NewService(src, src, nil)

	commands, err := svc.AllCommands(context.Background())
	require.NoError(t, err)
	require.Len(t, commands, 3)
	assert.Equal(t, "user.create", commands[0].Name)

	modules, err := svc.AllModules(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 4)
	assert.Equal(t, int64(2), modules[2].Parent.ID)
}

func TestServiceRejectsInvalidRow(t *testing.T) {
	src := newStubSource()
	src.modules = append(src.modules, ModuleRow{ID: 5})
	svc := NewService(src, src, nil)

	_, err := svc.AllModules(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRow)
}

func TestServicePropagatesSourceError(t *testing.T) {
	cause := errors.New("db down")
	src := &stubSource{err: cause}
	svc := NewService(src, src, nil)

	_, err := svc.AllCommands(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestServiceRolesForUser(t *testing.T) {
	src := newStubSource()
	svc := NewService(src, src, nil)

	roles, err := svc.RolesForUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "editor", roles[0].Name)
	require.Len(t, roles[1].Commands, 2)
	assert.Nil(t, roles[1].Commands[1].Module)

	resolver := rbac.NewResolver(svc)
	user := &rbac.User{ID: 7, Roles: roles}
	modules, err := resolver.ResolveModules(context.Background(), user)
	require.NoError(t, err)
	ids := make([]int64, len(modules))
	for i, m := range modules {
		ids[i] = m.ID
	}
	assert.Equal(t, []int64{3, 2, 1, 4}, ids)
}

func TestServiceRolesForUserWithoutRoles(t *testing.T) {
	src := newStubSource()
	svc := NewService(src, src, nil)

	roles, err := svc.RolesForUser(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.Zero(t, src.moduleCalls.Load())
}

func TestResolverReportsCatalogFailure(t *testing.T) {
	cause := errors.New("db down")
	svc := NewService(&stubSource{err: cause}, nil, nil)
	resolver := rbac.NewResolver(svc)
	user := &rbac.User{Roles: []rbac.Role{{ID: 1, SuperManager: true}}}

	_, err := resolver.ResolveModules(context.Background(), user)
	assert.ErrorIs(t, err, rbac.ErrCatalogUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestServiceSnapshotLoadsOnce(t *testing.T) {
	src := newStubSource()
	svc := NewService(src, src, nil)
	resolver := rbac.NewResolver(svc)
	user := &rbac.User{Roles: []rbac.Role{{ID: 1, SuperManager: true}}}

	grants, err := resolver.Resolve(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, grants.Commands, 3)
	require.Len(t, grants.Modules, 4)
	assert.Same(t, grants.Modules[0], grants.Commands[0].Module.Parent.Parent)
	assert.Equal(t, int32(1), src.moduleCalls.Load())
	assert.Equal(t, int32(1), src.commandCalls.Load())
}
