package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apdplat/authz/internal/observability"
)

type stubCatalog struct {
	commands     []Command
	modules      []*Module
	err          error
	commandCalls int
	moduleCalls  int
}

func (s *stubCatalog) AllCommands(ctx context.Context) ([]Command, error) {
	s.commandCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.commands, nil
}

func (s *stubCatalog) AllModules(ctx context.Context) ([]*Module, error) {
	s.moduleCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.modules, nil
}

type fixture struct {
	root    *Module
	mid     *Module
	leaf    *Module
	modA    *Module
	cmdLeaf Command
	cmdA    Command
	cmdNone Command
	catalog *stubCatalog
}

func newFixture() fixture {
	root := &Module{ID: 1, Name: "system"}
	mid := &Module{ID: 2, Name: "security", Parent: root}
	leaf := &Module{ID: 3, Name: "users", Parent: mid}
	modA := &Module{ID: 4, Name: "reports"}
	f := fixture{
		root:    root,
		mid:     mid,
		leaf:    leaf,
		modA:    modA,
		cmdLeaf: Command{ID: 10, Name: "user.create", Module: leaf},
		cmdA:    Command{ID: 11, Name: "report.view", Module: modA},
		cmdNone: Command{ID: 12, Name: "logout"},
	}
	f.catalog = &stubCatalog{
		commands: []Command{f.cmdLeaf, f.cmdA, f.cmdNone},
		modules:  []*Module{root, mid, leaf, modA},
	}
	return f
}

func TestResolveWithoutRoles(t *testing.T) {
	f := newFixture()
	r := NewResolver(f.catalog)
	user := &User{ID: 1}

	commands, err := r.ResolveCommands(context.Background(), user)
	require.NoError(t, err)
	assert.NotNil(t, commands)
	assert.Empty(t, commands)

	modules, err := r.ResolveModules(context.Background(), user)
	require.NoError(t, err)
	assert.NotNil(t, modules)
	assert.Empty(t, modules)

	// No roles is signalled by a nil authority list, unlike the empty
	// command and module lists above.
	assert.Nil(t, r.ResolveAuthorities(user))
	assert.False(t, r.IsSuperManager(user))
	assert.Zero(t, f.catalog.commandCalls+f.catalog.moduleCalls)
}

func TestResolveNilUser(t *testing.T) {
	r := NewResolver(nil)

	commands, err := r.ResolveCommands(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, commands)
	modules, err := r.ResolveModules(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, modules)
	assert.Nil(t, ResolveAuthorities(nil))
	assert.False(t, r.IsSuperManager(nil))
}

func TestResolveCommandsConcatenatesInRoleOrder(t *testing.T) {
	f := newFixture()
	r := NewResolver(f.catalog)
	user := &User{Roles: []Role{
		{ID: 1, Commands: []Command{f.cmdA, f.cmdLeaf}},
		{ID: 2, Commands: []Command{f.cmdNone, f.cmdA}},
	}}

	commands, err := r.ResolveCommands(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []Command{f.cmdA, f.cmdLeaf, f.cmdNone, f.cmdA}, commands)
	assert.Zero(t, f.catalog.commandCalls)
}

func TestResolveModulesWalksAncestors(t *testing.T) {
	f := newFixture()
	r := NewResolver(f.catalog)
	user := &User{Roles: []Role{{ID: 1, Commands: []Command{f.cmdLeaf}}}}

	modules, err := r.ResolveModules(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []*Module{f.leaf, f.mid, f.root}, modules)
}

func TestResolveModulesKeepsDuplicates(t *testing.T) {
	f := newFixture()
	sibling := &Module{ID: 5, Name: "roles", Parent: f.mid}
	cmdSibling := Command{ID: 13, Module: sibling}
	r := NewResolver(f.catalog)
	user := &User{Roles: []Role{
		{ID: 1, Commands: []Command{f.cmdLeaf, f.cmdNone}},
		{ID: 2, Commands: []Command{cmdSibling, f.cmdA}},
	}}

	modules, err := r.ResolveModules(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []*Module{f.leaf, f.mid, f.root, sibling, f.mid, f.root, f.modA}, modules)
}

func TestResolveModulesDetectsCycle(t *testing.T) {
	a := &Module{ID: 1}
	b := &Module{ID: 2, Parent: a}
	c := &Module{ID: 3, Parent: b}
	a.Parent = c
	metrics := observability.NewMetrics()
	r := NewResolver(&stubCatalog{}, WithMetrics(metrics))
	user := &User{Roles: []Role{{ID: 1, Commands: []Command{{ID: 9, Module: c}}}}}

	modules, err := r.ResolveModules(context.Background(), user)
	require.Error(t, err)
	assert.Nil(t, modules)
	assert.ErrorIs(t, err, ErrMalformedHierarchy)
	var herr *HierarchyError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, int64(3), herr.ModuleID)
	assert.Equal(t, int64(3), herr.StartID)
}

func TestResolveModulesDetectsSelfParent(t *testing.T) {
	self := &Module{ID: 7}
	self.Parent = self
	r := NewResolver(&stubCatalog{})
	user := &User{Roles: []Role{{Commands: []Command{{ID: 1, Module: self}}}}}

	_, err := r.ResolveModules(context.Background(), user)
	assert.ErrorIs(t, err, ErrMalformedHierarchy)
}

func TestAppendAncestryLeavesDestinationOnCycle(t *testing.T) {
	a := &Module{ID: 1}
	b := &Module{ID: 2, Parent: a}
	a.Parent = b
	existing := &Module{ID: 99}

	out, err := AppendAncestry([]*Module{existing}, b)
	require.Error(t, err)
	assert.Equal(t, []*Module{existing}, out)

	out, err = AppendAncestry(out, nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestSuperManagerUsesCatalog(t *testing.T) {
	f := newFixture()
	r := NewResolver(f.catalog)
	user := &User{Roles: []Role{
		{ID: 1, Commands: []Command{f.cmdA}, Authorities: []string{"viewer"}},
		{ID: 2, SuperManager: true, Authorities: []string{"admin"}},
	}}

	assert.True(t, r.IsSuperManager(user))

	commands, err := r.ResolveCommands(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, f.catalog.commands, commands)

	modules, err := r.ResolveModules(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, f.catalog.modules, modules)

	assert.Equal(t, []string{"VIEWER", "ADMIN", BaseAuthority}, r.ResolveAuthorities(user))
	assert.Equal(t, 1, f.catalog.commandCalls)
	assert.Equal(t, 1, f.catalog.moduleCalls)
}

func TestSuperManagerSkipsCycleInOtherRoles(t *testing.T) {
	self := &Module{ID: 7}
	self.Parent = self
	f := newFixture()
	r := NewResolver(f.catalog)
	user := &User{Roles: []Role{
		{ID: 1, Commands: []Command{{ID: 1, Module: self}}},
		{ID: 2, SuperManager: true},
	}}

	modules, err := r.ResolveModules(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, f.catalog.modules, modules)
}

func TestSuperManagerCatalogFailure(t *testing.T) {
	cause := errors.New("connection refused")
	catalog := &stubCatalog{err: cause}
	metrics := observability.NewMetrics()
	r := NewResolver(catalog, WithMetrics(metrics))
	user := &User{Roles: []Role{{ID: 1, SuperManager: true}}}

	commands, err := r.ResolveCommands(context.Background(), user)
	assert.Nil(t, commands)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.ErrorIs(t, err, cause)

	modules, err := r.ResolveModules(context.Background(), user)
	assert.Nil(t, modules)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, catalog.commandCalls)
}

func TestSuperManagerWithoutCatalog(t *testing.T) {
	r := NewResolver(nil)
	user := &User{Roles: []Role{{SuperManager: true}}}

	_, err := r.ResolveCommands(context.Background(), user)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestSuperManagerEmptyCatalog(t *testing.T) {
	r := NewResolver(&stubCatalog{})
	user := &User{Roles: []Role{{SuperManager: true}}}

	commands, err := r.ResolveCommands(context.Background(), user)
	require.NoError(t, err)
	assert.NotNil(t, commands)
	assert.Empty(t, commands)
}

func TestResolveAuthorities(t *testing.T) {
	user := &User{Roles: []Role{
		{Authorities: []string{"editor", "Viewer"}},
		{Authorities: []string{"VIEWER", "role_manager", "audit"}},
	}}

	assert.Equal(t, []string{"EDITOR", "VIEWER", "ROLE_MANAGER", "AUDIT"}, ResolveAuthorities(user))
}

func TestResolveAuthoritiesKeepsTokensVerbatim(t *testing.T) {
	user := &User{Roles: []Role{{Authorities: []string{" editor", "", "editor"}}}}

	assert.Equal(t, []string{" EDITOR", "", "EDITOR", BaseAuthority}, ResolveAuthorities(user))
}

func TestResolveAuthoritiesRolesWithoutGrants(t *testing.T) {
	user := &User{Roles: []Role{{ID: 1}}}

	assert.Equal(t, []string{BaseAuthority}, ResolveAuthorities(user))
	assert.Equal(t, []string{BaseAuthority}, user.Authorities())
}

func TestResolveAuthoritiesUnicode(t *testing.T) {
	user := &User{Roles: []Role{{Authorities: []string{"straße"}}}}

	assert.Equal(t, []string{"STRASSE", BaseAuthority}, ResolveAuthorities(user))
}

func TestResolveScenarioMixedRoles(t *testing.T) {
	modA := &Module{ID: 1, Name: "modA"}
	cmd1 := Command{ID: 1, Name: "cmd1", Module: modA}
	cmd2 := Command{ID: 2, Name: "cmd2"}
	catalog := &stubCatalog{commands: []Command{cmd1, cmd2, {ID: 3}}, modules: []*Module{modA, {ID: 2}}}
	r := NewResolver(catalog)
	user := &User{Roles: []Role{
		{ID: 1, Commands: []Command{cmd1}, Authorities: []string{"editor"}},
		{ID: 2, Commands: []Command{cmd2}, Authorities: []string{"viewer"}},
	}}

	grants, err := r.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, grants.SuperManager)
	assert.Equal(t, []Command{cmd1, cmd2}, grants.Commands)
	assert.Equal(t, []*Module{modA}, grants.Modules)
	assert.ElementsMatch(t, []string{"EDITOR", "VIEWER", BaseAuthority}, grants.Authorities)

	user.Roles[0].SuperManager = true
	grants, err = r.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, grants.SuperManager)
	assert.Equal(t, catalog.commands, grants.Commands)
	assert.Equal(t, catalog.modules, grants.Modules)
	assert.ElementsMatch(t, []string{"EDITOR", "VIEWER", BaseAuthority}, grants.Authorities)
}

func TestRoleTokens(t *testing.T) {
	assert.Equal(t, "", (&User{}).RoleTokens())
	user := &User{Roles: []Role{{ID: 3}, {ID: 1}}}
	assert.Equal(t, "role-3,role-1", user.RoleTokens())
	assert.Equal(t, "A,B", AuthoritiesString([]string{"A", "B"}))
}

type snapshotCatalog struct {
	stubCatalog
	snapshotCalls int
}

func (s *snapshotCatalog) Snapshot(ctx context.Context) ([]Command, []*Module, error) {
	s.snapshotCalls++
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.commands, s.modules, nil
}

func TestResolveSuperManagerUsesSingleSnapshot(t *testing.T) {
	f := newFixture()
	catalog := &snapshotCatalog{stubCatalog: *f.catalog}
	metrics := observability.NewMetrics()
	r := NewResolver(catalog, WithMetrics(metrics))
	user := &User{Roles: []Role{{ID: 1, SuperManager: true, Authorities: []string{"admin"}}}}

	grants, err := r.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, grants.SuperManager)
	assert.Equal(t, f.catalog.commands, grants.Commands)
	assert.Equal(t, f.catalog.modules, grants.Modules)
	assert.Equal(t, []string{"ADMIN", BaseAuthority}, grants.Authorities)
	assert.Equal(t, 1, catalog.snapshotCalls)
	assert.Zero(t, catalog.commandCalls)
	assert.Zero(t, catalog.moduleCalls)

	body := scrapeMetrics(t, metrics)
	assert.Contains(t, body, "authz_super_manager_resolutions_total 1\n")
}

func TestResolveSuperManagerCountsOnceWithoutSnapshot(t *testing.T) {
	f := newFixture()
	metrics := observability.NewMetrics()
	r := NewResolver(f.catalog, WithMetrics(metrics))
	user := &User{Roles: []Role{{ID: 1, SuperManager: true}}}

	_, err := r.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 1, f.catalog.commandCalls)
	assert.Equal(t, 1, f.catalog.moduleCalls)
	assert.Contains(t, scrapeMetrics(t, metrics), "authz_super_manager_resolutions_total 1\n")
}

func TestResolveSuperManagerSnapshotFailure(t *testing.T) {
	cause := errors.New("db down")
	catalog := &snapshotCatalog{stubCatalog: stubCatalog{err: cause}}
	r := NewResolver(catalog)

	grants, err := r.Resolve(context.Background(), &User{Roles: []Role{{SuperManager: true}}})
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, grants.Commands)
	assert.Nil(t, grants.Modules)
}

func scrapeMetrics(t *testing.T, metrics *observability.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}
