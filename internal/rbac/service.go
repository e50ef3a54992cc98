package rbac

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/apdplat/authz/internal/observability"
)

var errNoCatalog = errors.New("rbac: catalog not configured")

// Catalog lists every command and module known to the system.
// It is consulted only for super-manager users.
type Catalog interface {
	AllCommands(ctx context.Context) ([]Command, error)
	AllModules(ctx context.Context) ([]*Module, error)
}

// CatalogSnapshot is implemented by catalogs that can list commands and
// modules from one consistent load.
type CatalogSnapshot interface {
	Snapshot(ctx context.Context) ([]Command, []*Module, error)
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for debug traces and hierarchy failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = metrics
	}
}

// Resolver derives a user's effective commands, modules and authorities.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	catalog Catalog
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResolver constructs a Resolver backed by the provided catalog.
func NewResolver(catalog Catalog, opts ...Option) *Resolver {
	r := &Resolver{catalog: catalog, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Grants bundles every derived view for a single user.
type Grants struct {
	SuperManager bool
	Commands     []Command
	Modules      []*Module
	Authorities  []string
}

// Resolve computes all derived views for the user. For a super-manager the
// commands and modules come from a single catalog load when the catalog
// implements CatalogSnapshot.
func (r *Resolver) Resolve(ctx context.Context, user *User) (Grants, error) {
	if user.IsSuperManager() {
		return r.resolveSuperManager(ctx, user)
	}
	commands, err := r.ResolveCommands(ctx, user)
	if err != nil {
		return Grants{}, err
	}
	modules, err := r.ResolveModules(ctx, user)
	if err != nil {
		return Grants{}, err
	}
	return Grants{
		Commands:    commands,
		Modules:     modules,
		Authorities: r.ResolveAuthorities(user),
	}, nil
}

func (r *Resolver) resolveSuperManager(ctx context.Context, user *User) (Grants, error) {
	r.metrics.ObserveSuperManager()
	commands, modules, err := r.snapshot(ctx)
	r.metrics.ObserveResolution("commands", err)
	r.metrics.ObserveResolution("modules", err)
	if err != nil {
		return Grants{}, err
	}
	return Grants{
		SuperManager: true,
		Commands:     commands,
		Modules:      modules,
		Authorities:  r.ResolveAuthorities(user),
	}, nil
}

func (r *Resolver) snapshot(ctx context.Context) ([]Command, []*Module, error) {
	if r.catalog == nil {
		return nil, nil, catalogUnavailable("snapshot", errNoCatalog)
	}
	snap, ok := r.catalog.(CatalogSnapshot)
	if !ok {
		commands, err := r.allCommands(ctx)
		if err != nil {
			return nil, nil, err
		}
		modules, err := r.allModules(ctx)
		if err != nil {
			return nil, nil, err
		}
		return commands, modules, nil
	}
	commands, modules, err := snap.Snapshot(ctx)
	if err != nil {
		return nil, nil, catalogUnavailable("snapshot", err)
	}
	if commands == nil {
		commands = []Command{}
	}
	if modules == nil {
		modules = []*Module{}
	}
	return commands, modules, nil
}

func (r *Resolver) allCommands(ctx context.Context) ([]Command, error) {
	if r.catalog == nil {
		return nil, catalogUnavailable("all commands", errNoCatalog)
	}
	all, err := r.catalog.AllCommands(ctx)
	if err != nil {
		return nil, catalogUnavailable("all commands", err)
	}
	if all == nil {
		all = []Command{}
	}
	return all, nil
}

func (r *Resolver) allModules(ctx context.Context) ([]*Module, error) {
	if r.catalog == nil {
		return nil, catalogUnavailable("all modules", errNoCatalog)
	}
	all, err := r.catalog.AllModules(ctx)
	if err != nil {
		return nil, catalogUnavailable("all modules", err)
	}
	if all == nil {
		all = []*Module{}
	}
	return all, nil
}

// IsSuperManager reports whether any role of the user is flagged super-manager.
func (r *Resolver) IsSuperManager(user *User) bool {
	return user.IsSuperManager()
}

// ResolveCommands returns the commands granted to the user. Role commands are
// concatenated in role order without deduplication; super-manager users get
// the full command catalog.
func (r *Resolver) ResolveCommands(ctx context.Context, user *User) (commands []Command, err error) {
	defer func() { r.metrics.ObserveResolution("commands", err) }()

	if user == nil || len(user.Roles) == 0 {
		return []Command{}, nil
	}
	if user.IsSuperManager() {
		r.metrics.ObserveSuperManager()
		return r.allCommands(ctx)
	}

	commands = make([]Command, 0)
	for _, role := range user.Roles {
		commands = append(commands, role.Commands...)
	}
	return commands, nil
}

// ResolveModules returns the modules granted to the user. Each command
// contributes its module followed by every ancestor up to the root.
// Duplicates are kept. Super-manager users get the full module catalog.
func (r *Resolver) ResolveModules(ctx context.Context, user *User) (modules []*Module, err error) {
	defer func() { r.metrics.ObserveResolution("modules", err) }()

	if user == nil || len(user.Roles) == 0 {
		return []*Module{}, nil
	}
	if user.IsSuperManager() {
		r.metrics.ObserveSuperManager()
		return r.allModules(ctx)
	}

	modules = make([]*Module, 0)
	for _, role := range user.Roles {
		for _, cmd := range role.Commands {
			modules, err = AppendAncestry(modules, cmd.Module)
			if err != nil {
				r.metrics.ObserveHierarchyFailure()
				r.logger.Error("rbac resolve modules",
					slog.Int64("user_id", user.ID),
					slog.Int64("role_id", role.ID),
					slog.Int64("command_id", cmd.ID),
					slog.Any("error", err))
				return nil, err
			}
		}
	}
	return modules, nil
}

// ResolveAuthorities returns the user's granted authorities, or nil when the
// user holds no roles.
func (r *Resolver) ResolveAuthorities(user *User) []string {
	authorities := ResolveAuthorities(user)
	r.metrics.ObserveResolution("authorities", nil)
	if authorities != nil {
		r.logger.Debug("user privilege",
			slog.Int64("user_id", user.ID),
			slog.String("authorities", AuthoritiesString(authorities)))
	}
	return authorities
}

// ResolveAuthorities returns the union of the uppercased authorities of every
// role plus BaseAuthority, in first-seen order with BaseAuthority last.
// Tokens are uppercased as supplied; no trimming is applied.
// A user without roles yields nil rather than an empty slice.
func ResolveAuthorities(user *User) []string {
	if user == nil || len(user.Roles) == 0 {
		return nil
	}
	// Casers are stateful; one per call.
	upper := cases.Upper(language.Und)
	seen := make(map[string]struct{})
	authorities := make([]string, 0)
	for _, role := range user.Roles {
		for _, raw := range role.Authorities {
			token := upper.String(raw)
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			authorities = append(authorities, token)
		}
	}
	if _, ok := seen[BaseAuthority]; !ok {
		authorities = append(authorities, BaseAuthority)
	}
	return authorities
}

// AppendAncestry appends module and each of its ancestors to dst, self first.
// A nil module appends nothing. A parent chain that revisits a module yields
// a *HierarchyError and dst unchanged.
func AppendAncestry(dst []*Module, module *Module) ([]*Module, error) {
	if module == nil {
		return dst, nil
	}
	start := len(dst)
	visited := make(map[*Module]struct{})
	for current := module; current != nil; current = current.Parent {
		if _, ok := visited[current]; ok {
			return dst[:start], &HierarchyError{ModuleID: current.ID, StartID: module.ID}
		}
		visited[current] = struct{}{}
		dst = append(dst, current)
	}
	return dst, nil
}
