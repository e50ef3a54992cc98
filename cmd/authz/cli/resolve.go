package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apdplat/authz/internal/rbac"
)

// UserLoader loads authorization-ready users.
type UserLoader interface {
	Load(ctx context.Context, id int64) (*rbac.User, error)
	LoadByUsername(ctx context.Context, username string) (*rbac.User, error)
}

// ResolveCLI prints the derived grants of a single user.
type ResolveCLI struct {
	users    UserLoader
	resolver *rbac.Resolver
}

// NewResolveCLI wires the resolve command.
func NewResolveCLI(users UserLoader, resolver *rbac.Resolver) (*ResolveCLI, error) {
	if users == nil || resolver == nil {
		return nil, errors.New("resolve cli: users and resolver are required")
	}
	return &ResolveCLI{users: users, resolver: resolver}, nil
}

// ResolveOptions defines available flags for the resolve command.
type ResolveOptions struct {
	UserID     int64
	Username   string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ResolveSummary describes the JSON response for resolve.
type ResolveSummary struct {
	UserID       int64         `json:"user_id"`
	Username     string        `json:"username"`
	Account      string        `json:"account"`
	Roles        string        `json:"roles"`
	SuperManager bool          `json:"super_manager"`
	Commands     []CommandView `json:"commands"`
	Modules      []ModuleView  `json:"modules"`
	Authorities  []string      `json:"authorities"`
}

// CommandView is the printable form of a command.
type CommandView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ModuleID *int64 `json:"module_id,omitempty"`
}

// ModuleView is the printable form of a module.
type ModuleView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// ResolveCommand executes the resolve workflow and prints the outcome.
// Exit codes: 0 success, 1 usage or lookup failure, 2 resolution failure.
func (c *ResolveCLI) ResolveCommand(ctx context.Context, opts ResolveOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	username := strings.TrimSpace(opts.Username)
	if opts.UserID <= 0 && username == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "resolve: --user or --username is required")
		return 1
	}

	var (
		user *rbac.User
		err  error
	)
	if opts.UserID > 0 {
		user, err = c.users.Load(ctx, opts.UserID)
	} else {
		user, err = c.users.LoadByUsername(ctx, username)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "resolve: load user: %v\n", err)
		return 1
	}

	grants, err := c.resolver.Resolve(ctx, user)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "resolve: access denied, resolution failed: %v\n", err)
		return 2
	}
	summary := buildResolveSummary(user, grants, rbac.Guard{}.CheckAccount(user))

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "resolve: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderResolveHuman(opts.Stdout, summary)
	return 0
}

func buildResolveSummary(user *rbac.User, grants rbac.Grants, accountErr error) ResolveSummary {
	account := "ok"
	if accountErr != nil {
		account = accountErr.Error()
	}
	commands := make([]CommandView, len(grants.Commands))
	for i, cmd := range grants.Commands {
		commands[i] = CommandView{ID: cmd.ID, Name: cmd.Name}
		if cmd.Module != nil {
			id := cmd.Module.ID
			commands[i].ModuleID = &id
		}
	}
	modules := make([]ModuleView, len(grants.Modules))
	for i, m := range grants.Modules {
		modules[i] = ModuleView{ID: m.ID, Name: m.Name}
		if m.Parent != nil {
			id := m.Parent.ID
			modules[i].ParentID = &id
		}
	}
	return ResolveSummary{
		UserID:       user.ID,
		Username:     user.Username,
		Account:      account,
		Roles:        user.RoleTokens(),
		SuperManager: grants.SuperManager,
		Commands:     commands,
		Modules:      modules,
		Authorities:  grants.Authorities,
	}
}

func renderResolveHuman(w io.Writer, s ResolveSummary) {
	_, _ = fmt.Fprintf(w, "user %d (%s) account=%s\n", s.UserID, s.Username, s.Account)
	_, _ = fmt.Fprintf(w, "roles: %s\n", s.Roles)
	_, _ = fmt.Fprintf(w, "super manager: %t\n", s.SuperManager)
	_, _ = fmt.Fprintf(w, "commands (%d):\n", len(s.Commands))
	for _, cmd := range s.Commands {
		_, _ = fmt.Fprintf(w, "  - %d %s\n", cmd.ID, cmd.Name)
	}
	_, _ = fmt.Fprintf(w, "modules (%d):\n", len(s.Modules))
	for _, m := range s.Modules {
		_, _ = fmt.Fprintf(w, "  - %d %s\n", m.ID, m.Name)
	}
	if s.Authorities == nil {
		_, _ = fmt.Fprintln(w, "authorities: none (no roles)")
		return
	}
	_, _ = fmt.Fprintf(w, "authorities: %s\n", rbac.AuthoritiesString(s.Authorities))
}
