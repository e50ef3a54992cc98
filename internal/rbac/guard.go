package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var errNoResolver = fmt.Errorf("%w: guard has no resolver", ErrCatalogUnavailable)

// Guard wires authorization checks for callers. Every check fails closed:
// if resolution cannot complete, the caller receives the error and must deny.
type Guard struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// CheckAccount rejects principals whose account state forbids any access.
func (g Guard) CheckAccount(p Principal) error {
	if u, ok := p.(*User); p == nil || (ok && u == nil) {
		return ErrForbidden
	}
	switch {
	case !p.IsEnabled():
		return ErrAccountDisabled
	case !p.IsAccountNonExpired():
		return ErrAccountExpired
	case !p.IsAccountNonLocked():
		return ErrAccountLocked
	case !p.IsCredentialsNonExpired():
		return ErrCredentialsExpired
	}
	return nil
}

// RequireAny ensures the principal holds at least one of the authorities.
func (g Guard) RequireAny(p Principal, authorities ...string) error {
	required := normalizeAuthorities(authorities)
	if len(required) == 0 {
		return nil
	}
	if err := g.CheckAccount(p); err != nil {
		return err
	}
	if hasAnyAuthority(p.Authorities(), required) {
		return nil
	}
	g.deny("require any", p, required)
	return fmt.Errorf("%w: requires any of %s", ErrForbidden, strings.Join(required, ","))
}

// RequireAll ensures the principal holds every listed authority.
func (g Guard) RequireAll(p Principal, authorities ...string) error {
	required := normalizeAuthorities(authorities)
	if len(required) == 0 {
		return nil
	}
	if err := g.CheckAccount(p); err != nil {
		return err
	}
	if hasAllAuthorities(p.Authorities(), required) {
		return nil
	}
	g.deny("require all", p, required)
	return fmt.Errorf("%w: requires all of %s", ErrForbidden, strings.Join(required, ","))
}

// CanExecute reports whether the command is among the user's resolved commands.
func (g Guard) CanExecute(ctx context.Context, user *User, commandID int64) (bool, error) {
	if err := g.CheckAccount(user); err != nil {
		return false, err
	}
	if g.Resolver == nil {
		return false, errNoResolver
	}
	commands, err := g.Resolver.ResolveCommands(ctx, user)
	if err != nil {
		g.logError("rbac can execute", err)
		return false, err
	}
	for _, cmd := range commands {
		if cmd.ID == commandID {
			return true, nil
		}
	}
	return false, nil
}

// CanAccessModule reports whether the module is among the user's resolved modules.
func (g Guard) CanAccessModule(ctx context.Context, user *User, moduleID int64) (bool, error) {
	if err := g.CheckAccount(user); err != nil {
		return false, err
	}
	if g.Resolver == nil {
		return false, errNoResolver
	}
	modules, err := g.Resolver.ResolveModules(ctx, user)
	if err != nil {
		g.logError("rbac can access module", err)
		return false, err
	}
	for _, m := range modules {
		if m.ID == moduleID {
			return true, nil
		}
	}
	return false, nil
}

func (g Guard) deny(op string, p Principal, required []string) {
	if g.Logger == nil {
		return
	}
	g.Logger.Info("rbac "+op+" denied",
		slog.Int64("user_id", p.GetID()),
		slog.String("required", strings.Join(required, ",")))
}

func (g Guard) logError(msg string, err error) {
	if g.Logger != nil {
		g.Logger.Error(msg, slog.Any("error", err))
	}
}

func normalizeAuthorities(authorities []string) []string {
	upper := cases.Upper(language.Und)
	unique := make(map[string]struct{}, len(authorities))
	normalized := make([]string, 0, len(authorities))
	for _, a := range authorities {
		a = upper.String(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := unique[a]; ok {
			continue
		}
		unique[a] = struct{}{}
		normalized = append(normalized, a)
	}
	return normalized
}

func hasAnyAuthority(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, a := range granted {
		set[a] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllAuthorities(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, a := range granted {
		set[a] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
