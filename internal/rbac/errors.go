package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable wraps failures of the catalog collaborator.
	ErrCatalogUnavailable = errors.New("rbac: catalog unavailable")
	// ErrMalformedHierarchy indicates a module parent chain that never terminates.
	ErrMalformedHierarchy = errors.New("rbac: malformed module hierarchy")
	// ErrForbidden is returned by Guard when the required grant is missing.
	ErrForbidden = errors.New("rbac: forbidden")
	// ErrAccountDisabled is returned for disabled accounts.
	ErrAccountDisabled = errors.New("rbac: account disabled")
	// ErrAccountExpired is returned for expired accounts.
	ErrAccountExpired = errors.New("rbac: account expired")
	// ErrAccountLocked is returned for locked accounts.
	ErrAccountLocked = errors.New("rbac: account locked")
	// ErrCredentialsExpired is returned when the account credentials expired.
	ErrCredentialsExpired = errors.New("rbac: credentials expired")
)

// HierarchyError reports the module at which a parent cycle was detected.
type HierarchyError struct {
	ModuleID int64
	// StartID is the module the walk started from.
	StartID int64
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("rbac: module %d revisited while walking ancestors of module %d", e.ModuleID, e.StartID)
}

// Unwrap allows errors.Is(err, ErrMalformedHierarchy).
func (e *HierarchyError) Unwrap() error {
	return ErrMalformedHierarchy
}

func catalogUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCatalogUnavailable, op, err)
}
