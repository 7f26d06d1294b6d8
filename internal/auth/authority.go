package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AuthorityStore describes persistence operations behind the Permission
// Authority. Grant is an insert-if-absent; ReplaceAll must be atomic.
type AuthorityStore interface {
	Grants(ctx context.Context, userID string) ([]string, error)
	Grant(ctx context.Context, userID, name, grantedBy string) error
	Revoke(ctx context.Context, userID, name string) (bool, error)
	ReplaceAll(ctx context.Context, userID string, names []string, grantedBy string) error
	ListUsersWithGrants(ctx context.Context) ([]UserGrants, error)

	ListPermissions(ctx context.Context) ([]Permission, error)
	AddPermission(ctx context.Context, name, description string) (Permission, error)
	EnsurePermissions(ctx context.Context, perms []Permission) error
}

// UserStore manages user records. Historical sign-out rows referencing a
// deleted user are annotated by the store, never removed.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Authority owns the user → capability mapping. It never calls the sign-out
// engine; route guards consult it before every lifecycle mutation.
type Authority struct {
	store AuthorityStore
}

// NewAuthority constructs the permission authority.
func NewAuthority(store AuthorityStore) (*Authority, error) {
	if store == nil {
		return nil, errors.New("authority store is required")
	}
	return &Authority{store: store}, nil
}

// Grants returns the permission names held by the user. Unknown users get an
// empty set, not an error.
func (a *Authority) Grants(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return a.store.Grants(ctx, userID)
}

// HasPermission reports whether the user holds the named capability.
func (a *Authority) HasPermission(ctx context.Context, userID, name string) (bool, error) {
	grants, err := a.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g == name {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether the user holds every listed capability. An empty
// list means no restriction and evaluates true.
func (a *Authority) HasAll(ctx context.Context, userID string, names []string) (bool, error) {
	if len(names) == 0 {
		return true, nil
	}
	grants, err := a.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	held := toSet(grants)
	for _, name := range names {
		if _, ok := held[name]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// HasAny reports whether the user holds at least one listed capability. An
// empty list means no restriction and evaluates true.
func (a *Authority) HasAny(ctx context.Context, userID string, names []string) (bool, error) {
	if len(names) == 0 {
		return true, nil
	}
	grants, err := a.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	held := toSet(grants)
	for _, name := range names {
		if _, ok := held[name]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Grant gives the user a cataloged permission. Re-granting is a no-op;
// an uncataloged name fails with ErrNotFound.
func (a *Authority) Grant(ctx context.Context, userID, name, grantedBy string) error {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return fmt.Errorf("%w: user_id and permission name are required", ErrInvalidInput)
	}
	return a.store.Grant(ctx, userID, name, strings.TrimSpace(grantedBy))
}

// GrantMany applies each grant best-effort and reports the joined failures.
func (a *Authority) GrantMany(ctx context.Context, userID string, names []string, grantedBy string) error {
	var errs []error
	for _, name := range dedupeNames(names) {
		if err := a.Grant(ctx, userID, name, grantedBy); err != nil {
			errs = append(errs, fmt.Errorf("grant %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Revoke removes a single grant and reports whether a row was removed.
func (a *Authority) Revoke(ctx context.Context, userID, name string) (bool, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return false, fmt.Errorf("%w: user_id and permission name are required", ErrInvalidInput)
	}
	return a.store.Revoke(ctx, userID, name)
}

// RevokeMany removes each grant best-effort. It reports success when at
// least one of the requested revokes actually removed a row; callers that
// need per-item outcomes must call Revoke directly. This matches the
// long-standing behavior the management UI depends on.
func (a *Authority) RevokeMany(ctx context.Context, userID string, names []string) (bool, error) {
	var (
		removedAny bool
		errs       []error
	)
	for _, name := range dedupeNames(names) {
		removed, err := a.Revoke(ctx, userID, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("revoke %s: %w", name, err))
			continue
		}
		if removed {
			removedAny = true
		}
	}
	return removedAny, errors.Join(errs...)
}

// ReplaceAll atomically swaps the user's grant set for the given names.
// A half-applied permission change is a security hazard, so the store must
// roll the whole replacement back on any failure.
func (a *Authority) ReplaceAll(ctx context.Context, userID string, names []string, grantedBy string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return a.store.ReplaceAll(ctx, userID, dedupeNames(names), strings.TrimSpace(grantedBy))
}

// ListUsersWithGrants returns the administrative per-user grant projection.
func (a *Authority) ListUsersWithGrants(ctx context.Context) ([]UserGrants, error) {
	return a.store.ListUsersWithGrants(ctx)
}

// ListPermissions returns the full permission catalog.
func (a *Authority) ListPermissions(ctx context.Context) ([]Permission, error) {
	return a.store.ListPermissions(ctx)
}

// AddPermission extends the catalog at runtime. Names are globally unique.
func (a *Authority) AddPermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	return a.store.AddPermission(ctx, name, strings.TrimSpace(description))
}

// SeedCatalog ensures the builtin permissions exist.
func (a *Authority) SeedCatalog(ctx context.Context) error {
	return a.store.EnsurePermissions(ctx, BuiltinPermissions)
}

func dedupeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
