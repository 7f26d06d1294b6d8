package auth

import "context"

// Principal represents an authenticated user with resolved permissions.
type Principal struct {
	UserID      string
	DisplayName string
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with preloaded permission names.
func NewPrincipal(userID, displayName string, perms []string) Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{UserID: userID, DisplayName: displayName, Permissions: set}
}

// HasPermission reports whether the principal holds the named capability.
func (p Principal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}

// HasAll reports whether the principal holds every listed capability.
// An empty requirement list means no restriction and evaluates true.
func (p Principal) HasAll(names ...string) bool {
	for _, name := range names {
		if !p.HasPermission(name) {
			return false
		}
	}
	return true
}

// HasAny reports whether the principal holds at least one listed capability.
// An empty requirement list means no restriction and evaluates true.
func (p Principal) HasAny(names ...string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if p.HasPermission(name) {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
