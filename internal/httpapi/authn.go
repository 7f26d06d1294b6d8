package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"outpass.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
}

// withAuth resolves the bearer token into a Principal with the user's
// grants preloaded, so route guards evaluate against a single consistent
// snapshot of permissions.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		// Tokens outlive account changes. A token minted before the user
		// was deactivated or deleted stays verifiable, so the account is
		// rechecked on every request.
		user, err := a.users.Get(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if !user.Active {
			writeError(w, r, http.StatusUnauthorized, "account deactivated")
			return
		}

		grants, err := a.authority.Grants(r.Context(), claims.Subject)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "authorization error")
			return
		}

		principal := auth.NewPrincipal(claims.Subject, claims.Name, grants)
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensureSession requires an authenticated principal.
func (a *API) ensureSession(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return principal, true
}

// ensurePermissions requires the principal to hold every listed capability.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, perms ...string) (auth.Principal, bool) {
	principal, ok := a.ensureSession(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if !principal.HasAll(perms...) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return auth.Principal{}, false
	}
	return principal, true
}

// ensureAnyPermission requires at least one of the listed capabilities.
func (a *API) ensureAnyPermission(w http.ResponseWriter, r *http.Request, perms ...string) (auth.Principal, bool) {
	principal, ok := a.ensureSession(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if !principal.HasAny(perms...) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return auth.Principal{}, false
	}
	return principal, true
}

// requirePIN re-proves the caller's identity for a mutation, independent of
// the session token: a stolen session alone cannot mutate state.
func (a *API) requirePIN(w http.ResponseWriter, r *http.Request, principal auth.Principal, pin string) bool {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		writeError(w, r, http.StatusBadRequest, "pin is required")
		return false
	}
	ok, err := a.users.VerifyPIN(r.Context(), principal.UserID, pin)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "pin verification failed")
		return false
	}
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid pin")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
