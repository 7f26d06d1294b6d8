package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"outpass.org/internal/auth"
)

type addPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type replaceGrantsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handlePermissionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPermissions(w, r)
	case http.MethodPost:
		a.addPermission(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] == "users":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listUsersWithGrants(w, r)
	case len(parts) == 2 && parts[0] == "user":
		switch r.Method {
		case http.MethodGet:
			a.getUserGrants(w, r, parts[1])
		case http.MethodPut:
			a.replaceUserGrants(w, r, parts[1])
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermissions(w, r, auth.PermManagePermissions); !ok {
		return
	}
	perms, err := a.authority.ListPermissions(r.Context())
	if err != nil {
		handleAuthorityError(w, r, err)
		return
	}
	if perms == nil {
		perms = []auth.Permission{}
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) addPermission(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermissions(w, r, auth.PermManagePermissions); !ok {
		return
	}
	var req addPermissionRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.authority.AddPermission(r.Context(), req.Name, req.Description)
	if err != nil {
		handleAuthorityError(w, r, err)
		return
	}
	a.audit(r.Context(), "permission.catalog.add", "permission", perm.Name, nil)
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) listUsersWithGrants(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermissions(w, r, auth.PermManagePermissions); !ok {
		return
	}
	users, err := a.authority.ListUsersWithGrants(r.Context())
	if err != nil {
		handleAuthorityError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.UserGrants{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) getUserGrants(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := a.ensureSession(w, r); !ok {
		return
	}
	grants, err := a.authority.Grants(r.Context(), userID)
	if err != nil {
		handleAuthorityError(w, r, err)
		return
	}
	if grants == nil {
		grants = []string{}
	}
	writeJSON(w, http.StatusOK, grants)
}

func (a *API) replaceUserGrants(w http.ResponseWriter, r *http.Request, userID string) {
	principal, ok := a.ensurePermissions(w, r, auth.PermManagePermissions)
	if !ok {
		return
	}
	var req replaceGrantsRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authority.ReplaceAll(r.Context(), userID, req.Permissions, principal.UserID); err != nil {
		// Replacing with an uncataloged name is a caller error here, not a
		// missing resource.
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		handleAuthorityError(w, r, err)
		return
	}
	a.audit(r.Context(), "permission.grants.replace", "user", userID, map[string]string{
		"count": strconv.Itoa(len(req.Permissions)),
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleAuthorityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "permission operation failed")
	}
}
