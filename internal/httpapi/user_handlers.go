package httpapi

import (
	"net/http"
	"strings"

	"outpass.org/internal/auth"
)

type createUserRequest struct {
	Rank      string `json:"rank"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	PIN       string `json:"pin"`
}

type updateUserRequest struct {
	Rank      *string `json:"rank"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Active    *bool   `json:"active"`
	Password  *string `json:"password"`
	PIN       *string `json:"pin"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.ensurePermissions(w, r, auth.PermManageUsers); !ok {
		return
	}

	var req createUserRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.Create(r.Context(), req.Rank, req.FirstName, req.LastName, req.Password, req.PIN)
	if err != nil {
		handleAuthorityError(w, r, err)
		return
	}
	a.audit(r.Context(), "user.create", "user", user.ID, map[string]string{
		"name": user.DisplayName(),
	})
	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		a.updateUser(w, r, userID)
	case http.MethodDelete:
		a.deleteUser(w, r, userID)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := a.ensurePermissions(w, r, auth.PermManageUsers); !ok {
		return
	}
	var req updateUserRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.Update(r.Context(), userID, auth.UserUpdate{
		Rank:      req.Rank,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Active:    req.Active,
		Password:  req.Password,
		PIN:       req.PIN,
	})
	if err != nil {
		handleAuthorityError(w, r, err)
		return
	}
	a.audit(r.Context(), "user.update", "user", userID, nil)
	writeJSON(w, http.StatusOK, user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := a.ensurePermissions(w, r, auth.PermManageUsers); !ok {
		return
	}
	if err := a.users.Delete(r.Context(), userID); err != nil {
		handleAuthorityError(w, r, err)
		return
	}
	a.audit(r.Context(), "user.delete", "user", userID, nil)
	w.WriteHeader(http.StatusNoContent)
}
