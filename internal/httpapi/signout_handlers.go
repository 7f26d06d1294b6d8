package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"outpass.org/internal/auth"
	"outpass.org/internal/obs"
	"outpass.org/internal/signout"
)

type personPayload struct {
	Rank      string `json:"rank"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BadgeID   string `json:"badge_id"`
}

type createSignOutRequest struct {
	Persons  []personPayload `json:"persons"`
	Location string          `json:"location"`
	Notes    string          `json:"notes"`
	PIN      string          `json:"pin"`
}

type createSignOutResponse struct {
	EventID string `json:"event_id"`
}

type signInRequest struct {
	PIN string `json:"pin"`
}

func (a *API) handleSignOutsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listSignOuts(w, r)
	case http.MethodPost:
		a.createSignOut(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSignOutResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/signouts/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "reports/current" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listOpenSignOuts(w, r)
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getSignOut(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "signin":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.signIn(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listSignOuts(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensureAnyPermission(w, r, auth.PermViewDashboard, auth.PermViewLogs); !ok {
		return
	}

	q := r.URL.Query()

	if rawIDs := strings.TrimSpace(q.Get("ids")); rawIDs != "" {
		events, err := a.signouts.ListByIDs(r.Context(), strings.Split(rawIDs, ","))
		if err != nil {
			handleSignOutError(w, r, err)
			return
		}
		writeEvents(w, events)
		return
	}

	f := signout.Filter{
		Name:     q.Get("name"),
		Location: q.Get("location"),
		Status:   strings.ToUpper(strings.TrimSpace(q.Get("status"))),
	}
	if f.Status != "" && f.Status != signout.StatusOut && f.Status != signout.StatusIn {
		writeError(w, r, http.StatusBadRequest, "status must be OUT or IN")
		return
	}
	for _, span := range []struct {
		param string
		dst   *time.Time
	}{
		{"from", &f.From},
		{"to", &f.To},
	} {
		raw := strings.TrimSpace(q.Get(span.param))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, span.param+" must be RFC 3339")
			return
		}
		*span.dst = t
	}

	events, err := a.signouts.ListFiltered(r.Context(), f)
	if err != nil {
		handleSignOutError(w, r, err)
		return
	}
	writeEvents(w, events)
}

func (a *API) createSignOut(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.ensurePermissions(w, r, auth.PermCreateSignOut)
	if !ok {
		return
	}

	var req createSignOutRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.requirePIN(w, r, principal, req.PIN) {
		return
	}

	persons := make([]signout.PersonEntry, len(req.Persons))
	for i, p := range req.Persons {
		persons[i] = signout.PersonEntry{
			Rank:      p.Rank,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			BadgeID:   p.BadgeID,
		}
	}

	eventID, err := a.signouts.CreateEvent(r.Context(), signout.NewEvent{
		Persons:  persons,
		Location: req.Location,
		Notes:    req.Notes,
		AuthorizedBy: signout.Actor{
			ID:   principal.UserID,
			Name: principal.DisplayName,
		},
	})
	if err != nil {
		handleSignOutError(w, r, err)
		return
	}

	a.audit(r.Context(), "signout.event.create", "signout_event", eventID, map[string]string{
		"location": strings.TrimSpace(req.Location),
		"persons":  strconv.Itoa(len(req.Persons)),
	})

	w.Header().Set("Location", "/v1/signouts/"+eventID)
	writeJSON(w, http.StatusCreated, createSignOutResponse{EventID: eventID})
}

func (a *API) signIn(w http.ResponseWriter, r *http.Request, eventID string) {
	principal, ok := a.ensurePermissions(w, r, auth.PermSignInSoldiers)
	if !ok {
		return
	}

	var req signInRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.requirePIN(w, r, principal, req.PIN) {
		return
	}

	result, err := a.signouts.SignIn(r.Context(), eventID, signout.Actor{
		ID:   principal.UserID,
		Name: principal.DisplayName,
	})
	if err != nil {
		handleSignOutError(w, r, err)
		return
	}

	// A failed sign-in (stale UI, double submission) is a normal outcome
	// and still returns 200 with the reason.
	a.audit(r.Context(), "signout.event.signin", "signout_event", eventID, map[string]string{
		"success": strconv.FormatBool(result.Success),
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) getSignOut(w http.ResponseWriter, r *http.Request, eventID string) {
	if _, ok := a.ensureSession(w, r); !ok {
		return
	}
	event, err := a.signouts.GetByID(r.Context(), eventID)
	if err != nil {
		handleSignOutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (a *API) listOpenSignOuts(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensureSession(w, r); !ok {
		return
	}
	events, err := a.signouts.ListOpen(r.Context())
	if err != nil {
		handleSignOutError(w, r, err)
		return
	}
	obs.SetOpenEvents(len(events))
	writeEvents(w, events)
}

func writeEvents(w http.ResponseWriter, events []signout.Event) {
	if events == nil {
		events = []signout.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func handleSignOutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, signout.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, signout.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "sign-out event not found")
	case errors.Is(err, signout.ErrInconsistentEvent):
		writeError(w, r, http.StatusInternalServerError, "data integrity error")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
