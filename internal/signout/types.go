// Package signout owns the sign-out record aggregate and its status state
// machine. One logical event covers one-to-many persons; every row of the
// group carries the same header fields and transitions status together.
package signout

import (
	"errors"
	"time"
)

// Status values for an event. An event is created OUT and transitions to IN
// exactly once.
const (
	StatusOut = "OUT"
	StatusIn  = "IN"
)

var (
	ErrInvalidInput      = errors.New("signout: invalid input")
	ErrNotFound          = errors.New("signout: not found")
	ErrInconsistentEvent = errors.New("signout: inconsistent event rows")
)

// PersonEntry is one person covered by a sign-out event. Rank is optional
// and never required for grouping.
type PersonEntry struct {
	Rank      string `json:"rank,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BadgeID   string `json:"badge_id,omitempty"`
}

// Actor identifies the user performing a lifecycle operation, with the
// display name frozen at the time of the action.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewEvent is the creation request for one sign-out event.
type NewEvent struct {
	Persons      []PersonEntry
	Location     string
	Notes        string
	AuthorizedBy Actor
}

// Event is the user-visible aggregate: header fields shared by the whole
// group plus the ordered person list.
type Event struct {
	ID               string        `json:"id"`
	Location         string        `json:"location"`
	Notes            string        `json:"notes,omitempty"`
	Status           string        `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	AuthorizedBy     string        `json:"authorized_by"`
	AuthorizedByName string        `json:"authorized_by_name"`
	SignedInAt       *time.Time    `json:"signed_in_at,omitempty"`
	SignedInBy       string        `json:"signed_in_by,omitempty"`
	SignedInByName   string        `json:"signed_in_by_name,omitempty"`
	Persons          []PersonEntry `json:"persons"`
}

// Entry is one normalized storage row: a person plus the event header it
// shares with its group.
type Entry struct {
	RowID            string
	EventID          string
	Person           PersonEntry
	Location         string
	Notes            string
	Status           string
	CreatedAt        time.Time
	AuthorizedBy     string
	AuthorizedByName string
	SignedInAt       *time.Time
	SignedInBy       string
	SignedInByName   string
}

// SignInResult reports the outcome of a sign-in attempt. A stale or unknown
// event id is a normal outcome, not an error.
type SignInResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Filter narrows event listings. Name matches the first name, the last
// name, or the rank+first+last concatenation, case-insensitively, as a
// substring; that asymmetry is deliberate for desk usability.
type Filter struct {
	Name     string
	Location string
	Status   string
	From     time.Time
	To       time.Time
}
