package signout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"outpass.org/internal/ids"
)

// Service defines the sign-out lifecycle operations. The engine performs no
// authorization itself; callers must consult the permission authority before
// every mutation.
type Service interface {
	CreateEvent(ctx context.Context, ev NewEvent) (string, error)
	SignIn(ctx context.Context, eventID string, by Actor) (SignInResult, error)
	GetByID(ctx context.Context, eventID string) (Event, error)
	List(ctx context.Context) ([]Event, error)
	ListOpen(ctx context.Context) ([]Event, error)
	ListFiltered(ctx context.Context, f Filter) ([]Event, error)
	ListByIDs(ctx context.Context, eventIDs []string) ([]Event, error)
}

// Normalize trims a creation request in place and validates it. Every
// implementation calls this before writing anything.
func Normalize(ev *NewEvent) error {
	ev.Location = strings.TrimSpace(ev.Location)
	ev.Notes = strings.TrimSpace(ev.Notes)
	ev.AuthorizedBy.ID = strings.TrimSpace(ev.AuthorizedBy.ID)
	ev.AuthorizedBy.Name = strings.TrimSpace(ev.AuthorizedBy.Name)

	if len(ev.Persons) == 0 {
		return fmt.Errorf("%w: at least one person is required", ErrInvalidInput)
	}
	if ev.Location == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidInput)
	}
	if ev.AuthorizedBy.ID == "" {
		return fmt.Errorf("%w: authorizing user is required", ErrInvalidInput)
	}
	for i := range ev.Persons {
		p := &ev.Persons[i]
		p.Rank = strings.TrimSpace(p.Rank)
		p.FirstName = strings.TrimSpace(p.FirstName)
		p.LastName = strings.TrimSpace(p.LastName)
		p.BadgeID = strings.TrimSpace(p.BadgeID)
		if p.FirstName == "" || p.LastName == "" {
			return fmt.Errorf("%w: person %d needs a first and last name", ErrInvalidInput, i+1)
		}
	}
	return nil
}

// MatchesName reports whether a person matches the free-text name filter:
// substring of the first name, the last name, or the rank+first+last
// concatenation, case-insensitively.
func MatchesName(p PersonEntry, name string) bool {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.FirstName), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(p.LastName), needle) {
		return true
	}
	full := strings.TrimSpace(strings.Join([]string{p.Rank, p.FirstName, p.LastName}, " "))
	return strings.Contains(strings.ToLower(full), needle)
}

// Matches reports whether an event satisfies the filter. The name criterion
// passes when any person in the group matches.
func Matches(ev Event, f Filter) bool {
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(ev.Location), strings.ToLower(strings.TrimSpace(f.Location))) {
		return false
	}
	if !f.From.IsZero() && ev.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ev.CreatedAt.After(f.To) {
		return false
	}
	if strings.TrimSpace(f.Name) != "" {
		matched := false
		for _, p := range ev.Persons {
			if MatchesName(p, f.Name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// InMemory implements Service with in-process concurrency safety. Used for
// tests and DSN-less development; the Postgres store is the durable
// implementation.
type InMemory struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty engine.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	if err := Normalize(&ev); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	eventID := NewEventID(now)
	for _, p := range ev.Persons {
		s.entries = append(s.entries, Entry{
			RowID:            ids.New(),
			EventID:          eventID,
			Person:           p,
			Location:         ev.Location,
			Notes:            ev.Notes,
			Status:           StatusOut,
			CreatedAt:        now,
			AuthorizedBy:     ev.AuthorizedBy.ID,
			AuthorizedByName: ev.AuthorizedBy.Name,
		})
	}
	return eventID, nil
}

func (s *InMemory) SignIn(ctx context.Context, eventID string, by Actor) (SignInResult, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return SignInResult{}, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The whole group flips in one pass, mirroring the store's single
	// conditional UPDATE. Zero matched rows is a normal outcome.
	now := time.Now().UTC()
	matched := 0
	for i := range s.entries {
		e := &s.entries[i]
		if e.EventID != eventID || e.Status != StatusOut {
			continue
		}
		e.Status = StatusIn
		e.SignedInAt = &now
		e.SignedInBy = by.ID
		e.SignedInByName = by.Name
		matched++
	}
	if matched == 0 {
		return SignInResult{Success: false, Reason: "no open sign-out event matched"}, nil
	}
	return SignInResult{Success: true}, nil
}

func (s *InMemory) GetByID(ctx context.Context, eventID string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []Entry
	for _, e := range s.entries {
		if e.EventID == eventID {
			rows = append(rows, e)
		}
	}
	if len(rows) == 0 {
		return Event{}, ErrNotFound
	}
	events, err := Group(rows)
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

func (s *InMemory) List(ctx context.Context) ([]Event, error) {
	return s.listWhere(func(Event) bool { return true }, SortNewestFirst)
}

func (s *InMemory) ListOpen(ctx context.Context) ([]Event, error) {
	return s.listWhere(func(ev Event) bool { return ev.Status == StatusOut }, SortOldestFirst)
}

func (s *InMemory) ListFiltered(ctx context.Context, f Filter) ([]Event, error) {
	return s.listWhere(func(ev Event) bool { return Matches(ev, f) }, SortNewestFirst)
}

func (s *InMemory) ListByIDs(ctx context.Context, eventIDs []string) ([]Event, error) {
	wanted := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			wanted[id] = struct{}{}
		}
	}
	return s.listWhere(func(ev Event) bool {
		_, ok := wanted[ev.ID]
		return ok
	}, SortNewestFirst)
}

func (s *InMemory) listWhere(keep func(Event) bool, order func([]Event)) ([]Event, error) {
	s.mu.RLock()
	rows := make([]Entry, len(s.entries))
	copy(rows, s.entries)
	s.mu.RUnlock()

	events, err := Group(rows)
	if err != nil {
		return nil, err
	}
	filtered := events[:0]
	for _, ev := range events {
		if keep(ev) {
			filtered = append(filtered, ev)
		}
	}
	order(filtered)
	return filtered, nil
}
