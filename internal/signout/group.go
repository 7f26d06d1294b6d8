package signout

import (
	"fmt"
	"sort"
)

// Group reconstructs logical events from normalized person rows. Rows are
// grouped by event id in first-seen order; persons keep their row order.
// The grouping key is the id plus every shared header field: rows with the
// same id but diverging headers mean the atomic-write invariant was broken
// somewhere, and that surfaces as ErrInconsistentEvent rather than a
// silently picked winner.
func Group(entries []Entry) ([]Event, error) {
	var (
		order  []string
		events = make(map[string]*Event)
	)
	for _, e := range entries {
		ev, ok := events[e.EventID]
		if !ok {
			ev = &Event{
				ID:               e.EventID,
				Location:         e.Location,
				Notes:            e.Notes,
				Status:           e.Status,
				CreatedAt:        e.CreatedAt,
				AuthorizedBy:     e.AuthorizedBy,
				AuthorizedByName: e.AuthorizedByName,
				SignedInAt:       e.SignedInAt,
				SignedInBy:       e.SignedInBy,
				SignedInByName:   e.SignedInByName,
			}
			events[e.EventID] = ev
			order = append(order, e.EventID)
		} else if !sameHeader(*ev, e) {
			return nil, fmt.Errorf("%w: event %s", ErrInconsistentEvent, e.EventID)
		}
		ev.Persons = append(ev.Persons, e.Person)
	}

	result := make([]Event, 0, len(order))
	for _, id := range order {
		result = append(result, *events[id])
	}
	return result, nil
}

func sameHeader(ev Event, e Entry) bool {
	if ev.Location != e.Location || ev.Notes != e.Notes || ev.Status != e.Status {
		return false
	}
	if !ev.CreatedAt.Equal(e.CreatedAt) {
		return false
	}
	if ev.AuthorizedBy != e.AuthorizedBy || ev.AuthorizedByName != e.AuthorizedByName {
		return false
	}
	if ev.SignedInBy != e.SignedInBy || ev.SignedInByName != e.SignedInByName {
		return false
	}
	switch {
	case ev.SignedInAt == nil && e.SignedInAt == nil:
	case ev.SignedInAt != nil && e.SignedInAt != nil && ev.SignedInAt.Equal(*e.SignedInAt):
	default:
		return false
	}
	return true
}

// SortOldestFirst orders events by checkout time ascending, surfacing the
// longest-overdue first. Used for the open-events report.
func SortOldestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// SortNewestFirst orders events by checkout time descending, for history.
func SortNewestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}
