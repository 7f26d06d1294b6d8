package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"outpass.org/internal/ids"
	"outpass.org/internal/signout"
)

// Store is the durable Postgres implementation of the sign-out lifecycle
// engine and the auth stores.
type Store struct {
	db *sql.DB
}

var _ signout.Service = (*Store)(nil)

// Open connects to Postgres and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle. Used by tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const entryColumns = `id, event_id, rank, first_name, last_name, badge_id, location, notes, status,
	created_at, authorized_by, authorized_by_name, signed_in_at, signed_in_by, signed_in_by_name`

// Multi-statement writes run serializable. Read committed would let a
// concurrent grant slip between ReplaceAll's delete and its inserts and
// commit a permission set neither caller asked for.
var writeTxOpts = &sql.TxOptions{Isolation: sql.LevelSerializable}

// CreateEvent writes the header and every person row as one transaction.
// Any insert failure rolls the whole event back; no partial event is ever
// observable.
func (s *Store) CreateEvent(ctx context.Context, ev signout.NewEvent) (string, error) {
	if err := signout.Normalize(&ev); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, writeTxOpts)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	eventID := signout.NewEventID(now)
	for _, p := range ev.Persons {
		if _, err := tx.ExecContext(ctx, `
			insert into signout_entries
				(id, event_id, rank, first_name, last_name, badge_id, location, notes, status,
				 created_at, authorized_by, authorized_by_name)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, ids.New(), eventID, nullIfEmpty(p.Rank), p.FirstName, p.LastName, nullIfEmpty(p.BadgeID),
			ev.Location, nullIfEmpty(ev.Notes), signout.StatusOut,
			now, ev.AuthorizedBy.ID, ev.AuthorizedBy.Name); err != nil {
			return "", fmt.Errorf("insert person row for event %s: %w", eventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return eventID, nil
}

// SignIn flips every OUT row of the group to IN with one conditional
// UPDATE. The status predicate makes concurrent callers race safely: only
// the first matches any rows, the rest observe "already signed in".
func (s *Store) SignIn(ctx context.Context, eventID string, by signout.Actor) (signout.SignInResult, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return signout.SignInResult{}, fmt.Errorf("%w: event id is required", signout.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, writeTxOpts)
	if err != nil {
		return signout.SignInResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update signout_entries
		set status = $1, signed_in_at = $2, signed_in_by = $3, signed_in_by_name = $4
		where event_id = $5 and status = $6
	`, signout.StatusIn, time.Now().UTC(), by.ID, by.Name, eventID, signout.StatusOut)
	if err != nil {
		return signout.SignInResult{}, fmt.Errorf("sign in event %s: %w", eventID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return signout.SignInResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return signout.SignInResult{}, err
	}

	if affected == 0 {
		return signout.SignInResult{Success: false, Reason: "no open sign-out event matched"}, nil
	}
	return signout.SignInResult{Success: true}, nil
}

func (s *Store) GetByID(ctx context.Context, eventID string) (signout.Event, error) {
	entries, err := s.selectEntries(ctx, `where event_id = $1 order by id`, eventID)
	if err != nil {
		return signout.Event{}, err
	}
	if len(entries) == 0 {
		return signout.Event{}, signout.ErrNotFound
	}
	events, err := signout.Group(entries)
	if err != nil {
		return signout.Event{}, err
	}
	return events[0], nil
}

func (s *Store) List(ctx context.Context) ([]signout.Event, error) {
	entries, err := s.selectEntries(ctx, `order by created_at desc, event_id, id`)
	if err != nil {
		return nil, err
	}
	return signout.Group(entries)
}

func (s *Store) ListOpen(ctx context.Context) ([]signout.Event, error) {
	entries, err := s.selectEntries(ctx, `where status = $1 order by created_at asc, event_id, id`, signout.StatusOut)
	if err != nil {
		return nil, err
	}
	return signout.Group(entries)
}

func (s *Store) ListFiltered(ctx context.Context, f signout.Filter) ([]signout.Event, error) {
	var (
		clauses []string
		args    []any
		idx     = 1
	)
	if f.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		clauses = append(clauses, fmt.Sprintf("lower(location) like $%d", idx))
		args = append(args, "%"+strings.ToLower(loc)+"%")
		idx++
	}
	if !f.From.IsZero() {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, f.From.UTC())
		idx++
	}
	if !f.To.IsZero() {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, f.To.UTC())
		idx++
	}
	if name := strings.ToLower(strings.TrimSpace(f.Name)); name != "" {
		// Whole groups are returned when any member matches. The match is
		// first name, last name, or the rank+first+last concatenation.
		clauses = append(clauses, fmt.Sprintf(`event_id in (
			select event_id from signout_entries
			where lower(first_name) like $%d
			   or lower(last_name) like $%d
			   or lower(trim(coalesce(rank, '') || ' ' || first_name || ' ' || last_name)) like $%d
		)`, idx, idx, idx))
		args = append(args, "%"+name+"%")
		idx++
	}

	where := ""
	if len(clauses) > 0 {
		where = "where " + strings.Join(clauses, " and ") + " "
	}
	entries, err := s.selectEntries(ctx, where+`order by created_at desc, event_id, id`, args...)
	if err != nil {
		return nil, err
	}
	return signout.Group(entries)
}

func (s *Store) ListByIDs(ctx context.Context, eventIDs []string) ([]signout.Event, error) {
	cleaned := make([]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(cleaned))
	args := make([]any, len(cleaned))
	for i, id := range cleaned {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	clause := fmt.Sprintf(`where event_id in (%s) order by created_at desc, event_id, id`, strings.Join(placeholders, ", "))
	entries, err := s.selectEntries(ctx, clause, args...)
	if err != nil {
		return nil, err
	}
	return signout.Group(entries)
}

func (s *Store) selectEntries(ctx context.Context, clause string, args ...any) ([]signout.Entry, error) {
	query := fmt.Sprintf(`select %s from signout_entries %s`, entryColumns, clause)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []signout.Entry
	for rows.Next() {
		var (
			e              signout.Entry
			rank, badge    sql.NullString
			notes          sql.NullString
			authorizedBy   sql.NullString
			signedInAt     sql.NullTime
			signedInBy     sql.NullString
			signedInByName sql.NullString
		)
		// authorized_by and signed_in_by are nulled when the referenced
		// user is deleted; the frozen display names remain.
		if err := rows.Scan(&e.RowID, &e.EventID, &rank, &e.Person.FirstName, &e.Person.LastName,
			&badge, &e.Location, &notes, &e.Status, &e.CreatedAt,
			&authorizedBy, &e.AuthorizedByName, &signedInAt, &signedInBy, &signedInByName); err != nil {
			return nil, err
		}
		e.Person.Rank = rank.String
		e.Person.BadgeID = badge.String
		e.Notes = notes.String
		e.AuthorizedBy = authorizedBy.String
		if signedInAt.Valid {
			t := signedInAt.Time
			e.SignedInAt = &t
		}
		e.SignedInBy = signedInBy.String
		e.SignedInByName = signedInByName.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var errNoDatabase = errors.New("database connection unavailable")
