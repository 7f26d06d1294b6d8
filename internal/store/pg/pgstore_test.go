package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"outpass.org/internal/signout"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "event_id", "rank", "first_name", "last_name", "badge_id", "location", "notes", "status",
		"created_at", "authorized_by", "authorized_by_name", "signed_in_at", "signed_in_by", "signed_in_by_name",
	})
}

func TestCreateEventOneRowPerPerson(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into signout_entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into signout_entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	eventID, err := store.CreateEvent(context.Background(), signout.NewEvent{
		Persons: []signout.PersonEntry{
			{FirstName: "John", LastName: "Smith"},
			{Rank: "SPC", FirstName: "Maria", LastName: "Lopez"},
		},
		Location:     "Range 3",
		AuthorizedBy: signout.Actor{ID: "u1", Name: "SGT Doe"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if eventID == "" {
		t.Fatal("empty event id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateEventRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into signout_entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into signout_entries").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.CreateEvent(context.Background(), signout.NewEvent{
		Persons: []signout.PersonEntry{
			{FirstName: "John", LastName: "Smith"},
			{FirstName: "Ben", LastName: "Adams"},
		},
		Location:     "Range 3",
		AuthorizedBy: signout.Actor{ID: "u1", Name: "SGT Doe"},
	})
	if err == nil {
		t.Fatal("expected insert failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateEventValidatesFirst(t *testing.T) {
	store, mock := newMockStore(t)

	// Invalid input never reaches the database.
	_, err := store.CreateEvent(context.Background(), signout.NewEvent{Location: "Gate"})
	if !errors.Is(err, signout.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database access: %v", err)
	}
}

func TestSignInConditionalUpdateWins(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update signout_entries").
		WithArgs(signout.StatusIn, sqlmock.AnyArg(), "u2", "SSG Roe", "SO-1", signout.StatusOut).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	res, err := store.SignIn(context.Background(), "SO-1", signout.Actor{ID: "u2", Name: "SSG Roe"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("expected success when rows matched: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSignInZeroRowsIsStale(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update signout_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res, err := store.SignIn(context.Background(), "SO-1", signout.Actor{ID: "u2", Name: "SSG Roe"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Reason == "" {
		t.Fatalf("zero matched rows must report failure with a reason: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByIDGroupsRows(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rows := entryRows().
		AddRow("r1", "SO-1", "SGT", "John", "Smith", nil, "Range 3", nil, "OUT",
			created, "u1", "SGT Doe", nil, nil, nil).
		AddRow("r2", "SO-1", nil, "Ben", "Adams", "B-7", "Range 3", nil, "OUT",
			created, "u1", "SGT Doe", nil, nil, nil)
	mock.ExpectQuery("select (.+) from signout_entries").WithArgs("SO-1").WillReturnRows(rows)

	ev, err := store.GetByID(context.Background(), "SO-1")
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID != "SO-1" || len(ev.Persons) != 2 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Persons[0].Rank != "SGT" || ev.Persons[1].BadgeID != "B-7" {
		t.Fatalf("person fields lost: %+v", ev.Persons)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from signout_entries").WithArgs("SO-404").WillReturnRows(entryRows())

	if _, err := store.GetByID(context.Background(), "SO-404"); !errors.Is(err, signout.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByIDAnnotatedDeletedUser(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rows := entryRows().
		AddRow("r1", "SO-1", nil, "John", "Smith", nil, "Gate", nil, "OUT",
			created, nil, "SGT Doe (deleted)", nil, nil, nil)
	mock.ExpectQuery("select (.+) from signout_entries").WithArgs("SO-1").WillReturnRows(rows)

	ev, err := store.GetByID(context.Background(), "SO-1")
	if err != nil {
		t.Fatal(err)
	}
	if ev.AuthorizedBy != "" || ev.AuthorizedByName != "SGT Doe (deleted)" {
		t.Fatalf("deleted-user annotation not surfaced: %+v", ev)
	}
}

// The mock driver accepts any TxOptions, so pin the shared options value
// every multi-statement write begins with.
func TestWriteTransactionsAreSerializable(t *testing.T) {
	if writeTxOpts.Isolation != sql.LevelSerializable {
		t.Fatalf("expected serializable writes, got %v", writeTxOpts.Isolation)
	}
	if writeTxOpts.ReadOnly {
		t.Fatal("write transactions must not be read-only")
	}
}
