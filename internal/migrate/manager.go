// Package migrate applies the versioned schema and seed SQL shipped with
// the binaries.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	migrationDir = "sql"
	seedDir      = "seeds"
)

// Runner executes schema migrations and seeds out of an fs.FS, normally
// the embedded migrations tree. Migrations live under sql/ as
// <version>_<name>.up.sql, each paired with a .down.sql; seeds are plain
// .sql files under seeds/. Order is the lexical file name, so versions
// carry a zero-padded numeric prefix.
type Runner struct {
	db    *sql.DB
	files fs.FS
}

func NewRunner(db *sql.DB, files fs.FS) *Runner {
	return &Runner{db: db, files: files}
}

// Up applies every pending migration and returns the file names applied,
// in order.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	done, err := r.applied(ctx, migrationsTable)
	if err != nil {
		return nil, err
	}
	names, err := r.list(migrationDir, ".up.sql")
	if err != nil {
		return nil, err
	}
	var ran []string
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.execFile(ctx, path.Join(migrationDir, name)); err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", name, err)
		}
		if err := r.record(ctx, migrationsTable, name); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

// Down rolls back the most recently applied migration and returns its
// file name.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return "", err
	}
	history, err := r.history(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downName := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if err := r.execFile(ctx, path.Join(migrationDir, downName)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("missing down migration for %s", last)
		}
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	if _, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last); err != nil {
		return "", err
	}
	return last, nil
}

// Seed applies pending seed files and returns the file names applied.
// A seed runs at most once; re-running Seed is a no-op for files already
// recorded.
func (r *Runner) Seed(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	done, err := r.applied(ctx, seedsTable)
	if err != nil {
		return nil, err
	}
	names, err := r.list(seedDir, ".sql")
	if err != nil {
		return nil, err
	}
	var ran []string
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.execFile(ctx, path.Join(seedDir, name)); err != nil {
			return ran, fmt.Errorf("apply seed %s: %w", name, err)
		}
		if err := r.record(ctx, seedsTable, name); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

// Status returns the applied migration file names, oldest first.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	return r.history(ctx)
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			);`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// execFile runs every statement of one SQL file in a single transaction.
func (r *Runner) execFile(ctx context.Context, fsPath string) error {
	src, err := fs.ReadFile(r.files, fsPath)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitSQL(string(src)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
		name, time.Now().UTC())
	return err
}

func (r *Runner) applied(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (r *Runner) history(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc`, migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// list returns the matching file names of one directory, sorted. A
// missing directory is treated as empty.
func (r *Runner) list(dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(r.files, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitSQL breaks a file into statements on semicolons outside single
// quoted strings. Enough for the DDL and seed files shipped here.
func splitSQL(src string) []string {
	var (
		stmts   []string
		cur     strings.Builder
		inQuote bool
	)
	for _, r := range src {
		cur.WriteRune(r)
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == ';' && !inQuote:
			stmts = append(stmts, cur.String())
			cur.Reset()
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, cur.String())
	}
	return stmts
}
