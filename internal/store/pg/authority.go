package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"outpass.org/internal/auth"
	"outpass.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var (
	_ auth.AuthorityStore = (*Store)(nil)
	_ auth.UserStore      = (*Store)(nil)
)

func (s *Store) Grants(ctx context.Context, userID string) ([]string, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.name
		from user_permissions up
		join permissions p on p.id = up.permission_id
		where up.user_id = $1
		order by p.name
	`, userID)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) Grant(ctx context.Context, userID, name, grantedBy string) error {
	if s.db == nil {
		return errNoDatabase
	}

	tx, err := s.db.BeginTx(ctx, writeTxOpts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	permID, err := permissionID(ctx, tx, name)
	if err != nil {
		return err
	}
	// Re-granting is idempotent: the unique (user, permission) pair absorbs
	// the duplicate.
	if _, err := tx.ExecContext(ctx, `
		insert into user_permissions (user_id, permission_id, granted_by)
		values ($1, $2, $3)
		on conflict (user_id, permission_id) do nothing
	`, userID, permID, nullIfEmpty(grantedBy)); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) Revoke(ctx context.Context, userID, name string) (bool, error) {
	if s.db == nil {
		return false, errNoDatabase
	}
	res, err := s.db.ExecContext(ctx, `
		delete from user_permissions up
		using permissions p
		where p.id = up.permission_id and up.user_id = $1 and p.name = $2
	`, userID, name)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReplaceAll clears the user's grants and inserts the new set as one
// transaction. An unknown permission name rolls the whole replacement back;
// a half-applied permission change must never be observable.
func (s *Store) ReplaceAll(ctx context.Context, userID string, names []string, grantedBy string) error {
	if s.db == nil {
		return errNoDatabase
	}

	tx, err := s.db.BeginTx(ctx, writeTxOpts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_permissions where user_id = $1`, userID); err != nil {
		return err
	}
	for _, name := range names {
		permID, err := permissionID(ctx, tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into user_permissions (user_id, permission_id, granted_by)
			values ($1, $2, $3)
		`, userID, permID, nullIfEmpty(grantedBy)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListUsersWithGrants(ctx context.Context) ([]auth.UserGrants, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	rows, err := s.db.QueryContext(ctx, `
		select u.id, coalesce(u.rank, ''), u.first_name, u.last_name, u.active, p.name
		from users u
		left join user_permissions up on up.user_id = u.id
		left join permissions p on p.id = up.permission_id
		order by u.last_name, u.first_name, u.id, p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.UserGrants
	for rows.Next() {
		var (
			id, rank, first, last string
			active                bool
			perm                  sql.NullString
		)
		if err := rows.Scan(&id, &rank, &first, &last, &active, &perm); err != nil {
			return nil, err
		}
		if len(result) == 0 || result[len(result)-1].UserID != id {
			result = append(result, auth.UserGrants{
				UserID:      id,
				DisplayName: auth.User{Rank: rank, FirstName: first, LastName: last}.DisplayName(),
				Active:      active,
				Permissions: []string{},
			})
		}
		if perm.Valid {
			last := &result[len(result)-1]
			last.Permissions = append(last.Permissions, perm.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description, ''), created_at
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) AddPermission(ctx context.Context, name, description string) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDatabase
	}
	var p auth.Permission
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, description)
		values ($1, $2, $3)
		returning id, name, coalesce(description, ''), created_at
	`, ids.New(), name, nullIfEmpty(description))
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Permission{}, fmt.Errorf("%w: permission %s already exists", auth.ErrConflict, name)
		}
		return auth.Permission{}, err
	}
	return p, nil
}

// EnsurePermissions seeds the catalog inside one transaction; names already
// present are left untouched.
func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	if s.db == nil {
		return errNoDatabase
	}

	tx, err := s.db.BeginTx(ctx, writeTxOpts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, name, description)
			values ($1, $2, $3)
			on conflict (name) do nothing
		`, ids.New(), p.Name, nullIfEmpty(p.Description)); err != nil {
			return fmt.Errorf("seed permission %s: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDatabase
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, rank, first_name, last_name, active, password_hash, pin_hash)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, coalesce(rank, ''), first_name, last_name, active, password_hash, pin_hash, created_at, updated_at
	`, u.ID, nullIfEmpty(u.Rank), u.FirstName, u.LastName, u.Active, u.PasswordHash, u.PINHash)
	var out auth.User
	if err := row.Scan(&out.ID, &out.Rank, &out.FirstName, &out.LastName, &out.Active,
		&out.PasswordHash, &out.PINHash, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, auth.ErrConflict
		}
		return auth.User{}, err
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDatabase
	}
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, coalesce(rank, ''), first_name, last_name, active, password_hash, pin_hash, created_at, updated_at
		from users
		where id = $1
	`, id).Scan(&u.ID, &u.Rank, &u.FirstName, &u.LastName, &u.Active,
		&u.PasswordHash, &u.PINHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDatabase
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Rank != nil {
		sets = append(sets, fmt.Sprintf("rank = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Rank))
		idx++
	}
	if upd.FirstName != nil {
		sets = append(sets, fmt.Sprintf("first_name = $%d", idx))
		args = append(args, *upd.FirstName)
		idx++
	}
	if upd.LastName != nil {
		sets = append(sets, fmt.Sprintf("last_name = $%d", idx))
		args = append(args, *upd.LastName)
		idx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", idx))
		args = append(args, *upd.Active)
		idx++
	}
	if upd.Password != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.Password)
		idx++
	}
	if upd.PIN != nil {
		sets = append(sets, fmt.Sprintf("pin_hash = $%d", idx))
		args = append(args, *upd.PIN)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return auth.User{}, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return auth.User{}, err
		}
		if affected == 0 {
			return auth.User{}, auth.ErrNotFound
		}
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes the user and, in the same transaction, annotates
// historical sign-out rows that reference them: the frozen display names
// get a " (deleted)" suffix and the id columns are nulled. Grants cascade
// away via the foreign key.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDatabase
	}

	tx, err := s.db.BeginTx(ctx, writeTxOpts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update signout_entries
		set authorized_by = null, authorized_by_name = authorized_by_name || ' (deleted)'
		where authorized_by = $1
	`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update signout_entries
		set signed_in_by = null, signed_in_by_name = signed_in_by_name || ' (deleted)'
		where signed_in_by = $1
	`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return tx.Commit()
}

func permissionID(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var permID string
	err := tx.QueryRowContext(ctx, `select id from permissions where name = $1`, name).Scan(&permID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: permission %s is not cataloged", auth.ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return permID, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
