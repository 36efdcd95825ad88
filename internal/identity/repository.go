package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tagstone/tagstone/internal/platform/db"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("identity: not found")

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed persistence for the identity store.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn against a repository bound to a single transaction. Any
// error from fn rolls the whole transaction back.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, *Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx, pool: r.pool})
	})
}

// --- sessions ---

// FindSessionByToken looks up a live session row by raw token value joined
// with its user. Returns (nil, nil, nil) when no row matches.
func (r *Repository) FindSessionByToken(ctx context.Context, token string) (*Session, *User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT s.id, s.token, s.email, s.expiration_date, s.user_id,
		       u.id, u.person_id, u.group_id, u.group_expiration, u.blocked
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1`, token)

	var (
		sess    Session
		user    User
		tok     pgtype.Text
		groupID pgtype.Int8
		groupEx pgtype.Timestamptz
	)
	err := row.Scan(&sess.ID, &tok, &sess.Email, &sess.ExpirationDate, &sess.UserID,
		&user.ID, &user.PersonID, &groupID, &groupEx, &user.Blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	sess.Token = tok.String
	if groupID.Valid {
		user.GroupID = &groupID.Int64
	}
	if groupEx.Valid {
		t := groupEx.Time
		user.GroupExpiration = &t
	}
	return &sess, &user, nil
}

// ClearSessionToken nulls the token for every session carrying it. Matching
// zero rows is a success; invalidation must stay idempotent.
func (r *Repository) ClearSessionToken(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET token = NULL WHERE token = $1`, token)
	return err
}

// ClearSessionTokenByID nulls the token on a specific session row.
func (r *Repository) ClearSessionTokenByID(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET token = NULL WHERE id = $1`, id)
	return err
}

// FindOrCreateSession returns the live session (non-null token) for the
// given email and user, inserting the provided row when none exists.
func (r *Repository) FindOrCreateSession(ctx context.Context, issue Session) (*Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, token, email, expiration_date, user_id
		FROM sessions
		WHERE email = $1 AND user_id = $2 AND token IS NOT NULL AND token <> ''
		ORDER BY id
		LIMIT 1`, issue.Email, issue.UserID)

	var found Session
	err := row.Scan(&found.ID, &found.Token, &found.Email, &found.ExpirationDate, &found.UserID)
	if err == nil {
		return &found, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	row = r.db.QueryRow(ctx, `
		INSERT INTO sessions (token, email, expiration_date, user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, issue.Token, issue.Email, issue.ExpirationDate, issue.UserID)
	if err := row.Scan(&issue.ID); err != nil {
		return nil, err
	}
	return &issue, nil
}

// SweepExpiredSessions nulls tokens on every expired session that still has
// one. Returns the number of rows touched.
func (r *Repository) SweepExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET token = NULL
		WHERE expiration_date <= NOW() AND token IS NOT NULL AND token <> ''`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- people ---

// FindOrCreatePerson returns the person with the given email, creating one
// with the provided names when absent.
func (r *Repository) FindOrCreatePerson(ctx context.Context, email, firstName, lastName string) (*Person, error) {
	var p Person
	err := r.db.QueryRow(ctx, `
		SELECT id, first_name, last_name, email FROM people WHERE email = $1`, email).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO people (first_name, last_name, email)
		VALUES ($1, $2, $3)
		RETURNING id, first_name, last_name, email`, firstName, lastName, email).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePersonName refreshes the stored names for a person.
func (r *Repository) UpdatePersonName(ctx context.Context, id int64, firstName, lastName string) error {
	_, err := r.db.Exec(ctx, `UPDATE people SET first_name = $2, last_name = $3 WHERE id = $1`,
		id, firstName, lastName)
	return err
}

// PersonByID fetches a person record.
func (r *Repository) PersonByID(ctx context.Context, id int64) (*Person, error) {
	var p Person
	err := r.db.QueryRow(ctx, `SELECT id, first_name, last_name, email FROM people WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// --- users ---

// FindOrCreateUser returns the user for a person, creating an ungrouped,
// unblocked one when the person has no account yet.
func (r *Repository) FindOrCreateUser(ctx context.Context, personID int64) (*User, error) {
	user, err := r.scanUser(r.db.QueryRow(ctx, `
		SELECT id, person_id, group_id, group_expiration, blocked
		FROM users WHERE person_id = $1`, personID))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return r.scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (person_id) VALUES ($1)
		RETURNING id, person_id, group_id, group_expiration, blocked`, personID))
}

// UserByID fetches a user record.
func (r *Repository) UserByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.db.QueryRow(ctx, `
		SELECT id, person_id, group_id, group_expiration, blocked
		FROM users WHERE id = $1`, id))
}

// ListUsers returns users ordered by id, optionally paginated.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	query := `SELECT id, person_id, group_id, group_expiration, blocked FROM users ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUserFromRows(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// CreateUser inserts a user row and returns its id.
func (r *Repository) CreateUser(ctx context.Context, u User) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (person_id, group_id, group_expiration)
		VALUES ($1, $2, $3)
		RETURNING id`, u.PersonID, u.GroupID, u.GroupExpiration).Scan(&id)
	return id, err
}

// UpdateUser persists the mutable user fields.
func (r *Repository) UpdateUser(ctx context.Context, u User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET group_id = $2, group_expiration = $3, blocked = $4
		WHERE id = $1`, u.ID, u.GroupID, u.GroupExpiration, u.Blocked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user row. Returns the number of rows deleted.
func (r *Repository) DeleteUser(ctx context.Context, id int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UserPermissions returns the user's direct grants.
func (r *Repository) UserPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, p.description, p.category_id
		FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1
		ORDER BY p.id`, userID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// SetUserPermissions replaces the user's direct grants with the given set.
func (r *Repository) SetUserPermissions(ctx context.Context, userID int64, permissionIDs []int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO user_permissions (user_id, permission_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, userID, pid); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) scanUser(row pgx.Row) (*User, error) {
	var (
		user    User
		groupID pgtype.Int8
		groupEx pgtype.Timestamptz
	)
	err := row.Scan(&user.ID, &user.PersonID, &groupID, &groupEx, &user.Blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if groupID.Valid {
		user.GroupID = &groupID.Int64
	}
	if groupEx.Valid {
		t := groupEx.Time
		user.GroupExpiration = &t
	}
	return &user, nil
}

func scanUserFromRows(rows pgx.Rows) (*User, error) {
	var (
		user    User
		groupID pgtype.Int8
		groupEx pgtype.Timestamptz
	)
	if err := rows.Scan(&user.ID, &user.PersonID, &groupID, &groupEx, &user.Blocked); err != nil {
		return nil, err
	}
	if groupID.Valid {
		user.GroupID = &groupID.Int64
	}
	if groupEx.Valid {
		t := groupEx.Time
		user.GroupExpiration = &t
	}
	return &user, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var (
			p     Permission
			desc  pgtype.Text
			catID pgtype.Int8
		)
		if err := rows.Scan(&p.ID, &p.Name, &desc, &catID); err != nil {
			return nil, err
		}
		p.Description = desc.String
		if catID.Valid {
			p.CategoryID = &catID.Int64
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
