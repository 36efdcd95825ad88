package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// UserDetail is a user joined with its person and, when grouped, its group.
type UserDetail struct {
	User   User
	Person Person
	Group  *Group
}

const userDetailColumns = `
	u.id, u.person_id, u.group_id, u.group_expiration, u.blocked,
	p.id, p.first_name, p.last_name, p.email,
	g.id, g.name, g.priority, g.expiration`

// UserDetailByID fetches a user with its person and group rows.
func (r *Repository) UserDetailByID(ctx context.Context, id int64) (*UserDetail, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userDetailColumns+`
		FROM users u
		JOIN people p ON p.id = u.person_id
		LEFT JOIN groups g ON g.id = u.group_id
		WHERE u.id = $1`, id)
	detail, err := scanUserDetail(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return detail, nil
}

// ListUserDetails returns users with person and group rows, ordered by user
// id and optionally paginated.
func (r *Repository) ListUserDetails(ctx context.Context, limit, offset int) ([]UserDetail, error) {
	query := `
		SELECT ` + userDetailColumns + `
		FROM users u
		JOIN people p ON p.id = u.person_id
		LEFT JOIN groups g ON g.id = u.group_id
		ORDER BY u.id`
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

	var details []UserDetail
	for rows.Next() {
		detail, err := scanUserDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, rows.Err()
}

func scanUserDetail(row pgx.Row) (*UserDetail, error) {
	var (
		d         UserDetail
		groupID   pgtype.Int8
		groupEx   pgtype.Timestamptz
		gID       pgtype.Int8
		gName     pgtype.Text
		gPriority pgtype.Int8
		gExpiry   pgtype.Timestamptz
	)
	err := row.Scan(
		&d.User.ID, &d.User.PersonID, &groupID, &groupEx, &d.User.Blocked,
		&d.Person.ID, &d.Person.FirstName, &d.Person.LastName, &d.Person.Email,
		&gID, &gName, &gPriority, &gExpiry)
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		d.User.GroupID = &groupID.Int64
	}
	if groupEx.Valid {
		t := groupEx.Time
		d.User.GroupExpiration = &t
	}
	if gID.Valid {
		g := Group{ID: gID.Int64, Name: gName.String, Priority: int(gPriority.Int64)}
		if gExpiry.Valid {
			t := gExpiry.Time
			g.Expiration = &t
		}
		d.Group = &g
	}
	return &d, nil
}
