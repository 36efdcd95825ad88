package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// GroupByID fetches a group record.
func (r *Repository) GroupByID(ctx context.Context, id int64) (*Group, error) {
	return scanGroup(r.db.QueryRow(ctx, `
		SELECT id, name, priority, expiration FROM groups WHERE id = $1`, id))
}

// GroupByName fetches a group by its unique name.
func (r *Repository) GroupByName(ctx context.Context, name string) (*Group, error) {
	return scanGroup(r.db.QueryRow(ctx, `
		SELECT id, name, priority, expiration FROM groups WHERE name = $1`, name))
}

// GroupsByName returns the groups matching any of the given names.
func (r *Repository) GroupsByName(ctx context.Context, names []string) ([]Group, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, priority, expiration FROM groups WHERE name = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, err
	}
	return collectGroups(rows)
}

// ListGroups returns groups ordered by id, optionally paginated.
func (r *Repository) ListGroups(ctx context.Context, limit, offset int) ([]Group, error) {
	query := `SELECT id, name, priority, expiration FROM groups ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectGroups(rows)
}

// CreateGroup inserts a group row and returns its id.
func (r *Repository) CreateGroup(ctx context.Context, g Group) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO groups (name, priority, expiration)
		VALUES ($1, $2, $3)
		RETURNING id`, g.Name, g.Priority, g.Expiration).Scan(&id)
	return id, err
}

// FindOrCreateGroup returns the group with the given name, creating it with
// the supplied defaults when absent.
func (r *Repository) FindOrCreateGroup(ctx context.Context, g Group) (*Group, error) {
	found, err := r.GroupByName(ctx, g.Name)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	id, err := r.CreateGroup(ctx, g)
	if err != nil {
		return nil, err
	}
	g.ID = id
	return &g, nil
}

// UpdateGroup persists the mutable group fields.
func (r *Repository) UpdateGroup(ctx context.Context, g Group) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE groups SET name = $2, priority = $3, expiration = $4 WHERE id = $1`,
		g.ID, g.Name, g.Priority, g.Expiration)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteGroup removes a group row. Returns the number of rows deleted.
func (r *Repository) DeleteGroup(ctx context.Context, id int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GroupPermissions returns the grants attached to a group.
func (r *Repository) GroupPermissions(ctx context.Context, groupID int64) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, p.description, p.category_id
		FROM permissions p
		JOIN group_permissions gp ON gp.permission_id = p.id
		WHERE gp.group_id = $1
		ORDER BY p.id`, groupID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// SetGroupPermissions replaces a group's grants with the given set.
func (r *Repository) SetGroupPermissions(ctx context.Context, groupID int64, permissionIDs []int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM group_permissions WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	return r.AttachPermissionsToGroup(ctx, groupID, permissionIDs)
}

// AttachPermissionsToGroup adds grants to a group, ignoring duplicates.
func (r *Repository) AttachPermissionsToGroup(ctx context.Context, groupID int64, permissionIDs []int64) error {
	for _, pid := range permissionIDs {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO group_permissions (group_id, permission_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, groupID, pid); err != nil {
			return err
		}
	}
	return nil
}

func scanGroup(row pgx.Row) (*Group, error) {
	var (
		g   Group
		exp pgtype.Timestamptz
	)
	err := row.Scan(&g.ID, &g.Name, &g.Priority, &exp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if exp.Valid {
		t := exp.Time
		g.Expiration = &t
	}
	return &g, nil
}

func collectGroups(rows pgx.Rows) ([]Group, error) {
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var (
			g   Group
			exp pgtype.Timestamptz
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.Priority, &exp); err != nil {
			return nil, err
		}
		if exp.Valid {
			t := exp.Time
			g.Expiration = &t
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
