package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// AllPermissions returns every permission ordered by id. The stable order
// keeps downstream tie-breaks deterministic.
func (r *Repository) AllPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, category_id FROM permissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// PermissionByID fetches a permission record.
func (r *Repository) PermissionByID(ctx context.Context, id int64) (*Permission, error) {
	var (
		p     Permission
		desc  pgtype.Text
		catID pgtype.Int8
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, category_id FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &desc, &catID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Description = desc.String
	if catID.Valid {
		p.CategoryID = &catID.Int64
	}
	return &p, nil
}

// EnsurePermission upserts a permission by name, keeping the stored
// description and category when the row already exists.
func (r *Repository) EnsurePermission(ctx context.Context, p Permission) (*Permission, error) {
	var (
		out   Permission
		desc  pgtype.Text
		catID pgtype.Int8
	)
	err := r.db.QueryRow(ctx, `
		INSERT INTO permissions (name, description, category_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET category_id = EXCLUDED.category_id
		RETURNING id, name, description, category_id`, p.Name, p.Description, p.CategoryID).
		Scan(&out.ID, &out.Name, &desc, &catID)
	if err != nil {
		return nil, err
	}
	out.Description = desc.String
	if catID.Valid {
		out.CategoryID = &catID.Int64
	}
	return &out, nil
}

// CreatePermissions inserts a batch of permissions and returns them with ids.
func (r *Repository) CreatePermissions(ctx context.Context, perms []Permission) ([]Permission, error) {
	created := make([]Permission, 0, len(perms))
	for _, p := range perms {
		err := r.db.QueryRow(ctx, `
			INSERT INTO permissions (name, description, category_id)
			VALUES ($1, $2, $3)
			RETURNING id`, p.Name, p.Description, p.CategoryID).Scan(&p.ID)
		if err != nil {
			return nil, err
		}
		created = append(created, p)
	}
	return created, nil
}

// UpdatePermissionText rewrites a permission's name and description.
func (r *Repository) UpdatePermissionText(ctx context.Context, id int64, name, description string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE permissions SET name = $2, description = $3 WHERE id = $1`, id, name, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePermissionsForCategory removes every grant scoped to a category.
// Join-table rows referencing them go with them via ON DELETE CASCADE.
func (r *Repository) DeletePermissionsForCategory(ctx context.Context, categoryID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE category_id = $1`, categoryID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PermissionsForCategory returns the grants scoped to a category.
func (r *Repository) PermissionsForCategory(ctx context.Context, categoryID int64) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, category_id
		FROM permissions WHERE category_id = $1 ORDER BY id`, categoryID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}
