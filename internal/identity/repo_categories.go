package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// CategoryByID fetches a category record.
func (r *Repository) CategoryByID(ctx context.Context, id int64) (*Category, error) {
	return scanCategory(r.db.QueryRow(ctx, `
		SELECT id, name, description FROM categories WHERE id = $1`, id))
}

// CategoryByName fetches a category by its unique name.
func (r *Repository) CategoryByName(ctx context.Context, name string) (*Category, error) {
	return scanCategory(r.db.QueryRow(ctx, `
		SELECT id, name, description FROM categories WHERE name = $1`, name))
}

// ListCategories returns the categories whose ids are in the given set,
// ordered by id and optionally paginated. An empty id set yields no rows.
func (r *Repository) ListCategories(ctx context.Context, ids []int64, limit, offset int) ([]Category, error) {
	query := `SELECT id, name, description FROM categories WHERE id = ANY($1) ORDER BY id`
	args := []interface{}{ids}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var (
			c    Category
			desc pgtype.Text
		)
		if err := rows.Scan(&c.ID, &c.Name, &desc); err != nil {
			return nil, err
		}
		c.Description = desc.String
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// CreateCategory inserts a category row and returns its id.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		RETURNING id`, c.Name, c.Description).Scan(&id)
	return id, err
}

// UpdateCategory persists the mutable category fields.
func (r *Repository) UpdateCategory(ctx context.Context, c Category) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE categories SET name = $2, description = $3 WHERE id = $1`, c.ID, c.Name, c.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category row. Returns the number of rows deleted.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanCategory(row pgx.Row) (*Category, error) {
	var (
		c    Category
		desc pgtype.Text
	)
	err := row.Scan(&c.ID, &c.Name, &desc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Description = desc.String
	return &c, nil
}
