package clinic

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const testColumns = `id, name, description, department_id, department_name, average_process_time, price, is_active, created_at, updated_at`

func scanTest(row pgx.Row) (*Test, error) {
	var t Test

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.DepartmentID,
		&t.DepartmentName,
		&t.AverageProcessTime,
		&t.Price,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}

	return &t, nil
}

func (r *PgRepository) CreateTest(ctx context.Context, t *Test) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tests (id, name, description, department_id, department_name, average_process_time, price, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+testColumns+`
	`, t.ID, t.Name, t.Description, t.DepartmentID, t.DepartmentName, t.AverageProcessTime, t.Price, t.IsActive)

	saved, err := scanTest(row)
	if err != nil {
		return err
	}
	*t = *saved
	return nil
}

func (r *PgRepository) GetTestByID(ctx context.Context, id uuid.UUID) (*Test, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+testColumns+`
		FROM tests
		WHERE id = $1
	`, id)
	return scanTest(row)
}

func (r *PgRepository) ListTests(ctx context.Context, departmentID *uuid.UUID) ([]Test, error) {
	query := `SELECT ` + testColumns + ` FROM tests WHERE is_active`
	args := []any{}
	if departmentID != nil {
		args = append(args, *departmentID)
		query += ` AND department_id = $1`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateTest(ctx context.Context, t *Test) (*Test, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tests
		SET name = $2,
		    description = $3,
		    department_id = $4,
		    department_name = $5,
		    average_process_time = $6,
		    price = $7,
		    is_active = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+testColumns+`
	`, t.ID, t.Name, t.Description, t.DepartmentID, t.DepartmentName, t.AverageProcessTime, t.Price, t.IsActive)
	return scanTest(row)
}

func (r *PgRepository) DeleteTest(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTestNotFound
	}
	return nil
}
