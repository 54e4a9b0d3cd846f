package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Description,
		&d.AverageWaitTime,
		&d.CurrentQueueSize,
		&d.IsActive,
		&d.Location,
		&d.Image,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanVisit(row pgx.Row) (*DepartmentVisit, error) {
	var v DepartmentVisit

	err := row.Scan(
		&v.ID,
		&v.PatientID,
		&v.PatientName,
		&v.DepartmentID,
		&v.DepartmentName,
		&v.TokenNumber,
		&v.Status,
		&v.EstimatedWaitTime,
		&v.ServiceDay,
		&v.CheckInTime,
		&v.CompletionTime,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	return &v, nil
}

const departmentColumns = `id, name, description, average_wait_time, current_queue_size, is_active, location, image, created_at, updated_at`

const visitColumns = `id, patient_id, patient_name, department_id, department_name, token_number, status, estimated_wait_time, service_day, check_in_time, completion_time, created_at, updated_at`

// Departments

func (r *PgRepository) CreateDepartment(ctx context.Context, d *Department) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO departments (id, name, description, average_wait_time, current_queue_size, is_active, location, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, now(), now())
		RETURNING `+departmentColumns+`
	`, d.ID, d.Name, d.Description, d.AverageWaitTime, d.IsActive, d.Location, d.Image)

	saved, err := scanDepartment(row)
	if err != nil {
		return err
	}
	*d = *saved
	return nil
}

func (r *PgRepository) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		WHERE id = $1
	`, id)
	return scanDepartment(row)
}

func (r *PgRepository) ListDepartments(ctx context.Context, activeOnly bool) ([]Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateDepartment(ctx context.Context, d *Department) (*Department, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE departments
		SET name = $2,
		    description = $3,
		    average_wait_time = $4,
		    is_active = $5,
		    location = $6,
		    image = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+departmentColumns+`
	`, d.ID, d.Name, d.Description, d.AverageWaitTime, d.IsActive, d.Location, d.Image)
	return scanDepartment(row)
}

func (r *PgRepository) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDepartmentNotFound
	}
	return nil
}

// Queue

// CreateVisitInQueue admits a patient in one transaction: it locks the
// department row, derives the next gap-free token for the service day,
// inserts the visit, bumps the cached counter and back-fills the memo entry.
// The row lock serializes identical-key transactions inside one database; the
// unique (department, day, token) index catches anything that slips past.
func (r *PgRepository) CreateVisitInQueue(ctx context.Context, in CreateVisitInput) (*DepartmentVisit, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin create visit: %w", err)
	}
	defer tx.Rollback(ctx)

	var deptName string
	var avgWait, queueSize int
	err = tx.QueryRow(ctx, `
		SELECT name, average_wait_time, current_queue_size
		FROM departments
		WHERE id = $1
		FOR UPDATE
	`, in.DepartmentID).Scan(&deptName, &avgWait, &queueSize)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrDepartmentNotFound
		}
		return nil, 0, err
	}

	var maxToken int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(token_number), 0)
		FROM department_visits
		WHERE department_id = $1
		  AND service_day = $2
	`, in.DepartmentID, in.ServiceDay).Scan(&maxToken)
	if err != nil {
		return nil, 0, err
	}

	token := maxToken + 1
	estimated := avgWait * queueSize

	row := tx.QueryRow(ctx, `
		INSERT INTO department_visits (id, patient_id, patient_name, department_id, department_name, token_number, status, estimated_wait_time, service_day, check_in_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'waiting', $7, $8, now(), now(), now())
		RETURNING `+visitColumns+`
	`, uuid.New(), in.PatientID, in.PatientName, in.DepartmentID, deptName, token, estimated, in.ServiceDay)

	visit, err := scanVisit(row)
	if err != nil {
		return nil, 0, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE departments
		SET current_queue_size = current_queue_size + 1,
		    updated_at = now()
		WHERE id = $1
	`, in.DepartmentID)
	if err != nil {
		return nil, 0, err
	}

	if in.MemoID != nil {
		if err := backfillMemoEntry(ctx, tx, *in.MemoID, in.DepartmentID, visit.ID, token); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit create visit: %w", err)
	}

	return visit, queueSize + 1, nil
}

func (r *PgRepository) GetVisitByID(ctx context.Context, id uuid.UUID) (*DepartmentVisit, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM department_visits
		WHERE id = $1
	`, id)
	return scanVisit(row)
}

func (r *PgRepository) ListActiveVisits(ctx context.Context, departmentID uuid.UUID) ([]DepartmentVisit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM department_visits
		WHERE department_id = $1
		  AND status IN ('waiting', 'in-progress')
		ORDER BY token_number
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DepartmentVisit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	return result, rows.Err()
}

// UpdateVisitStatus swaps the status only when the stored value still matches
// from. Terminal transitions decrement the department counter and reflect
// isVisited onto any memo entry referencing the visit, all in the same
// transaction.
func (r *PgRepository) UpdateVisitStatus(ctx context.Context, id uuid.UUID, from, to VisitStatus) (*DepartmentVisit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update visit status: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE department_visits
		SET status = $2,
		    completion_time = CASE WHEN $2 = 'completed' THEN now() ELSE completion_time END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+visitColumns+`
	`, id, to, from)

	updated, err := scanVisit(row)
	if err != nil {
		return nil, err
	}

	if to == VisitCompleted || to == VisitCancelled {
		_, err = tx.Exec(ctx, `
			UPDATE departments
			SET current_queue_size = GREATEST(current_queue_size - 1, 0),
			    updated_at = now()
			WHERE id = $1
		`, updated.DepartmentID)
		if err != nil {
			return nil, err
		}
	}

	if err := reflectVisitOnMemos(ctx, tx, updated.ID, to == VisitCompleted); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update visit status: %w", err)
	}

	return updated, nil
}

// ReconcileQueueSizes re-derives each cached counter from the live visit
// count. Only drifted rows are touched so the worker's steady-state write load
// is zero.
func (r *PgRepository) ReconcileQueueSizes(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE departments d
		SET current_queue_size = sub.cnt,
		    updated_at = now()
		FROM (
			SELECT d2.id, COUNT(v.id) AS cnt
			FROM departments d2
			LEFT JOIN department_visits v
			  ON v.department_id = d2.id
			 AND v.status IN ('waiting', 'in-progress')
			GROUP BY d2.id
		) sub
		WHERE sub.id = d.id
		  AND d.current_queue_size <> sub.cnt
	`)
	if err != nil {
		return 0, fmt.Errorf("reconcile queue sizes: %w", err)
	}
	return tag.RowsAffected(), nil
}
