package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const memoColumns = `id, patient_id, patient_name, departments, status, is_read, message, created_at, updated_at`

func scanMemo(row pgx.Row) (*VisitMemo, error) {
	var m VisitMemo
	var departments []byte

	err := row.Scan(
		&m.ID,
		&m.PatientID,
		&m.PatientName,
		&departments,
		&m.Status,
		&m.IsRead,
		&m.Message,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemoNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(departments, &m.Departments); err != nil {
		return nil, fmt.Errorf("decode memo departments: %w", err)
	}
	return &m, nil
}

func (r *PgRepository) InsertMemo(ctx context.Context, m *VisitMemo) error {
	departments, err := json.Marshal(m.Departments)
	if err != nil {
		return fmt.Errorf("encode memo departments: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO visit_memos (id, patient_id, patient_name, departments, status, is_read, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, now(), now())
		RETURNING `+memoColumns+`
	`, m.ID, m.PatientID, m.PatientName, departments, m.Status, m.Message)

	saved, err := scanMemo(row)
	if err != nil {
		return err
	}
	*m = *saved
	return nil
}

func (r *PgRepository) GetMemoByID(ctx context.Context, id uuid.UUID) (*VisitMemo, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+memoColumns+`
		FROM visit_memos
		WHERE id = $1
	`, id)
	return scanMemo(row)
}

func (r *PgRepository) ListMemosByPatient(ctx context.Context, patientID uuid.UUID) ([]VisitMemo, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+memoColumns+`
		FROM visit_memos
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []VisitMemo
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateMemo(ctx context.Context, id uuid.UUID, departments []MemoDepartment, status *MemoStatus) (*VisitMemo, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update memo: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockMemo(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if departments != nil {
		current.Departments = departments
	}
	if status != nil {
		current.Status = *status
	}

	updated, err := saveMemoDepartments(ctx, tx, current)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update memo: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) MarkMemoRead(ctx context.Context, id uuid.UUID) (*VisitMemo, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE visit_memos
		SET is_read = true,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+memoColumns+`
	`, id)
	return scanMemo(row)
}

// lockMemo reads a memo row under FOR UPDATE inside tx.
func lockMemo(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*VisitMemo, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+memoColumns+`
		FROM visit_memos
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanMemo(row)
}

func saveMemoDepartments(ctx context.Context, tx pgx.Tx, m *VisitMemo) (*VisitMemo, error) {
	departments, err := json.Marshal(m.Departments)
	if err != nil {
		return nil, fmt.Errorf("encode memo departments: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE visit_memos
		SET departments = $2,
		    status = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+memoColumns+`
	`, m.ID, departments, m.Status)
	return scanMemo(row)
}

// backfillMemoEntry stamps the new visit id and token onto the memo's entry
// for the department the patient just joined. A missing memo or an entry for
// a different department is a silent no-op, matching the tolerant write the
// join path has always had.
func backfillMemoEntry(ctx context.Context, tx pgx.Tx, memoID, departmentID, visitID uuid.UUID, token int) error {
	memo, err := lockMemo(ctx, tx, memoID)
	if err != nil {
		if errors.Is(err, ErrMemoNotFound) {
			return nil
		}
		return err
	}

	changed := false
	for i := range memo.Departments {
		if memo.Departments[i].DepartmentID == departmentID {
			vid := visitID
			tok := token
			memo.Departments[i].VisitID = &vid
			memo.Departments[i].TokenNumber = &tok
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	_, err = saveMemoDepartments(ctx, tx, memo)
	return err
}

// reflectVisitOnMemos sets isVisited on every memo entry referencing the
// visit. Entries are located through jsonb containment so only affected memos
// are locked.
func reflectVisitOnMemos(ctx context.Context, tx pgx.Tx, visitID uuid.UUID, completed bool) error {
	rows, err := tx.Query(ctx, `
		SELECT id
		FROM visit_memos
		WHERE departments @> jsonb_build_array(jsonb_build_object('visitId', $1::text))
		FOR UPDATE
	`, visitID.String())
	if err != nil {
		return err
	}

	var memoIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		memoIDs = append(memoIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, memoID := range memoIDs {
		memo, err := lockMemo(ctx, tx, memoID)
		if err != nil {
			return err
		}
		for i := range memo.Departments {
			if memo.Departments[i].VisitID != nil && *memo.Departments[i].VisitID == visitID {
				memo.Departments[i].IsVisited = completed
			}
		}
		if _, err := saveMemoDepartments(ctx, tx, memo); err != nil {
			return err
		}
	}

	return nil
}
