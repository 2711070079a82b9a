package leave

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/dates"
	"classtrack/internal/store"
)

// Repository persists leave requests in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new request row.
func (r *Repository) Insert(ctx context.Context, req Request) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leave_requests (request_id, student_id, course_id, leave_date, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.ID, req.StudentID, req.CourseID, req.Date, req.Reason, req.Status)
	return store.Classify(err)
}

// Approve flips a Pending request to Approved and upserts the attendance
// row for the natural key to Leave, all in one transaction. The request
// row is locked first so concurrent decisions serialize.
func (r *Repository) Approve(ctx context.Context, id string) (Request, error) {
	const op = "leave.Approve"
	var req Request
	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		req, err = lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE leave_requests SET status = $2, decided_at = $3 WHERE request_id = $1
		`, id, StatusApproved, now); err != nil {
			return fmt.Errorf("%s: %w", op, store.Classify(err))
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attendance (attendance_id, student_id, course_id, date_attended, day_attended, status)
			VALUES ($1, $2, $3, $4, $5, 'Leave')
			ON CONFLICT (student_id, course_id, date_attended)
			DO UPDATE SET status = 'Leave'
		`, uuid.NewString(), req.StudentID, req.CourseID, req.Date, dates.WeekdayLabel(req.Date)); err != nil {
			return fmt.Errorf("%s: %w", op, store.Classify(err))
		}

		req.Status = StatusApproved
		req.DecidedAt = &now
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// Reject flips a Pending request to Rejected. No ledger effect.
func (r *Repository) Reject(ctx context.Context, id string) (Request, error) {
	const op = "leave.Reject"
	var req Request
	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		req, err = lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE leave_requests SET status = $2, decided_at = $3 WHERE request_id = $1
		`, id, StatusRejected, now); err != nil {
			return fmt.Errorf("%s: %w", op, store.Classify(err))
		}
		req.Status = StatusRejected
		req.DecidedAt = &now
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// lockRequest loads and row-locks a request, requiring Pending state.
func lockRequest(ctx context.Context, tx *sql.Tx, id string) (Request, error) {
	var req Request
	row := tx.QueryRowContext(ctx, `
		SELECT lr.request_id, lr.student_id, lr.course_id, c.course_name, lr.leave_date, lr.reason, lr.status, lr.created_at
		FROM leave_requests lr
		JOIN courses c ON c.course_id = lr.course_id
		WHERE lr.request_id = $1
		FOR UPDATE OF lr
	`, id)
	if err := row.Scan(&req.ID, &req.StudentID, &req.CourseID, &req.CourseName, &req.Date, &req.Reason, &req.Status, &req.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, store.Classify(err)
	}
	if req.Status != StatusPending {
		return Request{}, ErrAlreadyDecided
	}
	return req, nil
}

// Dismiss soft-deletes a request owned by the student. Terminal
// Dismissed rows never match, so dismissing twice reports not found.
func (r *Repository) Dismiss(ctx context.Context, id, studentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leave_requests SET status = $3
		WHERE request_id = $1 AND student_id = $2
		  AND status IN ('Pending', 'Approved', 'Rejected')
	`, id, studentID, StatusDismissed)
	if err != nil {
		return 0, store.Classify(err)
	}
	return res.RowsAffected()
}

const requestColumns = `lr.request_id, lr.student_id, lr.course_id, c.course_name, lr.leave_date, lr.reason, lr.status, lr.decided_at, lr.created_at`

// ListPending returns every pending request, oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM leave_requests lr
		JOIN courses c ON c.course_id = lr.course_id
		WHERE lr.status = 'Pending'
		ORDER BY lr.created_at
	`)
	if err != nil {
		return nil, store.Classify(err)
	}
	return scanRequests(rows)
}

// ListForStudent returns a student's requests, dismissed rows excluded.
func (r *Repository) ListForStudent(ctx context.Context, studentID string) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM leave_requests lr
		JOIN courses c ON c.course_id = lr.course_id
		WHERE lr.student_id = $1 AND lr.status <> 'Dismissed'
		ORDER BY lr.created_at DESC
	`, studentID)
	if err != nil {
		return nil, store.Classify(err)
	}
	return scanRequests(rows)
}

func scanRequests(rows *sql.Rows) ([]Request, error) {
	defer rows.Close()
	var out []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.StudentID, &req.CourseID, &req.CourseName, &req.Date, &req.Reason, &req.Status, &req.DecidedAt, &req.CreatedAt); err != nil {
			return nil, store.Classify(err)
		}
		out = append(out, req)
	}
	return out, store.Classify(rows.Err())
}
