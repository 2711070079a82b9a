package ledger

import (
	"context"
	"database/sql"
	"time"

	"classtrack/internal/store"
)

// Repository persists attendance rows in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AnyForCourseDate reports whether any attendance row exists for the
// course on the given day, across all students.
func (r *Repository) AnyForCourseDate(ctx context.Context, courseID string, date time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance WHERE course_id = $1 AND date_attended = $2
		)
	`, courseID, date).Scan(&exists)
	return exists, store.Classify(err)
}

// ApprovedLeaveStudents returns the set of students with an approved
// leave request for the course and day.
func (r *Repository) ApprovedLeaveStudents(ctx context.Context, courseID string, date time.Time) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM leave_requests
		WHERE course_id = $1 AND leave_date = $2 AND status = 'Approved'
	`, courseID, date)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, store.Classify(err)
		}
		out[id] = true
	}
	return out, store.Classify(rows.Err())
}

// InsertBatch writes all records inside one transaction.
func (r *Repository) InsertBatch(ctx context.Context, records []Record) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, rec := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO attendance (attendance_id, student_id, course_id, date_attended, day_attended, status)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, rec.ID, rec.StudentID, rec.CourseID, rec.Date, rec.Weekday, rec.Status)
			if err != nil {
				return store.Classify(err)
			}
		}
		return nil
	})
}

// UpdateStatus amends one record's status and reports rows affected.
func (r *Repository) UpdateStatus(ctx context.Context, courseID, studentID string, date time.Time, status Status) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance SET status = $4
		WHERE course_id = $1 AND student_id = $2 AND date_attended = $3
	`, courseID, studentID, date, status)
	if err != nil {
		return 0, store.Classify(err)
	}
	return res.RowsAffected()
}

const recordColumns = `attendance_id, student_id, course_id, date_attended, day_attended, status, created_at`

// ListForDate returns every record for a course on one day.
func (r *Repository) ListForDate(ctx context.Context, courseID string, date time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance
		WHERE course_id = $1 AND date_attended = $2
		ORDER BY student_id
	`, courseID, date)
	if err != nil {
		return nil, store.Classify(err)
	}
	return scanRecords(rows)
}

// ListForStudentDate returns one student's records for a course and day.
func (r *Repository) ListForStudentDate(ctx context.Context, studentID, courseID string, date time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance
		WHERE student_id = $1 AND course_id = $2 AND date_attended = $3
		ORDER BY date_attended
	`, studentID, courseID, date)
	if err != nil {
		return nil, store.Classify(err)
	}
	return scanRecords(rows)
}

// RollCall lists enrolled students with the status the marking form
// should start from: Leave when an approved leave exists, Present otherwise.
func (r *Repository) RollCall(ctx context.Context, courseID string, date time.Time) ([]RollCallEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.student_id, s.full_name,
		       EXISTS (
		           SELECT 1 FROM leave_requests lr
		           WHERE lr.student_id = s.student_id
		             AND lr.course_id = $1
		             AND lr.leave_date = $2
		             AND lr.status = 'Approved'
		       ) AS on_leave
		FROM students s
		JOIN enrollments e ON s.student_id = e.student_id
		WHERE e.course_id = $1
		ORDER BY s.full_name
	`, courseID, date)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()
	var out []RollCallEntry
	for rows.Next() {
		var entry RollCallEntry
		if err := rows.Scan(&entry.StudentID, &entry.Name, &entry.OnLeave); err != nil {
			return nil, store.Classify(err)
		}
		entry.Status = Effective(StatusPresent, entry.OnLeave)
		out = append(out, entry)
	}
	return out, store.Classify(rows.Err())
}

// StatusCounts aggregates a student's per-status totals for one course.
func (r *Repository) StatusCounts(ctx context.Context, studentID, courseID string) (present, absent, leave int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'Present'),
			COUNT(*) FILTER (WHERE status = 'Absent'),
			COUNT(*) FILTER (WHERE status = 'Leave')
		FROM attendance
		WHERE student_id = $1 AND course_id = $2
	`, studentID, courseID).Scan(&present, &absent, &leave)
	return present, absent, leave, store.Classify(err)
}

// History returns a student's full course history, oldest first.
func (r *Repository) History(ctx context.Context, studentID, courseID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance
		WHERE student_id = $1 AND course_id = $2
		ORDER BY date_attended ASC
	`, studentID, courseID)
	if err != nil {
		return nil, store.Classify(err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.CourseID, &rec.Date, &rec.Weekday, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, store.Classify(err)
		}
		out = append(out, rec)
	}
	return out, store.Classify(rows.Err())
}
