package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"classtrack/internal/store"
)

// Repository persists enrollments in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnrollmentExists reports whether the (student, course) pair is present.
func (r *Repository) EnrollmentExists(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2
		)
	`, studentID, courseID).Scan(&exists)
	return exists, store.Classify(err)
}

// InsertEnrollment writes a new enrollment row.
func (r *Repository) InsertEnrollment(ctx context.Context, e Enrollment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (enrollment_id, student_id, course_id)
		VALUES ($1, $2, $3)
	`, e.ID, e.StudentID, e.CourseID)
	if err := store.Classify(err); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrDuplicateEnrollment
		}
		return err
	}
	return nil
}

// DeleteEnrollment removes the pair and reports rows affected.
func (r *Repository) DeleteEnrollment(ctx context.Context, studentID, courseID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2
	`, studentID, courseID)
	if err != nil {
		return 0, store.Classify(err)
	}
	return res.RowsAffected()
}

// CoursesForTeacher lists courses owned by a teacher.
func (r *Repository) CoursesForTeacher(ctx context.Context, teacherID string) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT course_id, course_name, department
		FROM courses
		WHERE teacher_id = $1
		ORDER BY course_name
	`, teacherID)
	if err != nil {
		return nil, store.Classify(err)
	}
	return scanCourses(rows)
}

// CoursesForStudent lists courses the student is enrolled in.
func (r *Repository) CoursesForStudent(ctx context.Context, studentID string) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.course_id, c.course_name, c.department
		FROM courses c
		JOIN enrollments e ON c.course_id = e.course_id
		WHERE e.student_id = $1
		ORDER BY c.course_name
	`, studentID)
	if err != nil {
		return nil, store.Classify(err)
	}
	return scanCourses(rows)
}

func scanCourses(rows *sql.Rows) ([]Course, error) {
	defer rows.Close()
	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Department); err != nil {
			return nil, store.Classify(err)
		}
		out = append(out, c)
	}
	return out, store.Classify(rows.Err())
}

// StudentsInCourse lists enrolled students ordered by name.
func (r *Repository) StudentsInCourse(ctx context.Context, courseID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.student_id, s.full_name
		FROM students s
		JOIN enrollments e ON s.student_id = e.student_id
		WHERE e.course_id = $1
		ORDER BY s.full_name
	`, courseID)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, store.Classify(err)
		}
		out = append(out, st)
	}
	return out, store.Classify(rows.Err())
}

// DeleteStudentCascade removes a student and all dependent rows in one
// transaction. The assignments step is keyed by the student's department
// rather than the student id; that coupling comes from the source schema
// and is preserved as-is.
func (r *Repository) DeleteStudentCascade(ctx context.Context, studentID string) error {
	const op = "roster.DeleteStudentCascade"
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var department string
		err := tx.QueryRowContext(ctx, `
			SELECT department FROM students WHERE student_id = $1
		`, studentID).Scan(&department)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("%s: %w", op, store.Classify(err))
		}

		steps := []struct {
			stmt string
			arg  string
		}{
			{`DELETE FROM enrollments WHERE student_id = $1`, studentID},
			{`DELETE FROM attendance WHERE student_id = $1`, studentID},
			{`DELETE FROM leave_requests WHERE student_id = $1`, studentID},
			{`DELETE FROM assignments WHERE teacher_id IN (SELECT teacher_id FROM teachers WHERE department = $1)`, department},
			{`DELETE FROM students WHERE student_id = $1`, studentID},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.stmt, step.arg); err != nil {
				return fmt.Errorf("%s: %w", op, store.Classify(err))
			}
		}
		return nil
	})
}
