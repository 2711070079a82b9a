package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Course is a catalog entry maintained outside this service.
type Course struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// Student is the roster view of an enrolled student.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Enrollment associates a student with a course.
type Enrollment struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
}

var (
	// ErrDuplicateEnrollment means the (student, course) pair already exists.
	ErrDuplicateEnrollment = errors.New("student already enrolled")
	// ErrNotFound means no enrollment or student matched.
	ErrNotFound = errors.New("not found")
)

// Store is the persistence surface for enrollments and the student cascade.
type Store interface {
	EnrollmentExists(ctx context.Context, studentID, courseID string) (bool, error)
	InsertEnrollment(ctx context.Context, e Enrollment) error
	DeleteEnrollment(ctx context.Context, studentID, courseID string) (int64, error)
	CoursesForTeacher(ctx context.Context, teacherID string) ([]Course, error)
	CoursesForStudent(ctx context.Context, studentID string) ([]Course, error)
	StudentsInCourse(ctx context.Context, courseID string) ([]Student, error)
	DeleteStudentCascade(ctx context.Context, studentID string) error
}

// Service manages student-course associations.
type Service struct {
	store Store
}

// NewService creates a roster service.
func NewService(s Store) *Service {
	return &Service{store: s}
}

// Enroll adds a student to a course. The pair must not already exist; the
// unique index backs up this check under concurrent enrolls.
func (s *Service) Enroll(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	const op = "roster.Enroll"
	if studentID == "" || courseID == "" {
		return Enrollment{}, errors.New("student and course required")
	}
	exists, err := s.store.EnrollmentExists(ctx, studentID, courseID)
	if err != nil {
		return Enrollment{}, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return Enrollment{}, ErrDuplicateEnrollment
	}
	e := Enrollment{ID: uuid.NewString(), StudentID: studentID, CourseID: courseID}
	if err := s.store.InsertEnrollment(ctx, e); err != nil {
		return Enrollment{}, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// Unenroll removes a student from a course.
func (s *Service) Unenroll(ctx context.Context, studentID, courseID string) error {
	const op = "roster.Unenroll"
	n, err := s.store.DeleteEnrollment(ctx, studentID, courseID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CoursesForTeacher lists courses taught by a teacher.
func (s *Service) CoursesForTeacher(ctx context.Context, teacherID string) ([]Course, error) {
	return s.store.CoursesForTeacher(ctx, teacherID)
}

// CoursesForStudent lists courses a student is enrolled in.
func (s *Service) CoursesForStudent(ctx context.Context, studentID string) ([]Course, error) {
	return s.store.CoursesForStudent(ctx, studentID)
}

// StudentsInCourse lists enrolled students for the marking form.
func (s *Service) StudentsInCourse(ctx context.Context, courseID string) ([]Student, error) {
	return s.store.StudentsInCourse(ctx, courseID)
}

// DeleteStudent removes a student and every dependent record in one
// transaction: enrollments, attendance, leave requests, assignments owned
// by teachers in the student's department, then the student row itself.
func (s *Service) DeleteStudent(ctx context.Context, studentID string) error {
	const op = "roster.DeleteStudent"
	if err := s.store.DeleteStudentCascade(ctx, studentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
