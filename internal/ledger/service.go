package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/dates"
	"classtrack/internal/store"
)

// Status is a persisted attendance status.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusLeave   Status = "Leave"
)

// ParseStatus validates a caller-supplied status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPresent, StatusAbsent, StatusLeave:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid attendance status %q", s)
}

// Record is one per-student, per-course, per-day attendance row. The
// natural key is (student, course, date).
type Record struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	Date      time.Time `json:"date"`
	Weekday   string    `json:"weekday"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RollCallEntry is the marking-form view of one enrolled student: the
// status the form should start from and whether an approved leave locks it.
type RollCallEntry struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Status    Status `json:"status"`
	OnLeave   bool   `json:"on_leave"`
}

// Summary aggregates a student's attendance in one course. Percentages
// are taken over the fixed term length, matching the source system.
type Summary struct {
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Leave          int     `json:"leave"`
	Recorded       int     `json:"recorded"`
	TermClasses    int     `json:"term_classes"`
	PresentPercent float64 `json:"present_percent"`
	AbsentPercent  float64 `json:"absent_percent"`
	LeavePercent   float64 `json:"leave_percent"`
}

var (
	// ErrAlreadyMarked means attendance for (course, date) was already taken.
	ErrAlreadyMarked = errors.New("attendance already marked for this date")
	// ErrNotFound means no record matched the natural key.
	ErrNotFound = errors.New("attendance record not found")
	// ErrEmptyBatch means a mark call carried no entries.
	ErrEmptyBatch = errors.New("no attendance entries supplied")
)

// Store is the persistence surface for the ledger.
type Store interface {
	AnyForCourseDate(ctx context.Context, courseID string, date time.Time) (bool, error)
	ApprovedLeaveStudents(ctx context.Context, courseID string, date time.Time) (map[string]bool, error)
	InsertBatch(ctx context.Context, records []Record) error
	UpdateStatus(ctx context.Context, courseID, studentID string, date time.Time, status Status) (int64, error)
	ListForDate(ctx context.Context, courseID string, date time.Time) ([]Record, error)
	ListForStudentDate(ctx context.Context, studentID, courseID string, date time.Time) ([]Record, error)
	RollCall(ctx context.Context, courseID string, date time.Time) ([]RollCallEntry, error)
	StatusCounts(ctx context.Context, studentID, courseID string) (present, absent, leave int, err error)
	History(ctx context.Context, studentID, courseID string) ([]Record, error)
}

// Service records and amends per-day attendance.
type Service struct {
	store       Store
	termClasses int
}

// NewService creates a ledger service. termClasses is the denominator for
// summary percentages.
func NewService(s Store, termClasses int) *Service {
	if termClasses <= 0 {
		termClasses = 16
	}
	return &Service{store: s, termClasses: termClasses}
}

// Effective resolves the status that actually gets recorded: an approved
// leave for the natural key forces Leave regardless of what was requested.
func Effective(requested Status, approvedLeave bool) Status {
	if approvedLeave {
		return StatusLeave
	}
	return requested
}

// Mark records one attendance row per entry, atomically. The whole batch
// is rejected with ErrAlreadyMarked when any row already exists for the
// (course, date) pair; each entry's status passes through Effective first.
func (s *Service) Mark(ctx context.Context, courseID string, date time.Time, entries map[string]Status) error {
	const op = "ledger.Mark"
	if len(entries) == 0 {
		return ErrEmptyBatch
	}
	day := dates.Day(date)

	taken, err := s.store.AnyForCourseDate(ctx, courseID, day)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if taken {
		return ErrAlreadyMarked
	}

	onLeave, err := s.store.ApprovedLeaveStudents(ctx, courseID, day)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	records := make([]Record, 0, len(entries))
	for studentID, requested := range entries {
		if _, err := ParseStatus(string(requested)); err != nil {
			return err
		}
		records = append(records, Record{
			ID:        uuid.NewString(),
			StudentID: studentID,
			CourseID:  courseID,
			Date:      day,
			Weekday:   dates.WeekdayLabel(day),
			Status:    Effective(requested, onLeave[studentID]),
		})
	}

	if err := s.store.InsertBatch(ctx, records); err != nil {
		// A concurrent mark can slip between the pre-check and the
		// insert; the unique index turns it into a duplicate here.
		if errors.Is(err, store.ErrDuplicate) {
			return ErrAlreadyMarked
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Amend updates an existing record's status. It deliberately does not
// re-check the leave override; amendments take the caller's word.
func (s *Service) Amend(ctx context.Context, courseID string, date time.Time, studentID string, status Status) error {
	const op = "ledger.Amend"
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	n, err := s.store.UpdateStatus(ctx, courseID, studentID, dates.Day(date), status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForDate returns every record for a course on one day.
func (s *Service) ListForDate(ctx context.Context, courseID string, date time.Time) ([]Record, error) {
	return s.store.ListForDate(ctx, courseID, dates.Day(date))
}

// ListForStudentDate returns a student's records for a course on one day.
func (s *Service) ListForStudentDate(ctx context.Context, studentID, courseID string, date time.Time) ([]Record, error) {
	return s.store.ListForStudentDate(ctx, studentID, courseID, dates.Day(date))
}

// RollCall returns the marking-form starting state for a course and date.
func (s *Service) RollCall(ctx context.Context, courseID string, date time.Time) ([]RollCallEntry, error) {
	return s.store.RollCall(ctx, courseID, dates.Day(date))
}

// Summarize aggregates one student's attendance in one course.
func (s *Service) Summarize(ctx context.Context, studentID, courseID string) (Summary, error) {
	const op = "ledger.Summarize"
	present, absent, leave, err := s.store.StatusCounts(ctx, studentID, courseID)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", op, err)
	}
	pct := func(n int) float64 {
		return float64(n) / float64(s.termClasses) * 100
	}
	return Summary{
		Present:        present,
		Absent:         absent,
		Leave:          leave,
		Recorded:       present + absent + leave,
		TermClasses:    s.termClasses,
		PresentPercent: pct(present),
		AbsentPercent:  pct(absent),
		LeavePercent:   pct(leave),
	}, nil
}

// History returns a student's full dated history for a course.
func (s *Service) History(ctx context.Context, studentID, courseID string) ([]Record, error) {
	return s.store.History(ctx, studentID, courseID)
}
