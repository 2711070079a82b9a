package leave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/dates"
	"classtrack/internal/queue"
)

// Status is a leave request's workflow state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusDismissed Status = "Dismissed"
)

// Request is one leave request. Its semantic key is (student, course,
// date), the same natural key as the attendance ledger.
type Request struct {
	ID         string     `json:"id"`
	StudentID  string     `json:"student_id"`
	CourseID   string     `json:"course_id"`
	CourseName string     `json:"course_name,omitempty"`
	Date       time.Time  `json:"date"`
	Reason     string     `json:"reason"`
	Status     Status     `json:"status"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// KindLeaveDecided labels decision events on the queue.
const KindLeaveDecided = "leave_decided"

// DecisionEvent is published after a request is approved or rejected.
type DecisionEvent struct {
	RequestID  string    `json:"request_id"`
	StudentID  string    `json:"student_id"`
	CourseID   string    `json:"course_id"`
	CourseName string    `json:"course_name"`
	Date       time.Time `json:"date"`
	Decision   Status    `json:"decision"`
}

var (
	// ErrPastDate means the requested leave date is before today.
	ErrPastDate = errors.New("cannot request leave for a past date")
	// ErrMissingReason means the request carried no reason text.
	ErrMissingReason = errors.New("leave reason required")
	// ErrNotFound means no request matched, or the caller may not touch it.
	ErrNotFound = errors.New("leave request not found")
	// ErrAlreadyDecided means the request left Pending before this call.
	ErrAlreadyDecided = errors.New("leave request already decided")
)

// Store is the persistence surface for the workflow. Approve and Reject
// are transactional in the implementation: approve flips the status and
// upserts the ledger row in one transaction.
type Store interface {
	Insert(ctx context.Context, req Request) error
	Approve(ctx context.Context, id string) (Request, error)
	Reject(ctx context.Context, id string) (Request, error)
	Dismiss(ctx context.Context, id, studentID string) (int64, error)
	ListPending(ctx context.Context) ([]Request, error)
	ListForStudent(ctx context.Context, studentID string) ([]Request, error)
}

// Service runs the leave request state machine.
type Service struct {
	store  Store
	events queue.Queue
}

// NewService creates a leave service. events may be nil; decisions then
// go unannounced but still commit.
func NewService(s Store, events queue.Queue) *Service {
	return &Service{store: s, events: events}
}

// Submit creates a Pending request. The date must be today or later at
// day granularity and the reason must be non-empty.
func (s *Service) Submit(ctx context.Context, studentID, courseID string, date time.Time, reason string) (Request, error) {
	const op = "leave.Submit"
	if reason == "" {
		return Request{}, ErrMissingReason
	}
	day := dates.Day(date)
	if day.Before(dates.Today()) {
		return Request{}, ErrPastDate
	}
	req := Request{
		ID:        uuid.NewString(),
		StudentID: studentID,
		CourseID:  courseID,
		Date:      day,
		Reason:    reason,
		Status:    StatusPending,
	}
	if err := s.store.Insert(ctx, req); err != nil {
		return Request{}, fmt.Errorf("%s: %w", op, err)
	}
	return req, nil
}

// Approve transitions Pending -> Approved and upserts the matching
// attendance row to Leave; both happen in one transaction inside the
// store, so a reader never sees an approved request alongside a non-Leave
// row for a date whose attendance was already taken.
func (s *Service) Approve(ctx context.Context, id string) (Request, error) {
	const op = "leave.Approve"
	req, err := s.store.Approve(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyDecided) {
			return Request{}, err
		}
		return Request{}, fmt.Errorf("%s: %w", op, err)
	}
	s.announce(ctx, req)
	return req, nil
}

// Reject transitions Pending -> Rejected with no ledger effect.
func (s *Service) Reject(ctx context.Context, id string) (Request, error) {
	const op = "leave.Reject"
	req, err := s.store.Reject(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyDecided) {
			return Request{}, err
		}
		return Request{}, fmt.Errorf("%s: %w", op, err)
	}
	s.announce(ctx, req)
	return req, nil
}

// Dismiss soft-deletes a request. Only the requester may dismiss, from
// Pending, Approved, or Rejected; the row stays for audit. Dismissing an
// approved request does not touch the ledger.
func (s *Service) Dismiss(ctx context.Context, id, studentID string) error {
	const op = "leave.Dismiss"
	n, err := s.store.Dismiss(ctx, id, studentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending returns every pending request, system-wide.
func (s *Service) ListPending(ctx context.Context) ([]Request, error) {
	return s.store.ListPending(ctx)
}

// ListForStudent returns a student's requests, dismissed ones excluded.
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]Request, error) {
	return s.store.ListForStudent(ctx, studentID)
}

// announce publishes a decision event. Publish failures are logged, not
// surfaced; the decision has already committed.
func (s *Service) announce(ctx context.Context, req Request) {
	if s.events == nil {
		return
	}
	evt := DecisionEvent{
		RequestID:  req.ID,
		StudentID:  req.StudentID,
		CourseID:   req.CourseID,
		CourseName: req.CourseName,
		Date:       req.Date,
		Decision:   req.Status,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("leave: encode decision event for %s: %v", req.ID, err)
		return
	}
	if err := s.events.Publish(ctx, queue.Message{Kind: KindLeaveDecided, Payload: body}); err != nil {
		log.Printf("leave: publish decision event for %s: %v", req.ID, err)
	}
}
