package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/dates"
	"classtrack/internal/leave"
	"classtrack/internal/queue"
)

// Notification is a persisted message for a student.
type Notification struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence surface for notifications.
type Store interface {
	Insert(ctx context.Context, n Notification) error
	ListForStudent(ctx context.Context, studentID string) ([]Notification, error)
}

// Notifier turns queue events into persisted notifications.
type Notifier struct {
	store Store
}

// New creates a notifier.
func New(s Store) *Notifier {
	return &Notifier{store: s}
}

// Run consumes messages until the context ends.
func (n *Notifier) Run(ctx context.Context, messages <-chan queue.Message) {
	for msg := range messages {
		if msg.Kind != leave.KindLeaveDecided {
			continue
		}
		if err := n.handleDecision(ctx, msg.Payload); err != nil {
			log.Printf("notify: %v", err)
		}
	}
}

func (n *Notifier) handleDecision(ctx context.Context, payload []byte) error {
	var evt leave.DecisionEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("decode decision event: %w", err)
	}
	course := evt.CourseName
	if course == "" {
		course = evt.CourseID
	}
	note := Notification{
		ID:        uuid.NewString(),
		StudentID: evt.StudentID,
		Message: fmt.Sprintf("Your leave request for %s on %s was %s.",
			course, evt.Date.Format(dates.DayFormat), evt.Decision),
	}
	if err := n.store.Insert(ctx, note); err != nil {
		return fmt.Errorf("store notification for request %s: %w", evt.RequestID, err)
	}
	log.Printf("notified student %s about request %s (%s)", evt.StudentID, evt.RequestID, evt.Decision)
	return nil
}

// ListForStudent returns a student's notifications, newest first.
func (n *Notifier) ListForStudent(ctx context.Context, studentID string) ([]Notification, error) {
	return n.store.ListForStudent(ctx, studentID)
}
