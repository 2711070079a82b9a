package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"classtrack/internal/dates"
	"classtrack/internal/leave"
	"classtrack/internal/queue"
)

type fakeStore struct {
	notes []Notification
}

func (f *fakeStore) Insert(_ context.Context, n Notification) error {
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeStore) ListForStudent(_ context.Context, studentID string) ([]Notification, error) {
	var out []Notification
	for _, n := range f.notes {
		if n.StudentID == studentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestRunPersistsDecisions(t *testing.T) {
	fs := &fakeStore{}
	notifier := New(fs)
	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evt := leave.DecisionEvent{
		RequestID:  "r1",
		StudentID:  "s1",
		CourseID:   "c1",
		CourseName: "Databases",
		Date:       dates.Today(),
		Decision:   leave.StatusApproved,
	}
	body, _ := json.Marshal(evt)
	_ = q.Publish(ctx, queue.Message{Kind: leave.KindLeaveDecided, Payload: body})
	// Unknown kinds are skipped, not treated as errors.
	_ = q.Publish(ctx, queue.Message{Kind: "something_else", Payload: []byte(`{}`)})

	messages, _ := q.Consume(ctx)
	done := make(chan struct{})
	go func() {
		notifier.Run(ctx, messages)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(fs.notes) == 0 {
		select {
		case <-deadline:
			t.Fatal("no notification persisted")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	cancel()
	<-done

	if len(fs.notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(fs.notes))
	}
	note := fs.notes[0]
	if note.StudentID != "s1" {
		t.Errorf("student = %s", note.StudentID)
	}
	if !strings.Contains(note.Message, "Databases") || !strings.Contains(note.Message, "Approved") {
		t.Errorf("message = %q", note.Message)
	}
}
