package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"classtrack/internal/dates"
	"classtrack/internal/store"
)

type recordKey struct {
	student string
	course  string
	date    time.Time
}

// fakeStore keeps ledger rows in a map and mimics the transactional
// all-or-nothing behavior of the real repository.
type fakeStore struct {
	records      map[recordKey]Record
	onLeave      map[recordKey]bool
	insertErr    error
	countsPerSet [3]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[recordKey]Record),
		onLeave: make(map[recordKey]bool),
	}
}

func (f *fakeStore) AnyForCourseDate(_ context.Context, courseID string, date time.Time) (bool, error) {
	for k := range f.records {
		if k.course == courseID && k.date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ApprovedLeaveStudents(_ context.Context, courseID string, date time.Time) (map[string]bool, error) {
	out := make(map[string]bool)
	for k, ok := range f.onLeave {
		if ok && k.course == courseID && k.date.Equal(date) {
			out[k.student] = true
		}
	}
	return out, nil
}

func (f *fakeStore) InsertBatch(_ context.Context, records []Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, rec := range records {
		f.records[recordKey{rec.StudentID, rec.CourseID, rec.Date}] = rec
	}
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, courseID, studentID string, date time.Time, status Status) (int64, error) {
	k := recordKey{studentID, courseID, date}
	rec, ok := f.records[k]
	if !ok {
		return 0, nil
	}
	rec.Status = status
	f.records[k] = rec
	return 1, nil
}

func (f *fakeStore) ListForDate(_ context.Context, courseID string, date time.Time) ([]Record, error) {
	var out []Record
	for k, rec := range f.records {
		if k.course == courseID && k.date.Equal(date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) ListForStudentDate(_ context.Context, studentID, courseID string, date time.Time) ([]Record, error) {
	var out []Record
	for k, rec := range f.records {
		if k.student == studentID && k.course == courseID && k.date.Equal(date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) RollCall(context.Context, string, time.Time) ([]RollCallEntry, error) {
	return nil, nil
}

func (f *fakeStore) StatusCounts(context.Context, string, string) (int, int, int, error) {
	return f.countsPerSet[0], f.countsPerSet[1], f.countsPerSet[2], nil
}

func (f *fakeStore) History(context.Context, string, string) ([]Record, error) {
	return nil, nil
}

var day = dates.Day(time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC))

func TestEffective(t *testing.T) {
	if got := Effective(StatusAbsent, true); got != StatusLeave {
		t.Fatalf("approved leave must force Leave, got %s", got)
	}
	if got := Effective(StatusAbsent, false); got != StatusAbsent {
		t.Fatalf("without leave the requested status stands, got %s", got)
	}
}

func TestMarkAppliesLeaveOverride(t *testing.T) {
	fs := newFakeStore()
	fs.onLeave[recordKey{"s1", "c1", day}] = true
	svc := NewService(fs, 16)

	err := svc.Mark(context.Background(), "c1", day, map[string]Status{
		"s1": StatusPresent,
		"s2": StatusAbsent,
	})
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}

	records, _ := svc.ListForDate(context.Background(), "c1", day)
	byStudent := make(map[string]Status)
	for _, rec := range records {
		byStudent[rec.StudentID] = rec.Status
	}
	if byStudent["s1"] != StatusLeave {
		t.Errorf("s1 = %s, want Leave (approved leave overrides caller value)", byStudent["s1"])
	}
	if byStudent["s2"] != StatusAbsent {
		t.Errorf("s2 = %s, want Absent", byStudent["s2"])
	}
}

func TestMarkTwiceFails(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(fs, 16)
	ctx := context.Background()

	if err := svc.Mark(ctx, "c1", day, map[string]Status{"s1": StatusPresent}); err != nil {
		t.Fatalf("first Mark: %v", err)
	}
	err := svc.Mark(ctx, "c1", day, map[string]Status{"s1": StatusAbsent})
	if !errors.Is(err, ErrAlreadyMarked) {
		t.Fatalf("second Mark = %v, want ErrAlreadyMarked", err)
	}

	records, _ := svc.ListForDate(ctx, "c1", day)
	if len(records) != 1 || records[0].Status != StatusPresent {
		t.Fatalf("ledger changed by rejected batch: %+v", records)
	}
}

func TestMarkConcurrentDuplicateMapsToAlreadyMarked(t *testing.T) {
	fs := newFakeStore()
	fs.insertErr = store.ErrDuplicate
	svc := NewService(fs, 16)

	err := svc.Mark(context.Background(), "c1", day, map[string]Status{"s1": StatusPresent})
	if !errors.Is(err, ErrAlreadyMarked) {
		t.Fatalf("Mark = %v, want ErrAlreadyMarked", err)
	}
}

func TestMarkValidation(t *testing.T) {
	svc := NewService(newFakeStore(), 16)
	ctx := context.Background()

	if err := svc.Mark(ctx, "c1", day, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("empty batch = %v, want ErrEmptyBatch", err)
	}
	if err := svc.Mark(ctx, "c1", day, map[string]Status{"s1": "Late"}); err == nil {
		t.Fatal("invalid status must be rejected")
	}
}

func TestMarkSetsWeekdayAndDay(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(fs, 16)
	noon := time.Date(2025, 3, 14, 12, 15, 0, 0, time.UTC)

	if err := svc.Mark(context.Background(), "c1", noon, map[string]Status{"s1": StatusPresent}); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	records, _ := svc.ListForDate(context.Background(), "c1", noon)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Weekday != "Friday" {
		t.Errorf("weekday = %s, want Friday", records[0].Weekday)
	}
	if !records[0].Date.Equal(day) {
		t.Errorf("date = %v, want truncated %v", records[0].Date, day)
	}
}

func TestAmendSkipsLeaveRecheck(t *testing.T) {
	fs := newFakeStore()
	fs.onLeave[recordKey{"s1", "c1", day}] = true
	svc := NewService(fs, 16)
	ctx := context.Background()

	if err := svc.Mark(ctx, "c1", day, map[string]Status{"s1": StatusPresent}); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	// The leave approval is still in place, yet Amend takes the caller's word.
	if err := svc.Amend(ctx, "c1", day, "s1", StatusPresent); err != nil {
		t.Fatalf("Amend: %v", err)
	}
	records, _ := svc.ListForStudentDate(ctx, "s1", "c1", day)
	if len(records) != 1 || records[0].Status != StatusPresent {
		t.Fatalf("amend did not override leave: %+v", records)
	}
}

func TestAmendMissingRecord(t *testing.T) {
	svc := NewService(newFakeStore(), 16)
	err := svc.Amend(context.Background(), "c1", day, "ghost", StatusAbsent)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Amend = %v, want ErrNotFound", err)
	}
}

func TestSummarize(t *testing.T) {
	fs := newFakeStore()
	fs.countsPerSet = [3]int{12, 2, 2}
	svc := NewService(fs, 16)

	sum, err := svc.Summarize(context.Background(), "s1", "c1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Recorded != 16 || sum.TermClasses != 16 {
		t.Fatalf("recorded=%d term=%d, want 16/16", sum.Recorded, sum.TermClasses)
	}
	if sum.PresentPercent != 75 {
		t.Errorf("present percent = %v, want 75", sum.PresentPercent)
	}
	if sum.LeavePercent != 12.5 {
		t.Errorf("leave percent = %v, want 12.5", sum.LeavePercent)
	}
}

func TestParseStatus(t *testing.T) {
	for _, ok := range []string{"Present", "Absent", "Leave"} {
		if _, err := ParseStatus(ok); err != nil {
			t.Errorf("ParseStatus(%s): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "present", "Late", "Dismissed"} {
		if _, err := ParseStatus(bad); err == nil {
			t.Errorf("ParseStatus(%q) accepted invalid value", bad)
		}
	}
}
