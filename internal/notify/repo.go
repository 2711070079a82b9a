package notify

import (
	"context"
	"database/sql"

	"classtrack/internal/store"
)

// Repository persists notifications in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a notification row.
func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (notification_id, student_id, message)
		VALUES ($1, $2, $3)
	`, n.ID, n.StudentID, n.Message)
	return store.Classify(err)
}

// ListForStudent returns a student's notifications, newest first.
func (r *Repository) ListForStudent(ctx context.Context, studentID string) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT notification_id, student_id, message, created_at
		FROM notifications
		WHERE student_id = $1
		ORDER BY created_at DESC
	`, studentID)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.StudentID, &n.Message, &n.CreatedAt); err != nil {
			return nil, store.Classify(err)
		}
		out = append(out, n)
	}
	return out, store.Classify(rows.Err())
}
