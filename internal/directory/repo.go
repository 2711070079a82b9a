package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classtrack/internal/store"
)

// Repository reads the teacher and student identity tables in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// TeacherByEmail finds a teacher by lowercase email. Returns nil when absent.
func (r *Repository) TeacherByEmail(ctx context.Context, email string) (*Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT teacher_id, full_name, email, department, secret_hash
		FROM teachers
		WHERE LOWER(email) = $1
	`, email)
	return scanCredential(row)
}

// StudentByEmail finds a student by lowercase email. Returns nil when absent.
func (r *Repository) StudentByEmail(ctx context.Context, email string) (*Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, full_name, email, department, secret_hash
		FROM students
		WHERE LOWER(email) = $1
	`, email)
	return scanCredential(row)
}

func scanCredential(row *sql.Row) (*Credential, error) {
	var cred Credential
	if err := row.Scan(&cred.ID, &cred.Name, &cred.Email, &cred.Department, &cred.SecretHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, store.Classify(err)
	}
	return &cred, nil
}

// InsertStudent writes a new student identity row.
func (r *Repository) InsertStudent(ctx context.Context, cred Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, full_name, email, department, secret_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, cred.ID, cred.Name, cred.Email, cred.Department, cred.SecretHash)
	return store.Classify(err)
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (subject, token, expires_at)
		VALUES ($1, $2, $3)
	`, subject, token, expiresAt)
	return store.Classify(err)
}

// RefreshTokenLive reports whether a token exists, is unrevoked, and unexpired.
func (r *Repository) RefreshTokenLive(ctx context.Context, token string) (bool, error) {
	const op = "directory.RefreshTokenLive"
	var revoked bool
	var expiresAt time.Time
	row := r.db.QueryRowContext(ctx, `
		SELECT revoked, expires_at FROM refresh_tokens WHERE token = $1
	`, token)
	if err := row.Scan(&revoked, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, fmt.Errorf("%s: %w", op, store.Classify(err))
	}
	return !revoked && expiresAt.After(time.Now()), nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return store.Classify(err)
}
