package store

import (
	"database/sql"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error taxonomy shared by every repository. Callers branch on these with
// errors.Is instead of inspecting driver errors directly.
var (
	// ErrUnavailable means the store could not be reached; retryable.
	ErrUnavailable = errors.New("store unavailable")
	// ErrDuplicate means a unique constraint rejected the write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound means no row matched the given key.
	ErrNotFound = errors.New("record not found")
	// ErrConstraint means a foreign-key or check constraint rejected the write.
	ErrConstraint = errors.New("constraint violated")
)

// Classify maps backend errors onto the taxonomy above. Errors that do
// not fit any bucket pass through unchanged so their detail is not lost.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return ErrUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnavailable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return ErrDuplicate
		case strings.HasPrefix(pgErr.Code, "23"):
			return ErrConstraint
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57"):
			return ErrUnavailable
		}
	}
	return err
}
