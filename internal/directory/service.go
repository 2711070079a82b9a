package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classtrack/internal/store"
)

// Role tags an authenticated identity.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Identity is a principal resolved from one of the two identity tables.
type Identity struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
}

// Credential is an identity row including its secret hash.
type Credential struct {
	ID         string
	Name       string
	Email      string
	Department string
	SecretHash string
}

var (
	// ErrInvalidCredentials is returned when neither identity table matches.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidAccount means a registration was missing required fields.
	ErrInvalidAccount = errors.New("name, email and password required")
)

// Store is the persistence surface the directory needs. Lookups return
// nil without error when no row matches.
type Store interface {
	TeacherByEmail(ctx context.Context, email string) (*Credential, error)
	StudentByEmail(ctx context.Context, email string) (*Credential, error)
	InsertStudent(ctx context.Context, cred Credential) error
	SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error
	RefreshTokenLive(ctx context.Context, token string) (bool, error)
	RevokeRefreshToken(ctx context.Context, token string) error
}

// Service authenticates principals against the teacher and student tables.
type Service struct {
	store Store
	cost  int
}

// NewService creates a directory service. bcryptCost is used when hashing
// new account secrets; out-of-range values fall back to the bcrypt default.
func NewService(s Store, bcryptCost int) *Service {
	return &Service{store: s, cost: bcryptCost}
}

// Authenticate resolves email+secret to an identity. Teachers are checked
// first and win; students are only consulted when no teacher matches.
func (s *Service) Authenticate(ctx context.Context, email, secret string) (Identity, error) {
	const op = "directory.Authenticate"
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || secret == "" {
		return Identity{}, ErrInvalidCredentials
	}

	if cred, err := s.store.TeacherByEmail(ctx, email); err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	} else if cred != nil && secretMatches(cred.SecretHash, secret) {
		return identity(cred, RoleTeacher), nil
	}

	if cred, err := s.store.StudentByEmail(ctx, email); err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	} else if cred != nil && secretMatches(cred.SecretHash, secret) {
		return identity(cred, RoleStudent), nil
	}

	return Identity{}, ErrInvalidCredentials
}

// RegisterStudent creates a student account with a hashed secret. The
// email is stored lowercase; duplicates surface as store.ErrDuplicate.
func (s *Service) RegisterStudent(ctx context.Context, name, email, department, secret string) (Identity, error) {
	const op = "directory.RegisterStudent"
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || secret == "" {
		return Identity{}, ErrInvalidAccount
	}
	hash, err := HashSecret(secret, s.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	cred := Credential{
		ID:         uuid.NewString(),
		Name:       name,
		Email:      email,
		Department: department,
		SecretHash: hash,
	}
	if err := s.store.InsertStudent(ctx, cred); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return identity(&cred, RoleStudent), nil
}

// RememberRefreshToken persists a refresh token for rotation checks.
func (s *Service) RememberRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error {
	return s.store.SaveRefreshToken(ctx, subject, token, expiresAt)
}

// RotateRefreshToken revokes the presented token if it is still live.
// Returns ErrInvalidCredentials for unknown or revoked tokens.
func (s *Service) RotateRefreshToken(ctx context.Context, token string) error {
	const op = "directory.RotateRefreshToken"
	live, err := s.store.RefreshTokenLive(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !live {
		return ErrInvalidCredentials
	}
	if err := s.store.RevokeRefreshToken(ctx, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Logout revokes a refresh token unconditionally.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.RevokeRefreshToken(ctx, token)
}

func identity(cred *Credential, role Role) Identity {
	return Identity{
		ID:         cred.ID,
		Role:       role,
		Name:       cred.Name,
		Email:      cred.Email,
		Department: cred.Department,
	}
}

func secretMatches(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// HashSecret produces the bcrypt hash stored in the identity tables.
func HashSecret(secret string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
