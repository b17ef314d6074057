package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const selectActiveSanction = `
SELECT reason, ends_at
FROM user_sanctions
WHERE user_id = $1 AND ends_at > $2
ORDER BY ends_at DESC
LIMIT 1`

// Sanction is an active ban on an account.
type Sanction struct {
	UserID uuid.UUID
	Reason string
	EndsAt time.Time
}

// UserRepository exposes account lookups needed by identity resolution.
type UserRepository struct {
	db DBTX
}

// NewUserRepository wraps a pgx connection for user-specific operations.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// ActiveSanction returns the longest sanction still in force at now, or
// ErrNotFound.
func (r *UserRepository) ActiveSanction(ctx context.Context, userID uuid.UUID, now time.Time) (Sanction, error) {
	s := Sanction{UserID: userID}
	err := r.db.QueryRow(ctx, selectActiveSanction, userID, now).Scan(&s.Reason, &s.EndsAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sanction{}, ErrNotFound
	}
	if err != nil {
		return Sanction{}, fmt.Errorf("lookup sanction: %w", err)
	}
	return s, nil
}
