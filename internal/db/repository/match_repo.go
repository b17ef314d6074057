package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const insertRoundSummary = `
INSERT INTO match_rounds (match_id, round, banked_points, stats, recorded_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (match_id, round) DO UPDATE
SET banked_points = EXCLUDED.banked_points, stats = EXCLUDED.stats, recorded_at = EXCLUDED.recorded_at`

const insertElimination = `
INSERT INTO match_eliminations (match_id, round, user_id, reason, eliminated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (match_id, user_id) DO NOTHING`

const insertMatchResult = `
INSERT INTO match_results (match_id, winner_id, banked_points, rounds, standings, finished_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (match_id) DO NOTHING`

// RoundSummaryParams is one finished questioning round.
type RoundSummaryParams struct {
	MatchID      uuid.UUID
	Round        int32
	BankedPoints int32
	Stats        []byte
	RecordedAt   time.Time
}

// EliminationParams records why and when a player left a match.
type EliminationParams struct {
	MatchID      uuid.UUID
	Round        int32
	UserID       uuid.UUID
	Reason       string
	EliminatedAt time.Time
}

// MatchResultParams is the final outcome of a match. WinnerID is nil when
// nobody won.
type MatchResultParams struct {
	MatchID      uuid.UUID
	WinnerID     *uuid.UUID
	BankedPoints int32
	Rounds       int32
	Standings    []byte
	FinishedAt   time.Time
}

// MatchRepository writes match history.
type MatchRepository struct {
	db DBTX
}

// NewMatchRepository constructs a new match repository.
func NewMatchRepository(db DBTX) *MatchRepository {
	return &MatchRepository{db: db}
}

// SaveRoundSummary upserts the summary for a round.
func (r *MatchRepository) SaveRoundSummary(ctx context.Context, p RoundSummaryParams) error {
	if _, err := r.db.Exec(ctx, insertRoundSummary, p.MatchID, p.Round, p.BankedPoints, p.Stats, p.RecordedAt); err != nil {
		return fmt.Errorf("save round summary: %w", err)
	}
	return nil
}

// SaveElimination stores an elimination. Repeats for the same player are ignored.
func (r *MatchRepository) SaveElimination(ctx context.Context, p EliminationParams) error {
	if _, err := r.db.Exec(ctx, insertElimination, p.MatchID, p.Round, p.UserID, p.Reason, p.EliminatedAt); err != nil {
		return fmt.Errorf("save elimination: %w", err)
	}
	return nil
}

// SaveMatchResult stores the final result once.
func (r *MatchRepository) SaveMatchResult(ctx context.Context, p MatchResultParams) error {
	if _, err := r.db.Exec(ctx, insertMatchResult, p.MatchID, p.WinnerID, p.BankedPoints, p.Rounds, p.Standings, p.FinishedAt); err != nil {
		return fmt.Errorf("save match result: %w", err)
	}
	return nil
}
