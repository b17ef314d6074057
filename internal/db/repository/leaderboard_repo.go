package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const insertLeaderboardSnapshot = `
INSERT INTO leaderboard_snapshots (time_window, generated_at, entries, source_hash)
VALUES ($1, $2, $3, $4)
ON CONFLICT (time_window, source_hash) DO NOTHING`

const selectLatestSnapshot = `
SELECT time_window, generated_at, entries, source_hash
FROM leaderboard_snapshots
WHERE time_window = $1
ORDER BY generated_at DESC
LIMIT 1`

// Snapshot is a persisted copy of a leaderboard window.
type Snapshot struct {
	Window      string
	GeneratedAt time.Time
	Entries     []byte
	SourceHash  string
}

// LeaderboardRepository stores periodic leaderboard snapshots.
type LeaderboardRepository struct {
	db DBTX
}

func NewLeaderboardRepository(db DBTX) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// InsertSnapshot stores a snapshot. An identical snapshot for the window is
// skipped.
func (r *LeaderboardRepository) InsertSnapshot(ctx context.Context, s Snapshot) error {
	if _, err := r.db.Exec(ctx, insertLeaderboardSnapshot, s.Window, s.GeneratedAt, s.Entries, s.SourceHash); err != nil {
		return fmt.Errorf("insert leaderboard snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for window, or ErrNotFound.
func (r *LeaderboardRepository) LatestSnapshot(ctx context.Context, window string) (Snapshot, error) {
	var s Snapshot
	err := r.db.QueryRow(ctx, selectLatestSnapshot, window).Scan(&s.Window, &s.GeneratedAt, &s.Entries, &s.SourceHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest leaderboard snapshot: %w", err)
	}
	return s, nil
}
