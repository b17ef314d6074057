package leaderboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/db/repository"
)

// SnapshotStore persists and reads leaderboard snapshots.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s repository.Snapshot) error
	LatestSnapshot(ctx context.Context, window string) (repository.Snapshot, error)
}

type topReader interface {
	Windows() []string
	Top(ctx context.Context, window string, limit int) ([]Entry, error)
}

// SnapshotWorker periodically persists Redis leaderboards into Postgres.
type SnapshotWorker struct {
	svc      topReader
	store    SnapshotStore
	logger   zerolog.Logger
	interval time.Duration
	topN     int
	now      func() time.Time
}

func NewSnapshotWorker(svc topReader, store SnapshotStore, interval time.Duration, topN int, logger zerolog.Logger) *SnapshotWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if topN <= 0 {
		topN = 50
	}
	return &SnapshotWorker{
		svc:      svc,
		store:    store,
		logger:   logger.With().Str("component", "leaderboard_snapshot_worker").Logger(),
		interval: interval,
		topN:     topN,
		now:      time.Now,
	}
}

// Run blocks until context cancellation.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	if w.svc == nil || w.store == nil {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SnapshotWorker) tick(ctx context.Context) {
	for _, window := range w.svc.Windows() {
		if err := w.snapshotWindow(ctx, window); err != nil {
			w.logger.Warn().Err(err).Str("window", window).Msg("snapshot failed")
		}
	}
}

func (w *SnapshotWorker) snapshotWindow(ctx context.Context, window string) error {
	entries, err := w.svc.Top(ctx, window, w.topN)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	wsEntries := toWSEntries(entries)
	data, err := json.Marshal(wsEntries)
	if err != nil {
		return err
	}

	sourceHash := sha256.Sum256(data)
	now := w.now().UTC()

	err = w.store.InsertSnapshot(ctx, repository.Snapshot{
		Window:      window,
		GeneratedAt: now,
		Entries:     data,
		SourceHash:  hex.EncodeToString(sourceHash[:]),
	})
	if err != nil {
		return err
	}

	w.logger.Info().
		Str("window", window).
		Int("entries", len(wsEntries)).
		Time("generated_at", now).
		Msg("leaderboard snapshot persisted")

	return nil
}
