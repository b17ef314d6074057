package match

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/db/repository"
	"github.com/gokatarajesh/weakest-rival/internal/leaderboard"
)

// ResultStore persists match history.
type ResultStore interface {
	SaveRoundSummary(ctx context.Context, params repository.RoundSummaryParams) error
	SaveElimination(ctx context.Context, params repository.EliminationParams) error
	SaveMatchResult(ctx context.Context, params repository.MatchResultParams) error
}

// LeaderboardSink receives per-player results when a match finishes.
type LeaderboardSink interface {
	RecordResult(ctx context.Context, req leaderboard.RecordRequest) error
	Publish(ctx context.Context, matchID uuid.UUID) error
}

// Recorder writes engine records in the background. Gameplay never waits
// on it and write failures are only logged.
type Recorder struct {
	store     ResultStore
	board     LeaderboardSink
	queue     chan any
	timeout   time.Duration
	logger    zerolog.Logger
	shutdownC chan struct{}
	doneC     chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool
}

// NewRecorder builds a recorder with a bounded queue.
func NewRecorder(store ResultStore, board LeaderboardSink, queueSize int, timeout time.Duration, logger zerolog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 512
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Recorder{
		store:     store,
		board:     board,
		queue:     make(chan any, queueSize),
		timeout:   timeout,
		logger:    logger.With().Str("component", "match_recorder").Logger(),
		shutdownC: make(chan struct{}),
		doneC:     make(chan struct{}),
	}
}

// Enqueue hands a record to the writer without blocking. A full queue drops
// the record.
func (r *Recorder) Enqueue(rec any) bool {
	select {
	case r.queue <- rec:
		return true
	default:
		recorderDropped.Inc()
		r.logger.Warn().Str("record", recordKind(rec)).Msg("recorder queue full, dropping record")
		return false
	}
}

// Start runs the recorder in a new goroutine. It is marked running before
// the goroutine is scheduled so an early Stop still waits for the drain.
func (r *Recorder) Start() {
	r.running.Store(true)
	go r.loop()
}

// Run processes records until Stop is called, then drains what is queued.
func (r *Recorder) Run() {
	r.running.Store(true)
	r.loop()
}

func (r *Recorder) loop() {
	defer close(r.doneC)
	for {
		select {
		case <-r.shutdownC:
			for {
				select {
				case rec := <-r.queue:
					r.handle(rec)
				default:
					r.logger.Info().Msg("match recorder stopped")
					return
				}
			}
		case rec := <-r.queue:
			r.handle(rec)
		}
	}
}

// Stop signals Run to drain and return, and waits for it when running.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.shutdownC) })
	if r.running.Load() {
		<-r.doneC
	}
}

func (r *Recorder) handle(rec any) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	switch v := rec.(type) {
	case RoundRecord:
		err = r.saveRound(ctx, v)
	case EliminationRecord:
		err = r.saveElimination(ctx, v)
	case ResultRecord:
		err = r.saveResult(ctx, v)
	default:
		r.logger.Error().Str("record", recordKind(rec)).Msg("unknown record type")
		return
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("record", recordKind(rec)).Msg("persist record failed")
	}
}

func (r *Recorder) saveRound(ctx context.Context, rec RoundRecord) error {
	if r.store == nil {
		return nil
	}
	stats, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	return r.store.SaveRoundSummary(ctx, repository.RoundSummaryParams{
		MatchID:      rec.MatchID,
		Round:        int32(rec.Round),
		BankedPoints: int32(rec.BankedPoints),
		Stats:        stats,
		RecordedAt:   rec.At,
	})
}

func (r *Recorder) saveElimination(ctx context.Context, rec EliminationRecord) error {
	if r.store == nil {
		return nil
	}
	return r.store.SaveElimination(ctx, repository.EliminationParams{
		MatchID:      rec.MatchID,
		Round:        int32(rec.Round),
		UserID:       rec.UserID,
		Reason:       rec.Reason,
		EliminatedAt: rec.At,
	})
}

func (r *Recorder) saveResult(ctx context.Context, rec ResultRecord) error {
	var firstErr error
	if r.store != nil {
		standings, err := json.Marshal(rec.Standings)
		if err != nil {
			return err
		}
		var winner *uuid.UUID
		if rec.WinnerID != uuid.Nil {
			w := rec.WinnerID
			winner = &w
		}
		firstErr = r.store.SaveMatchResult(ctx, repository.MatchResultParams{
			MatchID:      rec.MatchID,
			WinnerID:     winner,
			BankedPoints: int32(rec.BankedPoints),
			Rounds:       int32(rec.Rounds),
			Standings:    standings,
			FinishedAt:   rec.FinishedAt,
		})
	}

	if r.board == nil {
		return firstErr
	}
	for _, st := range rec.Standings {
		err := r.board.RecordResult(ctx, leaderboard.RecordRequest{
			UserID:        st.UserID,
			DisplayName:   st.DisplayName,
			Score:         st.Banked,
			CorrectCount:  st.Correct,
			QuestionCount: st.Correct + st.Wrong,
			Won:           st.Winner,
			MatchID:       rec.MatchID,
			Eligible:      true,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.board.Publish(ctx, rec.MatchID); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func recordKind(rec any) string {
	switch rec.(type) {
	case RoundRecord:
		return "round_summary"
	case EliminationRecord:
		return "elimination"
	case ResultRecord:
		return "match_result"
	default:
		return "unknown"
	}
}
