package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/weakest-rival/internal/db/repository"
	"github.com/gokatarajesh/weakest-rival/internal/leaderboard"
)

type mockResultStore struct {
	mock.Mock
}

func (m *mockResultStore) SaveRoundSummary(ctx context.Context, p repository.RoundSummaryParams) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockResultStore) SaveElimination(ctx context.Context, p repository.EliminationParams) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockResultStore) SaveMatchResult(ctx context.Context, p repository.MatchResultParams) error {
	return m.Called(ctx, p).Error(0)
}

type mockBoard struct {
	mock.Mock
}

func (m *mockBoard) RecordResult(ctx context.Context, req leaderboard.RecordRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockBoard) Publish(ctx context.Context, matchID uuid.UUID) error {
	return m.Called(ctx, matchID).Error(0)
}

func TestRecorderEnqueueDropsWhenFull(t *testing.T) {
	r := NewRecorder(nil, nil, 1, time.Second, zerolog.Nop())
	assert.True(t, r.Enqueue(RoundRecord{}))
	assert.False(t, r.Enqueue(RoundRecord{}))
}

func TestRecorderStopWithoutRun(t *testing.T) {
	r := NewRecorder(nil, nil, 1, time.Second, zerolog.Nop())
	r.Stop()
	r.Stop()
}

func TestRecorderDrainsOnStop(t *testing.T) {
	store := new(mockResultStore)
	board := new(mockBoard)
	r := NewRecorder(store, board, 8, time.Second, zerolog.Nop())

	matchID := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	store.On("SaveRoundSummary", mock.Anything, mock.MatchedBy(func(p repository.RoundSummaryParams) bool {
		return p.MatchID == matchID && p.Round == 1 && p.BankedPoints == 450 && string(p.Stats) == "null"
	})).Return(nil).Once()
	store.On("SaveElimination", mock.Anything, repository.EliminationParams{
		MatchID: matchID, Round: 1, UserID: loser, Reason: ReasonVote, EliminatedAt: at,
	}).Return(errors.New("db down")).Once()
	store.On("SaveMatchResult", mock.Anything, mock.MatchedBy(func(p repository.MatchResultParams) bool {
		return p.MatchID == matchID && p.WinnerID != nil && *p.WinnerID == winner && p.Rounds == 2
	})).Return(nil).Once()
	board.On("RecordResult", mock.Anything, mock.MatchedBy(func(req leaderboard.RecordRequest) bool {
		return req.UserID == winner && req.Won && req.Score == 450 && req.QuestionCount == 5 && req.Eligible
	})).Return(nil).Once()
	board.On("RecordResult", mock.Anything, mock.MatchedBy(func(req leaderboard.RecordRequest) bool {
		return req.UserID == loser && !req.Won
	})).Return(nil).Once()
	board.On("Publish", mock.Anything, matchID).Return(nil).Once()

	require.True(t, r.Enqueue(RoundRecord{MatchID: matchID, Round: 1, BankedPoints: 450, At: at}))
	require.True(t, r.Enqueue(EliminationRecord{MatchID: matchID, Round: 1, UserID: loser, Reason: ReasonVote, At: at}))
	require.True(t, r.Enqueue(ResultRecord{
		MatchID:      matchID,
		WinnerID:     winner,
		BankedPoints: 450,
		Rounds:       2,
		Standings: []Standing{
			{UserID: winner, DisplayName: "w", Correct: 4, Wrong: 1, Banked: 450, Winner: true},
			{UserID: loser, DisplayName: "l", Correct: 1, Wrong: 3},
		},
		FinishedAt: at,
	}))

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()
	require.Eventually(t, func() bool { return r.running.Load() }, time.Second, time.Millisecond)
	r.Stop()
	<-done

	store.AssertExpectations(t)
	board.AssertExpectations(t)
}

func TestRecorderStartThenStopDrains(t *testing.T) {
	store := new(mockResultStore)
	r := NewRecorder(store, nil, 8, time.Second, zerolog.Nop())
	matchID := uuid.New()

	store.On("SaveRoundSummary", mock.Anything, mock.MatchedBy(func(p repository.RoundSummaryParams) bool {
		return p.MatchID == matchID
	})).Return(nil).Times(3)

	for round := 1; round <= 3; round++ {
		require.True(t, r.Enqueue(RoundRecord{MatchID: matchID, Round: round}))
	}
	r.Start()
	r.Stop()

	store.AssertExpectations(t)
	assert.Empty(t, r.queue)
}

func TestRecorderNilWinner(t *testing.T) {
	store := new(mockResultStore)
	r := NewRecorder(store, nil, 1, time.Second, zerolog.Nop())

	store.On("SaveMatchResult", mock.Anything, mock.MatchedBy(func(p repository.MatchResultParams) bool {
		return p.WinnerID == nil
	})).Return(nil).Once()

	r.handle(ResultRecord{MatchID: uuid.New()})
	store.AssertExpectations(t)
}
