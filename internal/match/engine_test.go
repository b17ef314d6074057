package match

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

func TestOperationOnUnknownMatch(t *testing.T) {
	h := newHarness(t, testRules())
	err := h.engine.Bank(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrMatchNotFound)

	_, err = h.engine.Snapshot(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestCreateMatchReturnsExisting(t *testing.T) {
	h := newHarness(t, testRules())
	h.lobby(2)

	id, created, err := h.engine.CreateMatch(context.Background(), Participant{UserID: uuid.New()}, CreateRequest{MatchID: h.matchID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, h.matchID, id)
	assert.Equal(t, 1, h.registry.Len())
}

func TestJoinAndStartPreconditions(t *testing.T) {
	rules := testRules()
	rules.MaxPlayers = 3
	h := newHarness(t, rules)
	h.lobby(1)
	ctx := context.Background()

	assert.ErrorIs(t, h.engine.StartMatch(ctx, h.matchID, h.players[0]), ErrTooFewPlayers)

	second := uuid.New()
	require.NoError(t, h.engine.JoinMatch(ctx, h.matchID, Participant{UserID: second, DisplayName: "p1"}, uuid.New(), &recordingChannel{}))
	require.NoError(t, h.engine.JoinMatch(ctx, h.matchID, Participant{UserID: uuid.New()}, uuid.New(), nil))
	assert.ErrorIs(t, h.engine.JoinMatch(ctx, h.matchID, Participant{UserID: uuid.New()}, uuid.New(), nil), ErrMatchFull)

	assert.ErrorIs(t, h.engine.StartMatch(ctx, h.matchID, second), ErrNotHost)
	assert.ErrorIs(t, h.engine.StartMatch(ctx, h.matchID, uuid.New()), ErrNotInMatch)

	require.NoError(t, h.engine.StartMatch(ctx, h.matchID, h.players[0]))
	assert.ErrorIs(t, h.engine.StartMatch(ctx, h.matchID, h.players[0]), ErrAlreadyStarted)
	assert.ErrorIs(t, h.engine.JoinMatch(ctx, h.matchID, Participant{UserID: uuid.New()}, uuid.New(), nil), ErrAlreadyStarted)

	// Existing players may rejoin after the start.
	assert.NoError(t, h.engine.JoinMatch(ctx, h.matchID, Participant{UserID: second}, uuid.New(), &recordingChannel{}))
}

func TestStartMatchWithoutQuestions(t *testing.T) {
	h := newHarness(t, testRules())
	h.engine.questions = &stubSource{count: 0}
	h.lobby(3)

	err := h.engine.StartMatch(context.Background(), h.matchID, h.players[0])
	assert.ErrorIs(t, err, ErrNotEnoughQuestions)

	h.engine.questions = &stubSource{err: errors.New("pool offline")}
	err = h.engine.StartMatch(context.Background(), h.matchID, h.players[0])
	require.Error(t, err)
	code, _ := PublicError(err)
	assert.Equal(t, "internal_error", code)

	h.state(func(s *State) { assert.Equal(t, PhaseLobby, s.Phase) })
}

func TestJoinReplacesPreviousSession(t *testing.T) {
	h := newHarness(t, testRules())
	h.lobby(2)
	old := h.channels[h.players[1]]

	fresh := &recordingChannel{}
	require.NoError(t, h.engine.JoinMatch(context.Background(), h.matchID, Participant{UserID: h.players[1]}, uuid.New(), fresh))

	var notice ws.ForcedDisconnectPayload
	old.last(t, ws.TypeForcedDisconnect, &notice)
	assert.Equal(t, DisconnectSessionReplaced, notice.Code)
	assert.True(t, old.closed)
	assert.Len(t, fresh.ofType(ws.TypeMatchJoined), 1)
	assert.Len(t, fresh.ofType(ws.TypeMatchState), 1)
	assert.Equal(t, 2, h.hub.GroupSize(h.matchID))
}

func TestChainGrowsThenBankThenWrongAnswer(t *testing.T) {
	rules := testRules()
	rules.QuestionsPerPlayerRound = 3
	h := newHarness(t, rules)
	h.started(3)
	ctx := context.Background()

	var chains []int
	for i := 0; i < 3; i++ {
		h.answerTurn(rightAnswer)
		h.assertTurnInvariant()
		h.state(func(s *State) { chains = append(chains, s.CurrentChain) })
	}
	assert.Equal(t, []int{100, 250, 450}, chains)

	banker, _ := h.turn()
	require.NoError(t, h.engine.Bank(ctx, h.matchID, banker))
	h.state(func(s *State) {
		assert.Equal(t, 450, s.BankedPoints)
		assert.Equal(t, 0, s.CurrentChain)
	})

	var bank ws.BankStatePayload
	h.channels[h.players[2]].last(t, ws.TypeBankState, &bank)
	assert.Equal(t, 450, bank.BankedPoints)
	assert.Equal(t, 0, bank.CurrentChain)

	h.answerTurn(wrongAnswer)
	h.state(func(s *State) {
		assert.Equal(t, 450, s.BankedPoints)
		assert.Equal(t, 0, s.CurrentChain)
	})
	h.assertTurnInvariant()
}

func TestWrongAnswerResetsChain(t *testing.T) {
	rules := testRules()
	rules.QuestionsPerPlayerRound = 2
	h := newHarness(t, rules)
	h.started(3)

	h.answerTurn(rightAnswer)
	h.answerTurn(rightAnswer)
	h.answerTurn(wrongAnswer)
	h.state(func(s *State) {
		assert.Equal(t, 0, s.CurrentChain)
		assert.Equal(t, 0, s.Streak)
		assert.Equal(t, 0, s.BankedPoints)
	})
}

func TestPreconditionFailuresDoNotMutate(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(3)
	ctx := context.Background()

	holder, qid := h.turn()
	var other uuid.UUID
	for _, id := range h.players {
		if id != holder {
			other = id
			break
		}
	}

	var before *State
	h.state(func(s *State) { before = s.clone() })

	assert.ErrorIs(t, h.engine.SubmitAnswer(ctx, h.matchID, other, qid, rightAnswer), ErrNotYourTurn)
	assert.ErrorIs(t, h.engine.SubmitAnswer(ctx, h.matchID, holder, "stale", rightAnswer), ErrStaleQuestion)
	assert.ErrorIs(t, h.engine.Bank(ctx, h.matchID, other), ErrNotYourTurn)
	assert.ErrorIs(t, h.engine.Vote(ctx, h.matchID, holder, nil), ErrWrongPhase)
	assert.ErrorIs(t, h.engine.UseWildcard(ctx, h.matchID, holder, "teleport", uuid.Nil), ErrUnknownWildcard)
	assert.ErrorIs(t, h.engine.SubmitAnswer(ctx, h.matchID, uuid.New(), qid, rightAnswer), ErrNotInMatch)

	h.state(func(s *State) {
		assert.Equal(t, before.TurnIndex, s.TurnIndex)
		assert.Equal(t, before.CurrentChain, s.CurrentChain)
		assert.Equal(t, len(before.Queue), len(s.Queue))
		assert.Equal(t, before.Current.Question.ID, s.Current.Question.ID)
		assert.Empty(t, s.Votes)
	})
}

func TestWildcardOncePerRound(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(3)
	ctx := context.Background()

	holder, _ := h.turn()
	require.NoError(t, h.engine.UseWildcard(ctx, h.matchID, holder, string(WildcardDoublePoints), uuid.Nil))
	assert.ErrorIs(t, h.engine.UseWildcard(ctx, h.matchID, holder, string(WildcardShield), uuid.Nil), ErrWildcardBlocked)
	assert.ErrorIs(t, h.engine.UseWildcard(ctx, h.matchID, h.players[1], string(WildcardTimePenalty), h.players[1]), ErrInvalidTarget)

	h.answerTurn(rightAnswer)
	h.state(func(s *State) { assert.Equal(t, 200, s.CurrentChain) })

	var used ws.WildcardUsedPayload
	h.channels[h.players[2]].last(t, ws.TypeWildcardUsed, &used)
	assert.Equal(t, string(WildcardDoublePoints), used.Kind)
}

func TestTimePenaltyShortensNextQuestion(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(3)
	ctx := context.Background()

	holder, _ := h.turn()
	var next uuid.UUID
	h.state(func(s *State) {
		idx := (s.TurnIndex + 1) % len(s.Players)
		next = s.Players[idx].UserID
	})
	require.NoError(t, h.engine.UseWildcard(ctx, h.matchID, holder, string(WildcardTimePenalty), next))

	h.answerTurn(rightAnswer)
	h.state(func(s *State) {
		require.NotNil(t, s.Current)
		assert.Equal(t, next, s.Current.UserID)
		assert.Equal(t, s.deps.rules.QuestionTime-s.deps.rules.WildcardTimeDelta, s.Current.TimeLimit)
		assert.Zero(t, s.player(next).PendingTimeDelta)
	})
}

func TestVoteOverwrite(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(4)
	h.toVoting()

	require.NoError(t, h.vote(0, intp(1)))
	require.NoError(t, h.vote(0, intp(2)))
	assert.ErrorIs(t, h.vote(0, intp(0)), ErrInvalidVoteTarget)

	h.state(func(s *State) {
		require.Len(t, s.Votes, 1)
		assert.Equal(t, h.players[2], *s.Votes[h.players[0]])
		assert.LessOrEqual(t, len(s.Votes), len(s.alive()))
	})
}

func TestPluralityNeedsNoCoinFlip(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(4)
	h.toVoting()

	require.NoError(t, h.vote(0, intp(1)))
	require.NoError(t, h.vote(2, intp(1)))
	require.NoError(t, h.vote(3, intp(1)))
	require.NoError(t, h.vote(1, nil))

	h.state(func(s *State) {
		assert.Equal(t, h.players[1], s.WeakestRivalID)
		assert.Equal(t, PhaseDuel, s.Phase)
		require.NotNil(t, s.Duel)
		assert.ElementsMatch(t, []uuid.UUID{h.players[0], h.players[2], h.players[3]}, s.Duel.VoterIDs)
	})
	h.assertTurnInvariant()

	watcher := h.channels[h.players[0]]
	assert.Empty(t, watcher.ofType(ws.TypeCoinTossResult))

	var reveal ws.VoteRevealPayload
	watcher.last(t, ws.TypeVoteReveal, &reveal)
	assert.Len(t, reveal.Entries, 4)

	var duel ws.DuelStartInfoPayload
	watcher.last(t, ws.TypeDuelStart, &duel)
	assert.Equal(t, h.players[1].String(), duel.WeakestRivalID)
}

func TestTiedVoteGoesToCoinFlip(t *testing.T) {
	t.Run("heads duels the pick", func(t *testing.T) {
		h := newHarness(t, testRules())
		h.rng.vals = []int{1, 0}
		h.started(4)
		h.toVoting()
		splitVote(t, h)

		h.state(func(s *State) {
			assert.Equal(t, h.players[2], s.WeakestRivalID)
			assert.Equal(t, PhaseDuel, s.Phase)
		})

		var toss ws.CoinTossResultPayload
		h.channels[h.players[0]].last(t, ws.TypeCoinTossResult, &toss)
		assert.Equal(t, []string{h.players[1].String(), h.players[2].String()}, toss.Candidates)
		assert.True(t, toss.ShouldEnableDuel)
		assert.Equal(t, CoinHeads, toss.Result)
		assert.Equal(t, h.players[2].String(), toss.WeakestRivalID)
	})

	t.Run("tails eliminates the pick", func(t *testing.T) {
		h := newHarness(t, testRules())
		h.rng.vals = []int{0, 1}
		h.started(4)
		h.toVoting()
		splitVote(t, h)

		h.state(func(s *State) {
			assert.True(t, s.player(h.players[1]).Eliminated)
			assert.Equal(t, PhaseQuestioning, s.Phase)
			assert.Equal(t, 2, s.Round)
		})
		h.assertTurnInvariant()

		var toss ws.CoinTossResultPayload
		h.channels[h.players[0]].last(t, ws.TypeCoinTossResult, &toss)
		assert.False(t, toss.ShouldEnableDuel)
		assert.Equal(t, CoinTails, toss.Result)

		elims := h.sink.eliminations()
		require.Len(t, elims, 1)
		assert.Equal(t, ReasonCoinFlip, elims[0].Reason)
		assert.Equal(t, h.players[1], elims[0].UserID)
	})
}

func splitVote(t *testing.T, h *harness) {
	t.Helper()
	require.NoError(t, h.vote(0, intp(1)))
	require.NoError(t, h.vote(1, intp(2)))
	require.NoError(t, h.vote(2, intp(1)))
	require.NoError(t, h.vote(3, intp(2)))
}

func TestShieldDiscountsVotes(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(4)
	ctx := context.Background()

	holder, _ := h.turn()
	require.NoError(t, h.engine.UseWildcard(ctx, h.matchID, holder, string(WildcardShield), uuid.Nil))
	h.toVoting()

	shielded := 0
	for i, id := range h.players {
		if id == holder {
			shielded = i
		}
	}
	other := (shielded + 1) % 4
	for i := range h.players {
		target := shielded
		if i == shielded {
			target = other
		}
		require.NoError(t, h.vote(i, intp(target)))
	}

	h.state(func(s *State) {
		assert.Equal(t, h.players[other], s.WeakestRivalID)
		assert.False(t, s.player(holder).ShieldActive)
	})
}

func TestDuelLoserEliminatedAndFinalEntered(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(3)
	ctx := context.Background()
	h.toVoting()

	require.NoError(t, h.vote(0, intp(1)))
	require.NoError(t, h.vote(2, intp(1)))
	require.NoError(t, h.vote(1, intp(0)))

	assert.ErrorIs(t, h.engine.ChooseOpponent(ctx, h.matchID, h.players[0], h.players[2]), ErrNotYourTurn)
	assert.ErrorIs(t, h.engine.ChooseOpponent(ctx, h.matchID, h.players[1], h.players[1]), ErrInvalidOpponent)
	require.NoError(t, h.engine.ChooseOpponent(ctx, h.matchID, h.players[1], h.players[0]))
	h.assertTurnInvariant()

	// The rival misses, the opponent answers right.
	rival := h.answerTurn(wrongAnswer)
	assert.Equal(t, h.players[1], rival)
	h.assertTurnInvariant()
	opponent := h.answerTurn(rightAnswer)
	assert.Equal(t, h.players[0], opponent)

	h.state(func(s *State) {
		assert.True(t, s.player(h.players[1]).Eliminated)
		assert.Equal(t, PhaseFinal, s.Phase)
		assert.Equal(t, 2, s.Round)
		require.NotNil(t, s.Duel)
		assert.True(t, s.Duel.Final)
		assert.True(t, s.Duel.isDuelist(h.players[0]))
		assert.True(t, s.Duel.isDuelist(h.players[2]))
	})
	h.assertTurnInvariant()

	var res ws.DuelResolutionPayload
	h.channels[h.players[2]].last(t, ws.TypeDuelResolution, &res)
	assert.Equal(t, string(DuelVoterWins), res.Outcome)
	assert.Equal(t, h.players[1].String(), res.EliminatedUserID)
}

func TestFinalDecidesWinner(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(2)

	h.state(func(s *State) {
		assert.Equal(t, PhaseFinal, s.Phase)
		assert.Equal(t, 1, s.Round)
	})

	first := h.answerTurn(rightAnswer)
	h.assertTurnInvariant()
	second := h.answerTurn(wrongAnswer)
	assert.NotEqual(t, first, second)

	h.state(func(s *State) {
		assert.True(t, s.Finished)
		assert.Equal(t, PhaseFinished, s.Phase)
		assert.Equal(t, first, s.WinnerID)
	})

	var done ws.MatchCompletePayload
	h.channels[second].last(t, ws.TypeMatchComplete, &done)
	assert.Equal(t, first.String(), done.WinnerID)

	var results int
	for _, rec := range h.sink.records {
		if r, ok := rec.(ResultRecord); ok {
			results++
			assert.Equal(t, first, r.WinnerID)
			assert.Len(t, r.Standings, 2)
		}
	}
	assert.Equal(t, 1, results)
	assert.ErrorIs(t, h.engine.Bank(context.Background(), h.matchID, first), ErrWrongPhase)
}

func TestFinalSuddenDeath(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(2)

	h.answerTurn(rightAnswer)
	h.answerTurn(rightAnswer)
	h.state(func(s *State) {
		assert.False(t, s.Finished)
		assert.True(t, s.Duel.SuddenDeath)
	})

	first := h.answerTurn(wrongAnswer)
	second := h.answerTurn(rightAnswer)
	h.state(func(s *State) {
		assert.True(t, s.Finished)
		assert.Equal(t, second, s.WinnerID)
		assert.True(t, s.player(first).Eliminated)
	})
}

func TestLevelFinalOutOfQuestionsUsesTiebreak(t *testing.T) {
	h := newHarness(t, testRules())
	h.engine.questions = &stubSource{count: 2}
	h.started(2)

	h.answerTurn(rightAnswer)
	h.answerTurn(rightAnswer)

	var winner, loser uuid.UUID
	h.state(func(s *State) {
		require.True(t, s.Finished)
		winner = s.WinnerID
		for _, p := range s.Players {
			if p.Eliminated {
				loser = p.UserID
			}
		}
	})
	require.NotEqual(t, uuid.Nil, loser)

	watcher := h.channels[h.players[0]]
	assert.Empty(t, watcher.ofType(ws.TypeCoinTossResult))
	require.Len(t, watcher.ofType(ws.TypeFinalTiebreak), 1)

	var tb ws.FinalTiebreakPayload
	watcher.last(t, ws.TypeFinalTiebreak, &tb)
	assert.Equal(t, TiebreakCoinToss, tb.Decider)
	assert.Equal(t, CoinHeads, tb.Result)
	assert.Equal(t, winner.String(), tb.WinnerID)
	assert.Equal(t, loser.String(), tb.LoserID)
	assert.ElementsMatch(t, []string{h.players[0].String(), h.players[1].String()}, tb.Finalists)
}

func TestResetDisconnectsSessions(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(3)
	ctx := context.Background()

	require.NoError(t, h.engine.Reset(ctx, h.matchID))
	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, 0, h.hub.GroupSize(h.matchID))

	var notice ws.ForcedDisconnectPayload
	h.channels[h.players[1]].last(t, ws.TypeForcedDisconnect, &notice)
	assert.Equal(t, DisconnectMatchReset, notice.Code)

	assert.ErrorIs(t, h.engine.Reset(ctx, h.matchID), ErrMatchNotFound)
}

func TestSnapshotForViewer(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(3)

	holder, qid := h.turn()
	view, err := h.engine.Snapshot(context.Background(), h.matchID, holder)
	require.NoError(t, err)
	assert.Equal(t, string(PhaseQuestioning), view.Phase)
	assert.Equal(t, holder.String(), view.CurrentTurnID)
	require.NotNil(t, view.Question)
	assert.Equal(t, qid, view.Question.ID)
	assert.Len(t, view.Players, 3)
}

func TestLeaveKeepsMatchRunning(t *testing.T) {
	h := newHarness(t, testRules())
	h.lobby(2)
	sessionID := uuid.New()
	ch := &recordingChannel{}
	third := uuid.New()
	require.NoError(t, h.engine.JoinMatch(context.Background(), h.matchID, Participant{UserID: third}, sessionID, ch))
	require.Equal(t, 3, h.hub.GroupSize(h.matchID))

	h.engine.Leave(h.matchID, sessionID)
	h.engine.Leave(h.matchID, sessionID)
	assert.Equal(t, 2, h.hub.GroupSize(h.matchID))

	_, err := h.registry.Get(h.matchID)
	assert.NoError(t, err)
}

func TestSameSessionMovesToAnotherMatch(t *testing.T) {
	h := newHarness(t, testRules())
	ctx := context.Background()
	user := Participant{UserID: uuid.New(), DisplayName: "p0"}
	session := uuid.New()
	ch := &recordingChannel{}

	first, _, err := h.engine.CreateMatch(ctx, user, CreateRequest{Difficulty: "easy"})
	require.NoError(t, err)
	require.NoError(t, h.engine.JoinMatch(ctx, first, user, session, ch))

	second, _, err := h.engine.CreateMatch(ctx, user, CreateRequest{Difficulty: "easy"})
	require.NoError(t, err)
	require.NoError(t, h.engine.JoinMatch(ctx, second, user, session, ch))

	assert.False(t, ch.closed)
	assert.Empty(t, ch.ofType(ws.TypeForcedDisconnect))
	assert.Len(t, ch.ofType(ws.TypeMatchJoined), 2)
	assert.Zero(t, h.hub.GroupSize(first))
	assert.Equal(t, 1, h.hub.GroupSize(second))

	group, ok := h.hub.TryGetGroupForAccount(user.UserID)
	require.True(t, ok)
	assert.Equal(t, second, group)
}

func TestSnapshotHidesOtherVotes(t *testing.T) {
	h := newHarness(t, testRules())
	h.started(4)
	h.toVoting()
	ctx := context.Background()

	require.NoError(t, h.vote(0, intp(1)))
	require.NoError(t, h.vote(2, nil))

	view, err := h.engine.Snapshot(ctx, h.matchID, h.players[0])
	require.NoError(t, err)
	require.Len(t, view.Votes, 1)
	assert.Equal(t, h.players[0].String(), view.Votes[0].VoterID)
	require.NotNil(t, view.Votes[0].TargetID)
	assert.Equal(t, h.players[1].String(), *view.Votes[0].TargetID)

	view, err = h.engine.Snapshot(ctx, h.matchID, h.players[2])
	require.NoError(t, err)
	require.Len(t, view.Votes, 1)
	assert.Nil(t, view.Votes[0].TargetID)

	view, err = h.engine.Snapshot(ctx, h.matchID, h.players[1])
	require.NoError(t, err)
	assert.Empty(t, view.Votes)

	_, err = h.engine.Snapshot(ctx, h.matchID, uuid.New())
	assert.ErrorIs(t, err, ErrNotInMatch)
}
