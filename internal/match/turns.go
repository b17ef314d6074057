package match

import (
	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/internal/match/scoring"
	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// startRound opens the next round, or moves to Final or Finished when too
// few players are left.
func (s *State) startRound(out *outbox) {
	alive := s.alive()
	if len(alive) <= 1 {
		winner := uuid.Nil
		if len(alive) == 1 {
			winner = alive[0].UserID
		}
		s.finish(winner, out)
		return
	}

	lightningTarget := s.mostWrongLastRound()

	s.Round++
	s.Votes = make(map[uuid.UUID]*uuid.UUID)
	s.WeakestRivalID = uuid.Nil
	s.Duel = nil
	s.TurnsTaken = 0
	s.CurrentChain = 0
	s.Streak = 0
	s.Current = nil
	for _, p := range s.Players {
		p.RoundCorrect = 0
		p.RoundWrong = 0
		p.RoundBanked = 0
	}

	if len(alive) == 2 {
		s.enterFinal(out)
		return
	}

	s.Phase = PhaseQuestioning
	if p := s.currentPlayer(); p == nil || p.Eliminated {
		s.advanceTurn()
	}
	if s.triggerScheduledEvent(lightningTarget, out) {
		return
	}
	s.nextQuestion(out)
}

// mostWrongLastRound picks the alive player with the most wrong answers in
// the round that just ended. Ties go to the earliest seat.
func (s *State) mostWrongLastRound() uuid.UUID {
	if s.Round == 0 {
		return uuid.Nil
	}
	best := uuid.Nil
	most := -1
	for _, p := range s.Players {
		if p.Eliminated {
			continue
		}
		if p.RoundWrong > most {
			most = p.RoundWrong
			best = p.UserID
		}
	}
	return best
}

// nextQuestion hands the turn holder a question, or closes questioning once
// the round budget or the queue is exhausted.
func (s *State) nextQuestion(out *outbox) {
	if s.TurnsTaken >= s.deps.rules.roundBudget(len(s.alive())) {
		s.endQuestioning(out)
		return
	}
	if !s.issueQuestion(out) {
		s.endQuestioning(out)
	}
}

// issueQuestion assigns the next queued question to the turn holder.
func (s *State) issueQuestion(out *outbox) bool {
	p := s.currentPlayer()
	if p == nil || p.Eliminated {
		return false
	}
	q, ok := s.drawQuestion()
	if !ok {
		return false
	}
	limit := scoring.QuestionTime(s.deps.rules.QuestionTime, p.PendingTimeDelta)
	p.PendingTimeDelta = 0
	s.Current = &AssignedQuestion{Question: q, UserID: p.UserID, IssuedAt: s.now(), TimeLimit: limit}

	out.broadcast(ws.TypeTurnOrder, s.turnOrder())
	out.broadcast(ws.TypeQuestionPrompt, ws.QuestionPromptPayload{
		MatchID:  s.MatchID.String(),
		Round:    s.Round,
		Phase:    string(s.Phase),
		Question: wireQuestion(q, p.UserID, limit),
	})
	return true
}

// resume re-issues the turn question after a special event ends.
func (s *State) resume(out *outbox) {
	if s.Phase != PhaseQuestioning || s.Finished {
		return
	}
	s.nextQuestion(out)
}

func (s *State) endQuestioning(out *outbox) {
	s.returnCurrent()
	s.Phase = PhaseVoting
	stats := s.roundStats()
	out.broadcast(ws.TypeRoundSummary, ws.RoundSummaryPayload{
		MatchID:     s.MatchID.String(),
		RoundNumber: s.Round,
		Players:     stats,
	})
	out.record(RoundRecord{
		MatchID:      s.MatchID,
		Round:        s.Round,
		BankedPoints: s.BankedPoints,
		Players:      stats,
		At:           s.now(),
	})
}

// submitAnswer routes an answer to the active event, the duel, or the
// regular turn.
func (s *State) submitAnswer(userID uuid.UUID, questionID, answer string, out *outbox) error {
	if s.Finished {
		return ErrMatchFinished
	}
	p, err := s.requireActive(userID)
	if err != nil {
		return err
	}
	if ev := s.Event; ev != nil {
		switch ev.Kind {
		case EventLightning:
			return s.answerLightning(p, questionID, answer, out)
		case EventSurpriseExam:
			return s.answerExam(p, questionID, answer, out)
		}
	}
	switch s.Phase {
	case PhaseQuestioning:
		return s.answerTurn(p, questionID, answer, out)
	case PhaseDuel, PhaseFinal:
		return s.answerDuel(p, questionID, answer, out)
	default:
		return ErrWrongPhase
	}
}

func (s *State) answerTurn(p *PlayerRuntime, questionID, answer string, out *outbox) error {
	if s.currentPlayer() != p {
		return ErrNotYourTurn
	}
	if s.Current == nil || s.Current.UserID != p.UserID {
		return invariantf("submit_answer", "turn holder %s has no assigned question", p.UserID)
	}
	if s.Current.Question.ID != questionID {
		return ErrStaleQuestion
	}
	if err := s.checkTurn("submit_answer"); err != nil {
		return err
	}

	q := s.Current.Question
	correct := q.IsCorrect(answer)
	doubled := p.DoublePointsActive
	p.DoublePointsActive = false

	inc := 0
	if correct {
		s.Streak++
		inc = s.deps.scorer.ChainIncrement(s.Streak, doubled)
		s.CurrentChain += inc
		p.RoundCorrect++
		p.TotalCorrect++
	} else {
		s.Streak = 0
		s.CurrentChain = 0
		p.RoundWrong++
		p.TotalWrong++
	}
	s.Current = nil

	out.broadcast(ws.TypeAnswerResult, ws.AnswerResultPayload{
		MatchID:        s.MatchID.String(),
		UserID:         p.UserID.String(),
		QuestionID:     q.ID,
		IsCorrect:      correct,
		ChainIncrement: inc,
		CurrentChain:   s.CurrentChain,
		BankedPoints:   s.BankedPoints,
	})

	s.TurnsTaken++
	s.advanceTurn()
	s.nextQuestion(out)
	return nil
}

// bank moves the whole chain into the banked total. Only the turn holder
// may bank and the turn does not pass.
func (s *State) bank(userID uuid.UUID, out *outbox) error {
	p, err := s.requireActive(userID)
	if err != nil {
		return err
	}
	if s.Phase != PhaseQuestioning {
		return ErrWrongPhase
	}
	if s.Event != nil {
		return ErrEventInProgress
	}
	if s.currentPlayer() != p {
		return ErrNotYourTurn
	}

	amount := s.CurrentChain
	s.BankedPoints += amount
	p.RoundBanked += amount
	p.TotalBanked += amount
	s.CurrentChain = 0
	s.Streak = 0

	out.broadcast(ws.TypeBankState, ws.BankStatePayload{
		MatchID:      s.MatchID.String(),
		UserID:       p.UserID.String(),
		CurrentChain: s.CurrentChain,
		BankedPoints: s.BankedPoints,
	})
	return nil
}

// eliminateAndContinue removes a player and opens the next round.
func (s *State) eliminateAndContinue(id uuid.UUID, reason string, out *outbox) {
	s.Phase = PhaseElimination
	s.eliminate(id)
	out.broadcast(ws.TypeEliminationResult, ws.EliminationResultPayload{
		MatchID:          s.MatchID.String(),
		EliminatedUserID: id.String(),
		RemainingPlayers: len(s.alive()),
	})
	out.record(EliminationRecord{
		MatchID: s.MatchID,
		Round:   s.Round,
		UserID:  id,
		Reason:  reason,
		At:      s.now(),
	})
	s.startRound(out)
}

func (s *State) finish(winnerID uuid.UUID, out *outbox) {
	s.disposeTimers()
	s.Event = nil
	s.savedTurn = nil
	s.Current = nil
	s.Duel = nil
	s.Phase = PhaseFinished
	s.Finished = true
	s.WinnerID = winnerID

	standings := make([]Standing, 0, len(s.Players))
	for _, p := range s.Players {
		if p.UserID == winnerID {
			p.Winner = true
		}
		standings = append(standings, Standing{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Correct:     p.TotalCorrect,
			Wrong:       p.TotalWrong,
			Banked:      p.TotalBanked,
			Winner:      p.Winner,
		})
	}

	winner := ""
	if winnerID != uuid.Nil {
		winner = winnerID.String()
	}
	out.broadcast(ws.TypeMatchComplete, ws.MatchCompletePayload{
		MatchID:      s.MatchID.String(),
		WinnerID:     winner,
		BankedPoints: s.BankedPoints,
		Rounds:       s.Round,
		Players:      s.wirePlayers(),
	})
	out.record(ResultRecord{
		MatchID:      s.MatchID,
		WinnerID:     winnerID,
		BankedPoints: s.BankedPoints,
		Rounds:       s.Round,
		Standings:    standings,
		FinishedAt:   s.now(),
	})
}
