package match

import (
	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// DuelOutcome is the result of a head-to-head.
type DuelOutcome string

const (
	DuelTie              DuelOutcome = "tie"
	DuelWeakestRivalWins DuelOutcome = "weakest_rival_wins"
	DuelVoterWins        DuelOutcome = "voter_wins"
)

// DuelState tracks a duel or the final. In the final WeakestRivalID holds
// the finalist who answers first.
type DuelState struct {
	Final          bool
	WeakestRivalID uuid.UUID
	OpponentID     uuid.UUID
	VoterIDs       []uuid.UUID
	QuestionsEach  int
	Asked          map[uuid.UUID]int
	Correct        map[uuid.UUID]int
	SuddenDeath    bool
}

func newDuel(rival, opponent uuid.UUID, pool []uuid.UUID, each int, final bool) *DuelState {
	if each < 1 {
		each = 1
	}
	return &DuelState{
		Final:          final,
		WeakestRivalID: rival,
		OpponentID:     opponent,
		VoterIDs:       pool,
		QuestionsEach:  each,
		Asked:          make(map[uuid.UUID]int, 2),
		Correct:        make(map[uuid.UUID]int, 2),
	}
}

func (d *DuelState) isDuelist(id uuid.UUID) bool {
	return id != uuid.Nil && (id == d.WeakestRivalID || id == d.OpponentID)
}

func (d *DuelState) inPool(id uuid.UUID) bool {
	for _, v := range d.VoterIDs {
		if v == id {
			return true
		}
	}
	return false
}

// settle reports whether the duel is decided. Regulation ends early once
// one side cannot catch up. A level final moves to sudden death, where
// every completed pair of answers is checked.
func (d *DuelState) settle() bool {
	a, b := d.WeakestRivalID, d.OpponentID
	askedA, askedB := d.Asked[a], d.Asked[b]
	corA, corB := d.Correct[a], d.Correct[b]

	if d.SuddenDeath {
		return askedA == askedB && corA != corB
	}

	remA := max(d.QuestionsEach-askedA, 0)
	remB := max(d.QuestionsEach-askedB, 0)
	if corA+remA < corB || corB+remB < corA {
		return true
	}
	if remA == 0 && remB == 0 {
		if corA != corB || !d.Final {
			return true
		}
		d.SuddenDeath = true
	}
	return false
}

func (d *DuelState) outcome() DuelOutcome {
	corA, corB := d.Correct[d.WeakestRivalID], d.Correct[d.OpponentID]
	switch {
	case corA > corB:
		return DuelWeakestRivalWins
	case corB > corA:
		return DuelVoterWins
	default:
		return DuelTie
	}
}

func (d *DuelState) clone() *DuelState {
	c := *d
	c.VoterIDs = append([]uuid.UUID(nil), d.VoterIDs...)
	c.Asked = make(map[uuid.UUID]int, len(d.Asked))
	for k, v := range d.Asked {
		c.Asked[k] = v
	}
	c.Correct = make(map[uuid.UUID]int, len(d.Correct))
	for k, v := range d.Correct {
		c.Correct[k] = v
	}
	return &c
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// startDuel puts the weakest rival in the chooser seat.
func (s *State) startDuel(rival uuid.UUID, pool []uuid.UUID, out *outbox) error {
	if len(pool) == 0 {
		return invariantf("start_duel", "rival %s has no eligible opponent", rival)
	}
	idx := s.playerIndex(rival)
	if idx < 0 || s.Players[idx].Eliminated {
		return invariantf("start_duel", "rival %s is not an alive player", rival)
	}

	s.Phase = PhaseDuel
	s.Duel = newDuel(rival, uuid.Nil, pool, s.deps.rules.DuelQuestionsEach, false)
	s.setTurn(idx)

	out.broadcast(ws.TypeDuelStart, ws.DuelStartInfoPayload{
		MatchID:        s.MatchID.String(),
		WeakestRivalID: rival.String(),
		VoterIDs:       idStrings(pool),
	})
	return nil
}

// chooseOpponent lets the weakest rival pick who they duel.
func (s *State) chooseOpponent(userID, opponentID uuid.UUID, out *outbox) error {
	if _, err := s.requireActive(userID); err != nil {
		return err
	}
	d := s.Duel
	if s.Phase != PhaseDuel || d == nil || d.Final || d.OpponentID != uuid.Nil {
		return ErrWrongPhase
	}
	if userID != d.WeakestRivalID {
		return ErrNotYourTurn
	}
	if !d.inPool(opponentID) {
		return ErrInvalidOpponent
	}
	if o := s.player(opponentID); o == nil || o.Eliminated {
		return ErrInvalidOpponent
	}

	d.OpponentID = opponentID
	if err := s.checkTurn("choose_opponent"); err != nil {
		return err
	}

	out.broadcast(ws.TypeDuelStart, ws.DuelStartInfoPayload{
		MatchID:        s.MatchID.String(),
		WeakestRivalID: d.WeakestRivalID.String(),
		VoterIDs:       idStrings(d.VoterIDs),
		OpponentID:     opponentID.String(),
	})
	s.nextDuelQuestion(out)
	return nil
}

// enterFinal starts the head-to-head between the last two players. The one
// with more banked points answers first.
func (s *State) enterFinal(out *outbox) {
	alive := s.alive()
	first, second := alive[0], alive[1]
	if second.TotalBanked > first.TotalBanked {
		first, second = second, first
	}

	s.Phase = PhaseFinal
	s.Duel = newDuel(first.UserID, second.UserID, nil, s.deps.rules.FinalQuestionsEach, true)
	s.setTurn(s.playerIndex(first.UserID))

	out.broadcast(ws.TypeDuelStart, ws.DuelStartInfoPayload{
		MatchID:        s.MatchID.String(),
		WeakestRivalID: first.UserID.String(),
		OpponentID:     second.UserID.String(),
		Final:          true,
	})
	s.nextDuelQuestion(out)
}

func (s *State) nextDuelQuestion(out *outbox) {
	if !s.issueQuestion(out) {
		s.resolveDuel(out)
	}
}

func (s *State) answerDuel(p *PlayerRuntime, questionID, answer string, out *outbox) error {
	d := s.Duel
	if d == nil || d.OpponentID == uuid.Nil {
		return ErrWrongPhase
	}
	if !d.isDuelist(p.UserID) || s.currentPlayer() != p {
		return ErrNotYourTurn
	}
	if s.Current == nil || s.Current.UserID != p.UserID {
		return invariantf("submit_answer", "duelist %s has no assigned question", p.UserID)
	}
	if s.Current.Question.ID != questionID {
		return ErrStaleQuestion
	}
	if err := s.checkTurn("submit_answer"); err != nil {
		return err
	}

	q := s.Current.Question
	correct := q.IsCorrect(answer)
	d.Asked[p.UserID]++
	if correct {
		d.Correct[p.UserID]++
		p.TotalCorrect++
	} else {
		p.TotalWrong++
	}
	s.Current = nil

	out.broadcast(ws.TypeAnswerResult, ws.AnswerResultPayload{
		MatchID:      s.MatchID.String(),
		UserID:       p.UserID.String(),
		QuestionID:   q.ID,
		IsCorrect:    correct,
		CurrentChain: s.CurrentChain,
		BankedPoints: s.BankedPoints,
	})

	if d.settle() {
		s.resolveDuel(out)
		return nil
	}
	s.advanceTurn()
	s.nextDuelQuestion(out)
	return nil
}

// resolveDuel eliminates exactly one duelist. In a regular duel a tie
// eliminates the weakest rival. A tied final falls back to total correct
// answers over the match, then a coin flip.
func (s *State) resolveDuel(out *outbox) {
	d := s.Duel
	outcome := d.outcome()

	var loser uuid.UUID
	switch outcome {
	case DuelWeakestRivalWins:
		loser = d.OpponentID
	case DuelVoterWins:
		loser = d.WeakestRivalID
	default:
		if d.Final {
			loser = s.finalTiebreakLoser(d.WeakestRivalID, d.OpponentID, out)
		} else {
			loser = d.WeakestRivalID
		}
	}

	s.returnCurrent()
	out.broadcast(ws.TypeDuelResolution, ws.DuelResolutionPayload{
		MatchID:          s.MatchID.String(),
		Outcome:          string(outcome),
		EliminatedUserID: loser.String(),
	})

	reason := ReasonDuel
	if d.Final {
		reason = ReasonFinal
	}
	s.eliminateAndContinue(loser, reason, out)
}

// Deciders of a level final.
const (
	TiebreakTotalCorrect = "total_correct"
	TiebreakCoinToss     = "coin_toss"
)

func (s *State) finalTiebreakLoser(a, b uuid.UUID, out *outbox) uuid.UUID {
	pa, pb := s.player(a), s.player(b)
	decider := TiebreakTotalCorrect
	result := ""
	var loser uuid.UUID
	switch {
	case pa.TotalCorrect > pb.TotalCorrect:
		loser = b
	case pb.TotalCorrect > pa.TotalCorrect:
		loser = a
	default:
		decider = TiebreakCoinToss
		loser, result = a, CoinTails
		if s.deps.rng.Intn(2) == 0 {
			loser, result = b, CoinHeads
		}
	}
	winner := a
	if loser == a {
		winner = b
	}
	out.broadcast(ws.TypeFinalTiebreak, ws.FinalTiebreakPayload{
		MatchID:   s.MatchID.String(),
		Finalists: []string{a.String(), b.String()},
		Decider:   decider,
		Result:    result,
		WinnerID:  winner.String(),
		LoserID:   loser.String(),
	})
	return loser
}
