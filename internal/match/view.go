package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/internal/question"
	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// view helpers build wire payloads from state. They copy everything so the
// payload stays valid after the lock is released.

func (s *State) wirePlayers() []ws.Player {
	players := make([]ws.Player, len(s.Players))
	for i, p := range s.Players {
		players[i] = ws.Player{
			UserID:      p.UserID.String(),
			DisplayName: p.DisplayName,
			Eliminated:  p.Eliminated,
			Winner:      p.Winner,
		}
	}
	return players
}

func (s *State) turnOrder() ws.TurnOrderPayload {
	ids := s.aliveIDs()
	ordered := make([]string, len(ids))
	for i, id := range ids {
		ordered[i] = id.String()
	}
	current := ""
	if p := s.currentPlayer(); p != nil {
		current = p.UserID.String()
	}
	return ws.TurnOrderPayload{
		MatchID:         s.MatchID.String(),
		OrderedAliveIDs: ordered,
		CurrentTurnID:   current,
		ServerTicks:     s.now().UnixMilli(),
	}
}

func wireQuestion(q question.Question, assigned uuid.UUID, limit time.Duration) ws.QuestionPayload {
	opts := append([]string(nil), q.Options...)
	payload := ws.QuestionPayload{
		ID:          q.ID,
		Prompt:      q.Prompt,
		Options:     opts,
		TimeLimitMs: limit.Milliseconds(),
	}
	if assigned != uuid.Nil {
		payload.AssignedUserID = assigned.String()
	}
	return payload
}

func (s *State) roundStats() []ws.PlayerRoundStats {
	stats := make([]ws.PlayerRoundStats, 0, len(s.Players))
	for _, p := range s.Players {
		if p.Eliminated {
			continue
		}
		stats = append(stats, ws.PlayerRoundStats{
			UserID:  p.UserID.String(),
			Correct: p.RoundCorrect,
			Wrong:   p.RoundWrong,
			Banked:  p.RoundBanked,
		})
	}
	return stats
}

func (s *State) voteEntries() []ws.VoteEntry {
	entries := make([]ws.VoteEntry, 0, len(s.Votes))
	for _, p := range s.Players {
		target, ok := s.Votes[p.UserID]
		if !ok {
			continue
		}
		entry := ws.VoteEntry{VoterID: p.UserID.String()}
		if target != nil {
			t := target.String()
			entry.TargetID = &t
		}
		entries = append(entries, entry)
	}
	return entries
}

// ownVote is the viewer's ballot, if cast. Other ballots stay hidden until
// the reveal.
func (s *State) ownVote(viewer uuid.UUID) []ws.VoteEntry {
	target, ok := s.Votes[viewer]
	if !ok {
		return nil
	}
	entry := ws.VoteEntry{VoterID: viewer.String()}
	if target != nil {
		t := target.String()
		entry.TargetID = &t
	}
	return []ws.VoteEntry{entry}
}

// Snapshot renders the state for a resynchronizing client. viewer receives
// their private exam question when one is pending.
func (s *State) Snapshot(viewer uuid.UUID) ws.MatchStatePayload {
	view := ws.MatchStatePayload{
		MatchID:       s.MatchID.String(),
		HostID:        s.HostID.String(),
		Phase:         string(s.Phase),
		Round:         s.Round,
		Players:       s.wirePlayers(),
		CurrentChain:  s.CurrentChain,
		BankedPoints:  s.BankedPoints,
		QuestionsLeft: len(s.Queue),
		Finished:      s.Finished,
	}
	if p := s.currentPlayer(); p != nil && s.Phase != PhaseLobby && s.Phase != PhaseFinished {
		view.CurrentTurnID = p.UserID.String()
	}
	if s.WeakestRivalID != uuid.Nil {
		view.WeakestRivalID = s.WeakestRivalID.String()
	}
	if s.Duel != nil && s.Duel.OpponentID != uuid.Nil {
		view.DuelOpponentID = s.Duel.OpponentID.String()
	}
	if s.WinnerID != uuid.Nil {
		view.WinnerID = s.WinnerID.String()
	}
	if s.Phase == PhaseVoting {
		view.Votes = s.ownVote(viewer)
	}
	if s.Current != nil {
		q := wireQuestion(s.Current.Question, s.Current.UserID, s.Current.TimeLimit)
		view.Question = &q
	}
	if ev := s.Event; ev != nil {
		view.ActiveEventID = ev.ID.String()
		view.ActiveEventKind = string(ev.Kind)
		switch {
		case ev.Lightning != nil:
			if q, ok := ev.Lightning.current(); ok && ev.Lightning.Acked {
				wq := wireQuestion(q, ev.Lightning.TargetID, ev.Lightning.timeLeft(s.now()))
				view.Question = &wq
			}
		case ev.Exam != nil:
			if _, pending := ev.Exam.Pending[viewer]; pending {
				wq := wireQuestion(ev.Exam.Assigned[viewer], viewer, ev.Exam.Deadline.Sub(s.now()))
				view.Question = &wq
			}
		}
	}
	return view
}
