package match

import (
	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// join adds a new player while the match is in the lobby. Existing players
// may rejoin in any phase. The caller always gets the lobby header and a
// fresh snapshot.
func (s *State) join(p Participant, out *outbox) error {
	existing := s.player(p.UserID)
	if existing == nil {
		if s.Phase != PhaseLobby {
			return ErrAlreadyStarted
		}
		if limit := s.deps.rules.MaxPlayers; limit > 0 && len(s.Players) >= limit {
			return ErrMatchFull
		}
		existing = s.addPlayer(p)
		out.broadcast(ws.TypePlayerJoined, ws.PlayerJoinedPayload{
			MatchID: s.MatchID.String(),
			Player: ws.Player{
				UserID:      existing.UserID.String(),
				DisplayName: existing.DisplayName,
			},
		})
	}

	out.send(p.UserID, ws.TypeMatchJoined, ws.MatchJoinedPayload{
		MatchID:    s.MatchID.String(),
		HostID:     s.HostID.String(),
		Difficulty: s.Difficulty,
		Locale:     s.Locale,
		Players:    s.wirePlayers(),
	})
	out.send(p.UserID, ws.TypeMatchState, s.Snapshot(p.UserID))
	return nil
}

// canStart checks the host-only lobby preconditions for StartMatch.
func (s *State) canStart(userID uuid.UUID) error {
	if err := s.requireHost(userID); err != nil {
		return err
	}
	if s.Phase != PhaseLobby {
		return ErrAlreadyStarted
	}
	if len(s.Players) < 2 {
		return ErrTooFewPlayers
	}
	return nil
}

// verify checks the turn invariant after a transition. A failure rolls the
// transition back.
func (s *State) verify(op string) error {
	if s.Finished {
		return nil
	}
	switch s.Phase {
	case PhaseQuestioning, PhaseDuel, PhaseFinal:
		return s.checkTurn(op)
	}
	return nil
}
