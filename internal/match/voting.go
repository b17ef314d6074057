package match

import (
	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// Coin faces reported in CoinTossResult.
const (
	CoinHeads = "heads"
	CoinTails = "tails"
)

// castVote stores the voter's choice for this round, replacing any earlier
// one. A nil target abstains. Once every alive player has voted the round is
// tallied.
func (s *State) castVote(voterID uuid.UUID, target *uuid.UUID, out *outbox) error {
	if _, err := s.requireActive(voterID); err != nil {
		return err
	}
	if s.Phase != PhaseVoting {
		return ErrWrongPhase
	}

	var stored *uuid.UUID
	if target != nil {
		if *target == voterID {
			return ErrInvalidVoteTarget
		}
		t := s.player(*target)
		if t == nil || t.Eliminated {
			return ErrInvalidVoteTarget
		}
		id := *target
		stored = &id
	}
	s.Votes[voterID] = stored

	if len(s.Votes) < len(s.alive()) {
		return nil
	}
	return s.tally(out)
}

// tally reveals the votes and picks the weakest rival. A tie goes to a coin
// flip among the tied players; heads sends the pick to a duel, tails
// eliminates them outright.
func (s *State) tally(out *outbox) error {
	out.broadcast(ws.TypeVoteReveal, ws.VoteRevealPayload{
		MatchID: s.MatchID.String(),
		Entries: s.voteEntries(),
	})

	candidates := s.topCandidates()
	for _, p := range s.Players {
		p.ShieldActive = false
	}
	if len(candidates) == 0 {
		return invariantf("tally", "no vote candidates among %d alive players", len(s.alive()))
	}

	rival := candidates[0]
	duel := true
	if len(candidates) > 1 {
		s.Phase = PhaseCoinFlip
		rival = candidates[s.deps.rng.Intn(len(candidates))]
		duel = s.deps.rng.Intn(2) == 0
		s.broadcastCoinToss(candidates, rival, duel, out)
	}
	s.WeakestRivalID = rival

	if !duel {
		s.eliminateAndContinue(rival, ReasonCoinFlip, out)
		return nil
	}
	return s.startDuel(rival, s.duelPool(rival), out)
}

// topCandidates returns the players sharing the highest vote count, in seat
// order. Votes against shielded players do not count. When no vote counts,
// every unshielded alive player is a candidate.
func (s *State) topCandidates() []uuid.UUID {
	counts := make(map[uuid.UUID]int, len(s.Votes))
	for _, target := range s.Votes {
		if target == nil {
			continue
		}
		t := s.player(*target)
		if t == nil || t.Eliminated || t.ShieldActive {
			continue
		}
		counts[*target]++
	}

	var candidates []uuid.UUID
	best := 0
	for _, p := range s.Players {
		c := counts[p.UserID]
		if p.Eliminated || c == 0 {
			continue
		}
		switch {
		case c > best:
			best = c
			candidates = []uuid.UUID{p.UserID}
		case c == best:
			candidates = append(candidates, p.UserID)
		}
	}
	if len(candidates) > 0 {
		return candidates
	}

	for _, p := range s.alive() {
		if !p.ShieldActive {
			candidates = append(candidates, p.UserID)
		}
	}
	if len(candidates) == 0 {
		candidates = s.aliveIDs()
	}
	return candidates
}

// duelPool lists who may be picked as the rival's opponent: the players who
// voted for the rival, or every other alive player when nobody did.
func (s *State) duelPool(rival uuid.UUID) []uuid.UUID {
	var pool []uuid.UUID
	for _, p := range s.Players {
		if p.Eliminated || p.UserID == rival {
			continue
		}
		if target, ok := s.Votes[p.UserID]; ok && target != nil && *target == rival {
			pool = append(pool, p.UserID)
		}
	}
	if len(pool) > 0 {
		return pool
	}
	for _, p := range s.alive() {
		if p.UserID != rival {
			pool = append(pool, p.UserID)
		}
	}
	return pool
}

func (s *State) broadcastCoinToss(candidates []uuid.UUID, picked uuid.UUID, heads bool, out *outbox) {
	ids := make([]string, len(candidates))
	for i, id := range candidates {
		ids[i] = id.String()
	}
	result := CoinTails
	if heads {
		result = CoinHeads
	}
	reveal := picked.String()
	out.broadcast(ws.TypeCoinTossResult, ws.CoinTossResultPayload{
		MatchID:          s.MatchID.String(),
		Result:           result,
		Candidates:       ids,
		WeakestRivalID:   reveal,
		ShouldEnableDuel: heads,
		Reveal:           &reveal,
	})
}
