package match

import (
	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// WildcardKind names a one-per-round modifier.
type WildcardKind string

const (
	WildcardShield       WildcardKind = "shield"
	WildcardDoublePoints WildcardKind = "double_points"
	WildcardExtraTime    WildcardKind = "extra_time"
	WildcardTimePenalty  WildcardKind = "time_penalty"
)

// ParseWildcard validates a client-supplied wildcard name.
func ParseWildcard(raw string) (WildcardKind, bool) {
	switch k := WildcardKind(raw); k {
	case WildcardShield, WildcardDoublePoints, WildcardExtraTime, WildcardTimePenalty:
		return k, true
	default:
		return "", false
	}
}

func (s *State) useWildcard(userID uuid.UUID, raw string, target uuid.UUID, out *outbox) error {
	p, err := s.requireActive(userID)
	if err != nil {
		return err
	}
	kind, ok := ParseWildcard(raw)
	if !ok {
		return ErrUnknownWildcard
	}
	if s.Phase != PhaseQuestioning {
		return ErrWrongPhase
	}
	if s.Event != nil {
		return ErrEventInProgress
	}
	if p.WildcardBlockUntilRound > s.Round {
		return ErrWildcardBlocked
	}

	delta := s.deps.rules.WildcardTimeDelta
	payload := ws.WildcardUsedPayload{
		MatchID: s.MatchID.String(),
		UserID:  p.UserID.String(),
		Kind:    string(kind),
	}

	switch kind {
	case WildcardShield:
		p.ShieldActive = true
	case WildcardDoublePoints:
		p.DoublePointsActive = true
	case WildcardExtraTime:
		p.PendingTimeDelta += delta
	case WildcardTimePenalty:
		t := s.player(target)
		if t == nil || t.Eliminated || t == p {
			return ErrInvalidTarget
		}
		t.PendingTimeDelta -= delta
		payload.TargetID = target.String()
	}
	p.WildcardBlockUntilRound = s.Round + 1

	out.broadcast(ws.TypeWildcardUsed, payload)
	return nil
}
