package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

type envelope struct {
	to      uuid.UUID // uuid.Nil broadcasts to the match group
	msgType string
	payload any
}

// outbox collects everything a transition wants to tell the outside world.
// It is filled under the match lock and drained after release.
type outbox struct {
	matchID  uuid.UUID
	messages []envelope
	records  []any
	events   []eventOutcome
	hooks    []func()
}

type eventOutcome struct {
	kind    EventKind
	outcome string
}

func newOutbox(matchID uuid.UUID) *outbox {
	return &outbox{matchID: matchID}
}

func (o *outbox) broadcast(msgType string, payload any) {
	o.messages = append(o.messages, envelope{msgType: msgType, payload: payload})
}

func (o *outbox) send(to uuid.UUID, msgType string, payload any) {
	o.messages = append(o.messages, envelope{to: to, msgType: msgType, payload: payload})
}

func (o *outbox) record(rec any) {
	o.records = append(o.records, rec)
}

// afterCommit queues fn to run after the lock is released and before any
// message is sent.
func (o *outbox) afterCommit(fn func()) {
	o.hooks = append(o.hooks, fn)
}

func (o *outbox) eventDone(kind EventKind, outcome string) {
	o.events = append(o.events, eventOutcome{kind: kind, outcome: outcome})
}

// Persistence records emitted by transitions.

// RoundRecord summarizes a finished questioning phase.
type RoundRecord struct {
	MatchID      uuid.UUID
	Round        int
	BankedPoints int
	Players      []ws.PlayerRoundStats
	At           time.Time
}

// EliminationRecord is written whenever a player leaves the match.
type EliminationRecord struct {
	MatchID uuid.UUID
	Round   int
	UserID  uuid.UUID
	Reason  string
	At      time.Time
}

// Standing is one player's line in the final result.
type Standing struct {
	UserID      uuid.UUID
	DisplayName string
	Correct     int
	Wrong       int
	Banked      int
	Winner      bool
}

// ResultRecord is written once when a match finishes.
type ResultRecord struct {
	MatchID      uuid.UUID
	WinnerID     uuid.UUID
	BankedPoints int
	Rounds       int
	Standings    []Standing
	FinishedAt   time.Time
}

// Elimination reasons.
const (
	ReasonVote     = "vote"
	ReasonCoinFlip = "coin_flip"
	ReasonDuel     = "duel"
	ReasonFinal    = "final"
)
