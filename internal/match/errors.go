package match

import (
	"errors"
	"fmt"
)

// Error is a client-correctable precondition failure. Code is stable and
// safe to send to clients.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrMatchNotFound      = &Error{Code: "match_not_found", Message: "Match not found"}
	ErrNotInMatch         = &Error{Code: "not_in_match", Message: "You are not a player in this match"}
	ErrPlayerEliminated   = &Error{Code: "player_eliminated", Message: "Eliminated players cannot act"}
	ErrNotYourTurn        = &Error{Code: "not_your_turn", Message: "It is not your turn"}
	ErrWrongPhase         = &Error{Code: "wrong_phase", Message: "Action not allowed in the current phase"}
	ErrEventInProgress    = &Error{Code: "wrong_phase", Message: "A special event is in progress"}
	ErrStaleQuestion      = &Error{Code: "stale_question", Message: "Question is no longer active"}
	ErrInvalidVoteTarget  = &Error{Code: "invalid_vote_target", Message: "Invalid vote target"}
	ErrInvalidOpponent    = &Error{Code: "invalid_opponent", Message: "Opponent is not eligible for the duel"}
	ErrUnknownWildcard    = &Error{Code: "unknown_wildcard", Message: "Unknown wildcard"}
	ErrWildcardBlocked    = &Error{Code: "wildcard_blocked", Message: "Wildcards are blocked until next round"}
	ErrInvalidTarget      = &Error{Code: "invalid_wildcard_target", Message: "Wildcard target is not valid"}
	ErrNotHost            = &Error{Code: "not_host", Message: "Only the host can start the match"}
	ErrAlreadyStarted     = &Error{Code: "already_started", Message: "Match already started"}
	ErrTooFewPlayers      = &Error{Code: "too_few_players", Message: "At least two players are required"}
	ErrMatchFull          = &Error{Code: "match_full", Message: "Match is full"}
	ErrNoActiveEvent      = &Error{Code: "no_active_event", Message: "No matching special event is active"}
	ErrNotEnoughQuestions = &Error{Code: "not_enough_questions", Message: "Not enough questions left for this action"}
	ErrMatchFinished      = &Error{Code: "match_finished", Message: "Match is already finished"}
)

// InvariantError marks a state the engine must never reach. The transition
// that produced it is rolled back.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Detail)
}

func invariantf(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsPrecondition reports whether err is a client-correctable *Error.
func IsPrecondition(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsInvariant reports whether err is an *InvariantError.
func IsInvariant(err error) bool {
	var e *InvariantError
	return errors.As(err, &e)
}

// PublicError maps any error to the code and message a client may see.
func PublicError(err error) (code, message string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, e.Message
	}
	return "internal_error", "Something went wrong, please try again"
}
