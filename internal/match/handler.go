package match

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/auth"
	"github.com/gokatarajesh/weakest-rival/internal/logging"
	httperrors "github.com/gokatarajesh/weakest-rival/pkg/http/errors"
	ws "github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// Handler routes WebSocket messages from one connection to the engine.
type Handler struct {
	engine  *Engine
	authSvc auth.Resolver
	logger  zerolog.Logger
}

// NewHandler creates a match WebSocket handler.
func NewHandler(engine *Engine, authSvc auth.Resolver, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		authSvc: authSvc,
		logger:  logging.Component(logger, "match_ws"),
	}
}

// session is one live connection. Its fields are only touched from the
// connection's read loop.
type session struct {
	id        uuid.UUID
	principal auth.Principal
	out       ws.Channel
	matches   map[uuid.UUID]struct{}
}

func newSession(p auth.Principal, out ws.Channel) *session {
	return &session{
		id:        uuid.New(),
		principal: p,
		out:       out,
		matches:   make(map[uuid.UUID]struct{}),
	}
}

func (s *session) participant() Participant {
	return Participant{UserID: s.principal.UserID, DisplayName: s.principal.DisplayName}
}

// close unregisters every match the session joined.
func (h *Handler) close(sess *session) {
	for matchID := range sess.matches {
		h.engine.Leave(matchID, sess.id)
	}
	sess.matches = map[uuid.UUID]struct{}{}
}

// handleMessage routes incoming WebSocket messages.
func (h *Handler) handleMessage(ctx context.Context, sess *session, msg ws.Message) error {
	ctx = logging.IntoContext(ctx, h.logger.With().
		Str("session_id", sess.id.String()).
		Str("user_id", sess.principal.UserID.String()).
		Str("type", msg.Type).
		Logger())

	var err error
	switch msg.Type {
	case ws.TypeCreateMatch:
		err = h.handleCreate(ctx, sess, msg)
	case ws.TypeJoinMatch:
		err = h.handleJoin(ctx, sess, msg)
	case ws.TypeStartMatch:
		var req ws.StartMatchPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			return h.engine.StartMatch(ctx, id, sess.principal.UserID)
		})
	case ws.TypeSubmitAnswer:
		var req ws.SubmitAnswerPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			return h.engine.SubmitAnswer(ctx, id, sess.principal.UserID, req.QuestionID, req.Answer)
		})
	case ws.TypeBank:
		var req ws.BankPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			return h.engine.Bank(ctx, id, sess.principal.UserID)
		})
	case ws.TypeCastVote:
		var req ws.CastVotePayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			var target *uuid.UUID
			if req.TargetID != nil {
				t, perr := uuid.Parse(*req.TargetID)
				if perr != nil {
					return ErrInvalidVoteTarget
				}
				target = &t
			}
			return h.engine.Vote(ctx, id, sess.principal.UserID, target)
		})
	case ws.TypeChooseOpponent:
		var req ws.ChooseOpponentPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			opp, perr := uuid.Parse(req.OpponentID)
			if perr != nil {
				return ErrInvalidOpponent
			}
			return h.engine.ChooseOpponent(ctx, id, sess.principal.UserID, opp)
		})
	case ws.TypeUseWildcard:
		var req ws.UseWildcardPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			target := uuid.Nil
			if req.TargetID != "" {
				t, perr := uuid.Parse(req.TargetID)
				if perr != nil {
					return ErrInvalidTarget
				}
				target = t
			}
			return h.engine.UseWildcard(ctx, id, sess.principal.UserID, req.Kind, target)
		})
	case ws.TypeAckEvent:
		var req ws.AckEventPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			eventID, perr := uuid.Parse(req.EventID)
			if perr != nil {
				return ErrNoActiveEvent
			}
			return h.engine.AckEvent(ctx, id, sess.principal.UserID, eventID)
		})
	case ws.TypeTriggerLightning:
		var req ws.TriggerLightningPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			target, perr := uuid.Parse(req.TargetID)
			if perr != nil {
				return ErrInvalidTarget
			}
			return h.engine.TriggerLightning(ctx, id, sess.principal.UserID, target)
		})
	case ws.TypeTriggerExam:
		var req ws.TriggerExamPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			return h.engine.TriggerSurpriseExam(ctx, id, sess.principal.UserID)
		})
	case ws.TypeRequestState:
		var req ws.RequestStatePayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			view, serr := h.engine.Snapshot(ctx, id, sess.principal.UserID)
			if serr != nil {
				return serr
			}
			return h.reply(sess, msg.RequestID, ws.TypeMatchState, view)
		})
	case ws.TypeLeaveMatch:
		var req ws.LeaveMatchPayload
		err = h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
			h.engine.Leave(id, sess.id)
			delete(sess.matches, id)
			return nil
		})
	case ws.TypePing:
		return h.reply(sess, msg.RequestID, ws.TypePong, struct{}{})
	default:
		return h.sendError(sess, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}

	if err != nil {
		return h.replyError(sess, msg.RequestID, err)
	}
	return nil
}

func (h *Handler) handleCreate(ctx context.Context, sess *session, msg ws.Message) error {
	var req ws.CreateMatchPayload
	if err := decode(msg.Payload, &req); err != nil {
		return err
	}
	create := CreateRequest{Difficulty: req.Difficulty, Locale: req.Locale}
	if req.MatchID != "" {
		id, err := uuid.Parse(req.MatchID)
		if err != nil {
			return errInvalidMatchID
		}
		create.MatchID = id
	}

	id, _, err := h.engine.CreateMatch(ctx, sess.participant(), create)
	if err != nil {
		return err
	}
	if err := h.engine.JoinMatch(ctx, id, sess.participant(), sess.id, sess.out); err != nil {
		return err
	}
	sess.matches[id] = struct{}{}
	return nil
}

func (h *Handler) handleJoin(ctx context.Context, sess *session, msg ws.Message) error {
	var req ws.JoinMatchPayload
	return h.withMatch(msg, &req, func() string { return req.MatchID }, func(id uuid.UUID) error {
		if err := h.engine.JoinMatch(ctx, id, sess.participant(), sess.id, sess.out); err != nil {
			return err
		}
		sess.matches[id] = struct{}{}
		return nil
	})
}

// withMatch decodes the payload into dst and runs fn with the parsed match id.
func (h *Handler) withMatch(msg ws.Message, dst any, matchID func() string, fn func(uuid.UUID) error) error {
	if err := decode(msg.Payload, dst); err != nil {
		return err
	}
	id, err := uuid.Parse(matchID())
	if err != nil {
		return errInvalidMatchID
	}
	return fn(id)
}

var (
	errInvalidPayload = &Error{Code: httperrors.ErrCodeInvalidPayload, Message: "Invalid message payload"}
	errInvalidMatchID = &Error{Code: httperrors.ErrCodeInvalidMatchID, Message: "Invalid match ID"}
)

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errInvalidPayload
	}
	return nil
}

func (h *Handler) reply(sess *session, requestID, msgType string, payload any) error {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return sess.out.Send(msg)
}

func (h *Handler) replyError(sess *session, requestID string, err error) error {
	code, message := PublicError(err)
	return h.sendError(sess, requestID, code, message)
}

func (h *Handler) sendError(sess *session, requestID, code, message string) error {
	return h.reply(sess, requestID, ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
}
