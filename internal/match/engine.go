package match

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/logging"
	"github.com/gokatarajesh/weakest-rival/internal/match/scoring"
	"github.com/gokatarajesh/weakest-rival/internal/question"
	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// Forced disconnect codes sent by the engine.
const (
	DisconnectSessionReplaced = "session_replaced"
	DisconnectMatchReset      = "match_reset"
	DisconnectMatchAbandoned  = "match_abandoned"
)

// QuestionSource supplies the question queue when a match starts.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, difficulty, locale string, maxCount int) ([]question.Question, error)
}

// CallbackHub is the push fan-out the engine talks to. *ws.Hub satisfies it.
type CallbackHub interface {
	Register(groupID, sessionID, accountID uuid.UUID, ch ws.Channel) ws.Channel
	Unregister(groupID, sessionID uuid.UUID)
	Broadcast(groupID uuid.UUID, msg ws.Message) int
	TargetedSend(accountID uuid.UUID, msg ws.Message) error
	TryGetGroupForAccount(accountID uuid.UUID) (uuid.UUID, bool)
	GroupSize(groupID uuid.UUID) int
	CloseGroup(groupID uuid.UUID, payload ws.ForcedDisconnectPayload) int
}

// RecordSink accepts persistence records without blocking.
type RecordSink interface {
	Enqueue(rec any) bool
}

// Options tune engine behavior. Zero values fall back to production defaults.
type Options struct {
	Rules     Rules
	Now       func() time.Time
	AfterFunc TimerFactory
	NewRand   func() Rand
}

// CreateRequest describes a new match.
type CreateRequest struct {
	MatchID    uuid.UUID
	Difficulty string
	Locale     string
}

// Engine applies player operations to live matches. Every operation locks
// one match, applies one transition, and pushes the resulting messages after
// the lock is released.
type Engine struct {
	registry  *Registry
	hub       CallbackHub
	questions QuestionSource
	sink      RecordSink
	rules     Rules
	scorer    *scoring.Engine
	now       func() time.Time
	afterFunc TimerFactory
	newRand   func() Rand
	logger    zerolog.Logger
}

// NewEngine wires an engine around its collaborators.
func NewEngine(registry *Registry, hub CallbackHub, questions QuestionSource, sink RecordSink, opts Options, logger zerolog.Logger) *Engine {
	rules := opts.Rules
	if rules.MaxPlayers == 0 {
		rules = DefaultRules()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	afterFunc := opts.AfterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }
	}
	newRand := opts.NewRand
	if newRand == nil {
		newRand = func() Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	return &Engine{
		registry:  registry,
		hub:       hub,
		questions: questions,
		sink:      sink,
		rules:     rules,
		scorer:    scoring.NewEngine(rules.Scoring),
		now:       now,
		afterFunc: afterFunc,
		newRand:   newRand,
		logger:    logging.Component(logger, "match_engine"),
	}
}

// Rules returns the rules new matches are created with.
func (e *Engine) Rules() Rules {
	return e.rules
}

func (e *Engine) newMatch(id uuid.UUID, host Participant, req CreateRequest) *Match {
	deps := stateDeps{
		rules:     e.rules,
		scorer:    e.scorer,
		rng:       e.newRand(),
		now:       e.now,
		afterFunc: e.afterFunc,
		onExpire:  func(eventID uuid.UUID) { e.expire(id, eventID) },
	}
	return &Match{ID: id, state: newState(id, host, req.Difficulty, req.Locale, deps)}
}

// CreateMatch registers a lobby hosted by host. When req.MatchID names a
// live match that match is returned untouched and created is false.
func (e *Engine) CreateMatch(ctx context.Context, host Participant, req CreateRequest) (uuid.UUID, bool, error) {
	id := req.MatchID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, created := e.registry.GetOrCreate(id, func() *Match {
		return e.newMatch(id, host, req)
	})
	e.observe(ctx, "create_match", id, nil)
	if created {
		e.logger.Info().
			Str("match_id", id.String()).
			Str("host_id", host.UserID.String()).
			Msg("match created")
	}
	return id, created, nil
}

// JoinMatch adds the participant to the lobby, or rebinds an existing
// player, and registers ch for pushes. A previous session of the same
// account is told it was replaced.
func (e *Engine) JoinMatch(ctx context.Context, matchID uuid.UUID, p Participant, sessionID uuid.UUID, ch ws.Channel) error {
	return e.mutate(ctx, "join_match", matchID, func(s *State, out *outbox) error {
		if err := s.join(p, out); err != nil {
			return err
		}
		if ch != nil {
			out.afterCommit(func() {
				if replaced := e.hub.Register(matchID, sessionID, p.UserID, ch); replaced != nil {
					ws.NotifyForcedDisconnect(replaced, ws.ForcedDisconnectPayload{Code: DisconnectSessionReplaced}, e.logger)
				}
			})
		}
		return nil
	})
}

// StartMatch loads the question queue and opens round one. Questions are
// fetched without holding the match lock, so preconditions are checked
// again before the state changes.
func (e *Engine) StartMatch(ctx context.Context, matchID, userID uuid.UUID) error {
	const op = "start_match"

	m, err := e.registry.Get(matchID)
	if err != nil {
		e.observe(ctx, op, matchID, err)
		return err
	}
	var difficulty, locale string
	m.read(func(s *State) {
		err = s.canStart(userID)
		difficulty, locale = s.Difficulty, s.Locale
	})
	if err != nil {
		e.observe(ctx, op, matchID, err)
		return err
	}

	qs, err := e.questions.LoadQuestions(ctx, difficulty, locale, e.rules.QuestionPoolSize)
	if err != nil {
		err = fmt.Errorf("load questions: %w", err)
		e.observe(ctx, op, matchID, err)
		return err
	}
	if len(qs) == 0 {
		e.observe(ctx, op, matchID, ErrNotEnoughQuestions)
		return ErrNotEnoughQuestions
	}

	return e.mutate(ctx, op, matchID, func(s *State, out *outbox) error {
		if err := s.canStart(userID); err != nil {
			return err
		}
		s.Initialize(qs, out)
		return nil
	})
}

// SubmitAnswer answers the caller's assigned question.
func (e *Engine) SubmitAnswer(ctx context.Context, matchID, userID uuid.UUID, questionID, answer string) error {
	return e.mutate(ctx, "submit_answer", matchID, func(s *State, out *outbox) error {
		return s.submitAnswer(userID, questionID, answer, out)
	})
}

// Bank moves the current chain into the banked total.
func (e *Engine) Bank(ctx context.Context, matchID, userID uuid.UUID) error {
	return e.mutate(ctx, "bank", matchID, func(s *State, out *outbox) error {
		return s.bank(userID, out)
	})
}

// Vote records the caller's weakest-rival vote. A nil target abstains.
func (e *Engine) Vote(ctx context.Context, matchID, voterID uuid.UUID, target *uuid.UUID) error {
	return e.mutate(ctx, "cast_vote", matchID, func(s *State, out *outbox) error {
		return s.castVote(voterID, target, out)
	})
}

// ChooseOpponent lets the weakest rival pick their duel opponent.
func (e *Engine) ChooseOpponent(ctx context.Context, matchID, userID, opponentID uuid.UUID) error {
	return e.mutate(ctx, "choose_opponent", matchID, func(s *State, out *outbox) error {
		return s.chooseOpponent(userID, opponentID, out)
	})
}

// UseWildcard spends the caller's wildcard for this round. target is only
// read by wildcards that affect another player.
func (e *Engine) UseWildcard(ctx context.Context, matchID, userID uuid.UUID, kind string, target uuid.UUID) error {
	return e.mutate(ctx, "use_wildcard", matchID, func(s *State, out *outbox) error {
		return s.useWildcard(userID, kind, target, out)
	})
}

// AckEvent confirms the caller saw the active special event.
func (e *Engine) AckEvent(ctx context.Context, matchID, userID, eventID uuid.UUID) error {
	return e.mutate(ctx, "ack_event", matchID, func(s *State, out *outbox) error {
		return s.ackEvent(userID, eventID, out)
	})
}

// TriggerLightning starts a lightning challenge for target on the host's
// request.
func (e *Engine) TriggerLightning(ctx context.Context, matchID, requester, target uuid.UUID) error {
	return e.mutate(ctx, "trigger_lightning", matchID, func(s *State, out *outbox) error {
		return s.triggerLightning(requester, target, out)
	})
}

// TriggerSurpriseExam starts a surprise exam on the host's request.
func (e *Engine) TriggerSurpriseExam(ctx context.Context, matchID, requester uuid.UUID) error {
	return e.mutate(ctx, "trigger_exam", matchID, func(s *State, out *outbox) error {
		return s.triggerExam(requester, out)
	})
}

// Snapshot renders the match for viewer.
func (e *Engine) Snapshot(ctx context.Context, matchID, viewer uuid.UUID) (ws.MatchStatePayload, error) {
	m, err := e.registry.Get(matchID)
	if err != nil {
		e.observe(ctx, "request_state", matchID, err)
		return ws.MatchStatePayload{}, err
	}
	var view ws.MatchStatePayload
	m.read(func(s *State) {
		if s.player(viewer) == nil {
			err = ErrNotInMatch
			return
		}
		view = s.Snapshot(viewer)
	})
	if err != nil {
		e.observe(ctx, "request_state", matchID, err)
		return ws.MatchStatePayload{}, err
	}
	return view, nil
}

// Leave drops a session's push registration. The match itself carries on.
func (e *Engine) Leave(matchID, sessionID uuid.UUID) {
	e.hub.Unregister(matchID, sessionID)
}

// Reset removes the match, stops its timers, and disconnects its sessions.
func (e *Engine) Reset(ctx context.Context, matchID uuid.UUID) error {
	if !e.remove(ctx, "reset", matchID, DisconnectMatchReset) {
		return ErrMatchNotFound
	}
	return nil
}

// Abandon removes a match nobody is playing any more. Sessions still bound
// to it are told the match was abandoned. It reports whether the match
// existed.
func (e *Engine) Abandon(ctx context.Context, matchID uuid.UUID) bool {
	return e.remove(ctx, "abandon", matchID, DisconnectMatchAbandoned)
}

func (e *Engine) remove(ctx context.Context, op string, matchID uuid.UUID, code string) bool {
	if !e.registry.Remove(matchID) {
		e.observe(ctx, op, matchID, ErrMatchNotFound)
		return false
	}
	closed := e.hub.CloseGroup(matchID, ws.ForcedDisconnectPayload{Code: code})
	e.observe(ctx, op, matchID, nil)
	e.logger.Info().
		Str("match_id", matchID.String()).
		Str("reason", code).
		Int("sessions", closed).
		Msg("match removed")
	return true
}

// ResetBy resets the match on behalf of requester, who must be its host.
func (e *Engine) ResetBy(ctx context.Context, matchID, requester uuid.UUID) error {
	m, err := e.registry.Get(matchID)
	if err != nil {
		e.observe(ctx, "reset", matchID, err)
		return err
	}
	var host uuid.UUID
	m.read(func(s *State) { host = s.HostID })
	if host != requester {
		e.observe(ctx, "reset", matchID, ErrNotHost)
		return ErrNotHost
	}
	return e.Reset(ctx, matchID)
}

// expire is the special event timer callback.
func (e *Engine) expire(matchID, eventID uuid.UUID) {
	err := e.mutate(context.Background(), "event_timeout", matchID, func(s *State, out *outbox) error {
		s.expireEvent(eventID, out)
		return nil
	})
	if err != nil {
		e.logger.Debug().Err(err).
			Str("match_id", matchID.String()).
			Str("event_id", eventID.String()).
			Msg("event timer ignored")
	}
}

// mutate is the only path that changes match state: lock, transition,
// verify, unlock, then dispatch. A failed transition leaves no trace.
func (e *Engine) mutate(ctx context.Context, op string, matchID uuid.UUID, fn func(s *State, out *outbox) error) error {
	m, err := e.registry.Get(matchID)
	if err != nil {
		e.observe(ctx, op, matchID, err)
		return err
	}

	out := newOutbox(matchID)
	err = m.withLock(func(s *State) error {
		if err := fn(s, out); err != nil {
			return err
		}
		if err := s.verify(op); err != nil {
			return err
		}
		s.LastActivity = s.now()
		return nil
	})
	e.observe(ctx, op, matchID, err)
	if err != nil {
		return err
	}

	e.dispatch(out)
	return nil
}

// dispatch delivers an outbox. It must run without the match lock held.
func (e *Engine) dispatch(out *outbox) {
	for _, hook := range out.hooks {
		hook()
	}

	for _, env := range out.messages {
		msg, err := ws.NewMessage(env.msgType, env.payload)
		if err != nil {
			e.logger.Error().Err(err).Str("type", env.msgType).Msg("encode push message")
			continue
		}
		if env.to == uuid.Nil {
			e.hub.Broadcast(out.matchID, msg)
			deliveries.WithLabelValues("broadcast").Inc()
			continue
		}
		// Targeted messages only reach a session bound to this match.
		if group, ok := e.hub.TryGetGroupForAccount(env.to); !ok || group != out.matchID {
			deliveries.WithLabelValues("skipped").Inc()
			continue
		}
		if err := e.hub.TargetedSend(env.to, msg); err != nil {
			e.logger.Debug().Err(err).Str("user_id", env.to.String()).Str("type", env.msgType).Msg("targeted push lost")
			continue
		}
		deliveries.WithLabelValues("targeted").Inc()
	}

	if e.sink != nil {
		for _, rec := range out.records {
			e.sink.Enqueue(rec)
		}
	}

	for _, ev := range out.events {
		specialEvents.WithLabelValues(string(ev.kind), ev.outcome).Inc()
	}
}

// observe counts the operation and logs it at a level matching the error
// class.
func (e *Engine) observe(ctx context.Context, op string, matchID uuid.UUID, err error) {
	code := "ok"
	if err != nil {
		code, _ = PublicError(err)
	}
	operations.WithLabelValues(op, code).Inc()

	logger := logging.FromContextOr(ctx, e.logger)
	switch {
	case err == nil:
		return
	case IsPrecondition(err):
		logger.Debug().Str("op", op).Str("match_id", matchID.String()).Str("code", code).Msg("operation rejected")
	case IsInvariant(err):
		logger.Error().Err(err).Str("op", op).Str("match_id", matchID.String()).Msg("invariant violated, transition aborted")
	default:
		logger.Warn().Err(err).Str("op", op).Str("match_id", matchID.String()).Msg("operation failed")
	}
}
