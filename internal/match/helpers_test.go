package match

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/weakest-rival/internal/question"
	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

const (
	rightAnswer = "right"
	wrongAnswer = "wrong"
)

// recordingChannel stores every message pushed to it.
type recordingChannel struct {
	mu     sync.Mutex
	msgs   []ws.Message
	fail   bool
	closed bool
}

func (c *recordingChannel) Send(msg ws.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return ws.ErrConnectionClosed
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recordingChannel) ofType(msgType string) []ws.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ws.Message
	for _, m := range c.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (c *recordingChannel) last(t *testing.T, msgType string, v any) {
	t.Helper()
	msgs := c.ofType(msgType)
	require.NotEmpty(t, msgs, "no %s message received", msgType)
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, v))
}

// stubSource hands out a fixed set of questions whose answer is rightAnswer.
type stubSource struct {
	count int
	err   error
}

func (s *stubSource) LoadQuestions(_ context.Context, difficulty, locale string, maxCount int) ([]question.Question, error) {
	if s.err != nil {
		return nil, s.err
	}
	n := min(s.count, maxCount)
	qs := make([]question.Question, n)
	for i := range qs {
		qs[i] = question.Question{
			ID:         fmt.Sprintf("q%03d", i),
			Prompt:     fmt.Sprintf("Question %d", i),
			Options:    []string{rightAnswer, wrongAnswer},
			Answer:     rightAnswer,
			Difficulty: difficulty,
			Locale:     locale,
			Source:     "test",
		}
	}
	return qs, nil
}

// memorySink collects persistence records.
type memorySink struct {
	mu      sync.Mutex
	records []any
}

func (s *memorySink) Enqueue(rec any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return true
}

func (s *memorySink) eliminations() []EliminationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EliminationRecord
	for _, r := range s.records {
		if e, ok := r.(EliminationRecord); ok {
			out = append(out, e)
		}
	}
	return out
}

// manualTimer fires only when the test says so.
type manualTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualTimers) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{d: d, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualTimers) latest(t *testing.T) *manualTimer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.timers, "no timer armed")
	return m.timers[len(m.timers)-1]
}

// fire runs the callback even when the timer was stopped, the way a real
// timer can race its own Stop.
func (mt *manualTimer) fire() {
	mt.fired = true
	mt.fn()
}

// scriptedRand returns queued values modulo n.
type scriptedRand struct {
	mu   sync.Mutex
	vals []int
}

func (r *scriptedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.vals) == 0 {
		return 0
	}
	v := r.vals[0]
	r.vals = r.vals[1:]
	return v % n
}

type harness struct {
	t        *testing.T
	engine   *Engine
	registry *Registry
	hub      *ws.Hub
	timers   *manualTimers
	sink     *memorySink
	rng      *scriptedRand
	matchID  uuid.UUID
	players  []uuid.UUID
	channels map[uuid.UUID]*recordingChannel
}

func testRules() Rules {
	r := DefaultRules()
	r.QuestionsPerPlayerRound = 1
	r.DuelQuestionsEach = 1
	r.FinalQuestionsEach = 1
	r.LightningEvery = 0
	r.ExamEvery = 0
	r.LightningQuestions = 3
	r.LightningThreshold = 2
	return r
}

func newHarness(t *testing.T, rules Rules) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		registry: NewRegistry(),
		hub:      ws.NewHub(zerolog.Nop()),
		timers:   &manualTimers{},
		sink:     &memorySink{},
		rng:      &scriptedRand{},
		channels: make(map[uuid.UUID]*recordingChannel),
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.engine = NewEngine(h.registry, h.hub, &stubSource{count: 200}, h.sink, Options{
		Rules:     rules,
		Now:       func() time.Time { return now },
		AfterFunc: h.timers.AfterFunc,
		NewRand:   func() Rand { return h.rng },
	}, zerolog.Nop())
	return h
}

// lobby creates a match with n players, all connected.
func (h *harness) lobby(n int) {
	h.t.Helper()
	ctx := context.Background()
	h.players = make([]uuid.UUID, n)
	for i := range h.players {
		h.players[i] = uuid.New()
	}
	host := Participant{UserID: h.players[0], DisplayName: "p0"}
	id, created, err := h.engine.CreateMatch(ctx, host, CreateRequest{Difficulty: "easy"})
	require.NoError(h.t, err)
	require.True(h.t, created)
	h.matchID = id

	for i, uid := range h.players {
		ch := &recordingChannel{}
		h.channels[uid] = ch
		p := Participant{UserID: uid, DisplayName: fmt.Sprintf("p%d", i)}
		require.NoError(h.t, h.engine.JoinMatch(ctx, id, p, uuid.New(), ch))
	}
}

// started creates and starts a match with n players.
func (h *harness) started(n int) {
	h.t.Helper()
	h.lobby(n)
	require.NoError(h.t, h.engine.StartMatch(context.Background(), h.matchID, h.players[0]))
}

func (h *harness) state(fn func(s *State)) {
	h.t.Helper()
	m, err := h.registry.Get(h.matchID)
	require.NoError(h.t, err)
	m.read(fn)
}

// turn returns the turn holder and their assigned question id.
func (h *harness) turn() (uuid.UUID, string) {
	h.t.Helper()
	var uid uuid.UUID
	var qid string
	h.state(func(s *State) {
		if p := s.currentPlayer(); p != nil {
			uid = p.UserID
		}
		if s.Current != nil {
			qid = s.Current.Question.ID
		}
	})
	require.NotEqual(h.t, uuid.Nil, uid, "no turn holder")
	return uid, qid
}

func (h *harness) answerTurn(answer string) uuid.UUID {
	h.t.Helper()
	uid, qid := h.turn()
	require.NotEmpty(h.t, qid, "turn holder has no question")
	require.NoError(h.t, h.engine.SubmitAnswer(context.Background(), h.matchID, uid, qid, answer))
	return uid
}

// toVoting answers questions until the round closes.
func (h *harness) toVoting() {
	h.t.Helper()
	for i := 0; i < 64; i++ {
		var phase Phase
		h.state(func(s *State) { phase = s.Phase })
		if phase == PhaseVoting {
			return
		}
		require.Equal(h.t, PhaseQuestioning, phase)
		h.answerTurn(rightAnswer)
	}
	h.t.Fatal("round never reached voting")
}

func (h *harness) vote(voter int, target *int) error {
	var tid *uuid.UUID
	if target != nil {
		id := h.players[*target]
		tid = &id
	}
	return h.engine.Vote(context.Background(), h.matchID, h.players[voter], tid)
}

func (h *harness) assertTurnInvariant() {
	h.t.Helper()
	h.state(func(s *State) {
		if s.Finished || s.Phase == PhaseVoting || s.Phase == PhaseLobby {
			return
		}
		holders := 0
		for i, p := range s.Players {
			if i == s.TurnIndex && !p.Eliminated {
				holders++
			}
		}
		require.Equal(h.t, 1, holders, "phase %s turn index %d", s.Phase, s.TurnIndex)
		if s.Phase == PhaseDuel || s.Phase == PhaseFinal {
			require.True(h.t, s.Duel.isDuelist(s.Players[s.TurnIndex].UserID))
		}
	})
}

func intp(i int) *int { return &i }
