package match

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/internal/match/scoring"
	"github.com/gokatarajesh/weakest-rival/internal/question"
)

// Phase is the coarse position of a match in its lifecycle.
type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhaseQuestioning Phase = "questioning"
	PhaseVoting      Phase = "voting"
	PhaseCoinFlip    Phase = "coin_flip"
	PhaseDuel        Phase = "duel"
	PhaseElimination Phase = "elimination"
	PhaseFinal       Phase = "final"
	PhaseFinished    Phase = "finished"
)

// Rand is the subset of *rand.Rand the engine draws from.
type Rand interface {
	Intn(n int) int
}

// Timer is a stoppable one-shot callback; *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// TimerFactory arms fn to run once after d.
type TimerFactory func(d time.Duration, fn func()) Timer

// Participant identifies a player joining a match.
type Participant struct {
	UserID      uuid.UUID
	DisplayName string
}

// PlayerRuntime is the per-match state of one player.
type PlayerRuntime struct {
	UserID                  uuid.UUID
	DisplayName             string
	Eliminated              bool
	Winner                  bool
	ShieldActive            bool
	DoublePointsActive      bool
	WildcardBlockUntilRound int
	PendingTimeDelta        time.Duration

	RoundCorrect int
	RoundWrong   int
	RoundBanked  int
	TotalCorrect int
	TotalWrong   int
	TotalBanked  int
}

// AssignedQuestion is the question currently owed an answer by UserID.
type AssignedQuestion struct {
	Question  question.Question
	UserID    uuid.UUID
	IssuedAt  time.Time
	TimeLimit time.Duration
}

type stateDeps struct {
	rules     Rules
	scorer    *scoring.Engine
	rng       Rand
	now       func() time.Time
	afterFunc TimerFactory
	onExpire  func(eventID uuid.UUID)
}

// State is the authoritative state of one match. It is only touched while
// the owning Match lock is held.
type State struct {
	MatchID    uuid.UUID
	HostID     uuid.UUID
	Difficulty string
	Locale     string
	Phase      Phase

	Players   []*PlayerRuntime
	Queue     []question.Question
	Round     int
	TurnIndex int
	lastTurn  int
	Current   *AssignedQuestion

	TurnsTaken   int
	CurrentChain int
	BankedPoints int
	Streak       int

	Votes          map[uuid.UUID]*uuid.UUID
	WeakestRivalID uuid.UUID
	Duel           *DuelState
	Event          *SpecialEvent
	savedTurn      *int

	Finished     bool
	WinnerID     uuid.UUID
	CreatedAt    time.Time
	LastActivity time.Time

	deps stateDeps
}

func newState(id uuid.UUID, host Participant, difficulty, locale string, deps stateDeps) *State {
	now := deps.now()
	s := &State{
		MatchID:      id,
		HostID:       host.UserID,
		Difficulty:   question.NormalizeDifficulty(difficulty),
		Locale:       question.NormalizeLocale(locale),
		Phase:        PhaseLobby,
		TurnIndex:    -1,
		lastTurn:     -1,
		Votes:        make(map[uuid.UUID]*uuid.UUID),
		CreatedAt:    now,
		LastActivity: now,
		deps:         deps,
	}
	s.addPlayer(host)
	return s
}

func (s *State) addPlayer(p Participant) *PlayerRuntime {
	pr := &PlayerRuntime{UserID: p.UserID, DisplayName: p.DisplayName}
	s.Players = append(s.Players, pr)
	return pr
}

// Initialize resets the match for a fresh game using questions as the queue.
func (s *State) Initialize(questions []question.Question, out *outbox) {
	s.disposeTimers()
	s.savedTurn = nil
	s.Event = nil

	for _, p := range s.Players {
		*p = PlayerRuntime{UserID: p.UserID, DisplayName: p.DisplayName}
	}
	s.Queue = append([]question.Question(nil), questions...)
	s.Round = 0
	s.TurnIndex = -1
	s.lastTurn = -1
	s.Current = nil
	s.CurrentChain = 0
	s.BankedPoints = 0
	s.Streak = 0
	s.Duel = nil
	s.WeakestRivalID = uuid.Nil
	s.Finished = false
	s.WinnerID = uuid.Nil

	s.startRound(out)
}

func (s *State) player(id uuid.UUID) *PlayerRuntime {
	for _, p := range s.Players {
		if p.UserID == id {
			return p
		}
	}
	return nil
}

func (s *State) playerIndex(id uuid.UUID) int {
	for i, p := range s.Players {
		if p.UserID == id {
			return i
		}
	}
	return -1
}

// currentPlayer returns the player at the turn index, or nil.
func (s *State) currentPlayer() *PlayerRuntime {
	if s.TurnIndex < 0 || s.TurnIndex >= len(s.Players) {
		return nil
	}
	return s.Players[s.TurnIndex]
}

func (s *State) alive() []*PlayerRuntime {
	out := make([]*PlayerRuntime, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.Eliminated {
			out = append(out, p)
		}
	}
	return out
}

func (s *State) aliveIDs() []uuid.UUID {
	alive := s.alive()
	ids := make([]uuid.UUID, len(alive))
	for i, p := range alive {
		ids[i] = p.UserID
	}
	return ids
}

// requireActive resolves the calling player and rejects eliminated ones.
func (s *State) requireActive(userID uuid.UUID) (*PlayerRuntime, error) {
	p := s.player(userID)
	if p == nil {
		return nil, ErrNotInMatch
	}
	if p.Eliminated {
		return nil, ErrPlayerEliminated
	}
	return p, nil
}

// advanceTurn moves the turn to the next eligible player. In a duel only the
// two duelists are eligible. With no eligible player the index is left as is.
func (s *State) advanceTurn() {
	n := len(s.Players)
	if n == 0 {
		return
	}
	from := s.TurnIndex
	if from < 0 {
		from = s.lastTurn
	}
	if from < 0 {
		from = n - 1
	}
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		p := s.Players[idx]
		if p.Eliminated {
			continue
		}
		if s.inDuel() && !s.Duel.isDuelist(p.UserID) {
			continue
		}
		s.setTurn(idx)
		return
	}
}

func (s *State) setTurn(idx int) {
	s.TurnIndex = idx
	s.lastTurn = idx
}

// pushTurn saves the turn index unless one is already saved.
func (s *State) pushTurn() {
	if s.savedTurn != nil {
		return
	}
	idx := s.TurnIndex
	s.savedTurn = &idx
}

// popTurn restores and clears the saved turn index.
func (s *State) popTurn() {
	if s.savedTurn == nil {
		return
	}
	idx := *s.savedTurn
	s.savedTurn = nil
	if idx >= 0 && idx < len(s.Players) && !s.Players[idx].Eliminated {
		s.setTurn(idx)
		return
	}
	s.TurnIndex = idx
	s.advanceTurn()
}

// eliminate flags the player and clears a turn pointer that references them.
func (s *State) eliminate(id uuid.UUID) {
	idx := s.playerIndex(id)
	if idx < 0 {
		return
	}
	p := s.Players[idx]
	p.Eliminated = true
	p.ShieldActive = false
	p.DoublePointsActive = false
	p.PendingTimeDelta = 0
	if s.TurnIndex == idx {
		s.TurnIndex = -1
	}
	if s.Current != nil && s.Current.UserID == id {
		s.Current = nil
	}
	delete(s.Votes, id)
}

func (s *State) drawQuestion() (question.Question, bool) {
	if len(s.Queue) == 0 {
		return question.Question{}, false
	}
	q := s.Queue[0]
	s.Queue = s.Queue[1:]
	return q, true
}

// returnCurrent puts an unanswered question back at the head of the queue.
func (s *State) returnCurrent() {
	if s.Current == nil {
		return
	}
	s.Queue = append([]question.Question{s.Current.Question}, s.Queue...)
	s.Current = nil
}

// checkTurn enforces the turn invariant for the current phase.
func (s *State) checkTurn(op string) error {
	p := s.currentPlayer()
	if p == nil {
		return invariantf(op, "turn index %d out of range for %d players", s.TurnIndex, len(s.Players))
	}
	if p.Eliminated {
		return invariantf(op, "turn index %d points at eliminated player %s", s.TurnIndex, p.UserID)
	}
	if s.Phase == PhaseDuel || s.Phase == PhaseFinal {
		if !s.inDuel() || !s.Duel.isDuelist(p.UserID) {
			return invariantf(op, "turn holder %s is not a duelist", p.UserID)
		}
	}
	return nil
}

func (s *State) inDuel() bool {
	return (s.Phase == PhaseDuel || s.Phase == PhaseFinal) && s.Duel != nil
}

func (s *State) disposeTimers() {
	if s.Event != nil {
		s.Event.stopTimer()
	}
}

func (s *State) now() time.Time {
	return s.deps.now()
}

// clone returns a deep copy used to roll back a failed transition.
func (s *State) clone() *State {
	c := *s
	c.Players = make([]*PlayerRuntime, len(s.Players))
	for i, p := range s.Players {
		cp := *p
		c.Players[i] = &cp
	}
	c.Queue = append([]question.Question(nil), s.Queue...)
	if s.Current != nil {
		cur := *s.Current
		c.Current = &cur
	}
	c.Votes = make(map[uuid.UUID]*uuid.UUID, len(s.Votes))
	for k, v := range s.Votes {
		c.Votes[k] = v
	}
	if s.Duel != nil {
		c.Duel = s.Duel.clone()
	}
	if s.Event != nil {
		c.Event = s.Event.clone()
	}
	if s.savedTurn != nil {
		idx := *s.savedTurn
		c.savedTurn = &idx
	}
	return &c
}

// Match owns one State behind an exclusive lock.
type Match struct {
	ID    uuid.UUID
	mu    sync.Mutex
	state *State
}

// withLock runs fn under the match lock. A failing fn leaves the state as it
// was before the call.
func (m *Match) withLock(fn func(s *State) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	backup := m.state.clone()
	err := fn(m.state)
	if err != nil {
		m.state = backup
	}
	return err
}

// read runs fn under the match lock without mutation.
func (m *Match) read(fn func(s *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

// dispose stops any armed timers.
func (m *Match) dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.disposeTimers()
}
