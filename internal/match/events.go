package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/weakest-rival/internal/question"
	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// EventKind tags the active special event.
type EventKind string

const (
	EventLightning    EventKind = "lightning"
	EventSurpriseExam EventKind = "surprise_exam"
)

// ExamResolution is the tri-state guarding exam scoring.
type ExamResolution int

const (
	ExamPending ExamResolution = iota
	ExamResolving
	ExamResolved
)

// Event outcomes reported to metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeTimedOut = "timed_out"
	OutcomeComplete = "complete"
)

// SpecialEvent is the single timed overlay a match may run.
type SpecialEvent struct {
	ID        uuid.UUID
	Kind      EventKind
	StartedAt time.Time
	Lightning *LightningChallenge
	Exam      *SurpriseExam

	timer Timer
}

// LightningChallenge is a private question run for one target player.
type LightningChallenge struct {
	TargetID  uuid.UUID
	Questions []question.Question
	Budget    int
	Remaining int
	Correct   int
	Threshold int
	Deadline  time.Time
	Acked     bool
	Completed bool
	Success   bool
}

func (l *LightningChallenge) current() (question.Question, bool) {
	idx := l.Budget - l.Remaining
	if l.Completed || idx < 0 || idx >= len(l.Questions) {
		return question.Question{}, false
	}
	return l.Questions[idx], true
}

func (l *LightningChallenge) timeLeft(now time.Time) time.Duration {
	left := l.Deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// SurpriseExam gives every alive player one question with a shared deadline.
type SurpriseExam struct {
	Deadline   time.Time
	Assigned   map[uuid.UUID]question.Question
	Answered   map[uuid.UUID]bool
	Correct    map[uuid.UUID]bool
	Pending    map[uuid.UUID]struct{}
	Resolution ExamResolution
}

func (e *SpecialEvent) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *SpecialEvent) clone() *SpecialEvent {
	c := *e
	if e.Lightning != nil {
		l := *e.Lightning
		l.Questions = append([]question.Question(nil), e.Lightning.Questions...)
		c.Lightning = &l
	}
	if e.Exam != nil {
		x := *e.Exam
		x.Assigned = make(map[uuid.UUID]question.Question, len(e.Exam.Assigned))
		for k, v := range e.Exam.Assigned {
			x.Assigned[k] = v
		}
		x.Answered = make(map[uuid.UUID]bool, len(e.Exam.Answered))
		for k, v := range e.Exam.Answered {
			x.Answered[k] = v
		}
		x.Correct = make(map[uuid.UUID]bool, len(e.Exam.Correct))
		for k, v := range e.Exam.Correct {
			x.Correct[k] = v
		}
		x.Pending = make(map[uuid.UUID]struct{}, len(e.Exam.Pending))
		for k := range e.Exam.Pending {
			x.Pending[k] = struct{}{}
		}
		c.Exam = &x
	}
	return &c
}

func (s *State) armTimer(ev *SpecialEvent, d time.Duration) {
	if s.deps.afterFunc == nil || d <= 0 {
		return
	}
	id := ev.ID
	onExpire := s.deps.onExpire
	ev.timer = s.deps.afterFunc(d, func() {
		if onExpire != nil {
			onExpire(id)
		}
	})
}

// triggerScheduledEvent runs the round-start event cadence. Lightning takes
// precedence when both are due.
func (s *State) triggerScheduledEvent(lightningTarget uuid.UUID, out *outbox) bool {
	rules := s.deps.rules
	if s.Round < 2 {
		return false
	}
	if rules.LightningEvery > 0 && s.Round%rules.LightningEvery == 0 && lightningTarget != uuid.Nil {
		if err := s.startLightning(lightningTarget, out); err == nil {
			return true
		}
	}
	if rules.ExamEvery > 0 && s.Round%rules.ExamEvery == 0 {
		if err := s.startExam(out); err == nil {
			return true
		}
	}
	return false
}

func (s *State) requireHost(userID uuid.UUID) error {
	if s.player(userID) == nil {
		return ErrNotInMatch
	}
	if userID != s.HostID {
		return ErrNotHost
	}
	return nil
}

// startLightning hands the turn to target for a private question run. The
// question the turn holder was looking at goes back to the queue.
func (s *State) startLightning(target uuid.UUID, out *outbox) error {
	rules := s.deps.rules
	if s.Phase != PhaseQuestioning {
		return ErrWrongPhase
	}
	if s.Event != nil {
		return ErrEventInProgress
	}
	idx := s.playerIndex(target)
	if idx < 0 || s.Players[idx].Eliminated {
		return ErrInvalidTarget
	}
	n := rules.LightningQuestions
	if n <= 0 || len(s.Queue) < n {
		return ErrNotEnoughQuestions
	}

	qs := append([]question.Question(nil), s.Queue[:n]...)
	s.Queue = s.Queue[n:]
	s.returnCurrent()

	now := s.now()
	threshold := min(max(rules.LightningThreshold, 1), n)
	ev := &SpecialEvent{
		ID:        uuid.New(),
		Kind:      EventLightning,
		StartedAt: now,
		Lightning: &LightningChallenge{
			TargetID:  target,
			Questions: qs,
			Budget:    n,
			Remaining: n,
			Threshold: threshold,
			Deadline:  now.Add(rules.LightningTimeBudget),
		},
	}
	s.pushTurn()
	s.setTurn(idx)
	s.Event = ev
	s.armTimer(ev, rules.LightningTimeBudget)

	out.broadcast(ws.TypeTurnOrder, s.turnOrder())
	out.broadcast(ws.TypeLightningStart, ws.LightningStartPayload{
		MatchID:       s.MatchID.String(),
		EventID:       ev.ID.String(),
		TargetID:      target.String(),
		Questions:     n,
		Threshold:     threshold,
		TimeBudgetMs:  rules.LightningTimeBudget.Milliseconds(),
		DeadlineAtUtc: ev.Lightning.Deadline.UTC().Format(time.RFC3339Nano),
	})
	return nil
}

func (s *State) promptLightning(out *outbox) {
	l := s.Event.Lightning
	q, ok := l.current()
	if !ok {
		return
	}
	out.broadcast(ws.TypeQuestionPrompt, ws.QuestionPromptPayload{
		MatchID:  s.MatchID.String(),
		Round:    s.Round,
		Phase:    string(EventLightning),
		Question: wireQuestion(q, l.TargetID, l.timeLeft(s.now())),
	})
}

func (s *State) answerLightning(p *PlayerRuntime, questionID, answer string, out *outbox) error {
	l := s.Event.Lightning
	if p.UserID != l.TargetID {
		return ErrEventInProgress
	}
	if !l.Acked {
		return ErrWrongPhase
	}
	q, ok := l.current()
	if !ok {
		return invariantf("submit_answer", "lightning for %s has no question left", p.UserID)
	}
	if q.ID != questionID {
		return ErrStaleQuestion
	}

	correct := q.IsCorrect(answer)
	l.Remaining--
	if correct {
		l.Correct++
		p.TotalCorrect++
	} else {
		p.TotalWrong++
	}

	out.broadcast(ws.TypeAnswerResult, ws.AnswerResultPayload{
		MatchID:      s.MatchID.String(),
		UserID:       p.UserID.String(),
		QuestionID:   q.ID,
		IsCorrect:    correct,
		CurrentChain: s.CurrentChain,
		BankedPoints: s.BankedPoints,
	})

	switch {
	case l.Correct >= l.Threshold:
		s.completeLightning(true, out)
	case l.Remaining == 0 || l.Correct+l.Remaining < l.Threshold:
		s.completeLightning(false, out)
	default:
		s.promptLightning(out)
	}
	return nil
}

// completeLightning clears the question list, then the event, then restores
// the saved turn, before anything is announced.
func (s *State) completeLightning(success bool, out *outbox) {
	ev := s.Event
	l := ev.Lightning
	l.Completed = true
	l.Success = success

	l.Questions = nil
	ev.stopTimer()
	s.Event = nil
	s.popTurn()

	rules := s.deps.rules
	outcome := OutcomeFailure
	if target := s.player(l.TargetID); target != nil {
		if success {
			outcome = OutcomeSuccess
			s.BankedPoints += rules.LightningReward
			target.TotalBanked += rules.LightningReward
		} else {
			target.PendingTimeDelta -= rules.WildcardTimeDelta
		}
	}

	out.broadcast(ws.TypeLightningResult, ws.LightningResultPayload{
		MatchID:      s.MatchID.String(),
		EventID:      ev.ID.String(),
		TargetID:     l.TargetID.String(),
		Correct:      l.Correct,
		Success:      success,
		BankedPoints: s.BankedPoints,
	})
	out.eventDone(EventLightning, outcome)
	s.resume(out)
}

// startExam assigns one question to every alive player.
func (s *State) startExam(out *outbox) error {
	rules := s.deps.rules
	if s.Phase != PhaseQuestioning {
		return ErrWrongPhase
	}
	if s.Event != nil {
		return ErrEventInProgress
	}
	alive := s.alive()
	if len(s.Queue) < len(alive) {
		return ErrNotEnoughQuestions
	}

	now := s.now()
	exam := &SurpriseExam{
		Deadline: now.Add(rules.ExamWindow),
		Assigned: make(map[uuid.UUID]question.Question, len(alive)),
		Answered: make(map[uuid.UUID]bool, len(alive)),
		Correct:  make(map[uuid.UUID]bool, len(alive)),
		Pending:  make(map[uuid.UUID]struct{}, len(alive)),
	}
	participants := make([]string, 0, len(alive))
	for _, p := range alive {
		q, _ := s.drawQuestion()
		exam.Assigned[p.UserID] = q
		exam.Pending[p.UserID] = struct{}{}
		participants = append(participants, p.UserID.String())
	}
	s.returnCurrent()

	ev := &SpecialEvent{ID: uuid.New(), Kind: EventSurpriseExam, StartedAt: now, Exam: exam}
	s.Event = ev
	s.armTimer(ev, rules.ExamWindow)

	out.broadcast(ws.TypeExamStart, ws.ExamStartPayload{
		MatchID:       s.MatchID.String(),
		EventID:       ev.ID.String(),
		DeadlineAtUtc: exam.Deadline.UTC().Format(time.RFC3339Nano),
		Participants:  participants,
	})
	for _, p := range alive {
		out.send(p.UserID, ws.TypeExamQuestion, ws.ExamQuestionPayload{
			MatchID:  s.MatchID.String(),
			EventID:  ev.ID.String(),
			Question: wireQuestion(exam.Assigned[p.UserID], p.UserID, rules.ExamWindow),
		})
	}
	return nil
}

func (s *State) answerExam(p *PlayerRuntime, questionID, answer string, out *outbox) error {
	e := s.Event.Exam
	if e.Resolution != ExamPending {
		return ErrStaleQuestion
	}
	q, assigned := e.Assigned[p.UserID]
	if !assigned {
		return ErrEventInProgress
	}
	if _, pending := e.Pending[p.UserID]; !pending || q.ID != questionID {
		return ErrStaleQuestion
	}

	correct := q.IsCorrect(answer)
	delete(e.Pending, p.UserID)
	e.Answered[p.UserID] = true
	e.Correct[p.UserID] = correct
	if correct {
		p.TotalCorrect++
	} else {
		p.TotalWrong++
	}

	out.send(p.UserID, ws.TypeAnswerResult, ws.AnswerResultPayload{
		MatchID:      s.MatchID.String(),
		UserID:       p.UserID.String(),
		QuestionID:   q.ID,
		IsCorrect:    correct,
		CurrentChain: s.CurrentChain,
		BankedPoints: s.BankedPoints,
	})

	if len(e.Pending) == 0 {
		s.resolveExam(false, out)
	}
	return nil
}

// resolveExam scores the exam exactly once. Players still pending count as
// incorrect. A second call is a no-op.
func (s *State) resolveExam(timedOut bool, out *outbox) {
	ev := s.Event
	if ev == nil || ev.Exam == nil || ev.Exam.Resolution != ExamPending {
		return
	}
	e := ev.Exam
	e.Resolution = ExamResolving
	ev.stopTimer()

	rules := s.deps.rules
	outcomes := make([]ws.ExamOutcome, 0, len(e.Assigned))
	for _, p := range s.Players {
		if _, ok := e.Assigned[p.UserID]; !ok {
			continue
		}
		correct := e.Correct[p.UserID]
		if correct {
			s.BankedPoints += rules.ExamBonus
			p.TotalBanked += rules.ExamBonus
		} else {
			p.WildcardBlockUntilRound = max(p.WildcardBlockUntilRound, s.Round+1)
		}
		outcomes = append(outcomes, ws.ExamOutcome{
			UserID:   p.UserID.String(),
			Answered: e.Answered[p.UserID],
			Correct:  correct,
		})
	}
	e.Resolution = ExamResolved
	s.Event = nil

	out.broadcast(ws.TypeExamResult, ws.ExamResultPayload{
		MatchID:      s.MatchID.String(),
		EventID:      ev.ID.String(),
		TimedOut:     timedOut,
		Outcomes:     outcomes,
		BankedPoints: s.BankedPoints,
	})
	outcome := OutcomeComplete
	if timedOut {
		outcome = OutcomeTimedOut
	}
	out.eventDone(EventSurpriseExam, outcome)
	s.resume(out)
}

// expireEvent is the timer path. Stale or already resolved events are
// ignored.
func (s *State) expireEvent(eventID uuid.UUID, out *outbox) {
	ev := s.Event
	if ev == nil || ev.ID != eventID {
		return
	}
	switch ev.Kind {
	case EventLightning:
		if !ev.Lightning.Completed {
			ev.timer = nil
			s.completeLightning(false, out)
		}
	case EventSurpriseExam:
		s.resolveExam(true, out)
	}
}

// ackEvent confirms the caller saw the event. The lightning target gets
// their first question; exam participants get theirs re-sent.
func (s *State) ackEvent(userID, eventID uuid.UUID, out *outbox) error {
	p, err := s.requireActive(userID)
	if err != nil {
		return err
	}
	ev := s.Event
	if ev == nil || ev.ID != eventID {
		return ErrNoActiveEvent
	}

	switch ev.Kind {
	case EventLightning:
		if p.UserID != ev.Lightning.TargetID {
			return ErrNotYourTurn
		}
		ev.Lightning.Acked = true
		s.promptLightning(out)
	case EventSurpriseExam:
		q, ok := ev.Exam.Assigned[p.UserID]
		if !ok {
			return ErrNoActiveEvent
		}
		if _, pending := ev.Exam.Pending[p.UserID]; pending {
			out.send(p.UserID, ws.TypeExamQuestion, ws.ExamQuestionPayload{
				MatchID:  s.MatchID.String(),
				EventID:  ev.ID.String(),
				Question: wireQuestion(q, p.UserID, ev.Exam.Deadline.Sub(s.now())),
			})
		}
	}
	return nil
}

func (s *State) triggerLightning(requester, target uuid.UUID, out *outbox) error {
	if err := s.requireHost(requester); err != nil {
		return err
	}
	return s.startLightning(target, out)
}

func (s *State) triggerExam(requester uuid.UUID, out *outbox) error {
	if err := s.requireHost(requester); err != nil {
		return err
	}
	return s.startExam(out)
}
