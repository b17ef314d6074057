package question

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/db/repository"
	"github.com/gokatarajesh/weakest-rival/internal/question/external"
)

// ErrNoQuestions is returned when no source can supply a single question.
var ErrNoQuestions = errors.New("question: no questions available")

// PoolCache keeps recently loaded pools per difficulty and locale.
type PoolCache interface {
	Get(ctx context.Context, difficulty, locale string) ([]Question, error)
	Set(ctx context.Context, difficulty, locale string, qs []Question) error
}

type poolStore interface {
	FetchPool(ctx context.Context, p repository.PoolParams) ([]repository.QuestionRow, error)
	Insert(ctx context.Context, q repository.QuestionRow) error
}

type opentdbProvider interface {
	Fetch(ctx context.Context, amount int, difficulty, qType string) ([]external.OpenTDBQuestion, error)
}

// ServiceOptions tunes the question service.
type ServiceOptions struct {
	FetchTimeout time.Duration
	Seed         int64
}

// Service orchestrates access to the curated DB pool, the Redis cache and
// the OpenTDB fallback.
type Service struct {
	repo    poolStore
	cache   PoolCache
	opentdb opentdbProvider
	timeout time.Duration
	logger  zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(repo poolStore, cache PoolCache, opentdb opentdbProvider, opts ServiceOptions, logger zerolog.Logger) *Service {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		opentdb: opentdb,
		timeout: timeout,
		logger:  logger.With().Str("component", "question_service").Logger(),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// LoadQuestions returns up to maxCount shuffled questions for a match.
// Priority: cache -> curated DB -> OpenTDB (English only).
func (s *Service) LoadQuestions(ctx context.Context, difficulty, locale string, maxCount int) ([]Question, error) {
	difficulty = NormalizeDifficulty(difficulty)
	locale = NormalizeLocale(locale)
	if maxCount <= 0 {
		return nil, fmt.Errorf("question: invalid count %d", maxCount)
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, difficulty, locale)
		if err != nil {
			s.logger.Warn().Err(err).Str("difficulty", difficulty).Msg("question cache read failed")
		} else if len(cached) >= maxCount {
			return s.pick(cached, maxCount), nil
		}
	}

	pool, err := s.fetchCurated(ctx, difficulty, locale, maxCount)
	if err != nil {
		s.logger.Warn().Err(err).Str("difficulty", difficulty).Str("locale", locale).Msg("curated pool fetch failed")
	}

	if len(pool) < maxCount && locale == DefaultLocale && s.opentdb != nil {
		extra, err := s.fetchExternal(ctx, difficulty, maxCount-len(pool))
		if err != nil {
			s.logger.Warn().Err(err).Msg("opentdb fallback failed")
		}
		pool = append(pool, extra...)
	}

	if len(pool) == 0 {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoQuestions, err)
		}
		return nil, ErrNoQuestions
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, difficulty, locale, pool); err != nil {
			s.logger.Warn().Err(err).Msg("question cache write failed")
		}
	}
	return s.pick(pool, maxCount), nil
}

func (s *Service) fetchCurated(ctx context.Context, difficulty, locale string, limit int) ([]Question, error) {
	if s.repo == nil {
		return nil, nil
	}
	rows, err := s.repo.FetchPool(ctx, repository.PoolParams{
		Difficulty: difficulty,
		Locale:     locale,
		Limit:      int32(limit),
	})
	if err != nil {
		return nil, err
	}
	qs := make([]Question, 0, len(rows))
	for _, row := range rows {
		qs = append(qs, fromRow(row))
	}
	return qs, nil
}

func (s *Service) fetchExternal(ctx context.Context, difficulty string, limit int) ([]Question, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.opentdb.Fetch(ctx, limit, difficulty, "multiple")
	if err != nil {
		return nil, err
	}
	qs := make([]Question, 0, len(raw))
	for _, q := range raw {
		nq := normalizeOpenTDB(q, s.shuffleOptions)
		qs = append(qs, nq)
		if s.repo != nil {
			if err := s.repo.Insert(ctx, toRow(nq)); err != nil {
				s.logger.Debug().Err(err).Msg("store external question failed")
			}
		}
	}
	return qs, nil
}

func (s *Service) pick(pool []Question, n int) []Question {
	out := append([]Question(nil), pool...)
	s.mu.Lock()
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.mu.Unlock()
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Service) shuffleOptions(opts []string) {
	s.mu.Lock()
	s.rng.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	s.mu.Unlock()
}

func fromRow(row repository.QuestionRow) Question {
	return Question{
		ID:         row.QuestionID.String(),
		Prompt:     row.Prompt,
		Options:    row.Options,
		Answer:     row.CorrectAnswer,
		Difficulty: row.Difficulty,
		Locale:     row.Locale,
		Source:     row.Source,
	}
}

func toRow(q Question) repository.QuestionRow {
	id, err := uuid.Parse(q.ID)
	if err != nil {
		id = uuid.New()
	}
	return repository.QuestionRow{
		QuestionID:    id,
		Prompt:        q.Prompt,
		Options:       q.Options,
		CorrectAnswer: q.Answer,
		Difficulty:    q.Difficulty,
		Locale:        q.Locale,
		Source:        q.Source,
	}
}

func normalizeOpenTDB(q external.OpenTDBQuestion, shuffle func([]string)) Question {
	options := make([]string, 0, len(q.IncorrectAnswer)+1)
	for _, o := range q.IncorrectAnswer {
		options = append(options, html.UnescapeString(o))
	}
	options = append(options, html.UnescapeString(q.CorrectAnswer))
	if shuffle != nil {
		shuffle(options)
	}
	return Question{
		ID:         uuid.NewString(),
		Prompt:     html.UnescapeString(q.Question),
		Options:    options,
		Answer:     html.UnescapeString(q.CorrectAnswer),
		Difficulty: NormalizeDifficulty(strings.ToLower(q.Difficulty)),
		Locale:     DefaultLocale,
		Source:     "opentdb",
	}
}
