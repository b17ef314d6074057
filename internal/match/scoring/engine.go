package scoring

import (
	"math"
	"time"
)

// MinQuestionTime is the floor applied after wildcard time adjustments.
const MinQuestionTime = 5 * time.Second

// ScoringConfig holds configurable chain constants.
type ScoringConfig struct {
	ChainBase           int     // default: 100
	StreakBonusPercent  float64 // default: 0.5 (+50% of base per extra consecutive correct)
	MaxStreakMultiplier float64 // default: 4 (increment never exceeds 4x base)
}

// DefaultScoringConfig returns production defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ChainBase:           100,
		StreakBonusPercent:  0.5,
		MaxStreakMultiplier: 4,
	}
}

// Engine computes chain increments with configurable constants.
type Engine struct {
	config ScoringConfig
}

// NewEngine creates a scoring engine with the provided config. Zero values
// fall back to the defaults.
func NewEngine(config ScoringConfig) *Engine {
	def := DefaultScoringConfig()
	if config.ChainBase <= 0 {
		config.ChainBase = def.ChainBase
	}
	if config.StreakBonusPercent < 0 {
		config.StreakBonusPercent = 0
	}
	if config.MaxStreakMultiplier < 1 {
		config.MaxStreakMultiplier = def.MaxStreakMultiplier
	}
	return &Engine{config: config}
}

// ChainIncrement returns the points a correct answer adds to the chain.
// streak counts consecutive correct answers including this one.
// Formula: base * min(1 + (streak-1)*bonus, cap), doubled when the
// double-points wildcard is active.
func (e *Engine) ChainIncrement(streak int, doubled bool) int {
	if streak < 1 {
		streak = 1
	}
	multiplier := 1 + float64(streak-1)*e.config.StreakBonusPercent
	if multiplier > e.config.MaxStreakMultiplier {
		multiplier = e.config.MaxStreakMultiplier
	}
	inc := int(math.Round(float64(e.config.ChainBase) * multiplier))
	if doubled {
		inc *= 2
	}
	return inc
}

// QuestionTime applies a pending wildcard delta to the base time limit.
func QuestionTime(base, delta time.Duration) time.Duration {
	limit := base + delta
	if limit < MinQuestionTime {
		return MinQuestionTime
	}
	return limit
}
