package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChainIncrementGrowsWithStreak(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())

	assert.Equal(t, 100, e.ChainIncrement(1, false))
	assert.Equal(t, 150, e.ChainIncrement(2, false))
	assert.Equal(t, 200, e.ChainIncrement(3, false))
}

func TestChainIncrementIsCapped(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())

	assert.Equal(t, 400, e.ChainIncrement(7, false))
	assert.Equal(t, 400, e.ChainIncrement(50, false))
}

func TestChainIncrementDoubled(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())

	assert.Equal(t, 200, e.ChainIncrement(1, true))
	assert.Equal(t, 300, e.ChainIncrement(0, false)*3)
}

func TestNewEngineFallsBackOnZeroConfig(t *testing.T) {
	e := NewEngine(ScoringConfig{})

	assert.Equal(t, 100, e.ChainIncrement(1, false))
	assert.Equal(t, 100, e.ChainIncrement(2, false))
}

func TestQuestionTimeFloor(t *testing.T) {
	assert.Equal(t, 30*time.Second, QuestionTime(20*time.Second, 10*time.Second))
	assert.Equal(t, MinQuestionTime, QuestionTime(10*time.Second, -20*time.Second))
}
