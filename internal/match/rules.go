package match

import (
	"time"

	"github.com/gokatarajesh/weakest-rival/internal/config"
	"github.com/gokatarajesh/weakest-rival/internal/match/scoring"
)

// Rules are the gameplay constants a match is created with.
type Rules struct {
	MaxPlayers              int
	QuestionPoolSize        int
	QuestionTime            time.Duration
	QuestionsPerPlayerRound int
	DuelQuestionsEach       int
	FinalQuestionsEach      int
	WildcardTimeDelta       time.Duration

	LightningEvery      int
	LightningQuestions  int
	LightningThreshold  int
	LightningTimeBudget time.Duration
	LightningReward     int

	ExamEvery  int
	ExamWindow time.Duration
	ExamBonus  int

	Scoring scoring.ScoringConfig
}

// DefaultRules mirrors the config defaults.
func DefaultRules() Rules {
	return Rules{
		MaxPlayers:              8,
		QuestionPoolSize:        120,
		QuestionTime:            20 * time.Second,
		QuestionsPerPlayerRound: 2,
		DuelQuestionsEach:       3,
		FinalQuestionsEach:      5,
		WildcardTimeDelta:       10 * time.Second,
		LightningEvery:          3,
		LightningQuestions:      5,
		LightningThreshold:      3,
		LightningTimeBudget:     30 * time.Second,
		LightningReward:         500,
		ExamEvery:               2,
		ExamWindow:              20 * time.Second,
		ExamBonus:               200,
		Scoring:                 scoring.DefaultScoringConfig(),
	}
}

// RulesFromConfig builds Rules from environment configuration.
func RulesFromConfig(g config.Game, poolSize int) Rules {
	return Rules{
		MaxPlayers:              g.MaxPlayers,
		QuestionPoolSize:        poolSize,
		QuestionTime:            g.QuestionTime,
		QuestionsPerPlayerRound: g.QuestionsPerPlayerRound,
		DuelQuestionsEach:       g.DuelQuestionsEach,
		FinalQuestionsEach:      g.FinalQuestionsEach,
		WildcardTimeDelta:       g.WildcardTimeDelta,
		LightningEvery:          g.LightningEvery,
		LightningQuestions:      g.LightningQuestions,
		LightningThreshold:      g.LightningThreshold,
		LightningTimeBudget:     g.LightningTimeBudget,
		LightningReward:         g.LightningReward,
		ExamEvery:               g.ExamEvery,
		ExamWindow:              g.ExamWindow,
		ExamBonus:               g.ExamBonus,
		Scoring: scoring.ScoringConfig{
			ChainBase:           g.ChainBase,
			StreakBonusPercent:  g.StreakBonusPercent,
			MaxStreakMultiplier: g.MaxStreakMultiplier,
		},
	}
}

func (r Rules) roundBudget(alive int) int {
	per := r.QuestionsPerPlayerRound
	if per < 1 {
		per = 1
	}
	return alive * per
}
