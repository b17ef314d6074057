package question

import "strings"

// Difficulty constants for readability.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// DefaultLocale is used when a match does not specify one.
const DefaultLocale = "en"

// Question is the normalized question used by the match engine.
type Question struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options"`
	Answer     string   `json:"answer,omitempty"` // server-side only
	Difficulty string   `json:"difficulty"`
	Locale     string   `json:"locale"`
	Source     string   `json:"source"`
}

// IsCorrect compares a submitted answer against the expected one, ignoring
// case and surrounding whitespace.
func (q Question) IsCorrect(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.Answer))
}

// NormalizeDifficulty maps unknown values to medium.
func NormalizeDifficulty(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// NormalizeLocale lowercases a locale tag and defaults it to English.
func NormalizeLocale(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if l == "" {
		return DefaultLocale
	}
	return l
}
