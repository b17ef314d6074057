package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const selectQuestionPool = `
SELECT question_id, prompt, options, correct_answer, difficulty, locale, source
FROM questions
WHERE verified AND difficulty = $1 AND locale = $2
ORDER BY random()
LIMIT $3`

const insertQuestion = `
INSERT INTO questions (question_id, prompt, options, correct_answer, difficulty, locale, source, verified)
VALUES ($1, $2, $3, $4, $5, $6, $7, true)
ON CONFLICT (prompt, locale) DO NOTHING`

// QuestionRow is a stored question.
type QuestionRow struct {
	QuestionID    uuid.UUID
	Prompt        string
	Options       []string
	CorrectAnswer string
	Difficulty    string
	Locale        string
	Source        string
}

// PoolParams filters the curated pool.
type PoolParams struct {
	Difficulty string
	Locale     string
	Limit      int32
}

// QuestionRepository reads and tops up the curated question pool.
type QuestionRepository struct {
	db DBTX
}

func NewQuestionRepository(db DBTX) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// FetchPool returns up to Limit random verified questions.
func (r *QuestionRepository) FetchPool(ctx context.Context, p PoolParams) ([]QuestionRow, error) {
	rows, err := r.db.Query(ctx, selectQuestionPool, p.Difficulty, p.Locale, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch question pool: %w", err)
	}
	defer rows.Close()

	var out []QuestionRow
	for rows.Next() {
		var q QuestionRow
		if err := rows.Scan(&q.QuestionID, &q.Prompt, &q.Options, &q.CorrectAnswer, &q.Difficulty, &q.Locale, &q.Source); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch question pool: %w", err)
	}
	return out, nil
}

// Insert stores an externally sourced question. Duplicate prompts are ignored.
func (r *QuestionRepository) Insert(ctx context.Context, q QuestionRow) error {
	if _, err := r.db.Exec(ctx, insertQuestion, q.QuestionID, q.Prompt, q.Options, q.CorrectAnswer, q.Difficulty, q.Locale, q.Source); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}
