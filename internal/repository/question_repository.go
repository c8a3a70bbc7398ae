package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question bank access in PostgreSQL.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

var questionColumns = []string{"id", "prompt", "options", "correct_answer", "category", "explanation"}

// ListAll returns every question ordered by id.
func (r *QuestionRepository) ListAll(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, options, correct_answer, category, explanation
		 FROM questions
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Options, &q.CorrectAnswer, &q.Category, &q.Explanation); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByID retrieves one question. Returns ErrNotFound when absent.
func (r *QuestionRepository) GetByID(ctx context.Context, id int) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, prompt, options, correct_answer, category, explanation
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Prompt, &q.Options, &q.CorrectAnswer, &q.Category, &q.Explanation)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Create inserts q with id = max(id)+1 and writes the assigned id back.
// The table lock keeps concurrent creates from racing on the same id.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `LOCK TABLE questions IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock questions: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO questions (id, prompt, options, correct_answer, category, explanation)
		 SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3, $4, $5 FROM questions
		 RETURNING id`,
		q.Prompt, q.Options, q.CorrectAnswer, q.Category, q.Explanation,
	).Scan(&q.ID)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	return tx.Commit(ctx)
}

// BulkInsert copies questions with their given ids in one round trip.
func (r *QuestionRepository) BulkInsert(ctx context.Context, questions []model.Question) (int64, error) {
	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{"questions"}, questionColumns, questionRows(questions))
	if err != nil {
		return 0, mapPgError(err)
	}
	return n, nil
}

// ReplaceAll atomically swaps the whole bank for questions.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, questions []model.Question) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions`); err != nil {
		return 0, fmt.Errorf("clear questions: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"questions"}, questionColumns, questionRows(questions))
	if err != nil {
		return 0, fmt.Errorf("copy questions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func questionRows(questions []model.Question) pgx.CopyFromSource {
	return pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
		q := questions[i]
		return []any{q.ID, q.Prompt, q.Options, q.CorrectAnswer, q.Category, q.Explanation}, nil
	})
}
