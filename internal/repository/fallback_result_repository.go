package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itilprep/itil-exam-backend/internal/model"
)

// FallbackResultRepository keeps results in the local SQLite file when the
// document store is unreachable. Each row holds the full result as JSON.
type FallbackResultRepository struct {
	db *sql.DB
}

func NewFallbackResultRepository(db *sql.DB) *FallbackResultRepository {
	return &FallbackResultRepository{db: db}
}

// Save inserts or replaces the result payload.
func (r *FallbackResultRepository) Save(ctx context.Context, result *model.ExamResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO fallback_results (id, user_id, payload, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, payload = excluded.payload, created_at = excluded.created_at`,
		result.ID, result.UserID, string(payload), result.CreatedAt.UnixNano(),
	)
	return err
}

// List returns results newest first. An empty userID lists every result.
func (r *FallbackResultRepository) List(ctx context.Context, userID string) ([]model.ExamResult, error) {
	query := `SELECT payload FROM fallback_results ORDER BY created_at DESC`
	args := []any{}
	if userID != "" {
		query = `SELECT payload FROM fallback_results WHERE user_id = ? ORDER BY created_at DESC`
		args = append(args, userID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var result model.ExamResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (r *FallbackResultRepository) Get(ctx context.Context, id string) (*model.ExamResult, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM fallback_results WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var result model.ExamResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

func (r *FallbackResultRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fallback_results WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FallbackResultRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if userID == "" {
		res, err = r.db.ExecContext(ctx, `DELETE FROM fallback_results`)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM fallback_results WHERE user_id = ?`, userID)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingIDs lists every stored id, oldest first. Used to re-queue results
// left behind when the resync queue itself was unavailable.
func (r *FallbackResultRepository) PendingIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM fallback_results ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
