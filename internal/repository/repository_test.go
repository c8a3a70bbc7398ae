package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itilprep/itil-exam-backend/internal/database"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func newFallbackRepo(t *testing.T) *FallbackResultRepository {
	t.Helper()
	db, err := database.OpenFallbackStore(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewFallbackResultRepository(db)
}

func result(id, user string, created time.Time) *model.ExamResult {
	selected := 1
	return &model.ExamResult{
		ID:         id,
		UserID:     user,
		Date:       created,
		Correct:    1,
		Total:      1,
		Percentage: 100,
		Passed:     true,
		QuestionResults: []model.QuestionResult{{
			QuestionID:     3,
			Question:       "Q",
			Category:       "Service Desk",
			Options:        []string{"a", "b"},
			SelectedAnswer: &selected,
			CorrectAnswer:  1,
			IsCorrect:      true,
		}},
		CreatedAt: created,
	}
}

func TestFallbackResultRepository(t *testing.T) {
	ctx := context.Background()
	repo := newFallbackRepo(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, r := range []*model.ExamResult{
		result("r1", "alice", base),
		result("r2", "bob", base.Add(time.Minute)),
		result("r3", "alice", base.Add(2*time.Minute)),
	} {
		if err := repo.Save(ctx, r); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "alice" || len(got.QuestionResults) != 1 || *got.QuestionResults[0].SelectedAnswer != 1 {
		t.Fatalf("result did not round trip: %+v", got)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	alice, err := repo.List(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(alice) != 2 || alice[0].ID != "r3" || alice[1].ID != "r1" {
		t.Fatalf("expected alice's results newest first, got %+v", alice)
	}

	ids, err := repo.PendingIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != "r1" || ids[2] != "r3" {
		t.Fatalf("expected pending ids oldest first, got %v", ids)
	}

	// Saving again replaces the row.
	updated := result("r1", "alice", base)
	updated.Percentage = 40
	if err := repo.Save(ctx, updated); err != nil {
		t.Fatal(err)
	}
	if got, _ := repo.Get(ctx, "r1"); got.Percentage != 40 {
		t.Fatalf("expected replaced payload, got %d", got.Percentage)
	}

	if err := repo.Delete(ctx, "r2"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, "r2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	n, err := repo.DeleteAll(ctx, "alice")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deleted, got %d %v", n, err)
	}
	all, err := repo.List(ctx, "")
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty store, got %d %v", len(all), err)
	}
}

func TestBundledQuestionSource(t *testing.T) {
	questions, err := NewBundledQuestionSource(nil).ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(questions) == 0 {
		t.Fatal("bundled set is empty")
	}

	seen := make(map[int]bool, len(questions))
	for i, q := range questions {
		if seen[q.ID] {
			t.Fatalf("duplicate id %d", q.ID)
		}
		seen[q.ID] = true
		if i > 0 && questions[i-1].ID >= q.ID {
			t.Fatalf("questions not ordered by id at %d", i)
		}
		if q.Category == "" {
			t.Fatalf("question %d has no category", q.ID)
		}
	}
}

func TestBundledQuestionSourceReturnsCopies(t *testing.T) {
	src := NewBundledQuestionSource([]byte(
		`[{"id":1,"question":"Q","options":["a","b"],"correct_answer":0,"category":"X"}]`,
	))
	first, err := src.ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	first[0].Prompt = "changed"
	first[0].Options[0] = "changed"

	second, err := src.ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second[0].Prompt != "Q" || second[0].Options[0] != "a" {
		t.Fatalf("caller mutation leaked into the bundled set: %+v", second[0])
	}

	broken := NewBundledQuestionSource([]byte(`not json`))
	for i := 0; i < 2; i++ {
		if _, err := broken.ListAll(context.Background()); err == nil {
			t.Fatalf("call %d: expected the decode error to stick", i)
		}
	}
}

func TestBundledQuestionSourceRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"malformed":      `[{"id":1,`,
		"answer outside": `[{"id":1,"question":"Q","options":["a","b"],"correct_answer":2,"category":"X"}]`,
		"one option":     `[{"id":1,"question":"Q","options":["a"],"correct_answer":0,"category":"X"}]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewBundledQuestionSource([]byte(raw)).ListAll(context.Background()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	ordered, err := NewBundledQuestionSource([]byte(
		`[{"id":9,"question":"B","options":["a","b"],"correct_answer":0,"category":"X"},
		  {"id":2,"question":"A","options":["a","b"],"correct_answer":1,"category":"X"}]`,
	)).ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ordered[0].ID != 2 || ordered[1].ID != 9 {
		t.Fatalf("expected sort by id, got %d,%d", ordered[0].ID, ordered[1].ID)
	}
}

func TestMapPgError(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	if err := mapPgError(dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	other := &pgconn.PgError{Code: "23503"}
	if err := mapPgError(other); errors.Is(err, ErrDuplicate) {
		t.Fatal("foreign key violation mapped to ErrDuplicate")
	}
}
