package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/repository"
)

var errStoreDown = errors.New("store down")

func makeQuestions(n int) []model.Question {
	out := make([]model.Question, n)
	for i := range out {
		id := i + 1
		out[i] = model.Question{
			ID:            id,
			Prompt:        fmt.Sprintf("Question %d", id),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: id % 4,
			Category:      []string{"Incident Management", "Change Control", "General Concepts"}[id%3],
		}
	}
	return out
}

type fakeLister struct {
	questions []model.Question
	err       error
	calls     int
}

func (f *fakeLister) ListAll(_ context.Context) ([]model.Question, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.questions, nil
}

type fakeQuestionStore struct {
	fakeLister
	created  []model.Question
	bulk     []model.Question
	writeErr error
}

func (f *fakeQuestionStore) Create(_ context.Context, q *model.Question) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	maxID := 0
	for _, existing := range f.questions {
		maxID = max(maxID, existing.ID)
	}
	q.ID = maxID + 1
	f.questions = append(f.questions, *q)
	f.created = append(f.created, *q)
	return nil
}

func (f *fakeQuestionStore) BulkInsert(_ context.Context, qs []model.Question) (int64, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.bulk = append(f.bulk, qs...)
	f.questions = append(f.questions, qs...)
	return int64(len(qs)), nil
}

type fakeCatalogCache struct {
	stored      []model.Question
	sets        int
	invalidated int
}

func (f *fakeCatalogCache) Get(_ context.Context) ([]model.Question, error) { return f.stored, nil }

func (f *fakeCatalogCache) Set(_ context.Context, qs []model.Question) error {
	f.sets++
	f.stored = qs
	return nil
}

func (f *fakeCatalogCache) Invalidate(_ context.Context) error {
	f.invalidated++
	f.stored = nil
	return nil
}

// fakeResultStore is an in-memory ResultStore that can be switched to fail.
type fakeResultStore struct {
	mu      sync.Mutex
	results map[string]model.ExamResult
	fail    bool
	saves   int
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: make(map[string]model.ExamResult)}
}

func (f *fakeResultStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeResultStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func (f *fakeResultStore) Save(ctx context.Context, r *model.ExamResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.fail {
		return errStoreDown
	}
	f.results[r.ID] = *r
	return nil
}

func (f *fakeResultStore) List(_ context.Context, userID string) ([]model.ExamResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errStoreDown
	}
	var out []model.ExamResult
	for _, r := range f.results {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeResultStore) Get(_ context.Context, id string) (*model.ExamResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errStoreDown
	}
	r, ok := f.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (f *fakeResultStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	if _, ok := f.results[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.results, id)
	return nil
}

func (f *fakeResultStore) DeleteAll(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errStoreDown
	}
	var n int64
	for id, r := range f.results {
		if userID == "" || r.UserID == userID {
			delete(f.results, id)
			n++
		}
	}
	return n, nil
}

type fakeStats struct {
	mu    sync.Mutex
	stats map[string]*model.UserStats
}

func newFakeStats() *fakeStats { return &fakeStats{stats: make(map[string]*model.UserStats)} }

func (f *fakeStats) RecordExam(_ context.Context, userID string, pct int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stats[userID]
	if !ok {
		s = &model.UserStats{UserID: userID}
		f.stats[userID] = s
	}
	s.ExamsTaken++
	s.BestScore = max(s.BestScore, pct)
	s.LastExamAt = at
	return nil
}

func (f *fakeStats) Get(_ context.Context, userID string) (*model.UserStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stats[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeQueue) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

// hangingStore blocks every write until its context ends, the way the
// document store behaves while no server is reachable.
type hangingStore struct {
	*fakeResultStore
}

func (h hangingStore) Save(ctx context.Context, _ *model.ExamResult) error {
	<-ctx.Done()
	return ctx.Err()
}
