package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ErrRepositoryUnavailable means neither the primary nor the bundled source
// could supply questions. No session can be created.
var ErrRepositoryUnavailable = errors.New("question repository unavailable")

// ErrQuestionNotFound is returned by GetQuestion for an unknown id.
var ErrQuestionNotFound = errors.New("question not found")

// QuestionLister is any source of the full, ordered question set.
type QuestionLister interface {
	ListAll(ctx context.Context) ([]model.Question, error)
}

// QuestionStore is the writable primary catalog.
type QuestionStore interface {
	QuestionLister
	Create(ctx context.Context, q *model.Question) error
	BulkInsert(ctx context.Context, questions []model.Question) (int64, error)
}

// CatalogCache caches the primary catalog. Get returns (nil, nil) on a miss.
type CatalogCache interface {
	Get(ctx context.Context) ([]model.Question, error)
	Set(ctx context.Context, questions []model.Question) error
	Invalidate(ctx context.Context) error
}

// QuestionService serves the question catalog with a bundled fallback.
type QuestionService struct {
	primary QuestionStore
	bundled QuestionLister
	cache   CatalogCache
	log     zerolog.Logger
}

// NewQuestionService creates a new QuestionService. primary and cache may be
// nil, in which case only the bundled source is used.
func NewQuestionService(primary QuestionStore, bundled QuestionLister, cache CatalogCache, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		primary: primary,
		bundled: bundled,
		cache:   cache,
		log:     log.With().Str("component", "question_service").Logger(),
	}
}

// ListQuestions returns the full catalog ordered by id. An empty or failing
// primary falls back to the bundled set; both failing is ErrRepositoryUnavailable.
func (s *QuestionService) ListQuestions(ctx context.Context) ([]model.Question, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("Catalog cache read failed")
		} else if len(cached) > 0 {
			return cached, nil
		}
	}

	if s.primary != nil {
		questions, err := s.primary.ListAll(ctx)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("Primary question source failed, using bundled set")
		case len(questions) == 0:
			s.log.Warn().Msg("Primary question source is empty, using bundled set")
		default:
			if s.cache != nil {
				if err := s.cache.Set(ctx, questions); err != nil {
					s.log.Warn().Err(err).Msg("Catalog cache write failed")
				}
			}
			return questions, nil
		}
	}

	if s.bundled == nil {
		return nil, ErrRepositoryUnavailable
	}
	questions, err := s.bundled.ListAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Bundled question source failed")
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if len(questions) == 0 {
		return nil, ErrRepositoryUnavailable
	}
	return questions, nil
}

// GetQuestion looks up one question by id.
func (s *QuestionService) GetQuestion(ctx context.Context, id int) (*model.Question, error) {
	questions, err := s.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(questions), func(i int) bool { return questions[i].ID >= id })
	if i < len(questions) && questions[i].ID == id {
		q := questions[i]
		return &q, nil
	}
	return nil, ErrQuestionNotFound
}

// ListByCategory returns the questions whose category matches, case-insensitively.
func (s *QuestionService) ListByCategory(ctx context.Context, category string) ([]model.Question, error) {
	questions, err := s.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Question, 0)
	for _, q := range questions {
		if strings.EqualFold(q.Category, category) {
			out = append(out, q)
		}
	}
	return out, nil
}

// CategoryCounts tallies questions per category, largest first, ties by name.
func (s *QuestionService) CategoryCounts(ctx context.Context) ([]model.CategoryCount, error) {
	questions, err := s.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	return CountCategories(questions), nil
}

// CountCategories is the pure half of CategoryCounts, shared with the importer CLI.
func CountCategories(questions []model.Question) []model.CategoryCount {
	counts := make(map[string]int)
	for _, q := range questions {
		counts[q.Category]++
	}
	out := make([]model.CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, model.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// AddQuestion stores one question under the next free id.
func (s *QuestionService) AddQuestion(ctx context.Context, req model.AddQuestionRequest) (*model.Question, error) {
	if s.primary == nil {
		return nil, ErrRepositoryUnavailable
	}
	q := req.ToQuestion(1) // placeholder id for validation; the store assigns the real one
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.primary.Create(ctx, &q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	s.invalidate(ctx)
	s.log.Info().Int("question_id", q.ID).Str("category", q.Category).Msg("Question added")
	return &q, nil
}

// BulkUpload inserts questions with caller-supplied ids.
func (s *QuestionService) BulkUpload(ctx context.Context, items []model.BulkQuestion) (int64, error) {
	if s.primary == nil {
		return 0, ErrRepositoryUnavailable
	}
	questions := make([]model.Question, len(items))
	seen := make(map[int]bool, len(items))
	for i, item := range items {
		q := item.ToQuestion(item.ID)
		if err := q.Validate(); err != nil {
			return 0, err
		}
		if seen[q.ID] {
			return 0, fmt.Errorf("%w: duplicate id %d", model.ErrInvalidQuestion, q.ID)
		}
		seen[q.ID] = true
		questions[i] = q
	}

	n, err := s.primary.BulkInsert(ctx, questions)
	if err != nil {
		return 0, fmt.Errorf("bulk insert questions: %w", err)
	}
	s.invalidate(ctx)
	s.log.Info().Int64("count", n).Msg("Questions uploaded")
	return n, nil
}

func (s *QuestionService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Catalog cache invalidation failed")
	}
}

var _ QuestionStore = (*repository.QuestionRepository)(nil)
