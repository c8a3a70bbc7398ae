package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/itilprep/itil-exam-backend/internal/model"
)

//go:embed data/questions.json
var bundledQuestions []byte

// BundledQuestionSource serves the question set compiled into the binary.
// It is the catalog of last resort when PostgreSQL is empty or down.
type BundledQuestionSource struct {
	raw []byte

	once      sync.Once
	questions []model.Question
	err       error
}

// NewBundledQuestionSource reads the embedded question file. Pass nil to use
// the compiled-in set; tests may pass their own JSON.
func NewBundledQuestionSource(raw []byte) *BundledQuestionSource {
	if raw == nil {
		raw = bundledQuestions
	}
	return &BundledQuestionSource{raw: raw}
}

// ListAll returns the bundled questions ordered by id. The file is decoded
// and validated on first use; every call gets its own copy.
func (s *BundledQuestionSource) ListAll(_ context.Context) ([]model.Question, error) {
	s.once.Do(func() {
		s.questions, s.err = decodeBundled(s.raw)
	})
	if s.err != nil {
		return nil, s.err
	}

	out := make([]model.Question, len(s.questions))
	for i, q := range s.questions {
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}
	return out, nil
}

func decodeBundled(raw []byte) ([]model.Question, error) {
	var questions []model.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode bundled questions: %w", err)
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("bundled questions: %w", err)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions, nil
}
