package service

import (
	"context"
	"sort"
	"sync"

	"github.com/itilprep/itil-exam-backend/internal/model"
)

// CategoryProgress is the correct/total tally of one category across results.
type CategoryProgress struct {
	Category   string `json:"category"`
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// ProgressSummary aggregates a user's exam history.
type ProgressSummary struct {
	TotalExams     int                `json:"total_exams"`
	Passed         int                `json:"passed"`
	Failed         int                `json:"failed"`
	WithFlagged    int                `json:"with_flagged"`
	WithImportant  int                `json:"with_important"`
	AverageScore   int                `json:"average_score"`
	BestScore      int                `json:"best_score"`
	WorstScore     int                `json:"worst_score"`
	Trend          int                `json:"trend"`
	CategoryScores []CategoryProgress `json:"category_scores"`
}

// Summarize aggregates results, which must be ordered newest first. Trend is
// newest minus oldest percentage; zero with fewer than two results.
func Summarize(results []model.ExamResult) ProgressSummary {
	sum := ProgressSummary{TotalExams: len(results), CategoryScores: []CategoryProgress{}}
	if len(results) == 0 {
		return sum
	}

	total := 0
	sum.BestScore, sum.WorstScore = results[0].Percentage, results[0].Percentage
	type tally struct{ correct, total int }
	byCategory := make(map[string]*tally)

	for _, r := range results {
		total += r.Percentage
		sum.BestScore = max(sum.BestScore, r.Percentage)
		sum.WorstScore = min(sum.WorstScore, r.Percentage)
		if r.Passed {
			sum.Passed++
		} else {
			sum.Failed++
		}
		if r.FlaggedCount > 0 {
			sum.WithFlagged++
		}
		if r.ImportantCount > 0 {
			sum.WithImportant++
		}
		for _, qr := range r.QuestionResults {
			t, ok := byCategory[qr.Category]
			if !ok {
				t = &tally{}
				byCategory[qr.Category] = t
			}
			t.total++
			if qr.IsCorrect {
				t.correct++
			}
		}
	}

	// Round half up, matching exam scoring.
	sum.AverageScore = (2*total + len(results)) / (2 * len(results))
	if len(results) > 1 {
		sum.Trend = results[0].Percentage - results[len(results)-1].Percentage
	}

	for c, t := range byCategory {
		sum.CategoryScores = append(sum.CategoryScores, CategoryProgress{
			Category:   c,
			Correct:    t.correct,
			Total:      t.total,
			Percentage: (200*t.correct + t.total) / (2 * t.total),
		})
	}
	sort.Slice(sum.CategoryScores, func(i, j int) bool {
		return sum.CategoryScores[i].Category < sum.CategoryScores[j].Category
	})
	return sum
}

// ProgressOverview pairs the aggregate with the stored user totals.
type ProgressOverview struct {
	Summary ProgressSummary  `json:"summary"`
	Stats   *model.UserStats `json:"stats,omitempty"`
}

// ProgressService builds progress views on top of ResultService.
type ProgressService struct {
	results *ResultService
}

func NewProgressService(results *ResultService) *ProgressService {
	return &ProgressService{results: results}
}

// Overview loads the history and the user totals concurrently. The totals
// are best effort; the history is required.
func (s *ProgressService) Overview(ctx context.Context, userID string) (*ProgressOverview, error) {
	var (
		results []model.ExamResult
		stats   *model.UserStats
		listErr error
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results, listErr = s.results.ListResults(ctx, userID)
	}()

	if userID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, _ = s.results.UserStats(ctx, userID)
		}()
	}

	wg.Wait()

	if listErr != nil {
		return nil, listErr
	}
	return &ProgressOverview{Summary: Summarize(results), Stats: stats}, nil
}
