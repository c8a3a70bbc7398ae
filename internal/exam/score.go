package exam

import (
	"time"

	"github.com/google/uuid"
	"github.com/itilprep/itil-exam-backend/internal/model"
)

// NoAnswer marks an unanswered question in an answer slice.
const NoAnswer = -1

// Score is the outcome of grading one attempt.
type Score struct {
	Correct    int  `json:"correct"`
	Total      int  `json:"total"`
	Percentage int  `json:"percentage"`
	Passed     bool `json:"passed"`
}

// Percentage returns round(100*correct/total) with halves rounded up.
// A zero total scores 0.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}

// Grade counts answers[i] == questions[i].CorrectAnswer. Unanswered entries
// (NoAnswer) and answers past the end of the slice never count.
func Grade(questions []model.Question, answers []int, passThreshold int) Score {
	correct := 0
	for i, q := range questions {
		if i < len(answers) && answers[i] != NoAnswer && answers[i] == q.CorrectAnswer {
			correct++
		}
	}
	pct := Percentage(correct, len(questions))
	return Score{
		Correct:    correct,
		Total:      len(questions),
		Percentage: pct,
		Passed:     pct >= passThreshold,
	}
}

// buildResult freezes the graded state into a result record. Caller holds s.mu.
func (s *Session) buildResult(submittedAt time.Time) model.ExamResult {
	sc := Grade(s.questions, s.answers, s.cfg.PassThresholdPercent)

	perQuestion := make([]model.QuestionResult, len(s.questions))
	for i, q := range s.questions {
		var selected *int
		if s.answers[i] != NoAnswer {
			v := s.answers[i]
			selected = &v
		}
		_, flagged := s.flagged[i]
		_, important := s.important[i]
		perQuestion[i] = model.QuestionResult{
			QuestionID:     q.ID,
			Question:       q.Prompt,
			Category:       q.Category,
			Options:        append([]string(nil), q.Options...),
			SelectedAnswer: selected,
			CorrectAnswer:  q.CorrectAnswer,
			IsCorrect:      selected != nil && *selected == q.CorrectAnswer,
			IsFlagged:      flagged,
			IsImportant:    important,
			Explanation:    q.Explanation,
		}
	}

	spent := int(submittedAt.Sub(s.startedAt) / time.Second)
	if spent < 0 {
		spent = 0
	}

	return model.ExamResult{
		ID:              uuid.NewString(),
		UserID:          s.userID,
		SessionID:       s.id.String(),
		Date:            submittedAt,
		Correct:         sc.Correct,
		Total:           sc.Total,
		Percentage:      sc.Percentage,
		Passed:          sc.Passed,
		TimeSpent:       spent,
		FlaggedCount:    len(s.flagged),
		ImportantCount:  len(s.important),
		QuestionResults: perQuestion,
		CreatedAt:       submittedAt,
	}
}

// GradeUpload recomputes correctness and score for a client-supplied result,
// ignoring whatever the client claimed.
func GradeUpload(req model.SaveResultRequest, passThreshold int) (model.ExamResult, error) {
	perQuestion := make([]model.QuestionResult, len(req.QuestionResults))
	correct, flagged, important := 0, 0, 0
	for i, qr := range req.QuestionResults {
		if qr.CorrectAnswer == nil || *qr.CorrectAnswer < 0 || *qr.CorrectAnswer >= len(qr.Options) {
			return model.ExamResult{}, ErrOptionOutOfRange
		}
		if qr.SelectedAnswer != nil && (*qr.SelectedAnswer < 0 || *qr.SelectedAnswer >= len(qr.Options)) {
			return model.ExamResult{}, ErrOptionOutOfRange
		}
		isCorrect := qr.SelectedAnswer != nil && *qr.SelectedAnswer == *qr.CorrectAnswer
		if isCorrect {
			correct++
		}
		if qr.IsFlagged {
			flagged++
		}
		if qr.IsImportant {
			important++
		}
		perQuestion[i] = model.QuestionResult{
			QuestionID:     qr.QuestionID,
			Question:       qr.Question,
			Category:       qr.Category,
			Options:        qr.Options,
			SelectedAnswer: qr.SelectedAnswer,
			CorrectAnswer:  *qr.CorrectAnswer,
			IsCorrect:      isCorrect,
			IsFlagged:      qr.IsFlagged,
			IsImportant:    qr.IsImportant,
			Explanation:    qr.Explanation,
		}
	}

	pct := Percentage(correct, len(perQuestion))
	return model.ExamResult{
		ID:              uuid.NewString(),
		Date:            req.Date,
		Correct:         correct,
		Total:           len(perQuestion),
		Percentage:      pct,
		Passed:          pct >= passThreshold,
		TimeSpent:       req.TimeSpent,
		FlaggedCount:    flagged,
		ImportantCount:  important,
		QuestionResults: perQuestion,
		CreatedAt:       time.Now().UTC(),
	}, nil
}
