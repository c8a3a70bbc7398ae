package model

import "time"

// ExamResult is the scored record of one submitted mock exam. It is built
// once at submission and never updated afterwards.
type ExamResult struct {
	ID              string           `json:"id" bson:"_id"`
	UserID          string           `json:"user_id,omitempty" bson:"user_id,omitempty"`
	SessionID       string           `json:"session_id,omitempty" bson:"session_id,omitempty"`
	Date            time.Time        `json:"date" bson:"date"`
	Correct         int              `json:"correct" bson:"correct"`
	Total           int              `json:"total" bson:"total"`
	Percentage      int              `json:"percentage" bson:"percentage"`
	Passed          bool             `json:"passed" bson:"passed"`
	TimeSpent       int              `json:"time_spent" bson:"time_spent"`
	FlaggedCount    int              `json:"flagged_count" bson:"flagged_count"`
	ImportantCount  int              `json:"important_count" bson:"important_count"`
	QuestionResults []QuestionResult `json:"question_results" bson:"question_results"`
	CreatedAt       time.Time        `json:"created_at" bson:"created_at"`
}

// QuestionResult is the per-question outcome stored inside an ExamResult.
// SelectedAnswer is nil for unanswered questions.
type QuestionResult struct {
	QuestionID     int      `json:"question_id" bson:"question_id"`
	Question       string   `json:"question" bson:"question"`
	Category       string   `json:"category" bson:"category"`
	Options        []string `json:"options" bson:"options"`
	SelectedAnswer *int     `json:"selected_answer" bson:"selected_answer"`
	CorrectAnswer  int      `json:"correct_answer" bson:"correct_answer"`
	IsCorrect      bool     `json:"is_correct" bson:"is_correct"`
	IsFlagged      bool     `json:"is_flagged" bson:"is_flagged"`
	IsImportant    bool     `json:"is_important" bson:"is_important"`
	Explanation    string   `json:"explanation,omitempty" bson:"explanation,omitempty"`
}

// SaveResultRequest is a result computed by a client and uploaded as-is
// (e.g. an attempt finished offline). Correct, percentage and pass state are
// recomputed from the question results on the server.
type SaveResultRequest struct {
	Date            time.Time               `json:"date" binding:"required"`
	TimeSpent       int                     `json:"time_spent" binding:"min=0,max=86400"`
	QuestionResults []QuestionResultRequest `json:"question_results" binding:"required,min=1,max=500,dive"`
}

// QuestionResultRequest is one per-question entry of an uploaded result.
type QuestionResultRequest struct {
	QuestionID     int      `json:"question_id" binding:"required,min=1"`
	Question       string   `json:"question" binding:"required"`
	Category       string   `json:"category" binding:"omitempty,max=100"`
	Options        []string `json:"options" binding:"required,min=2,max=8"`
	SelectedAnswer *int     `json:"selected_answer" binding:"omitempty,min=0"`
	CorrectAnswer  *int     `json:"correct_answer" binding:"required,min=0"`
	IsFlagged      bool     `json:"is_flagged"`
	IsImportant    bool     `json:"is_important"`
	Explanation    string   `json:"explanation" binding:"omitempty,max=4000"`
}
