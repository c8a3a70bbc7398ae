package model

import "time"

// UserStats tracks a user's exam history totals in the document store.
type UserStats struct {
	UserID     string    `json:"user_id" bson:"_id"`
	ExamsTaken int       `json:"exams_taken" bson:"exams_taken"`
	BestScore  int       `json:"best_score" bson:"best_score"`
	LastExamAt time.Time `json:"last_exam_at" bson:"last_exam_at"`
}
