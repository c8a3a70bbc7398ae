package model

import (
	"errors"
	"fmt"
)

// Question is a single multiple-choice item from the ITIL 4 Foundation bank.
// Questions are immutable once loaded.
type Question struct {
	ID            int      `json:"id"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Category      string   `json:"category"`
	Explanation   string   `json:"explanation"`
}

// ErrInvalidQuestion is returned by Question.Validate.
var ErrInvalidQuestion = errors.New("invalid question")

// Validate checks the structural invariants of a question record.
func (q Question) Validate() error {
	if q.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidQuestion, q.ID)
	}
	if q.Prompt == "" {
		return fmt.Errorf("%w: question %d has no prompt", ErrInvalidQuestion, q.ID)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuestion, q.ID)
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("%w: question %d correct answer %d outside %d options",
			ErrInvalidQuestion, q.ID, q.CorrectAnswer, len(q.Options))
	}
	return nil
}

// ForCandidate strips the answer key so the question can be shown during a running exam.
func (q Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:       q.ID,
		Prompt:   q.Prompt,
		Options:  q.Options,
		Category: q.Category,
	}
}

// QuestionForCandidate is a question without the correct answer or explanation.
type QuestionForCandidate struct {
	ID       int      `json:"id"`
	Prompt   string   `json:"question"`
	Options  []string `json:"options"`
	Category string   `json:"category"`
}

// CategoryCount is the number of questions filed under one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// AddQuestionRequest is the payload for adding one question to the bank.
// The id is assigned by the repository.
type AddQuestionRequest struct {
	Prompt        string   `json:"question" binding:"required,min=1,max=2000"`
	Options       []string `json:"options" binding:"required,min=2,max=8,dive,required,max=1000"`
	CorrectAnswer *int     `json:"correct_answer" binding:"required,min=0"`
	Category      string   `json:"category" binding:"required,max=100"`
	Explanation   string   `json:"explanation" binding:"omitempty,max=4000"`
}

// ToQuestion converts the request into a Question with the given id.
func (r AddQuestionRequest) ToQuestion(id int) Question {
	correct := 0
	if r.CorrectAnswer != nil {
		correct = *r.CorrectAnswer
	}
	return Question{
		ID:            id,
		Prompt:        r.Prompt,
		Options:       r.Options,
		CorrectAnswer: correct,
		Category:      r.Category,
		Explanation:   r.Explanation,
	}
}

// BulkQuestion is one entry of a bulk upload; ids are supplied by the caller.
type BulkQuestion struct {
	ID int `json:"id" binding:"required,min=1"`
	AddQuestionRequest
}

// BulkUploadRequest is the payload for seeding the bank in one call.
type BulkUploadRequest struct {
	Questions []BulkQuestion `json:"questions" binding:"required,min=1,dive"`
}
