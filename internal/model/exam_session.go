package model

// SelectAnswerRequest records the chosen option for one question.
type SelectAnswerRequest struct {
	Option *int `json:"option" binding:"required,min=0"`
}

// Cursor moves accepted by MoveCursorRequest.
const (
	CursorNext = "next"
	CursorPrev = "prev"
)

// MoveCursorRequest either jumps to Index or steps with Move.
type MoveCursorRequest struct {
	Index *int   `json:"index" binding:"omitempty,min=0"`
	Move  string `json:"move" binding:"omitempty,oneof=next prev"`
}
