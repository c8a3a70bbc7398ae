package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/response"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/itilprep/itil-exam-backend/internal/validator"
)

// QuestionHandler serves the question catalog.
type QuestionHandler struct {
	questionService *service.QuestionService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// ListQuestions godoc
// GET /api/v1/questions[?category=]
// Lists the whole bank, or one category for practice mode.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	var (
		questions []model.Question
		err       error
	)
	if category := c.Query("category"); category != "" {
		questions, err = h.questionService.ListByCategory(c.Request.Context(), category)
	} else {
		questions, err = h.questionService.ListQuestions(c.Request.Context())
	}
	if err != nil {
		failWith(c, err)
		return
	}

	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions, "total": len(questions)})
}

// GetQuestion godoc
// GET /api/v1/questions/:id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	question, err := h.questionService.GetQuestion(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": question})
}

// ListCategories godoc
// GET /api/v1/categories
// Returns each category with its question count, largest first.
func (h *QuestionHandler) ListCategories(c *gin.Context) {
	counts, err := h.questionService.CategoryCounts(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"categories": counts})
}

// AddQuestion godoc
// POST /api/v1/questions
// Adds a question under the next free id.
func (h *QuestionHandler) AddQuestion(c *gin.Context) {
	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.AddQuestion(c.Request.Context(), req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// BulkUpload godoc
// POST /api/v1/questions/bulk
// Inserts questions with their given ids.
func (h *QuestionHandler) BulkUpload(c *gin.Context) {
	var req model.BulkUploadRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	n, err := h.questionService.BulkUpload(c.Request.Context(), req.Questions)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"inserted": n})
}
