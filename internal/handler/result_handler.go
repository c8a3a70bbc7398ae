package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/itilprep/itil-exam-backend/internal/middleware"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/response"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/itilprep/itil-exam-backend/internal/validator"
)

const (
	resultsPerPage    = 20
	maxResultsPerPage = 100
)

// ResultHandler serves persisted exam results and progress.
type ResultHandler struct {
	resultService   *service.ResultService
	progressService *service.ProgressService
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(resultService *service.ResultService, progressService *service.ProgressService) *ResultHandler {
	return &ResultHandler{
		resultService:   resultService,
		progressService: progressService,
	}
}

// SaveResult godoc
// POST /api/v1/results
// Stores a result finished on the client. Scores are recomputed here.
// 201 when stored, 202 when parked in the fallback store.
func (h *ResultHandler) SaveResult(c *gin.Context) {
	var req model.SaveResultRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, outcome, err := h.resultService.SaveUpload(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		failWith(c, err)
		return
	}

	switch outcome.Status {
	case service.PersistSaved:
		response.Success(c, http.StatusCreated, gin.H{"result": result, "persistence": outcome})
	case service.PersistFallback:
		response.Success(c, http.StatusAccepted, gin.H{"result": result, "persistence": outcome})
	default:
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStorageUnavailable)
	}
}

// ListResults godoc
// GET /api/v1/results[?page=&per_page=]
// Lists the caller's results, newest first.
func (h *ResultHandler) ListResults(c *gin.Context) {
	results, err := h.resultService.ListResults(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStorageUnavailable)
		return
	}

	page := response.ParsePage(c, resultsPerPage, maxResultsPerPage)
	start, end := page.Bounds(len(results))
	response.SuccessWithPagination(c, http.StatusOK,
		gin.H{"results": results[start:end], "total": len(results)},
		page.Pagination(len(results)))
}

// GetSummary godoc
// GET /api/v1/results/summary
// Aggregated progress across the caller's results.
func (h *ResultHandler) GetSummary(c *gin.Context) {
	overview, err := h.progressService.Overview(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStorageUnavailable)
		return
	}

	response.Success(c, http.StatusOK, overview)
}

// GetResult godoc
// GET /api/v1/results/:id
func (h *ResultHandler) GetResult(c *gin.Context) {
	result, ok := h.ownedResult(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// DeleteResult godoc
// DELETE /api/v1/results/:id
func (h *ResultHandler) DeleteResult(c *gin.Context) {
	result, ok := h.ownedResult(c)
	if !ok {
		return
	}

	if err := h.resultService.DeleteResult(c.Request.Context(), result.ID); err != nil {
		failWith(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteAllResults godoc
// DELETE /api/v1/results
// Clears the caller's history.
func (h *ResultHandler) DeleteAllResults(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	n, err := h.resultService.DeleteAllResults(c.Request.Context(), userID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": n})
}

// ownedResult loads :id and checks that results bound to a user are only
// visible to that user.
func (h *ResultHandler) ownedResult(c *gin.Context) (*model.ExamResult, bool) {
	result, err := h.resultService.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return nil, false
	}
	if result.UserID != "" && result.UserID != middleware.UserID(c) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}
	return result, true
}
