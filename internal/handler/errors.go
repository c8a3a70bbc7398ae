package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/itilprep/itil-exam-backend/internal/exam"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/repository"
	"github.com/itilprep/itil-exam-backend/internal/response"
	"github.com/itilprep/itil-exam-backend/internal/service"
)

// errorStatus maps a service or state machine error to an HTTP status and
// error code. Anything unrecognised is an internal error.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case exam.IsInvalidTransition(err):
		return http.StatusConflict, response.ErrInvalidTransition
	case errors.Is(err, exam.ErrIndexOutOfRange):
		return http.StatusBadRequest, response.ErrIndexOutOfRange
	case errors.Is(err, exam.ErrOptionOutOfRange):
		return http.StatusBadRequest, response.ErrOptionOutOfRange
	case errors.Is(err, service.ErrRepositoryUnavailable), errors.Is(err, exam.ErrNoQuestions):
		return http.StatusServiceUnavailable, response.ErrQuestionsMissing
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrSessionForbidden):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrResultNotFound):
		return http.StatusNotFound, response.ErrResultNotFound
	case errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound
	case errors.Is(err, model.ErrInvalidQuestion):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, response.ErrConflict
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the error envelope for err. Validation failures carry the
// error text as a detail field.
func failWith(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	if code == response.ErrValidation {
		response.FailWithFields(c, status, code, map[string]string{"detail": err.Error()})
		return
	}
	response.Fail(c, status, code)
}

// sessionID parses the :id path parameter.
func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// indexParam parses a non-negative integer path parameter. Range checks
// belong to the session.
func indexParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrIndexOutOfRange)
		return 0, false
	}
	return n, true
}
