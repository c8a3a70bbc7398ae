package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/itilprep/itil-exam-backend/internal/exam"
	"github.com/itilprep/itil-exam-backend/internal/middleware"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/response"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/itilprep/itil-exam-backend/internal/validator"
)

// SessionHandler exposes the exam session state machine over HTTP.
// Every route takes the session id as :id and acts for the caller's user id
// (empty for anonymous callers).
type SessionHandler struct {
	sessionService *service.ExamSessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.ExamSessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// CreateSession godoc
// POST /api/v1/sessions
// Samples a new NotStarted session from the catalog.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	view, err := h.sessionService.Create(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": view})
}

// GetSession godoc
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	h.respond(c, func(id uuid.UUID, user string) (*service.SessionView, error) {
		return h.sessionService.Get(id, user)
	})
}

// StartSession godoc
// POST /api/v1/sessions/:id/start
// Starts the countdown.
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.respond(c, func(id uuid.UUID, user string) (*service.SessionView, error) {
		return h.sessionService.Start(id, user)
	})
}

// SelectAnswer godoc
// PUT /api/v1/sessions/:id/answers/:index
// Records the chosen option; a later call replaces it.
func (h *SessionHandler) SelectAnswer(c *gin.Context) {
	index, ok := indexParam(c, "index")
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.respond(c, func(id uuid.UUID, user string) (*service.SessionView, error) {
		return h.sessionService.SelectAnswer(id, user, index, *req.Option)
	})
}

// ToggleFlag godoc
// POST /api/v1/sessions/:id/flags/:index
func (h *SessionHandler) ToggleFlag(c *gin.Context) {
	index, ok := indexParam(c, "index")
	if !ok {
		return
	}
	h.respond(c, func(id uuid.UUID, user string) (*service.SessionView, error) {
		return h.sessionService.ToggleFlag(id, user, index)
	})
}

// ToggleImportant godoc
// POST /api/v1/sessions/:id/important/:index
func (h *SessionHandler) ToggleImportant(c *gin.Context) {
	index, ok := indexParam(c, "index")
	if !ok {
		return
	}
	h.respond(c, func(id uuid.UUID, user string) (*service.SessionView, error) {
		return h.sessionService.ToggleImportant(id, user, index)
	})
}

// MoveCursor godoc
// PUT /api/v1/sessions/:id/cursor
// Jumps to {"index": n} or steps with {"move": "next"|"prev"}.
func (h *SessionHandler) MoveCursor(c *gin.Context) {
	var req model.MoveCursorRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if (req.Index == nil) == (req.Move == "") {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"index": "exactly one of index or move is required"})
		return
	}

	h.respond(c, func(id uuid.UUID, user string) (*service.SessionView, error) {
		switch {
		case req.Index != nil:
			return h.sessionService.GoTo(id, user, *req.Index)
		case req.Move == model.CursorNext:
			return h.sessionService.Next(id, user)
		default:
			return h.sessionService.Previous(id, user)
		}
	})
}

// Randomize godoc
// POST /api/v1/sessions/:id/randomize
// Reshuffles the question order and clears answers and marks.
func (h *SessionHandler) Randomize(c *gin.Context) {
	h.respond(c, func(id uuid.UUID, user string) (*service.SessionView, error) {
		return h.sessionService.Randomize(id, user)
	})
}

// SubmitSession godoc
// POST /api/v1/sessions/:id/submit
// Grades the session. The result is returned at once; persistence is
// reported later through the session's persistence block.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	result, view, err := h.sessionService.Submit(id, middleware.UserID(c))
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result, "session": view})
}

// ListIndices godoc
// GET /api/v1/sessions/:id/indices?filter=all|answered|unanswered|flagged|important
func (h *SessionHandler) ListIndices(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	filter, err := exam.ParseFilter(c.Query("filter"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidFilter)
		return
	}

	indices, err := h.sessionService.Indices(id, middleware.UserID(c), filter)
	if err != nil {
		failWith(c, err)
		return
	}

	if indices == nil {
		indices = []int{}
	}
	response.Success(c, http.StatusOK, gin.H{"filter": filter, "indices": indices})
}

// GetNavigation godoc
// GET /api/v1/sessions/:id/navigation
func (h *SessionHandler) GetNavigation(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	nav, err := h.sessionService.Navigation(id, middleware.UserID(c))
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"navigation": nav})
}

// AbandonSession godoc
// DELETE /api/v1/sessions/:id
// Stops the countdown and discards the session without a result.
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	if err := h.sessionService.Abandon(id, middleware.UserID(c)); err != nil {
		failWith(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// respond parses :id, runs op for the caller and writes the resulting view.
func (h *SessionHandler) respond(c *gin.Context, op func(id uuid.UUID, user string) (*service.SessionView, error)) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	view, err := op(id, middleware.UserID(c))
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": view})
}
