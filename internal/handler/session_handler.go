package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/middleware"
	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/response"
	"github.com/invigilo/proctor-backend/internal/service"
	"github.com/invigilo/proctor-backend/internal/validator"
)

// SessionHandler exposes the student-facing exam session REST endpoints.
// The WebSocket stream covers the same mutations; REST is the fallback for
// clients whose socket dropped mid-exam.
type SessionHandler struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
}

func NewSessionHandler(sessions *service.ExamSessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// Start creates (or rejoins) the exam session for the student's hall ticket.
// POST /api/v1/student/sessions
func (h *SessionHandler) Start(c *gin.Context) {
	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	hallTicketID, err := uuid.Parse(req.HallTicketID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	claims := middleware.GetClaims(c)
	session, err := h.sessions.Start(c.Request.Context(), hallTicketID, claims.UserID)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusCreated, session)
}

// Get returns the current session snapshot.
// GET /api/v1/student/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, claims, ok := h.sessionScope(c)
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// Questions returns the session's question set, without correct answers.
// GET /api/v1/student/sessions/:id/questions
func (h *SessionHandler) Questions(c *gin.Context) {
	sessionID, claims, ok := h.sessionScope(c)
	if !ok {
		return
	}
	questions, err := h.sessions.Questions(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, questions)
}

// Answer saves one answer. Repeats overwrite.
// PUT /api/v1/student/sessions/:id/answers
func (h *SessionHandler) Answer(c *gin.Context) {
	sessionID, claims, ok := h.sessionScope(c)
	if !ok {
		return
	}
	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	session, err := h.sessions.Answer(c.Request.Context(), sessionID, claims.UserID, req.QuestionID, req.Answer)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// Navigate moves the question pointer.
// PUT /api/v1/student/sessions/:id/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	sessionID, claims, ok := h.sessionScope(c)
	if !ok {
		return
	}
	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	session, err := h.sessions.Navigate(c.Request.Context(), sessionID, claims.UserID, req.Question)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// Resume lifts a policy pause.
// POST /api/v1/student/sessions/:id/resume
func (h *SessionHandler) Resume(c *gin.Context) {
	sessionID, claims, ok := h.sessionScope(c)
	if !ok {
		return
	}
	session, err := h.sessions.Resume(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// Submit finishes the exam. Safe to call twice.
// POST /api/v1/student/sessions/:id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	sessionID, claims, ok := h.sessionScope(c)
	if !ok {
		return
	}
	session, err := h.sessions.Submit(c.Request.Context(), sessionID, claims.UserID, model.SubmitReasonManual)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// ReportViolation is the REST fallback for browser-event reports.
// POST /api/v1/student/sessions/:id/violations
func (h *SessionHandler) ReportViolation(c *gin.Context) {
	sessionID, claims, ok := h.sessionScope(c)
	if !ok {
		return
	}
	var req struct {
		Kind string `json:"kind" binding:"required"`
	}
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	result, err := h.sessions.ReportBrowserEvent(c.Request.Context(), sessionID, claims.UserID, model.IncidentType(req.Kind))
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"policy_action": result.Action.String(),
		"session":       result.Session,
	})
}

func (h *SessionHandler) sessionScope(c *gin.Context) (uuid.UUID, *service.Claims, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, nil, false
	}
	return sessionID, middleware.GetClaims(c), true
}

// failSession maps session service errors onto API error codes.
func (h *SessionHandler) failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotSessionOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrTicketNotUsable):
		response.Fail(c, http.StatusForbidden, response.ErrTicketNotUsable)
	case errors.Is(err, service.ErrNoQuestionsAvailable):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestionsAvailable)
	case errors.Is(err, service.ErrSessionFinished):
		response.Fail(c, http.StatusConflict, response.ErrSessionFinished)
	case errors.Is(err, service.ErrSessionNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
	case errors.Is(err, service.ErrQuestionOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionOutOfRange)
	case errors.Is(err, service.ErrInvalidEventKind):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
	default:
		h.log.Error().Err(err).Msg("session operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
