package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/response"
	"github.com/invigilo/proctor-backend/internal/service"
	"github.com/invigilo/proctor-backend/internal/validator"
)

// AuthHandler exposes the login endpoints.
type AuthHandler struct {
	auth *service.AuthService
	log  zerolog.Logger
}

func NewAuthHandler(auth *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		log:  log.With().Str("component", "auth_handler").Logger(),
	}
}

// HallTicketLogin authenticates a student from a scanned hall ticket QR code.
// POST /api/v1/auth/hall-ticket
func (h *AuthHandler) HallTicketLogin(c *gin.Context) {
	var req model.HallTicketLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.auth.HallTicketLogin(c.Request.Context(), req.TicketToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		case errors.Is(err, service.ErrTicketNotUsable):
			response.Fail(c, http.StatusForbidden, response.ErrTicketNotUsable)
		default:
			h.log.Error().Err(err).Msg("hall ticket login failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// AdminLogin authenticates an administrator.
// POST /api/v1/auth/admin/login
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.auth.AdminLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		h.log.Error().Err(err).Msg("admin login failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}
