package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/middleware"
	"github.com/invigilo/proctor-backend/internal/repository"
	"github.com/invigilo/proctor-backend/internal/response"
	"github.com/invigilo/proctor-backend/internal/service"
)

// IncidentHandler exposes the admin incident review endpoints. This is the
// pull-based complement to the realtime push: an admin who joined late reads
// history from here, the stream only carries what happens while connected.
type IncidentHandler struct {
	incidents *service.IncidentService
	log       zerolog.Logger
}

func NewIncidentHandler(incidents *service.IncidentService, log zerolog.Logger) *IncidentHandler {
	return &IncidentHandler{
		incidents: incidents,
		log:       log.With().Str("component", "incident_handler").Logger(),
	}
}

// ListBySession returns all incidents for a session, newest first.
// GET /api/v1/admin/sessions/:id/incidents
func (h *IncidentHandler) ListBySession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	incidents, err := h.incidents.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list incidents")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, incidents)
}

// Resolve marks an incident reviewed by the calling admin.
// PUT /api/v1/admin/incidents/:id/resolve
func (h *IncidentHandler) Resolve(c *gin.Context) {
	incidentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	claims := middleware.GetClaims(c)
	if err := h.incidents.Resolve(c.Request.Context(), incidentID, claims.UserID); err != nil {
		switch {
		case errors.Is(err, repository.ErrIncidentNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, repository.ErrResolvedByOther):
			response.Fail(c, http.StatusConflict, response.ErrIncidentResolved)
		default:
			h.log.Error().Err(err).Msg("failed to resolve incident")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}
	response.Success(c, http.StatusOK, gin.H{"resolved": true})
}
