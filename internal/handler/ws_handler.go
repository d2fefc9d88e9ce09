package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/middleware"
	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/service"
	ws "github.com/invigilo/proctor-backend/internal/websocket"
)

// WSHandler owns the two realtime endpoints: the student exam stream and
// the admin monitoring stream.
type WSHandler struct {
	sessions *service.ExamSessionService
	hub      *ws.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(sessions *service.ExamSessionService, hub *ws.Hub, allowedOrigins []string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		hub:      hub,
		upgrader: buildUpgrader(allowedOrigins),
		log:      log.With().Str("component", "ws_handler").Logger(),
	}
}

// buildUpgrader validates the Origin header against the configured allow
// list. An empty list permits everything (dev mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
}

// StudentStream is the student's exam-time action stream. All mutations the
// REST API offers are available here too; responses go back on the same
// connection, incidents fan out to admins through the hub.
// GET /ws/v1/exam/:id?token=...
func (h *WSHandler) StudentStream(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	claims := middleware.GetClaims(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.log.Debug().
		Str("session_id", sessionID.String()).
		Int("student_id", claims.UserID).
		Msg("student stream opened")

	for {
		var req ws.RequestPayload
		if err := ws.ReadJSON(conn, &req); err != nil {
			// Stream dropped mid-exam: flag it for the proctors.
			h.sessions.ReportDisconnect(context.Background(), sessionID, claims.UserID)
			h.log.Debug().
				Str("session_id", sessionID.String()).
				Msg("student stream closed")
			return
		}
		h.handleStudentAction(c, conn, sessionID, claims.UserID, req)
	}
}

func (h *WSHandler) handleStudentAction(c *gin.Context, conn *websocket.Conn, sessionID uuid.UUID, studentID int, req ws.RequestPayload) {
	ctx := c.Request.Context()

	switch req.Action {
	case ws.ActionPing:
		ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})

	case ws.ActionAuth:
		// Token auth already happened at upgrade time; answer with the
		// current snapshot so reconnecting clients can rehydrate.
		session, err := h.sessions.Get(ctx, sessionID, studentID)
		if err != nil {
			h.writeServiceError(conn, err)
			return
		}
		ws.WriteTyped(conn, ws.SessionStateResponse{Event: ws.EventSessionState, Session: session})

	case ws.ActionFaceSample:
		if req.Sample == nil {
			ws.WriteError(conn, "face_sample requires a sample")
			return
		}
		result, err := h.sessions.HandleFaceSample(ctx, sessionID, studentID, *req.Sample)
		if err != nil {
			h.writeServiceError(conn, err)
			return
		}
		if result.Warning {
			ws.WriteTyped(conn, ws.WarningResponse{
				Event:   ws.EventWarning,
				Message: "Please keep your eyes on the screen",
			})
		}

	case ws.ActionViolation:
		result, err := h.sessions.ReportBrowserEvent(ctx, sessionID, studentID, model.IncidentType(req.Kind))
		if err != nil {
			h.writeServiceError(conn, err)
			return
		}
		ws.WriteTyped(conn, ws.SessionStateResponse{Event: ws.EventSessionState, Session: result.Session})

	case ws.ActionAnswer:
		session, err := h.sessions.Answer(ctx, sessionID, studentID, req.QID, req.Answer)
		if err != nil {
			h.writeServiceError(conn, err)
			return
		}
		ws.WriteTyped(conn, ws.SessionStateResponse{Event: ws.EventSessionState, Session: session})

	case ws.ActionNavigate:
		session, err := h.sessions.Navigate(ctx, sessionID, studentID, req.Question)
		if err != nil {
			h.writeServiceError(conn, err)
			return
		}
		ws.WriteTyped(conn, ws.SessionStateResponse{Event: ws.EventSessionState, Session: session})

	case ws.ActionResume:
		session, err := h.sessions.Resume(ctx, sessionID, studentID)
		if err != nil {
			h.writeServiceError(conn, err)
			return
		}
		ws.WriteTyped(conn, ws.SessionStateResponse{Event: ws.EventSessionState, Session: session})

	case ws.ActionSubmit:
		session, err := h.sessions.Submit(ctx, sessionID, studentID, model.SubmitReasonManual)
		if err != nil {
			h.writeServiceError(conn, err)
			return
		}
		ws.WriteTyped(conn, ws.SessionStateResponse{Event: ws.EventSessionState, Session: session})

	case ws.ActionVideoFeed:
		h.hub.BroadcastToAdmins(ws.VideoFeedEvent{
			Event:     ws.EventVideoFeed,
			SessionID: sessionID.String(),
			StudentID: studentID,
			Image:     req.Image,
		})

	default:
		ws.WriteError(conn, "unknown action")
	}
}

// AdminMonitor registers an admin observer on the hub. Delivery starts at
// registration; nothing that happened before the connection is replayed.
// GET /ws/v1/monitor?token=...
func (h *WSHandler) AdminMonitor(c *gin.Context) {
	claims := middleware.GetClaims(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := ws.NewClient(conn, claims.UserID, ws.RoleAdmin)
	h.hub.Register(client)
	defer h.hub.Unregister(client)
	go client.WritePump()

	h.log.Info().Int("admin_id", claims.UserID).Msg("admin monitor connected")

	// Inbound traffic is only pings and the eventual close. All writes go
	// through the send queue; WritePump is the only socket writer.
	pong, _ := json.Marshal(ws.PongResponse{Event: ws.EventPong})
	for {
		var req ws.RequestPayload
		if err := ws.ReadJSON(conn, &req); err != nil {
			h.log.Info().Int("admin_id", claims.UserID).Msg("admin monitor disconnected")
			return
		}
		if req.Action == ws.ActionPing {
			select {
			case client.Send <- pong:
			default:
			}
		}
	}
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrNotSessionOwner),
		errors.Is(err, service.ErrSessionFinished),
		errors.Is(err, service.ErrSessionNotActive),
		errors.Is(err, service.ErrQuestionOutOfRange),
		errors.Is(err, service.ErrInvalidEventKind):
		ws.WriteError(conn, err.Error())
	default:
		h.log.Error().Err(err).Msg("websocket action failed")
		ws.WriteError(conn, "internal error")
	}
}
