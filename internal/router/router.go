package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/invigilo/proctor-backend/internal/config"
	"github.com/invigilo/proctor-backend/internal/handler"
	"github.com/invigilo/proctor-backend/internal/middleware"
	"github.com/invigilo/proctor-backend/internal/response"
	"github.com/invigilo/proctor-backend/internal/service"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth      *handler.AuthHandler
	Session   *handler.SessionHandler
	Incident  *handler.IncidentHandler
	Dashboard *handler.DashboardHandler
	WS        *handler.WSHandler
}

// Setup wires all routes and middleware onto a Gin engine.
func Setup(cfg *config.Config, auth *service.AuthService, h Handlers) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(response.RequestIDMiddleware())
	r.Use(buildCORS(cfg.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(1, 5))
	{
		authGroup.POST("/hall-ticket", h.Auth.HallTicketLogin)
		authGroup.POST("/admin/login", h.Auth.AdminLogin)
	}

	student := api.Group("/student")
	student.Use(middleware.RequireStudentJWT(auth))
	{
		student.POST("/sessions", h.Session.Start)
		student.GET("/sessions/:id", h.Session.Get)
		student.GET("/sessions/:id/questions", h.Session.Questions)
		student.PUT("/sessions/:id/answers", h.Session.Answer)
		student.PUT("/sessions/:id/navigate", h.Session.Navigate)
		student.POST("/sessions/:id/resume", h.Session.Resume)
		student.POST("/sessions/:id/submit", h.Session.Submit)
		student.POST("/sessions/:id/violations", h.Session.ReportViolation)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdminJWT(auth))
	{
		admin.GET("/dashboard", h.Dashboard.Stats)
		admin.GET("/sessions/:id/incidents", h.Incident.ListBySession)
		admin.PUT("/incidents/:id/resolve", h.Incident.Resolve)
	}

	wsGroup := r.Group("/ws/v1")
	{
		wsGroup.GET("/exam/:id", middleware.RequireStudentJWT(auth), h.WS.StudentStream)
		wsGroup.GET("/monitor", middleware.RequireAdminJWT(auth), h.WS.AdminMonitor)
	}

	return r
}

func buildCORS(allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	return cors.New(corsConfig)
}
