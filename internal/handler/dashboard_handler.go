package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invigilo/proctor-backend/internal/response"
	"github.com/invigilo/proctor-backend/internal/service"
)

// DashboardHandler serves the admin dashboard summary.
type DashboardHandler struct {
	monitor *service.MonitorService
}

func NewDashboardHandler(monitor *service.MonitorService) *DashboardHandler {
	return &DashboardHandler{monitor: monitor}
}

// Stats returns the aggregated dashboard numbers.
// GET /api/v1/admin/dashboard
func (h *DashboardHandler) Stats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.monitor.Stats(c.Request.Context()))
}
