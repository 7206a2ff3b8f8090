package handler

import (
	"bytes"
	"fmt"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/service"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type DashboardHandler struct {
	svc *service.RequestService
}

func NewDashboardHandler(svc *service.RequestService) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// Metrics returns the dashboard counters.
// GET /api/v1/dashboard/metrics
func (h *DashboardHandler) Metrics(c *gin.Context) {
	m, err := h.svc.Metrics(c.Request.Context())
	if err != nil {
		serviceError(c, "dashboard metrics", err)
		return
	}
	Success(c, m)
}

// RefreshCache drops the cached request table.
// POST /api/v1/cache/refresh
func (h *DashboardHandler) RefreshCache(c *gin.Context) {
	if err := h.svc.RefreshCache(c.Request.Context()); err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"refreshed": true})
}

// Export downloads the request table as a workbook.
// GET /api/v1/requests/export
func (h *DashboardHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.svc.Export(c.Request.Context(), &buf); err != nil {
		serviceError(c, "export", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, "communications_requests.xlsx"))
	c.Data(200, xlsxContentType, buf.Bytes())
}
