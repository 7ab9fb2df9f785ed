package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gym-calendar-agent/internal/model"
)

// Health returns the service health status
func (h *Handlers) Health(c *gin.Context) {
	resp := model.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Scheduler: "stopped",
	}

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
	}

	if h.scheduler.IsRunning() {
		resp.Scheduler = "running"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
