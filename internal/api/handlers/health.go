package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fintrack/insight-engine/internal/ml"
)

var startTime = time.Now()

// HealthHandler reports service liveness together with model state and
// process resource usage.
type HealthHandler struct {
	modelService *ml.ModelService
	version      string
}

// NewHealthHandler builds a health handler.
func NewHealthHandler(modelService *ml.ModelService, version string) *HealthHandler {
	return &HealthHandler{modelService: modelService, version: version}
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Uptime    string         `json:"uptime"`
	Models    ml.ModelStatus `json:"models"`
	Resources resourceStats  `json:"resources"`
}

type resourceStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryUsedPct float64 `json:"memory_used_pct"`
	MemoryUnavail bool    `json:"memory_stats_unavailable,omitempty"`
}

// Check handles GET /health.
func (h *HealthHandler) Check(c *gin.Context) {
	stats := resourceStats{Goroutines: runtime.NumGoroutine()}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)
		stats.MemoryUsedPct = vm.UsedPercent
	} else {
		stats.MemoryUnavail = true
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
		Models:    h.modelService.Status(),
		Resources: stats,
	})
}
