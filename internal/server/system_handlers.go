package server

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/aristath/riskflow/internal/database"
	"github.com/aristath/riskflow/internal/server/response"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers reports process and host status
type SystemHandlers struct {
	dataDir      string
	databases    []*database.DB
	capabilities func() []string
	patterns     func() []string
	startedAt    time.Time
	log          zerolog.Logger
}

// NewSystemHandlers creates system handlers. capabilities and patterns list the
// registered capability names and catalog pattern ids.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	capabilities func() []string,
	patterns func() []string,
) *SystemHandlers {
	return &SystemHandlers{
		dataDir:      dataDir,
		databases:    databases,
		capabilities: capabilities,
		patterns:     patterns,
		startedAt:    time.Now(),
		log:          log.With().Str("handler", "system").Logger(),
	}
}

// DBInfo describes one database file
type DBInfo struct {
	Name    string  `json:"name"`
	SizeMB  float64 `json:"size_mb"`
	Healthy bool    `json:"healthy"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	GoVersion     string   `json:"go_version"`
	Goroutines    int      `json:"goroutines"`
	CPUPercent    float64  `json:"cpu_percent"`
	MemoryPercent float64  `json:"memory_percent"`
	DiskPercent   float64  `json:"disk_percent"`
	DiskFreeMB    float64  `json:"disk_free_mb"`
	Databases     []DBInfo `json:"databases"`
	Capabilities  []string `json:"capabilities"`
	Patterns      []string `json:"patterns"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()
	status := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Databases:     make([]DBInfo, 0, len(h.databases)),
		Capabilities:  h.capabilities(),
		Patterns:      h.patterns(),
	}

	if usage, err := disk.Usage(h.dataDir); err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
	} else {
		status.DiskPercent = usage.UsedPercent
		status.DiskFreeMB = float64(usage.Free) / 1024 / 1024
	}

	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Healthy: true}
		if err := db.QuickCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database check failed")
			info.Healthy = false
			status.Status = "degraded"
		}
		if stat, err := os.Stat(db.Path()); err == nil {
			info.SizeMB = float64(stat.Size()) / 1024 / 1024
		}
		status.Databases = append(status.Databases, info)
	}

	response.JSON(w, h.log, http.StatusOK, status)
}

// getSystemStats returns CPU and RAM usage percentages. The CPU sample window is
// short so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
