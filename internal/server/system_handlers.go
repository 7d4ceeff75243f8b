package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/alphabeta/internal/modules/dashboard"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles process and host monitoring endpoints
type SystemHandlers struct {
	manager   *dashboard.Manager
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(manager *dashboard.Manager, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		manager:   manager,
		startedAt: time.Now(),
		log:       log.With().Str("component", "system_handlers").Logger(),
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	Sessions      int     `json:"sessions"`
	BusySessions  int     `json:"busy_sessions"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// HandleStatus returns the session count and host utilisation
// GET /api/system/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	busy := 0
	for _, id := range h.manager.IDs() {
		s, err := h.manager.Get(id)
		if err != nil {
			// Deleted between listing and lookup.
			continue
		}
		if s.Busy() {
			busy++
		}
	}

	writeJSON(w, h.log, http.StatusOK, SystemStatusResponse{
		Status:        "healthy",
		Sessions:      h.manager.Count(),
		BusySessions:  busy,
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// getSystemStats calculates CPU and RAM usage percentages over a short sample
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
