package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/costbook/internal/database"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	ledgerDB    *database.DB
	portfolioDB *database.DB
}

// NewSystemHandlers creates system monitoring handlers
func NewSystemHandlers(ledgerDB, portfolioDB *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		startupTime: time.Now(),
		ledgerDB:    ledgerDB,
		portfolioDB: portfolioDB,
	}
}

// HandleHealth returns service health: uptime, host resource usage and
// database connectivity. `?deep=1` upgrades the connectivity check to a
// full integrity check - expensive, meant for operators rather than
// liveness polling.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deep := r.URL.Query().Get("deep") != ""

	health := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
	}

	databases := map[string]interface{}{}
	healthy := true
	for _, db := range []*database.DB{h.ledgerDB, h.portfolioDB} {
		check := db.QuickCheck
		if deep {
			check = db.HealthCheck
		}

		status := "ok"
		if err := check(ctx); err != nil {
			status = err.Error()
			healthy = false
		}

		databases[db.Name()] = map[string]string{
			"status":  status,
			"path":    db.Path(),
			"profile": string(db.Profile()),
		}
	}
	health["databases"] = databases

	if memStats, err := mem.VirtualMemory(); err == nil {
		health["memory_used_percent"] = memStats.UsedPercent
	}
	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		health["cpu_percent"] = cpuPercents[0]
	}

	status := http.StatusOK
	if !healthy {
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode health response")
	}
}
