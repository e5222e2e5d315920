package handlers

import (
	"net/http"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/httputil"
	"github.com/Fantasim/paysync/internal/poller"
)

// BreakerStater reports the Core circuit breaker state.
type BreakerStater interface {
	BreakerState() string
}

type healthResponse struct {
	OK             bool     `json:"ok"`
	Status         string   `json:"status"`
	Version        string   `json:"version"`
	CoreConfigured bool     `json:"coreConfigured"`
	MissingConfig  []string `json:"missingConfig,omitempty"`
	CoreCircuit    string   `json:"coreCircuit"`
	ActiveSessions int      `json:"activeSessions"`
	MaxSessions    int      `json:"maxSessions"`
	EventClients   int      `json:"eventClients"`
}

// HealthHandler returns a handler for GET /api/health. It never calls the
// Core; a missing Core setting shows up as status "degraded".
func HealthHandler(cfg *config.Config, version string, core BreakerStater, tracker *poller.Tracker, hub *poller.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		missing := cfg.MissingCoreSettings(true)
		resp := healthResponse{
			OK:             true,
			Status:         "ok",
			Version:        version,
			CoreConfigured: len(missing) == 0,
			MissingConfig:  missing,
			CoreCircuit:    core.BreakerState(),
			ActiveSessions: tracker.ActiveCount(),
			MaxSessions:    tracker.MaxSessions(),
			EventClients:   hub.ClientCount(),
		}
		if len(missing) > 0 || resp.CoreCircuit != config.CircuitClosed {
			resp.Status = "degraded"
		}

		httputil.NoStore(w)
		httputil.JSON(w, http.StatusOK, resp)
	}
}
