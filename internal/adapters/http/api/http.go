// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/lanscore/internal/domain/types"
	"github.com/okian/lanscore/internal/reconcile"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	HealthChecker
	LeaderboardDependencies
	ReconcileDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Result is the summary of a reconciliation pass.
type Result = reconcile.Result

// Server wires HTTP routes for the ops API.
type Server struct {
	healthHandler      *HealthHandler
	metricsHandler     http.Handler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	reconcileHandler   *ReconcileHandler
	liveHandler        http.Handler
}

// NewServer creates a new API server with all handlers. live may be nil when
// no websocket stream is served.
func NewServer(deps Dependencies, live http.Handler, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(deps),
		metricsHandler:     NewMetricsHandler(),
		statsHandler:       NewStatsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		reconcileHandler:   NewReconcileHandler(deps),
		liveHandler:        live,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.metricsHandler)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/reconcile", MetricsMiddleware(s.reconcileHandler.HandleTrigger, "reconcile"))
	if s.liveHandler != nil {
		// the upgrade needs the raw ResponseWriter, so no metrics wrapper
		mux.Handle("/live", s.liveHandler)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
