package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/lanscore/internal/scheduler"
)

// ReconcileDependencies runs a reconciliation pass on demand.
type ReconcileDependencies interface {
	Trigger(ctx context.Context) (Result, error)
}

// ReconcileHandler handles manual reconciliation requests.
type ReconcileHandler struct {
	deps ReconcileDependencies
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(deps ReconcileDependencies) *ReconcileHandler {
	return &ReconcileHandler{deps: deps}
}

// HandleTrigger handles POST /reconcile requests. It answers once the pass
// has finished.
func (h *ReconcileHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	const op = "api.trigger_reconcile"
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	res, err := h.deps.Trigger(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, res)
	case errors.Is(err, scheduler.ErrBusy):
		writeError(w, http.StatusConflict, "pass_in_progress", NewKind(op, ErrPassInProgress))
	case errors.Is(err, scheduler.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
