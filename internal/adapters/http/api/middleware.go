package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/lanscore/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest       = 400
	statusNotFound         = 404
	statusMethodNotAllowed = 405
	statusConflict         = 409
	statusInternalError    = 500
	statusUnavailable      = 503
)

// MetricsMiddleware records request counts, durations and error kinds for
// one ops endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		durationMs := float64(time.Since(start).Milliseconds())
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, durationMs)

		if rec.status >= statusBadRequest {
			kind := errorKind(rec.status)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, kind)
			metrics.RecordErrorByType(kind, errorSeverity(rec.status))
			metrics.RecordErrorLatency("http", kind, durationMs)
		}
	}
}

// errorKind names the error class of a status code. A busy scheduler (409)
// and a stopped service (503) are kept apart from generic server errors.
func errorKind(status int) string {
	switch {
	case status == statusUnavailable:
		return "unavailable"
	case status >= statusInternalError:
		return "server_error"
	case status == statusConflict:
		return "conflict"
	case status == statusMethodNotAllowed:
		return "method_not_allowed"
	case status == statusNotFound:
		return "not_found"
	case status >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

func errorSeverity(status int) string {
	switch {
	case status == statusConflict:
		// an overlapping trigger is expected under load
		return "low"
	case status >= statusInternalError:
		return "high"
	case status >= statusBadRequest:
		return "medium"
	default:
		return "low"
	}
}

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
