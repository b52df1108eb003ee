package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves the liveness and readiness endpoints of the
// streamable-http transport. It reports ready from creation until
// SetReady(false) or the ServerContext shuts down.
type HealthChecker struct {
	ready   atomic.Bool
	sc      *ServerContext
	started time.Time
}

// NewHealthChecker creates a HealthChecker. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady flips readiness, e.g. while draining connections.
func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }

// IsReady reports the readiness flag.
func (h *HealthChecker) IsReady() bool { return h.ready.Load() }

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`

	// Mailboxes counts stored credentials; Sessions counts cached Gmail sessions.
	Mailboxes          int    `json:"mailboxes"`
	Sessions           int    `json:"sessions"`
	CredentialDirError string `json:"credential_dir_error,omitempty"`
}

func writeHealth(w http.ResponseWriter, healthy bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// overall returns the first failing status, or ok.
func (h *HealthChecker) overall() string {
	switch {
	case !h.IsReady():
		return healthStatusNotReady
	case h.shuttingDown():
		return healthStatusShuttingDown
	default:
		return healthStatusOK
	}
}

// LivenessHandler serves /healthz. It fails only if the process cannot answer.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, true, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := map[string]string{"ready": healthStatusOK, "shutdown": healthStatusOK}
		if !h.IsReady() {
			checks["ready"] = healthStatusNotReady
		}
		if h.shuttingDown() {
			checks["shutdown"] = healthStatusShuttingDown
		}

		resp := HealthResponse{Status: healthStatusOK, Checks: checks}
		if h.overall() != healthStatusOK {
			resp.Status = healthStatusNotReady
		}
		writeHealth(w, resp.Status == healthStatusOK, resp)
	})
}

// DetailedHealthHandler serves /healthz/detailed with mailbox and session counts.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status: h.overall(),
			Uptime: time.Since(h.started).Truncate(time.Second).String(),
		}
		if h.sc != nil {
			resp.Sessions = h.sc.SessionCount()
			mailboxes, err := h.sc.Store().Mailboxes()
			if err != nil {
				resp.CredentialDirError = err.Error()
			}
			resp.Mailboxes = len(mailboxes)
		}
		writeHealth(w, resp.Status == healthStatusOK, resp)
	})
}

// RegisterHealthEndpoints mounts the health endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	for path, handler := range map[string]http.Handler{
		"/healthz":          h.LivenessHandler(),
		"/readyz":           h.ReadinessHandler(),
		"/healthz/detailed": h.DetailedHealthHandler(),
	} {
		mux.Handle(path, handler)
	}
}
