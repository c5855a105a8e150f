package api

import (
	"net/http"
	"time"

	"github.com/snarg/stt-engine/internal/ingest"
	"github.com/snarg/stt-engine/internal/media"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Watcher       *ingest.Stats     `json:"watcher,omitempty"`
}

type HealthHandler struct {
	deps      Deps
	version   string
	startTime time.Time
}

func NewHealthHandler(deps Deps, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		deps:      deps,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Queue check: the engine cannot make progress without it.
	if h.deps.Queue != nil {
		if err := h.deps.Queue.Ping(r.Context()); err != nil {
			checks["queue"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["queue"] = "ok"
		}
	}

	// Cache check: degraded, not down; every lookup just misses.
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(r.Context()); err != nil {
			checks["cache"] = "error"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["cache"] = "ok"
		}
	} else {
		checks["cache"] = "not_configured"
	}

	// Tooling checks: without ffprobe nothing can be submitted.
	if media.CheckFFprobe() {
		checks["ffprobe"] = "ok"
	} else {
		checks["ffprobe"] = "missing"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	if media.CheckFFmpeg() {
		checks["ffmpeg"] = "ok"
	} else {
		checks["ffmpeg"] = "missing"
		if status == "healthy" {
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.deps.Watcher != nil {
		ws := h.deps.Watcher()
		resp.Watcher = &ws
		checks["spool_watcher"] = ws.Status
	}

	writeJSON(w, httpStatus, resp)
}
