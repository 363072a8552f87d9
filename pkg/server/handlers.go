package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
	"github.com/marmos91/tierkeeper/pkg/scheduler"
)

// HealthCheckTimeout bounds every healthcheck issued by /healthz.
const HealthCheckTimeout = 5 * time.Second

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// ComponentHealth is the outcome of one healthcheck.
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Uptime     string            `json:"uptime"`
	Components []ComponentHealth `json:"components"`
}

// LocationCount is the number of objects and bytes in one location.
type LocationCount struct {
	Location location.Location `json:"location"`
	location.LocationSummary
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Timestamp time.Time             `json:"timestamp"`
	Locations []LocationCount       `json:"locations"`
	Jobs      []scheduler.JobStatus `json:"jobs,omitempty"`
	LastRuns  []*history.Run        `json:"last_runs,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	deps      Deps
	startTime time.Time
}

func newHandlers(deps Deps) *handlers {
	return &handlers{deps: deps, startTime: time.Now()}
}

// Health handles GET /healthz. It responds 503 when any component fails.
func (h *handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	resp.Components = append(resp.Components, check(ctx, "location_store", h.deps.Store.Healthcheck))
	if h.deps.Tiers != nil {
		resp.Components = append(resp.Components, check(ctx, "tiers", h.deps.Tiers.HealthCheck))
	}
	if h.deps.History != nil {
		resp.Components = append(resp.Components, check(ctx, "history", h.deps.History.Healthcheck))
	}

	code := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != statusHealthy {
			resp.Status = statusUnhealthy
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, resp)
}

// Status handles GET /status.
func (h *handlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.deps.Store.CountByLocation(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to count objects by location", logger.KeyError, err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	resp := StatusResponse{
		Timestamp: time.Now().UTC(),
		Locations: make([]LocationCount, 0, len(location.All)),
	}
	for _, loc := range location.All {
		resp.Locations = append(resp.Locations, LocationCount{Location: loc, LocationSummary: counts[loc]})
	}

	if h.deps.Scheduler != nil {
		resp.Jobs = h.deps.Scheduler.Status()
	}

	if h.deps.History != nil {
		for _, action := range manipulator.Actions() {
			run, err := h.deps.History.Last(ctx, action.Kind())
			if errors.Is(err, history.ErrRunNotFound) {
				continue
			}
			if err != nil {
				logger.WarnCtx(ctx, "Failed to read run history", logger.KeyManipulator, action.Kind(), logger.KeyError, err.Error())
				continue
			}
			resp.LastRuns = append(resp.LastRuns, run)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func check(ctx context.Context, name string, fn func(context.Context) error) ComponentHealth {
	start := time.Now()
	err := fn(ctx)
	c := ComponentHealth{
		Name:    name,
		Status:  statusHealthy,
		Latency: time.Since(start).String(),
	}
	if err != nil {
		c.Status = statusUnhealthy
		c.Error = err.Error()
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", logger.KeyError, err.Error())
	}
}
