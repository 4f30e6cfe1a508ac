package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes. Healthz reports build
// metadata without touching dependencies; Readyz runs dependency checks via
// the system service.
type HealthHandlers struct {
	build  services.BuildInfo
	system services.SystemService
	clock  func() time.Time
}

// HealthOption customises HealthHandlers construction.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata reported on /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthSystemService sets the system service used for readiness checks.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthClock overrides the clock used to compute uptime.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health endpoints from the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock().UTC()
	}
	return h
}

// Healthz reports process liveness with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}

	writeHealthJSON(w, http.StatusOK, payload)
}

// Readyz reports dependency readiness; any non-ok check yields 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeHealthJSON(w, http.StatusOK, map[string]any{
			"status":    domain.HealthStatusOK,
			"timestamp": h.clock().UTC().Format(time.RFC3339),
		})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeHealthJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  domain.HealthStatusError,
			"details": []string{err.Error()},
		})
		return
	}

	checks := make(map[string]map[string]any, len(report.Checks))
	details := make([]string, 0)
	for name, check := range report.Checks {
		entry := map[string]any{
			"status": check.Status,
		}
		if check.Latency > 0 {
			entry["latency_ms"] = check.Latency.Milliseconds()
		}
		if check.Error != "" {
			entry["error"] = check.Error
			details = append(details, fmt.Sprintf("%s: %s", name, check.Error))
		}
		checks[name] = entry
	}
	sort.Strings(details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}

	writeHealthJSON(w, status, map[string]any{
		"status":  report.Status,
		"checks":  checks,
		"details": details,
		"uptime":  report.Uptime.String(),
	})
}

func writeHealthJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
