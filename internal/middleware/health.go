package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// TempDirChecker reports whether uploads can be materialised in Dir.
type TempDirChecker struct {
	Dir string // empty means os.TempDir()
}

func (c TempDirChecker) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := c.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return fmt.Errorf("temp dir %s not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// HealthStatus is the body of /health and /healthz/ready.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// runChecks runs checkers in name order under one shared timeout.
func runChecks(ctx context.Context, checkers map[string]HealthChecker, okStatus string) (HealthStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	st := HealthStatus{Status: okStatus, Timestamp: time.Now().UTC()}
	healthy := true
	for _, name := range names {
		if st.Checks == nil {
			st.Checks = make(map[string]CheckStatus, len(names))
		}
		if err := checkers[name].Check(ctx); err != nil {
			healthy = false
			st.Checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		st.Checks[name] = CheckStatus{Status: "healthy"}
	}
	if !healthy {
		st.Status = "unhealthy"
	}
	return st, healthy
}

func statusHandler(checkers map[string]HealthChecker, okStatus string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, healthy := runChecks(r.Context(), checkers, okStatus)
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(st)
	}
}

// HealthHandler answers {"status":"healthy"} or 503 when a checker fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return statusHandler(checkers, "healthy")
}

// ReadinessHandler answers {"status":"ready"} once every checker passes.
func ReadinessHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return statusHandler(checkers, "ready")
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
