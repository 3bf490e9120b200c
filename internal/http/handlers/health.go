package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (f HealthCheckFunc) Name() string                    { return f.Label }
func (f HealthCheckFunc) Check(ctx context.Context) error { return f.Fn(ctx) }

// Health returns 200 when every checker passes and 503 otherwise.
// GET /health
func Health(checkers ...HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(checkers))
		status := http.StatusOK
		for _, c := range checkers {
			if err := c.Check(ctx); err != nil {
				checks[c.Name()] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[c.Name()] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}
