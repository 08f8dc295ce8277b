package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

const dependencyTimeout = time.Second

// dependency is one backing service checked by Readiness. A failing required
// dependency takes the instance out of rotation; any other failure only marks
// it degraded.
type dependency struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

type HealthHandler struct {
	deps    []dependency
	env     string
	version string
}

// NewHealthHandler checks Postgres as required and Redis as optional. Without
// Redis, bookings skip the slot lock and rely on the unique index, and
// availability is read straight from Postgres.
func NewHealthHandler(postgres Pinger, rdb *redis.Client, env, version string) *HealthHandler {
	h := &HealthHandler{env: env, version: version}
	if postgres != nil {
		h.deps = append(h.deps, dependency{name: "postgres", required: true, check: postgres.Ping})
	}
	if rdb != nil {
		h.deps = append(h.deps, dependency{name: "redis", check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return h
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "ok", Version: h.version, Env: h.env})
}

// Readiness answers 503 when a required dependency is down and reports
// degraded when only an optional one is. Checks run in parallel.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.deps))
	var wg sync.WaitGroup
	for i, d := range h.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout)
			defer cancel()
			errs[i] = d.check(ctx)
		}()
	}
	wg.Wait()

	resp := ReadinessResponse{
		Status:       "ok",
		Version:      h.version,
		Env:          h.env,
		Dependencies: make(map[string]string, len(h.deps)),
	}
	code := http.StatusOK
	for i, d := range h.deps {
		if errs[i] == nil {
			resp.Dependencies[d.name] = "ok"
			continue
		}
		resp.Dependencies[d.name] = "down"
		if d.required {
			resp.Status = "error"
			code = http.StatusServiceUnavailable
		} else if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, code, resp)
}
