// Package health aggregates per-backend probe results into the liveness and
// readiness endpoints the daemon serves next to its metrics.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/forumkit/searchsync/pkg/logger"
)

// Status grades one component or the report as a whole.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) rank() int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// worse returns the more severe of two statuses.
func worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is one probe's outcome.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is what the readiness endpoint returns.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker runs registered probes concurrently on demand.
type Checker struct {
	timeout time.Duration
	started time.Time
	log     *slog.Logger

	mu     sync.RWMutex
	checks map[string]Check
}

// NewChecker creates an empty Checker. timeout bounds each readiness run;
// zero means 5 seconds.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		timeout: timeout,
		started: time.Now(),
		log:     logger.WithComponent("health"),
		checks:  make(map[string]Check),
	}
}

// Register adds a named probe. Re-registering a name replaces the old probe.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes every registered probe concurrently and folds the worst
// status seen into the report's overall one.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	type outcome struct {
		name   string
		health ComponentHealth
	}
	results := make(chan outcome, len(checks))
	for name, check := range checks {
		go func() {
			start := time.Now()
			h := check(ctx)
			h.Latency = time.Since(start).Round(time.Millisecond).String()
			results <- outcome{name: name, health: h}
		}()
	}

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for range checks {
		r := <-results
		report.Components[r.name] = r.health
		report.Status = worse(report.Status, r.health.Status)
	}
	return report
}

// LiveHandler answers liveness probes. It reports only that the process is
// up and serving; backend state belongs to readiness.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness probes by running every registered check.
// Anything short of a fully up report returns 503.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		report := c.Run(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status != StatusUp {
			c.log.Warn("readiness check not fully up", "status", report.Status)
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}
