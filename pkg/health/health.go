// Package health runs preflight checks against the data directory and the
// optional collaborators of a build. Checks run concurrently and are folded
// into one Report, which the CLI prints and the metrics server exposes on
// /readyz.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes one dependency. A nil error means it is usable.
type Check func(ctx context.Context) error

type registered struct {
	check    Check
	optional bool
}

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency"`
}

// Report is the aggregated result of all component checks, sorted by name.
type Report struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Timestamp  string            `json:"timestamp"`
}

// Checker holds named checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]registered
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]registered),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a check the build cannot run without.
func (c *Checker) Register(name string, check Check) {
	c.add(name, registered{check: check})
}

// RegisterOptional adds a check whose failure only degrades the report;
// the build skips a collaborator that is down.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.add(name, registered{check: check, optional: true})
}

func (c *Checker) add(name string, r registered) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = r
}

// Run executes all checks concurrently. The overall status is down if any
// required check failed, degraded if only optional ones did.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]registered, len(c.checks))
	for name, r := range c.checks {
		checks[name] = r
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make([]ComponentHealth, 0, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, r := range checks {
		wg.Add(1)
		go func(name string, r registered) {
			defer wg.Done()
			start := time.Now()
			err := r.check(ctx)
			comp := ComponentHealth{
				Name:     name,
				Status:   StatusUp,
				Optional: r.optional,
				Latency:  time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				comp.Status = StatusDown
				comp.Message = err.Error()
				c.logger.Warn("health check failed", "check", name, "error", err)
			}
			mu.Lock()
			report.Components = append(report.Components, comp)
			mu.Unlock()
		}(name, r)
	}
	wg.Wait()

	sort.Slice(report.Components, func(i, j int) bool {
		return report.Components[i].Name < report.Components[j].Name
	})
	for _, comp := range report.Components {
		if comp.Status != StatusDown {
			continue
		}
		if !comp.Optional {
			report.Status = StatusDown
			break
		}
		report.Status = StatusDegraded
	}
	return report
}

// ReadyHandler serves the report as JSON, with 503 when a required check
// is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// WritableDir checks that files can be created and removed in dir,
// creating it if needed.
func WritableDir(dir string) Check {
	return func(ctx context.Context) error {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return fmt.Errorf("directory %s is not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}
}

// FileReadable checks that path exists and can be opened. A missing file
// is reported as such so a first build is distinguishable from corruption.
func FileReadable(path string) Check {
	return func(ctx context.Context) error {
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist yet", filepath.Base(path))
		}
		if err != nil {
			return err
		}
		return f.Close()
	}
}
