// Package health runs dependency checks for the readiness probe.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// DefaultTimeout bounds each check.
const DefaultTimeout = 5 * time.Second

// CheckFunc is a function that checks a dependency's health.
type CheckFunc func(ctx context.Context) Status

// Pinger is anything with a context-aware Ping, such as the SQLite store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports StatusDown when p fails to answer.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) Status {
		if err := p.Ping(ctx); err != nil {
			return StatusDown
		}
		return StatusOK
	}
}

// Report is the outcome of one RunAll.
type Report struct {
	Checks    map[string]Status `json:"checks"`
	Ready     bool              `json:"-"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Checker manages health checks for all dependencies.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	last    Report
	timeout time.Duration
	logger  zerolog.Logger
}

// NewChecker creates a new health checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// SetTimeout changes the per-check timeout.
func (c *Checker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.timeout = d
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RunAll executes all health checks concurrently and caches the report.
func (c *Checker) RunAll(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	timeout := c.timeout
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			s := f(checkCtx)
			mu.Lock()
			results[n] = s
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	report := Report{Checks: results, Ready: true, CheckedAt: time.Now().UTC()}
	for n, s := range results {
		if s == StatusDown {
			report.Ready = false
			c.logger.Warn().Str("check", n).Msg("dependency down")
		}
	}

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()
	return report
}

// IsReady returns true if no check reports StatusDown.
func (c *Checker) IsReady(ctx context.Context) bool {
	return c.RunAll(ctx).Ready
}

// Last returns the most recent report without running checks.
func (c *Checker) Last() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
