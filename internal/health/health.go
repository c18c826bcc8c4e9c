// Package health aggregates component health for the feedbreakd daemon.
//
// Components register a check function; the checker runs them with
// timeouts and panic recovery and folds the results into a single
// status. The daemon serves the aggregate through feedbreakctl status
// and, when the local metrics listener is enabled, through HTTP probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusUnknown indicates the component status is unknown.
	StatusUnknown Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component represents a health-checkable component.
type Component struct {
	Name     string
	Critical bool // If true, failure makes overall status unhealthy
	Check    Check
	Timeout  time.Duration
}

// Checker manages health checks.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	startTime  time.Time
	ready      bool
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
	}
}

// Register registers a health check component.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = 5 * time.Second
	}

	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{
		Status:      StatusUnknown,
		LastChecked: time.Time{},
	}
}

// RegisterFunc registers a simple health check function.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{
		Name:     name,
		Critical: critical,
		Check:    check,
		Timeout:  5 * time.Second,
	})
}

// Unregister removes a health check component.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.components, name)
	delete(c.results, name)
}

// SetReady sets the readiness state.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns the readiness state.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs all registered health checks.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.Lock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.Unlock()

	results := make(map[string]CheckResult)
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, comp := range components {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
			defer cancel()

			start := time.Now()
			var result CheckResult

			// Run check with panic recovery
			done := make(chan struct{})
			go func() {
				defer func() {
					if r := recover(); r != nil {
						result = CheckResult{
							Status:  StatusUnhealthy,
							Message: "check panicked",
							Error:   fmt.Sprintf("%v", r),
						}
					}
					close(done)
				}()
				result = comp.Check(checkCtx)
			}()

			select {
			case <-done:
				// Check completed
			case <-checkCtx.Done():
				result = CheckResult{
					Status:  StatusUnhealthy,
					Message: "check timed out",
					Error:   checkCtx.Err().Error(),
				}
			}

			result.LastChecked = start
			result.Duration = time.Since(start)

			c.mu.Lock()
			c.results[comp.Name] = result
			c.mu.Unlock()

			resultsMu.Lock()
			results[comp.Name] = result
			resultsMu.Unlock()
		}(comp)
	}

	wg.Wait()
	return results
}

// CheckComponent runs a single component's health check.
func (c *Checker) CheckComponent(ctx context.Context, name string) (CheckResult, bool) {
	c.mu.RLock()
	comp, ok := c.components[name]
	c.mu.RUnlock()

	if !ok {
		return CheckResult{}, false
	}

	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	result := comp.Check(checkCtx)
	result.LastChecked = start
	result.Duration = time.Since(start)

	c.mu.Lock()
	c.results[name] = result
	c.mu.Unlock()

	return result, true
}

// GetResult returns the last result for a component.
func (c *Checker) GetResult(name string) (CheckResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.results[name]
	return result, ok
}

// GetResults returns all last results.
func (c *Checker) GetResults() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]CheckResult, len(c.results))
	for k, v := range c.results {
		results[k] = v
	}
	return results
}

// OverallStatus returns the aggregated health status.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown := false
	hasDegraded := false

	for name, result := range c.results {
		comp := c.components[name]
		if comp == nil {
			continue
		}

		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	if hasUnknown {
		return StatusUnknown
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// HealthResponse is the response format for health endpoints and the
// status surface of the control socket.
type HealthResponse struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// HealthResponse returns the full health response, re-running all
// checks when includeComponents is set.
func (c *Checker) HealthResponse(ctx context.Context, includeComponents bool) HealthResponse {
	var components map[string]CheckResult
	if includeComponents {
		components = c.Check(ctx)
	}

	c.mu.RLock()
	ready := c.ready
	uptime := time.Since(c.startTime)
	c.mu.RUnlock()

	return HealthResponse{
		Status:     c.OverallStatus(),
		Ready:      ready,
		Uptime:     uptime.String(),
		Components: components,
		Timestamp:  time.Now(),
	}
}

// LivenessHandler returns an HTTP handler for liveness probes.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "alive",
			"timestamp": time.Now(),
		})
	})
}

// ReadinessHandler returns an HTTP handler for readiness probes.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if !c.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status":    "not ready",
				"timestamp": time.Now(),
			})
			return
		}

		status := c.OverallStatus()
		if status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"ready":     true,
			"timestamp": time.Now(),
		})
	})
}

// HealthHandler returns an HTTP handler for detailed health checks.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		includeComponents := r.URL.Query().Get("full") == "true"
		response := c.HealthResponse(r.Context(), includeComponents)

		switch response.Status {
		case StatusHealthy, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	})
}

// Daemon component checks.

// EventLoopCheck probes the engine's control channel and compares the
// age of the last processed event against staleAfter. An idle device
// produces no UI events, so a quiet loop that still answers the probe
// is reported degraded, not unhealthy.
func EventLoopCheck(ping func(ctx context.Context) error, lastEvent func() time.Time, staleAfter time.Duration) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "event loop not responding",
				Error:   err.Error(),
			}
		}

		last := lastEvent()
		if last.IsZero() {
			return CheckResult{
				Status:  StatusHealthy,
				Message: "no events processed yet",
			}
		}

		age := time.Since(last)
		if staleAfter > 0 && age > staleAfter {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "no recent events",
				Details: map[string]any{"last_event_age": age.String()},
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "event loop ok",
			Details: map[string]any{"last_event_age": age.String()},
		}
	}
}

// JournalCheck probes the decision journal.
func JournalCheck(ping func() error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "journal unavailable",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "journal ok",
		}
	}
}

// IPCCheck reports on the control socket listener.
func IPCCheck(running func() bool, clients func() int) Check {
	return func(ctx context.Context) CheckResult {
		if !running() {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "control socket not listening",
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "control socket listening",
			Details: map[string]any{"clients": clients()},
		}
	}
}

// SessionBusCheck probes the session bus the media and notification
// adapters talk to. Detection continues without the bus, so the check
// never reports worse than degraded.
func SessionBusCheck(probe func() error) Check {
	return func(ctx context.Context) CheckResult {
		if err := probe(); err != nil {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "session bus unavailable",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "session bus ok",
		}
	}
}

// CustomCheck creates a check from a simple function.
func CustomCheck(fn func() error) Check {
	return func(ctx context.Context) CheckResult {
		err := fn()
		if err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "check failed",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "check passed",
		}
	}
}
