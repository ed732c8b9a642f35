package provider

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// HealthRegistry tracks per-provider success/failure counters and places
// misbehaving providers into a cool-down window so the orchestrator stops
// routing queries to them until they recover.
type HealthRegistry struct {
	mu        sync.Mutex
	providers map[Name]*healthState

	consecutiveFailureLimit int
	failureRateThreshold    float64
	cooldownPeriod          time.Duration
	logger                  *slog.Logger
	onUnhealthy             func(name Name, reason string)
}

type healthState struct {
	priority            int
	successes           int64
	failures            int64
	consecutiveFailures int
	cooldownUntil       time.Time
	lastError           string
	lastLatency         time.Duration
	avgLatency          time.Duration
}

// HealthStatus is a point-in-time snapshot of one provider's health.
type HealthStatus struct {
	Provider            Name          `json:"provider"`
	Healthy             bool          `json:"healthy"`
	Successes           int64         `json:"successes"`
	Failures            int64         `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	CooldownUntil       time.Time     `json:"cooldown_until,omitzero"`
	LastError           string        `json:"last_error,omitempty"`
	LastLatency         time.Duration `json:"last_latency_ms"`
	AvgLatency          time.Duration `json:"avg_latency_ms"`
}

// NewHealthRegistry creates a health registry for the given providers with
// their configured priorities (lower value = tried first).
func NewHealthRegistry(priorities map[Name]int, consecutiveFailureLimit int, failureRateThreshold float64, cooldownPeriod time.Duration, logger *slog.Logger) *HealthRegistry {
	h := &HealthRegistry{
		providers:               make(map[Name]*healthState, len(priorities)),
		consecutiveFailureLimit: consecutiveFailureLimit,
		failureRateThreshold:    failureRateThreshold,
		cooldownPeriod:          cooldownPeriod,
		logger:                  logger.With(slog.String("component", "provider-health")),
	}
	for name, priority := range priorities {
		h.providers[name] = &healthState{priority: priority}
	}
	return h
}

// OnUnhealthy registers a callback invoked when a provider enters
// cool-down. Used by the daemon to publish an event.
func (h *HealthRegistry) OnUnhealthy(fn func(name Name, reason string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onUnhealthy = fn
}

// RecordSuccess resets the consecutive-failure streak and clears any
// cool-down for a provider.
func (h *HealthRegistry) RecordSuccess(name Name, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.stateLocked(name)
	state.successes++
	state.consecutiveFailures = 0
	state.cooldownUntil = time.Time{}
	state.lastError = ""
	state.lastLatency = latency
	if state.avgLatency == 0 {
		state.avgLatency = latency
	} else {
		// Exponential moving average, most recent call weighted 1/4.
		state.avgLatency = (state.avgLatency*3 + latency) / 4
	}
}

// RecordFailure increments failure counters and starts a cool-down once
// the consecutive-failure limit or failure-rate threshold is crossed.
func (h *HealthRegistry) RecordFailure(name Name, cause error) {
	h.mu.Lock()

	state := h.stateLocked(name)
	state.failures++
	state.consecutiveFailures++
	if cause != nil {
		state.lastError = cause.Error()
	}

	var reason string
	total := state.successes + state.failures
	switch {
	case state.consecutiveFailures >= h.consecutiveFailureLimit:
		reason = "consecutive failure limit reached"
	case total >= 10 && float64(state.failures)/float64(total) > h.failureRateThreshold:
		reason = "failure rate threshold exceeded"
	}

	var notify func(Name, string)
	if reason != "" && time.Now().After(state.cooldownUntil) {
		state.cooldownUntil = time.Now().Add(h.cooldownPeriod)
		notify = h.onUnhealthy
		h.logger.Warn("provider entering cool-down",
			slog.String("provider", string(name)),
			slog.String("reason", reason),
			slog.Duration("cooldown", h.cooldownPeriod))
	}
	h.mu.Unlock()

	if notify != nil {
		notify(name, reason)
	}
}

// Healthy reports whether a provider is currently outside any cool-down
// window.
func (h *HealthRegistry) Healthy(name Name) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Now().After(h.stateLocked(name).cooldownUntil)
}

// Ranked returns healthy providers ordered by configured priority. When
// every provider is cooling down it returns all of them in priority order,
// so a fully degraded pool still gets best-effort queries.
func (h *HealthRegistry) Ranked() []Name {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	var healthy, cooling []Name
	for name, state := range h.providers {
		if now.After(state.cooldownUntil) {
			healthy = append(healthy, name)
		} else {
			cooling = append(cooling, name)
		}
	}
	h.sortByPriorityLocked(healthy)
	if len(healthy) > 0 {
		return healthy
	}
	h.sortByPriorityLocked(cooling)
	return cooling
}

// Status returns a snapshot for every tracked provider, ordered by
// priority.
func (h *HealthRegistry) Status() []HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]Name, 0, len(h.providers))
	for name := range h.providers {
		names = append(names, name)
	}
	h.sortByPriorityLocked(names)

	now := time.Now()
	out := make([]HealthStatus, 0, len(names))
	for _, name := range names {
		state := h.providers[name]
		out = append(out, HealthStatus{
			Provider:            name,
			Healthy:             now.After(state.cooldownUntil),
			Successes:           state.successes,
			Failures:            state.failures,
			ConsecutiveFailures: state.consecutiveFailures,
			CooldownUntil:       state.cooldownUntil,
			LastError:           state.lastError,
			LastLatency:         state.lastLatency,
			AvgLatency:          state.avgLatency,
		})
	}
	return out
}

func (h *HealthRegistry) stateLocked(name Name) *healthState {
	state, ok := h.providers[name]
	if !ok {
		state = &healthState{priority: len(h.providers) + 1}
		h.providers[name] = state
	}
	return state
}

func (h *HealthRegistry) sortByPriorityLocked(names []Name) {
	sort.Slice(names, func(i, j int) bool {
		a, b := h.providers[names[i]], h.providers[names[j]]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return names[i] < names[j]
	})
}
