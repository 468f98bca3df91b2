// Package metrics provides in-memory counters for a worker process.
//
// The Collector is a leaf package with no internal dependencies. Counters
// live for the lifetime of the process and are exposed through the worker's
// stats method and the run command's summary.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Executions
	ExecutionsStarted   int64            `json:"executions_started"`
	ExecutionsSucceeded int64            `json:"executions_succeeded"`
	ExecutionsFailed    int64            `json:"executions_failed"`
	ExecutionsCrashed   int64            `json:"executions_crashed"`
	ExecutionsTimedOut  int64            `json:"executions_timed_out"`
	ByLanguage          map[string]int64 `json:"by_language"`

	// Executor
	ExecutorLaunchSuccess int64 `json:"executor_launch_success"`
	ExecutorLaunchFailure int64 `json:"executor_launch_failure"`

	// Cache
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	// Protocol
	RequestsReceived int64 `json:"requests_received"`
	ParseErrors      int64 `json:"parse_errors"`

	// Adapter
	AdapterPublishSuccess int64 `json:"adapter_publish_success"`
	AdapterPublishFailure int64 `json:"adapter_publish_failure"`

	// Dimensions
	Transport string    `json:"transport"`
	StartedAt time.Time `json:"started_at"`
}

// Collector accumulates counters. Thread-safe via sync.Mutex.
// All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	executionsStarted   int64
	executionsSucceeded int64
	executionsFailed    int64
	executionsCrashed   int64
	executionsTimedOut  int64
	byLanguage          map[string]int64

	executorLaunchSuccess int64
	executorLaunchFailure int64

	cacheHits   int64
	cacheMisses int64

	requestsReceived int64
	parseErrors      int64

	adapterPublishSuccess int64
	adapterPublishFailure int64

	transport string
	startedAt time.Time
}

// NewCollector creates a Collector labelled with its transport
// (e.g. "stdio", "mcp", "cli").
func NewCollector(transport string) *Collector {
	return &Collector{
		byLanguage: make(map[string]int64),
		transport:  transport,
		startedAt:  time.Now(),
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Executions ---

// IncExecutionStarted records an execution start for a language.
func (c *Collector) IncExecutionStarted(language string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.executionsStarted++
	c.byLanguage[language]++
	c.mu.Unlock()
}

// IncExecutionSucceeded records an execution whose snippet returned normally.
func (c *Collector) IncExecutionSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.executionsSucceeded)
}

// IncExecutionFailed records a snippet fault (syntax, throw, missing entry point).
func (c *Collector) IncExecutionFailed() {
	if c == nil {
		return
	}
	c.inc(&c.executionsFailed)
}

// IncExecutionCrashed records a driver crash with no result record.
func (c *Collector) IncExecutionCrashed() {
	if c == nil {
		return
	}
	c.inc(&c.executionsCrashed)
}

// IncExecutionTimedOut records an execution killed at its deadline.
func (c *Collector) IncExecutionTimedOut() {
	if c == nil {
		return
	}
	c.inc(&c.executionsTimedOut)
}

// --- Executor ---

// IncExecutorLaunchSuccess records a successful child launch.
func (c *Collector) IncExecutorLaunchSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.executorLaunchSuccess)
}

// IncExecutorLaunchFailure records a failed child launch.
func (c *Collector) IncExecutorLaunchFailure() {
	if c == nil {
		return
	}
	c.inc(&c.executorLaunchFailure)
}

// --- Cache ---

// IncCacheHit records a snippet served from the file cache.
func (c *Collector) IncCacheHit() {
	if c == nil {
		return
	}
	c.inc(&c.cacheHits)
}

// IncCacheMiss records a snippet written to the file cache.
func (c *Collector) IncCacheMiss() {
	if c == nil {
		return
	}
	c.inc(&c.cacheMisses)
}

// --- Protocol ---

// IncRequestReceived records a decoded request line.
func (c *Collector) IncRequestReceived() {
	if c == nil {
		return
	}
	c.inc(&c.requestsReceived)
}

// IncParseError records an undecodable request line.
func (c *Collector) IncParseError() {
	if c == nil {
		return
	}
	c.inc(&c.parseErrors)
}

// --- Adapter ---

// IncAdapterPublishSuccess records a delivered completion event.
func (c *Collector) IncAdapterPublishSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.adapterPublishSuccess)
}

// IncAdapterPublishFailure records a completion event that could not be delivered.
func (c *Collector) IncAdapterPublishFailure() {
	if c == nil {
		return
	}
	c.inc(&c.adapterPublishFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{ByLanguage: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byLang := make(map[string]int64, len(c.byLanguage))
	for k, v := range c.byLanguage {
		byLang[k] = v
	}

	return Snapshot{
		ExecutionsStarted:   c.executionsStarted,
		ExecutionsSucceeded: c.executionsSucceeded,
		ExecutionsFailed:    c.executionsFailed,
		ExecutionsCrashed:   c.executionsCrashed,
		ExecutionsTimedOut:  c.executionsTimedOut,
		ByLanguage:          byLang,

		ExecutorLaunchSuccess: c.executorLaunchSuccess,
		ExecutorLaunchFailure: c.executorLaunchFailure,

		CacheHits:   c.cacheHits,
		CacheMisses: c.cacheMisses,

		RequestsReceived: c.requestsReceived,
		ParseErrors:      c.parseErrors,

		AdapterPublishSuccess: c.adapterPublishSuccess,
		AdapterPublishFailure: c.adapterPublishFailure,

		Transport: c.transport,
		StartedAt: c.startedAt,
	}
}
