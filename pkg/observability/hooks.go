// Package observability decouples event producers from metrics backends.
//
// The scan runner, caches and registry clients report events to the
// installed hooks, which do nothing until something is installed. The server registers a Prometheus-backed implementation from
// pkg/metrics at startup, so scan, cache and registry code never imports a
// metrics backend directly.
//
// # Usage
//
//	func main() {
//	    m := metrics.New()
//	    observability.SetScanHooks(m)
//	    observability.SetCacheHooks(m)
//	    observability.SetHTTPHooks(m)
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Scan().OnScanStart(ctx, projectID, "npm")
//	// ... run the scan ...
//	observability.Scan().OnScanComplete(ctx, projectID, "npm", state, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Scan Hooks
// =============================================================================

// ScanHooks receives events from the scan runner.
type ScanHooks interface {
	// OnScanQueued records a scan entering the pending state.
	OnScanQueued(ctx context.Context, projectID int64, packageManager string)

	// OnScanStart records the pending to running transition.
	OnScanStart(ctx context.Context, projectID int64, packageManager string)

	// OnScanComplete records a terminal transition. state is "completed" or
	// "failed"; err is nil on success.
	OnScanComplete(ctx context.Context, projectID int64, packageManager, state string, duration time.Duration, err error)

	// OnFetchComplete records one dependency fetcher invocation.
	OnFetchComplete(ctx context.Context, packageManager string, dependencies int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from registry and advisory HTTP clients.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopScanHooks is a no-op implementation of ScanHooks.
type NoopScanHooks struct{}

func (NoopScanHooks) OnScanQueued(context.Context, int64, string) {}
func (NoopScanHooks) OnScanStart(context.Context, int64, string)  {}
func (NoopScanHooks) OnScanComplete(context.Context, int64, string, string, time.Duration, error) {
}
func (NoopScanHooks) OnFetchComplete(context.Context, string, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

// slot holds the registered implementation of one hook interface.
type slot[T any] struct {
	mu  sync.RWMutex
	cur T
	def T
}

func newSlot[T any](def T) *slot[T] { return &slot[T]{cur: def, def: def} }

func (s *slot[T]) load() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// store installs h. A nil h leaves the current hooks in place.
func (s *slot[T]) store(h T) {
	if any(h) == nil {
		return
	}
	s.mu.Lock()
	s.cur = h
	s.mu.Unlock()
}

func (s *slot[T]) reset() {
	s.mu.Lock()
	s.cur = s.def
	s.mu.Unlock()
}

var (
	scanSlot  = newSlot[ScanHooks](NoopScanHooks{})
	cacheSlot = newSlot[CacheHooks](NoopCacheHooks{})
	httpSlot  = newSlot[HTTPHooks](NoopHTTPHooks{})
)

// SetScanHooks installs scan hooks. Call it before the first scan starts.
func SetScanHooks(h ScanHooks) { scanSlot.store(h) }

// SetCacheHooks installs cache hooks.
func SetCacheHooks(h CacheHooks) { cacheSlot.store(h) }

// SetHTTPHooks installs registry client hooks.
func SetHTTPHooks(h HTTPHooks) { httpSlot.store(h) }

// Scan returns the installed scan hooks.
func Scan() ScanHooks { return scanSlot.load() }

// Cache returns the installed cache hooks.
func Cache() CacheHooks { return cacheSlot.load() }

// HTTP returns the installed HTTP hooks.
func HTTP() HTTPHooks { return httpSlot.load() }

// Reset restores the no-op hooks. Tests use it to undo Set calls.
func Reset() {
	scanSlot.reset()
	cacheSlot.reset()
	httpSlot.reset()
}
