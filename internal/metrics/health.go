package metrics

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// Pinger is a backend whose reachability is part of gateway health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthOptions are the thresholds a healthy gateway stays below.
//
// Memory is measured against GOMEMLIMIT when it is set, otherwise against
// MemoryLimitBytes. With neither, the runtime has no notion of memory
// pressure: memoryUsagePercent is still reported (heap in use over memory
// obtained from the OS) but does not count towards IsHealthy.
type HealthOptions struct {
	MemoryThresholdPercent float64
	MemoryLimitBytes       int64
	LatencyThresholdMs     float64
	PingTimeout            time.Duration
}

func DefaultHealthOptions() HealthOptions {
	return HealthOptions{
		MemoryThresholdPercent: 90,
		LatencyThresholdMs:     2000,
		PingTimeout:            time.Second,
	}
}

// Health is the report served to uptime monitors.
type Health struct {
	IsHealthy             bool              `json:"isHealthy"`
	BackendConnected      bool              `json:"backendConnected"`
	MemoryUsagePercent    float64           `json:"memoryUsagePercent"`
	MemoryLimited         bool              `json:"memoryLimited"` // memory counts towards isHealthy
	AverageResponseTimeMs float64           `json:"averageResponseTimeMs"`
	ActiveConnections     int64             `json:"activeConnections"`
	Timestamp             time.Time         `json:"timestamp"`
	Backends              map[string]string `json:"backends,omitempty"`
}

// AddPinger registers a backend checked by HealthCheck.
func (a *Aggregator) AddPinger(name string, p Pinger) {
	a.pingMu.Lock()
	defer a.pingMu.Unlock()
	a.pingers[name] = p
}

// HealthCheck pings every backend concurrently and combines the results with
// memory and latency thresholds. Latency is the average over the last hour.
func (a *Aggregator) HealthCheck(ctx context.Context) Health {
	backends := a.pingAll(ctx)
	connected := true
	for _, status := range backends {
		if status != "ok" {
			connected = false
		}
	}

	memPercent, memLimited := memoryUsage(a.health.MemoryLimitBytes)
	h := Health{
		BackendConnected:      connected,
		MemoryUsagePercent:    memPercent,
		MemoryLimited:         memLimited,
		AverageResponseTimeMs: a.GetMetrics(PeriodHour).AverageProcessingTimeMs,
		ActiveConnections:     a.ActiveConnections(),
		Timestamp:             a.now().UTC(),
		Backends:              backends,
	}
	h.IsHealthy = h.BackendConnected &&
		(!memLimited || h.MemoryUsagePercent < a.health.MemoryThresholdPercent) &&
		h.AverageResponseTimeMs < a.health.LatencyThresholdMs
	return h
}

func (a *Aggregator) pingAll(ctx context.Context) map[string]string {
	a.pingMu.RLock()
	names := make([]string, 0, len(a.pingers))
	for name := range a.pingers {
		names = append(names, name)
	}
	sort.Strings(names)
	pingers := make([]Pinger, len(names))
	for i, name := range names {
		pingers[i] = a.pingers[name]
	}
	a.pingMu.RUnlock()

	if len(pingers) == 0 {
		return nil
	}

	timeout := a.health.PingTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]string, len(pingers))
	var wg sync.WaitGroup
	for i, p := range pingers {
		wg.Add(1)
		go func(i int, p Pinger) {
			defer wg.Done()
			results[i] = ping(ctx, p)
		}(i, p)
	}
	wg.Wait()

	out := make(map[string]string, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

func ping(ctx context.Context, p Pinger) string {
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("panic: %v", r)
			}
		}()
		errCh <- p.Ping(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err.Error()
		}
		return "ok"
	case <-ctx.Done():
		return "timeout"
	}
}

// memoryUsage reports memory held by the runtime as a percentage of the
// soft memory limit (GOMEMLIMIT) or, failing that, of ceiling. limited is
// false when neither is set; the percentage is then heap in use over memory
// obtained from the OS.
func memoryUsage(ceiling int64) (percent float64, limited bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	held := float64(ms.Sys - ms.HeapReleased)

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		return 100 * held / float64(limit), true
	}
	if ceiling > 0 {
		return 100 * held / float64(ceiling), true
	}
	if ms.Sys == 0 {
		return 0, false
	}
	return 100 * float64(ms.HeapInuse) / float64(ms.Sys), false
}
