// Package metrics aggregates request outcomes into rolling time buckets and
// derives the gateway health report from them.
package metrics

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	minuteBuckets = 60     // one hour of minutes
	hourBuckets   = 7 * 24 // one week of hours
	defaultShards = 32
)

// bucket accumulates outcomes for one minute or one hour. epoch identifies
// which minute or hour since the Unix epoch the bucket currently holds.
type bucket struct {
	epoch     int64
	total     int64
	success   int64
	failure   int64
	latencyMs float64
}

func (b *bucket) add(epoch int64, success bool, latencyMs float64) {
	if b.epoch != epoch {
		*b = bucket{epoch: epoch}
	}
	b.total++
	if success {
		b.success++
	} else {
		b.failure++
	}
	b.latencyMs += latencyMs
}

type series struct {
	minutes [minuteBuckets]bucket
	hours   [hourBuckets]bucket
}

type shard struct {
	mu     sync.Mutex
	series map[string]*series
}

// Summary is the aggregate over a period.
type Summary struct {
	Period                  string  `json:"period"`
	TotalRequests           int64   `json:"totalRequests"`
	SuccessfulRequests      int64   `json:"successfulRequests"`
	FailedRequests          int64   `json:"failedRequests"`
	AverageProcessingTimeMs float64 `json:"averageProcessingTimeMs"`
}

// EndpointSummary is a Summary for one endpoint.
type EndpointSummary struct {
	Endpoint string `json:"endpoint"`
	Summary
}

// Aggregator records request outcomes per endpoint. Series are sharded by
// endpoint so concurrent requests to different endpoints rarely contend.
type Aggregator struct {
	shards   []*shard
	now      func() time.Time
	inFlight atomic.Int64

	health  HealthOptions
	pingMu  sync.RWMutex
	pingers map[string]Pinger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithHealthOptions sets the health thresholds.
func WithHealthOptions(opts HealthOptions) Option {
	return func(a *Aggregator) { a.health = opts }
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		shards:  make([]*shard, defaultShards),
		now:     time.Now,
		health:  DefaultHealthOptions(),
		pingers: make(map[string]Pinger),
	}
	for i := range a.shards {
		a.shards[i] = &shard{series: make(map[string]*series)}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) shardFor(endpoint string) *shard {
	h := fnv.New32a()
	h.Write([]byte(endpoint))
	return a.shards[h.Sum32()%uint32(len(a.shards))]
}

// RecordOutcome adds one request to the current minute and hour of the
// endpoint's series.
func (a *Aggregator) RecordOutcome(endpoint string, success bool, latencyMs float64) {
	if latencyMs < 0 {
		latencyMs = 0
	}
	unix := a.now().Unix()
	minute, hour := unix/60, unix/3600

	s := a.shardFor(endpoint)
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[endpoint]
	if !ok {
		ser = &series{}
		s.series[endpoint] = ser
	}
	ser.minutes[minute%minuteBuckets].add(minute, success, latencyMs)
	ser.hours[hour%hourBuckets].add(hour, success, latencyMs)
}

// sum adds the buckets of ser that fall inside period ending at now.
func sum(ser *series, p Period, now time.Time, into *Summary, latency *float64) {
	unix := now.Unix()
	if p == PeriodHour {
		cur := unix / 60
		for i := range ser.minutes {
			b := &ser.minutes[i]
			if b.total > 0 && b.epoch > cur-minuteBuckets && b.epoch <= cur {
				addBucket(b, into, latency)
			}
		}
		return
	}

	span := int64(24)
	if p == PeriodWeek {
		span = hourBuckets
	}
	cur := unix / 3600
	for i := range ser.hours {
		b := &ser.hours[i]
		if b.total > 0 && b.epoch > cur-span && b.epoch <= cur {
			addBucket(b, into, latency)
		}
	}
}

func addBucket(b *bucket, into *Summary, latency *float64) {
	into.TotalRequests += b.total
	into.SuccessfulRequests += b.success
	into.FailedRequests += b.failure
	*latency += b.latencyMs
}

func finish(s *Summary, latency float64) {
	if s.TotalRequests > 0 {
		s.AverageProcessingTimeMs = latency / float64(s.TotalRequests)
	}
}

// GetMetrics sums the pre-aggregated buckets of every endpoint for period.
func (a *Aggregator) GetMetrics(p Period) Summary {
	now := a.now()
	out := Summary{Period: p.String()}
	var latency float64
	for _, s := range a.shards {
		s.mu.Lock()
		for _, ser := range s.series {
			sum(ser, p, now, &out, &latency)
		}
		s.mu.Unlock()
	}
	finish(&out, latency)
	return out
}

// EndpointMetrics returns per-endpoint summaries for period, sorted by
// endpoint. Endpoints with no traffic in the period are omitted.
func (a *Aggregator) EndpointMetrics(p Period) []EndpointSummary {
	now := a.now()
	var out []EndpointSummary
	for _, s := range a.shards {
		s.mu.Lock()
		for name, ser := range s.series {
			es := EndpointSummary{Endpoint: name, Summary: Summary{Period: p.String()}}
			var latency float64
			sum(ser, p, now, &es.Summary, &latency)
			if es.TotalRequests == 0 {
				continue
			}
			finish(&es.Summary, latency)
			out = append(out, es)
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// Begin marks a request as in flight. Every Begin must be paired with End.
func (a *Aggregator) Begin() {
	a.inFlight.Add(1)
}

// End marks an in-flight request as finished.
func (a *Aggregator) End() {
	a.inFlight.Add(-1)
}

// ActiveConnections is the number of requests currently in flight.
func (a *Aggregator) ActiveConnections() int64 {
	return a.inFlight.Load()
}

// Prune drops series with no traffic in the last week.
func (a *Aggregator) Prune(ctx context.Context) int {
	now := a.now()
	removed := 0
	for _, s := range a.shards {
		if ctx.Err() != nil {
			break
		}
		s.mu.Lock()
		for name, ser := range s.series {
			var probe Summary
			var latency float64
			sum(ser, PeriodWeek, now, &probe, &latency)
			if probe.TotalRequests == 0 {
				delete(s.series, name)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
