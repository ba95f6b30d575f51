// Package metrics provides Prometheus-compatible metrics for kvpedit.
//
// The registry is deliberately small: counters, gauges and fixed-bucket
// histograms, exposed as Prometheus text or JSON over an optional HTTP
// endpoint. All operations are safe for concurrent use.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric.
type MetricType int

const (
	// TypeCounter is a monotonically increasing counter.
	TypeCounter MetricType = iota
	// TypeGauge is a value that can go up and down.
	TypeGauge
	// TypeHistogram is a distribution of values.
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels are constant labels attached to a metric.
type Labels map[string]string

// String renders labels in Prometheus syntax, sorted by key.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	return "{" + l.pairs() + "}"
}

func (l Labels) pairs() string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, l[k]))
	}
	return strings.Join(parts, ",")
}

// with returns the label set extended by one pair, for bucket lines.
func (l Labels) with(key, value string) string {
	extra := fmt.Sprintf("%s=%q", key, value)
	if len(l) == 0 {
		return "{" + extra + "}"
	}
	return "{" + l.pairs() + "," + extra + "}"
}

// Metric is implemented by every registered metric.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	writePrometheus(w io.Writer)
	jsonValue() map[string]any
	reset()
}

type desc struct {
	name   string
	help   string
	labels Labels
}

func (d desc) Name() string { return d.name }
func (d desc) Help() string { return d.help }

// Counter is a monotonically increasing counter.
type Counter struct {
	desc
	value atomic.Uint64
}

// NewCounter creates an unregistered Counter.
func NewCounter(name, help string, labels Labels) *Counter {
	return &Counter{desc: desc{name, help, labels}}
}

func (c *Counter) Inc()             { c.value.Add(1) }
func (c *Counter) Add(v uint64)     { c.value.Add(v) }
func (c *Counter) Value() uint64    { return c.value.Load() }
func (c *Counter) Type() MetricType { return TypeCounter }
func (c *Counter) reset()           { c.value.Store(0) }

func (c *Counter) writePrometheus(w io.Writer) {
	fmt.Fprintf(w, "%s%s %d\n", c.name, c.labels.String(), c.Value())
}

func (c *Counter) jsonValue() map[string]any {
	return map[string]any{"value": c.Value()}
}

// Gauge is a value that can go up and down.
type Gauge struct {
	desc
	value atomic.Int64
}

// NewGauge creates an unregistered Gauge.
func NewGauge(name, help string, labels Labels) *Gauge {
	return &Gauge{desc: desc{name, help, labels}}
}

func (g *Gauge) Set(v int64)      { g.value.Store(v) }
func (g *Gauge) Inc()             { g.value.Add(1) }
func (g *Gauge) Dec()             { g.value.Add(-1) }
func (g *Gauge) Add(v int64)      { g.value.Add(v) }
func (g *Gauge) Value() int64     { return g.value.Load() }
func (g *Gauge) Type() MetricType { return TypeGauge }
func (g *Gauge) reset()           { g.value.Store(0) }

func (g *Gauge) writePrometheus(w io.Writer) {
	fmt.Fprintf(w, "%s%s %d\n", g.name, g.labels.String(), g.Value())
}

func (g *Gauge) jsonValue() map[string]any {
	return map[string]any{"value": g.Value()}
}

// DurationBuckets are upper bounds, in seconds, for latency histograms.
var DurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	desc
	buckets []float64

	mu     sync.Mutex
	counts []uint64 // per bucket, not cumulative; last slot is +Inf
	sum    float64
	count  uint64
}

// NewHistogram creates an unregistered Histogram. Nil buckets selects
// DurationBuckets.
func NewHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DurationBuckets
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &Histogram{
		desc:    desc{name, help, labels},
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1),
	}
}

// Observe records a value in the first bucket whose bound is >= v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	h.counts[sort.SearchFloat64s(h.buckets, v)]++
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Since records the time elapsed since start.
func (h *Histogram) Since(start time.Time) {
	h.ObserveDuration(time.Since(start))
}

func (h *Histogram) Type() MetricType { return TypeHistogram }

func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Mean returns the mean of observed values, or 0 with no observations.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// Cumulative returns the cumulative count at each bucket bound, ending with
// +Inf.
func (h *Histogram) Cumulative() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cumulative()
}

func (h *Histogram) cumulative() []uint64 {
	out := make([]uint64, len(h.counts))
	var total uint64
	for i, c := range h.counts {
		total += c
		out[i] = total
	}
	return out
}

func (h *Histogram) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum, h.count = 0, 0
	for i := range h.counts {
		h.counts[i] = 0
	}
}

func (h *Histogram) writePrometheus(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := h.cumulative()
	for i, bound := range h.buckets {
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", formatBound(bound)), cum[i])
	}
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", "+Inf"), cum[len(cum)-1])
	fmt.Fprintf(w, "%s_sum%s %g\n", h.name, h.labels.String(), h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, h.labels.String(), h.count)
}

func (h *Histogram) jsonValue() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := h.cumulative()
	buckets := make(map[string]uint64, len(cum))
	for i, bound := range h.buckets {
		buckets[formatBound(bound)] = cum[i]
	}
	buckets["+Inf"] = cum[len(cum)-1]
	mean := 0.0
	if h.count > 0 {
		mean = h.sum / float64(h.count)
	}
	return map[string]any{
		"buckets": buckets,
		"sum":     h.sum,
		"count":   h.count,
		"mean":    mean,
	}
}

func formatBound(b float64) string {
	return fmt.Sprintf("%g", b)
}

// Registry holds registered metrics under a common namespace.
type Registry struct {
	mu        sync.RWMutex
	metrics   map[string]Metric
	namespace string
}

// NewRegistry creates a Registry whose metric names are prefixed with
// namespace and an underscore.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		metrics:   make(map[string]Metric),
		namespace: namespace,
	}
}

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// register returns the metric already registered under name, or stores the
// one built by mk. Registering the same name with a different type panics.
func register[M Metric](r *Registry, name string, mk func(full string) M) M {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.fullName(name)
	if existing, ok := r.metrics[full]; ok {
		m, ok := existing.(M)
		if !ok {
			panic(fmt.Sprintf("metrics: %s already registered as %s", full, existing.Type()))
		}
		return m
	}
	m := mk(full)
	r.metrics[full] = m
	return m
}

// Counter registers or returns the named counter.
func (r *Registry) Counter(name, help string, labels Labels) *Counter {
	return register(r, name, func(full string) *Counter { return NewCounter(full, help, labels) })
}

// Gauge registers or returns the named gauge.
func (r *Registry) Gauge(name, help string, labels Labels) *Gauge {
	return register(r, name, func(full string) *Gauge { return NewGauge(full, help, labels) })
}

// Histogram registers or returns the named histogram.
func (r *Registry) Histogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return register(r, name, func(full string) *Histogram { return NewHistogram(full, help, labels, buckets) })
}

// Get returns a registered metric by its short name.
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[r.fullName(name)]
}

func (r *Registry) sorted() []Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// WritePrometheus writes all metrics in Prometheus text format, sorted by
// name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	for _, m := range r.sorted() {
		fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), m.Help())
		fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
		m.writePrometheus(w)
	}
	return nil
}

// WriteJSON writes all metrics as one indented JSON object keyed by name.
func (r *Registry) WriteJSON(w io.Writer) error {
	out := make(map[string]any)
	for _, m := range r.sorted() {
		v := m.jsonValue()
		v["type"] = m.Type().String()
		v["help"] = m.Help()
		out[m.Name()] = v
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Reset zeroes every metric.
func (r *Registry) Reset() {
	for _, m := range r.sorted() {
		m.reset()
	}
}

// HTTPHandler serves JSON when the client asks for it and Prometheus text
// otherwise.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			r.WriteJSON(w)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}

var (
	defaultMu       sync.RWMutex
	defaultRegistry = NewRegistry("kvpedit")
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRegistry
}

// SetDefault replaces the process-wide registry.
func SetDefault(r *Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = r
}
