package metrics

import (
	"net"
	"net/http"
	"time"
)

// Pipeline holds the metrics recorded by the editing pipeline. A nil
// *Pipeline is valid and records nothing.
type Pipeline struct {
	SegmentRequests     *Counter
	PhoneticizeRequests *Counter
	ServiceErrors       *Counter
	StaleResponses      *Counter
	Renders             *Counter
	PreferenceWriteErrs *Counter

	ServiceDuration *Histogram
}

// NewPipeline registers the pipeline metrics in registry, or in Default when
// registry is nil.
func NewPipeline(registry *Registry) *Pipeline {
	if registry == nil {
		registry = Default()
	}
	return &Pipeline{
		SegmentRequests: registry.Counter(
			"segment_requests_total",
			"Segmentation requests issued",
			nil,
		),
		PhoneticizeRequests: registry.Counter(
			"phoneticize_requests_total",
			"Phoneticization requests issued",
			nil,
		),
		ServiceErrors: registry.Counter(
			"service_errors_total",
			"Service calls that failed or returned a malformed response",
			nil,
		),
		StaleResponses: registry.Counter(
			"stale_responses_total",
			"Service responses discarded because a newer request was issued",
			nil,
		),
		Renders: registry.Counter(
			"renders_total",
			"Rendering bundles produced",
			nil,
		),
		PreferenceWriteErrs: registry.Counter(
			"preference_write_errors_total",
			"Preference writes that failed and were ignored",
			nil,
		),
		ServiceDuration: registry.Histogram(
			"service_duration_seconds",
			"Latency of service calls in seconds",
			nil,
			DurationBuckets,
		),
	}
}

// RecordRequest counts an issued request for stage "segment" or
// "phoneticize".
func (m *Pipeline) RecordRequest(stage string) {
	if m == nil {
		return
	}
	switch stage {
	case "segment":
		m.SegmentRequests.Inc()
	case "phoneticize":
		m.PhoneticizeRequests.Inc()
	}
}

// RecordResponse records a completed call.
func (m *Pipeline) RecordResponse(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ServiceDuration.ObserveDuration(d)
	if err != nil {
		m.ServiceErrors.Inc()
	}
}

func (m *Pipeline) RecordStale() {
	if m != nil {
		m.StaleResponses.Inc()
	}
}

func (m *Pipeline) RecordRender() {
	if m != nil {
		m.Renders.Inc()
	}
}

func (m *Pipeline) RecordPreferenceWriteError() {
	if m != nil {
		m.PreferenceWriteErrs.Inc()
	}
}

// Route is an extra handler served next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Serve exposes registry on addr under /metrics, plus any extra routes,
// until the returned server is shut down.
func Serve(addr string, registry *Registry, routes ...Route) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.HTTPHandler())
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go srv.Serve(ln)
	return srv, ln.Addr(), nil
}
