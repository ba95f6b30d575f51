package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("test")
	c := r.Counter("hits_total", "hits", nil)
	c.Inc()
	c.Add(4)
	assert.Equal(t, uint64(5), c.Value())
	assert.Equal(t, "test_hits_total", c.Name())

	g := r.Gauge("depth", "depth", Labels{"queue": "a"})
	g.Set(10)
	g.Dec()
	g.Add(-2)
	assert.Equal(t, int64(7), g.Value())

	assert.Same(t, c, r.Counter("hits_total", "ignored", nil))
	assert.Same(t, c, r.Get("hits_total"))
	assert.Nil(t, r.Get("missing"))
}

func TestRegisterTypeConflictPanics(t *testing.T) {
	r := NewRegistry("")
	r.Counter("x", "", nil)
	assert.Panics(t, func() { r.Gauge("x", "", nil) })
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("lat", "latency", nil, []float64{1, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.1, 0.3, 0.7, 2} {
		h.Observe(v)
	}
	// Bounds are sorted: 0.1, 0.5, 1, +Inf.
	assert.Equal(t, []uint64{2, 3, 4, 5}, h.Cumulative())
	assert.Equal(t, uint64(5), h.Count())
	assert.InDelta(t, 3.15, h.Sum(), 1e-9)
	assert.InDelta(t, 0.63, h.Mean(), 1e-9)

	h.ObserveDuration(250 * time.Millisecond)
	assert.Equal(t, []uint64{2, 4, 5, 6}, h.Cumulative())
}

func TestHistogramEmptyMean(t *testing.T) {
	assert.Zero(t, NewHistogram("h", "", nil, nil).Mean())
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("kv")
	r.Counter("b_total", "second", nil).Add(3)
	r.Gauge("a", "first", Labels{"x": "1"}).Set(-1)
	h := r.Histogram("c_seconds", "third", nil, []float64{0.5, 1})
	h.Observe(0.2)
	h.Observe(5)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))

	want := `# HELP kv_a first
# TYPE kv_a gauge
kv_a{x="1"} -1
# HELP kv_b_total second
# TYPE kv_b_total counter
kv_b_total 3
# HELP kv_c_seconds third
# TYPE kv_c_seconds histogram
kv_c_seconds_bucket{le="0.5"} 1
kv_c_seconds_bucket{le="1"} 1
kv_c_seconds_bucket{le="+Inf"} 2
kv_c_seconds_sum 5.2
kv_c_seconds_count 2
`
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	r := NewRegistry("kv")
	r.Counter("n_total", "n", nil).Inc()
	r.Histogram("d", "d", nil, []float64{1}).Observe(0.5)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "counter", got["kv_n_total"]["type"])
	assert.Equal(t, float64(1), got["kv_n_total"]["value"])
	assert.Equal(t, "histogram", got["kv_d"]["type"])
	assert.Equal(t, float64(1), got["kv_d"]["count"])
}

func TestReset(t *testing.T) {
	r := NewRegistry("")
	c := r.Counter("c", "", nil)
	h := r.Histogram("h", "", nil, nil)
	c.Inc()
	h.Observe(1)
	r.Reset()
	assert.Zero(t, c.Value())
	assert.Zero(t, h.Count())
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("kv")
	r.Counter("up_total", "up", nil).Inc()

	srv := httptest.NewServer(r.HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), "kv_up_total 1")

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Accept", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestPipelineMetrics(t *testing.T) {
	r := NewRegistry("kvpedit")
	m := NewPipeline(r)

	m.RecordRequest("segment")
	m.RecordRequest("phoneticize")
	m.RecordRequest("phoneticize")
	m.RecordResponse(20*time.Millisecond, nil)
	m.RecordResponse(30*time.Millisecond, errors.New("down"))
	m.RecordStale()
	m.RecordRender()
	m.RecordPreferenceWriteError()

	assert.Equal(t, uint64(1), m.SegmentRequests.Value())
	assert.Equal(t, uint64(2), m.PhoneticizeRequests.Value())
	assert.Equal(t, uint64(1), m.ServiceErrors.Value())
	assert.Equal(t, uint64(1), m.StaleResponses.Value())
	assert.Equal(t, uint64(1), m.Renders.Value())
	assert.Equal(t, uint64(1), m.PreferenceWriteErrs.Value())
	assert.Equal(t, uint64(2), m.ServiceDuration.Count())

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	for _, name := range []string{
		"kvpedit_segment_requests_total",
		"kvpedit_phoneticize_requests_total",
		"kvpedit_service_errors_total",
		"kvpedit_stale_responses_total",
		"kvpedit_renders_total",
		"kvpedit_preference_write_errors_total",
		"kvpedit_service_duration_seconds",
	} {
		assert.True(t, strings.Contains(buf.String(), "# TYPE "+name+" "), name)
	}
}

func TestNilPipelineIsNoop(t *testing.T) {
	var m *Pipeline
	assert.NotPanics(t, func() {
		m.RecordRequest("segment")
		m.RecordResponse(time.Second, errors.New("x"))
		m.RecordStale()
		m.RecordRender()
		m.RecordPreferenceWriteError()
	})
}

func TestServe(t *testing.T) {
	r := NewRegistry("kv")
	r.Counter("served_total", "", nil).Inc()

	srv, addr, err := Serve("127.0.0.1:0", r)
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "kv_served_total 1")
}

func TestServeExtraRoutes(t *testing.T) {
	ping := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	})
	srv, addr, err := Serve("127.0.0.1:0", NewRegistry("kv"), Route{Pattern: "/ping", Handler: ping})
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + addr.String() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "pong", string(body))
}
