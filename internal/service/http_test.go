package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvpedit/internal/logging"
)

type recorded struct {
	path      string
	form      map[string]string
	requestID string
}

// fakeServer answers every endpoint with the given status and body and
// records what it was asked.
type fakeServer struct {
	mu     sync.Mutex
	calls  []recorded
	status int
	body   string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, recorded{
		path: r.URL.Path,
		form: map[string]string{
			"str":            r.PostForm.Get("str"),
			"sanskrit_mode":  r.PostForm.Get("sanskrit_mode"),
			"anusvara_style": r.PostForm.Get("anusvara_style"),
		},
		requestID: r.Header.Get("X-Request-ID"),
	})
	status, body := f.status, f.body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func newTestClient(t *testing.T, f *fakeServer) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL+"/", 5*time.Second, logging.Discard())
	require.NoError(t, err)
	return c
}

func jsonBody(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestSegmentEndpoints(t *testing.T) {
	tests := []struct {
		granularity string
		path        string
	}{
		{GranularityWords, "/segmentbywords"},
		{GranularityPairs, "/segmentbytwo"},
		{GranularityOnes, "/segmentbyone"},
	}
	for _, tt := range tests {
		t.Run(tt.granularity, func(t *testing.T) {
			f := &fakeServer{status: http.StatusOK, body: jsonBody(t, map[string]string{
				"segmented": "ཀ་ ཁ་",
				"kvp":       "ka kha",
				"ipa":       "ka kʰa",
			})}
			c := newTestClient(t, f)

			res, err := c.Segment(context.Background(), SegmentRequest{
				Text:         "ཀ་ཁ་",
				Granularity:  tt.granularity,
				SanskritMode: "iast",
				Anusvara:     "ṁ",
			})
			require.NoError(t, err)
			assert.Equal(t, &SegmentResult{Segmented: "ཀ་ ཁ་", Romanized: "ka kha", Phonetic: "ka kʰa"}, res)

			require.Len(t, f.calls, 1)
			assert.Equal(t, tt.path, f.calls[0].path)
			assert.Equal(t, map[string]string{
				"str":            "ཀ་ཁ་",
				"sanskrit_mode":  "iast",
				"anusvara_style": "ṁ",
			}, f.calls[0].form)
			assert.Len(t, f.calls[0].requestID, 36)
		})
	}
}

func TestPhoneticize(t *testing.T) {
	f := &fakeServer{status: http.StatusOK, body: `{"kvp":"om","ipa":"ʔoŋ"}`}
	c := newTestClient(t, f)

	res, err := c.Phoneticize(context.Background(), PhoneticizeRequest{Text: "ཨོཾ", SanskritMode: "keep", Anusvara: "ṃ"})
	require.NoError(t, err)
	assert.Equal(t, &PhoneticResult{Romanized: "om", Phonetic: "ʔoŋ"}, res)
	require.Len(t, f.calls, 1)
	assert.Equal(t, "/phoneticize", f.calls[0].path)
}

func TestRequestIDFromContext(t *testing.T) {
	f := &fakeServer{status: http.StatusOK, body: `{"kvp":"","ipa":""}`}
	c := newTestClient(t, f)

	ctx := logging.ContextWithRequestID(context.Background(), "req-42")
	_, err := c.Phoneticize(ctx, PhoneticizeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "req-42", f.calls[0].requestID)
}

func TestFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, "boom", ErrUnavailable},
		{"not found", http.StatusNotFound, "", ErrUnavailable},
		{"not json", http.StatusOK, "<html>", ErrMalformed},
		{"missing field", http.StatusOK, `{"segmented":"x","kvp":"y"}`, ErrMalformed},
		{"wrong type", http.StatusOK, `{"segmented":1,"kvp":"y","ipa":"z"}`, ErrMalformed},
		{"not an object", http.StatusOK, `["x"]`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeServer{status: tt.status, body: tt.body})

			res, err := c.Segment(context.Background(), SegmentRequest{Text: "ཀ", Granularity: GranularityWords})
			assert.Nil(t, res)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var svcErr *Error
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, "segment", svcErr.Op)
			assert.Equal(t, tt.status, svcErr.Status)
			assert.NotEmpty(t, svcErr.RequestID)
		})
	}
}

func TestFailureLoggedAtDebug(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{status: http.StatusInternalServerError, body: "boom"})
	defer srv.Close()

	for _, level := range []logging.Level{logging.LevelWarn, logging.LevelDebug} {
		var buf bytes.Buffer
		cfg := logging.DefaultConfig()
		cfg.Level = level
		cfg.Writer = &buf
		log, err := logging.New(cfg)
		require.NoError(t, err)

		c, err := NewHTTPClient(srv.URL, time.Second, log)
		require.NoError(t, err)
		_, err = c.Segment(context.Background(), SegmentRequest{Text: "ཀ", Granularity: GranularityWords})
		require.Error(t, err)

		// Callers report failures; the client only traces them.
		if level == logging.LevelWarn {
			assert.NotContains(t, buf.String(), "service call failed")
		} else {
			assert.Contains(t, buf.String(), "service call failed")
		}
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url, time.Second, logging.Discard())
	require.NoError(t, err)

	_, err = c.Phoneticize(context.Background(), PhoneticizeRequest{Text: "ཀ"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := NewHTTPClient(srv.URL, 0, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Phoneticize(ctx, PhoneticizeRequest{Text: "ཀ"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnknownGranularity(t *testing.T) {
	f := &fakeServer{status: http.StatusOK}
	c := newTestClient(t, f)

	_, err := c.Segment(context.Background(), SegmentRequest{Text: "ཀ", Granularity: "lines"})
	assert.Error(t, err)
	assert.Empty(t, f.calls)
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("not a url", 0, nil)
	assert.Error(t, err)

	c, err := NewHTTPClient("", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, c.baseURL)
}
