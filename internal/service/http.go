package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"kvpedit/internal/logging"
)

// DefaultURL is the service base URL used when none is configured.
const DefaultURL = "http://127.0.0.1:5000"

const maxResponseBytes = 64 << 20

var segmentEndpoints = map[string]string{
	GranularityWords: "/segmentbywords",
	GranularityPairs: "/segmentbytwo",
	GranularityOnes:  "/segmentbyone",
}

const phoneticizeEndpoint = "/phoneticize"

// response is the JSON body returned by every endpoint.
type response struct {
	Segmented string `json:"segmented"`
	KVP       string `json:"kvp"`
	IPA       string `json:"ipa"`
}

// HTTPClient talks to the service over HTTP form posts.
type HTTPClient struct {
	baseURL        string
	client         *http.Client
	log            *logging.Logger
	segmentSchema  *jsonschema.Schema
	phoneticSchema *jsonschema.Schema
}

// NewHTTPClient returns a client for the service at baseURL. A zero timeout
// means requests never time out on their own; callers bound them with ctx.
func NewHTTPClient(baseURL string, timeout time.Duration, log *logging.Logger) (*HTTPClient, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid service url %q", baseURL)
	}
	if log == nil {
		log = logging.Default()
	}

	seg, err := compileSchema(segmentSchemaURL, segmentSchema)
	if err != nil {
		return nil, err
	}
	phon, err := compileSchema(phoneticSchemaURL, phoneticSchema)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         &http.Client{Timeout: timeout},
		log:            log.WithComponent("service"),
		segmentSchema:  seg,
		phoneticSchema: phon,
	}, nil
}

// Segment posts to the endpoint selected by req.Granularity.
func (c *HTTPClient) Segment(ctx context.Context, req SegmentRequest) (*SegmentResult, error) {
	endpoint, ok := segmentEndpoints[req.Granularity]
	if !ok {
		return nil, &Error{Op: "segment", Err: fmt.Errorf("unknown granularity %q", req.Granularity)}
	}

	resp, err := c.post(ctx, "segment", endpoint, c.segmentSchema, form(req.Text, req.SanskritMode, req.Anusvara))
	if err != nil {
		return nil, err
	}
	return &SegmentResult{
		Segmented: resp.Segmented,
		Romanized: resp.KVP,
		Phonetic:  resp.IPA,
	}, nil
}

// Phoneticize posts segmented text to the phoneticize endpoint.
func (c *HTTPClient) Phoneticize(ctx context.Context, req PhoneticizeRequest) (*PhoneticResult, error) {
	resp, err := c.post(ctx, "phoneticize", phoneticizeEndpoint, c.phoneticSchema, form(req.Text, req.SanskritMode, req.Anusvara))
	if err != nil {
		return nil, err
	}
	return &PhoneticResult{
		Romanized: resp.KVP,
		Phonetic:  resp.IPA,
	}, nil
}

func form(text, sanskritMode, anusvara string) url.Values {
	v := url.Values{}
	v.Set("str", text)
	v.Set("sanskrit_mode", sanskritMode)
	v.Set("anusvara_style", anusvara)
	return v
}

func (c *HTTPClient) post(ctx context.Context, op, endpoint string, schema *jsonschema.Schema, values url.Values) (*response, error) {
	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := c.log.WithRequestID(requestID)
	fail := func(status int, err error) (*response, error) {
		log.Debug("service call failed", "op", op, "status", status, "error", err)
		return nil, &Error{Op: op, Status: status, RequestID: requestID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return fail(0, fmt.Errorf("%w: %w", ErrUnavailable, err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("%w: %w", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: read body: %w", ErrUnavailable, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, fmt.Errorf("%w: %s", ErrUnavailable, bytes.TrimSpace(truncate(body, 256))))
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: %w", ErrMalformed, err))
	}
	if err := schema.Validate(doc); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: %w", ErrMalformed, err))
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("%w: %w", ErrMalformed, err))
	}

	log.Debug("service call completed",
		"op", op,
		"endpoint", endpoint,
		"bytes", len(values.Get("str")),
		"duration", time.Since(start))
	return &out, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
