// Package service is the client side of the remote segmentation and
// phoneticization service. The algorithms live on the server; this package
// only speaks its request/response contract.
package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable covers transport failures and non-success responses.
	ErrUnavailable = errors.New("service unavailable")
	// ErrMalformed is returned when a response does not match the contract.
	ErrMalformed = errors.New("malformed service response")
)

// Segmentation granularities, matching the server's endpoints.
const (
	GranularityWords = "words"
	GranularityPairs = "two"
	GranularityOnes  = "one"
)

// SegmentRequest asks for source text to be split into units.
type SegmentRequest struct {
	Text         string
	Granularity  string
	SanskritMode string
	Anusvara     string
}

// SegmentResult carries the segmented text plus the raw romanized and
// phonetic encodings of it.
type SegmentResult struct {
	Segmented string
	Romanized string
	Phonetic  string
}

// PhoneticizeRequest asks for the raw encodings of already segmented text.
type PhoneticizeRequest struct {
	Text         string
	SanskritMode string
	Anusvara     string
}

// PhoneticResult carries the raw romanized and phonetic encodings.
type PhoneticResult struct {
	Romanized string
	Phonetic  string
}

// Service is the remote collaborator consumed by the pipeline.
type Service interface {
	Segment(ctx context.Context, req SegmentRequest) (*SegmentResult, error)
	Phoneticize(ctx context.Context, req PhoneticizeRequest) (*PhoneticResult, error)
}

// Error describes a failed call.
type Error struct {
	Op        string
	Status    int
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
