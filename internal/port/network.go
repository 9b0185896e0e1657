package port

import (
	"context"
	"io"
	"time"
)

// RangeResponse is the result of a byte-range GET
type RangeResponse struct {
	StatusCode int
	Body       io.ReadCloser
}

// RangeClient is the network surface used by the chunked fetcher
type RangeClient interface {
	// ContentLength issues a metadata-only request and returns the declared
	// length. Returns domain.ErrSizeUnavailable when no length is disclosed.
	ContentLength(ctx context.Context, url string) (int64, error)

	// GetRange requests the inclusive byte range [start, end]. The caller
	// interprets the status code and must close Body.
	GetRange(ctx context.Context, url string, start, end int64) (*RangeResponse, error)

	// Ping performs a minimal round trip and returns its duration
	Ping(ctx context.Context, url string) (time.Duration, error)
}
