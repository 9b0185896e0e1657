package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

const defaultUserAgent = "artifact-cache"

// Config contains HTTP client configuration
type Config struct {
	// Timeout bounds metadata requests (size probe). Range downloads are
	// bounded only by ResponseHeaderTimeout and the caller's context.
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	UserAgent             string
	Headers               map[string]string
	SkipTLSVerify         bool
}

// Client implements port.RangeClient over net/http
type Client struct {
	config         Config
	httpClient     *http.Client
	downloadClient *http.Client
}

// Ensure Client implements port.RangeClient
var _ port.RangeClient = (*Client)(nil)

// New creates a new Client
func New(cfg *Config) *Client {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ResponseHeaderTimeout == 0 {
		c.ResponseHeaderTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.SkipTLSVerify,
		},
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	downloadTransport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.SkipTLSVerify,
		},
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     120 * time.Second,
		ForceAttemptHTTP2:   true,

		// Chunks are opaque binary; compression only costs CPU
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
	}

	return &Client{
		config: c,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   c.Timeout,
		},
		downloadClient: &http.Client{
			Transport: downloadTransport,
			Timeout:   0,
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// ContentLength reads the declared length of url with a HEAD request
func (c *Client) ContentLength(ctx context.Context, url string) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrSizeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: server returned %d", domain.ErrSizeUnavailable, resp.StatusCode)
	}

	header := resp.Header.Get("Content-Length")
	if header == "" {
		return 0, fmt.Errorf("%w: no Content-Length header", domain.ErrSizeUnavailable)
	}
	size, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid Content-Length %q", domain.ErrSizeUnavailable, header)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: Content-Length %d", domain.ErrSizeUnavailable, size)
	}
	return size, nil
}

// GetRange requests bytes [start, end] of url
func (c *Client) GetRange(ctx context.Context, url string, start, end int64) (*port.RangeResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return &port.RangeResponse{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// Ping times one uncached HEAD round trip to url. Any HTTP status counts
// as a completed round trip.
func (c *Client) Ping(ctx context.Context, url string) (time.Duration, error) {
	req, err := c.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-store")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("latency probe failed: %w", err)
	}
	resp.Body.Close()
	return time.Since(start), nil
}
