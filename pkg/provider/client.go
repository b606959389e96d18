package provider

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaneisley/wishful/pkg/metrics"
)

// ErrInvalidRequest is returned for requests that can never succeed as built
var ErrInvalidRequest = errors.New("invalid provider request")

// TransportErrorKind classifies network-level failures
type TransportErrorKind int

const (
	ConnectFailed TransportErrorKind = iota
	TimedOut
	TLSError
	Other
)

func (k TransportErrorKind) String() string {
	switch k {
	case ConnectFailed:
		return "connect_failed"
	case TimedOut:
		return "timed_out"
	case TLSError:
		return "tls_error"
	default:
		return "other"
	}
}

// TransportError is a failure to obtain a response; always retryable
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RawResponse is the undecoded provider reply
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures a Client
type Options struct {
	BaseURL   string
	UserAgent string
	// MaxInFlight caps simultaneous requests across all accounts
	MaxInFlight int
	Metrics     *metrics.Metrics
	// HTTPClient overrides the pooled default client
	HTTPClient *http.Client
}

// Client issues authenticated provider calls; it keeps no per-account state
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	inflight  *semaphore.Weighted
	metrics   *metrics.Metrics
}

// NewClient creates a provider client
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: maxInFlight,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				// Bodies are decoded here so that br is supported too
				DisableCompression: true,
			},
		}
	}

	return &Client{
		http:      httpClient,
		baseURL:   baseURL,
		userAgent: userAgent,
		inflight:  semaphore.NewWeighted(int64(maxInFlight)),
		metrics:   opts.Metrics,
	}
}

// Send performs one request with the given timeout and returns the decoded body for any HTTP status.
// Cancellation of ctx is returned as ctx.Err(); other failures are *TransportError.
func (c *Client) Send(ctx context.Context, req Request, timeout time.Duration) (*RawResponse, error) {
	if strings.TrimSpace(req.Cookie) == "" {
		return nil, fmt.Errorf("%w: %s has no cookie", ErrInvalidRequest, req.Endpoint)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidRequest, timeout)
	}

	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.inflight.Release(1)
	c.metrics.InflightInc()
	defer c.metrics.InflightDec()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.newHTTPRequest(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(req.Endpoint, 0, time.Since(start))
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	c.metrics.ObserveRequest(req.Endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, classify(ctx, err)
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.baseURL + req.Endpoint
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var httpReq *http.Request
	var err error
	if req.Form != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(req.Form.Encode()))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept", "application/json, text/plain, */*")
	httpReq.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Origin", portalOrigin)
	httpReq.Header.Set("Referer", portalOrigin+"/")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Cookie", req.Cookie)
	for name, values := range req.Header {
		httpReq.Header.Del(name)
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	return httpReq, nil
}

// classify maps a client error onto a TransportError unless the caller's context ended
func classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}

	var (
		netErr       net.Error
		dnsErr       *net.DNSError
		opErr        *net.OpError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)

	switch {
	case errors.As(err, &verifyErr), errors.As(err, &authorityErr), errors.As(err, &hostErr),
		errors.As(err, &invalidErr), errors.As(err, &recordErr), errors.As(err, &alertErr):
		return &TransportError{Kind: TLSError, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &TransportError{Kind: TimedOut, Err: err}
	case errors.As(err, &dnsErr), errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &opErr) && opErr.Op == "dial":
		return &TransportError{Kind: ConnectFailed, Err: err}
	default:
		return &TransportError{Kind: Other, Err: err}
	}
}
