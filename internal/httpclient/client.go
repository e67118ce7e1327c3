package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/torosent/ratefire/internal/config"
)

// MaxResponseBody bounds how much of a response body is kept for reporting.
const MaxResponseBody = 1 << 20

// RequestBuilder turns the configured request into a fresh *http.Request per tick.
type RequestBuilder struct {
	method  config.Method
	target  string
	headers http.Header
	body    BodySource
}

func NewRequestBuilder(cfg *config.Config) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target := strings.TrimSpace(cfg.TargetURL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := cfg.Method
	if method == "" {
		method = config.MethodGet
	}

	// Bodies are only sent for methods that carry one.
	var body BodySource = emptyBodySource{}
	if method.AllowsBody() {
		src, err := NewBodySource(cfg.Body, cfg.BodyFile)
		if err != nil {
			return nil, err
		}
		body = src
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: headers,
		body:    body,
	}, nil
}

// Method returns the resolved request method.
func (b *RequestBuilder) Method() config.Method { return b.method }

// Target returns the request URL.
func (b *RequestBuilder) Target() string { return b.target }

// Header returns a copy of the static request headers.
func (b *RequestBuilder) Header() http.Header { return b.headers.Clone() }

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, string(b.method), b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = b.headers.Clone()
	if length, ok := b.body.ContentLength(); ok {
		req.ContentLength = length
	}
	req.GetBody = b.body.NewReader

	return req, nil
}

// Response is the part of an HTTP response kept for classification and reporting.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	URL     string
	Latency time.Duration
}

// RequestOption adjusts a built request before it is sent, e.g. to inject trace headers.
type RequestOption func(*http.Request)

// Sender sends the configured request with a shared client.
type Sender struct {
	client  *http.Client
	builder *RequestBuilder
}

func NewSender(client *http.Client, builder *RequestBuilder) *Sender {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sender{client: client, builder: builder}
}

// Builder returns the request builder used by the sender.
func (s *Sender) Builder() *RequestBuilder { return s.builder }

// Send performs one request. Transport failures are returned as errors; any HTTP status,
// successful or not, is returned as a Response.
func (s *Sender) Send(ctx context.Context, opts ...RequestOption) (*Response, error) {
	req, err := s.builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    body,
		URL:     req.URL.String(),
		Latency: latency,
	}, nil
}

// NewClient returns a client tuned for load generation. With enableHTTP2 the transport
// negotiates HTTP/2 through golang.org/x/net/http2 and health-checks idle connections;
// otherwise it stays on HTTP/1.1 so each worker holds its own connection.
func NewClient(timeout time.Duration, enableHTTP2 bool) (*http.Client, error) {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if enableHTTP2 {
		h2, err := http2.ConfigureTransports(transport)
		if err != nil {
			return nil, fmt.Errorf("configure http2: %w", err)
		}
		h2.ReadIdleTimeout = 30 * time.Second
		h2.PingTimeout = 15 * time.Second
	} else {
		// A non-nil empty map disables the automatic HTTP/2 upgrade.
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
