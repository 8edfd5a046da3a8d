package forwarder

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/funnyzak/reqtape/internal/logger"
)

// Forwarder sends buffered requests upstream and reads the whole response
type Forwarder struct {
	client      *http.Client
	logger      logger.Logger
	workerPool  chan struct{}
	mu          sync.Mutex
	cond        *sync.Cond
	closed      bool
	activeCalls int
}

// Options 转发器配置
type Options struct {
	Timeout               time.Duration
	MaxConcurrent         int
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	TLSInsecureSkipVerify bool
}

// Outbound is a fully buffered request.
type Outbound struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Host overrides the Host header sent upstream when set.
	Host string
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// ErrForwarderClosed indicates the forwarder has been shut down.
var ErrForwarderClosed = errors.New("forwarder is closed")

// hop-by-hop headers are never forwarded; content-length is recomputed
var skipHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"proxy-connection":    true,
	"te":                  true,
	"trailer":             true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"content-length":      true,
}

// NewForwarder creates new forwarder
func NewForwarder(log logger.Logger, opts Options) *Forwarder {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        positiveOrDefault(opts.MaxIdleConns, 200),
		MaxIdleConnsPerHost: positiveOrDefault(opts.MaxIdleConnsPerHost, positiveOrDefault(opts.MaxConcurrent, 64)),
		IdleConnTimeout:     durationOrDefault(opts.IdleConnTimeout, 90*time.Second),
		ResponseHeaderTimeout: durationOrDefault(
			opts.ResponseHeaderTimeout,
			30*time.Second,
		),
		TLSHandshakeTimeout:   durationOrDefault(opts.TLSHandshakeTimeout, 10*time.Second),
		ExpectContinueTimeout: durationOrDefault(opts.ExpectContinueTimeout, 1*time.Second),
		// bodies are recorded and relayed exactly as the upstream sent them
		DisableCompression: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.TLSInsecureSkipVerify,
		},
	}

	f := &Forwarder{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: log,
	}
	if opts.MaxConcurrent > 0 {
		f.workerPool = make(chan struct{}, opts.MaxConcurrent)
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Do sends out and returns the complete response. Any failure before the
// body is fully read is returned as an error.
func (f *Forwarder) Do(ctx context.Context, out *Outbound) (*Response, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrForwarderClosed
	}
	f.activeCalls++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.activeCalls--
		if f.activeCalls == 0 {
			f.cond.Broadcast()
		}
		f.mu.Unlock()
	}()

	// a nil pool leaves in-flight calls unbounded
	if f.workerPool != nil {
		select {
		case f.workerPool <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-f.workerPool }()
	}

	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, bytes.NewReader(out.Body))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	copyHeaders(req.Header, out.Header, f.logger)
	if out.Host != "" {
		req.Host = out.Host
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("Failed to close response body", "error", cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	f.logger.Debug("Upstream responded",
		"method", out.Method,
		"url", out.URL,
		"status", resp.StatusCode,
		"size", len(body),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// copyHeaders copies end-to-end headers from src into dst.
func copyHeaders(dst, src http.Header, log logger.Logger) {
	connectionTokens := map[string]bool{}
	for _, v := range src.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if token = strings.TrimSpace(token); token != "" {
				connectionTokens[strings.ToLower(token)] = true
			}
		}
	}

	for key, values := range src {
		lowerKey := strings.ToLower(key)
		if skipHeaders[lowerKey] || connectionTokens[lowerKey] || lowerKey == "host" {
			continue
		}
		if lowerKey == "authorization" || lowerKey == "cookie" {
			log.Debug("Forwarding sensitive header", "header", key)
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// IsHopByHop reports whether a response header must not be relayed.
func IsHopByHop(key string) bool {
	return skipHeaders[strings.ToLower(key)] && !strings.EqualFold(key, "content-length")
}

// Close closes forwarder and cleans up resources
func (f *Forwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for f.activeCalls > 0 {
		f.cond.Wait()
	}
	f.mu.Unlock()

	// Close idle connections of HTTP client
	if transport, ok := f.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func positiveOrDefault(value, def int) int {
	if value > 0 {
		return value
	}
	return def
}

func durationOrDefault(value, def time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return def
}
