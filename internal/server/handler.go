package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/funnyzak/reqtape/internal/filter"
	"github.com/funnyzak/reqtape/internal/forwarder"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/internal/printer"
	"github.com/funnyzak/reqtape/internal/report"
	"github.com/funnyzak/reqtape/pkg/request"
)

// Client sends a buffered request upstream
type Client interface {
	Do(ctx context.Context, out *forwarder.Outbound) (*forwarder.Response, error)
	Close()
}

// Recorder receives exchanges that passed the filters
type Recorder interface {
	Append(*report.Exchange) error
	Finalize() error
	Discard() error
}

// Handler relays each request upstream and records the exchange
type Handler struct {
	upstream     string
	maxBodyBytes int64
	rewriteHost  bool
	client       Client
	recorder     Recorder
	methods      *filter.Predicate
	paths        *filter.Predicate
	printer      printer.Printer
	logger       logger.Logger
}

var errRequestBodyTooLarge = errors.New("request body exceeds configured limit")

// NewHandler creates a new request handler
func NewHandler(opts Options, deps Deps) *Handler {
	return &Handler{
		upstream:     strings.TrimRight(opts.Upstream, "/"),
		maxBodyBytes: opts.MaxBodyBytes,
		rewriteHost:  opts.RewriteHost,
		client:       deps.Client,
		recorder:     deps.Recorder,
		methods:      deps.Methods,
		paths:        deps.Paths,
		printer:      deps.Printer,
		logger:       deps.Logger,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bodyBytes, err := h.readRequestBody(r)
	if err != nil {
		h.handleBodyReadError(w, err)
		return
	}

	captured := request.Capture(r, bodyBytes)
	out := &forwarder.Outbound{
		Method: r.Method,
		URL:    h.upstream + captured.RequestURI,
		Header: r.Header,
		Body:   bodyBytes,
	}
	if !h.rewriteHost {
		out.Host = r.Host
	}

	resp, err := h.client.Do(r.Context(), out)
	if err != nil {
		h.logger.Error("Failed to forward request",
			"request_id", captured.ID,
			"method", captured.Method,
			"url", out.URL,
			"error", err,
		)
		http.Error(w, "Bad Gateway: upstream request failed", http.StatusBadGateway)
		h.print(&printer.Recorded{Request: captured, Status: http.StatusBadGateway})
		return
	}

	recorded := h.allowed(captured)
	if recorded {
		if err := h.recorder.Append(buildExchange(r, captured, resp)); err != nil {
			recorded = false
			h.logger.Warn("Failed to record exchange",
				"request_id", captured.ID,
				"error", err,
			)
		}
	}

	h.logger.Debug("Request proxied",
		"request_id", captured.ID,
		"method", captured.Method,
		"uri", captured.RequestURI,
		"status", resp.StatusCode,
		"recorded", recorded,
		"duration", resp.Duration,
	)

	for key, values := range resp.Header {
		if forwarder.IsHopByHop(key) {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			h.logger.Debug("Failed to relay response body", "request_id", captured.ID, "error", err)
		}
	}

	h.print(&printer.Recorded{
		Request:  captured,
		Status:   resp.StatusCode,
		Size:     len(resp.Body),
		Duration: resp.Duration,
		Recorded: recorded,
	})
}

func (h *Handler) allowed(captured *request.Captured) bool {
	return h.methods.Allow(captured.Method) && h.paths.Allow(captured.Path)
}

func (h *Handler) print(ev *printer.Recorded) {
	if h.printer == nil {
		return
	}
	if err := h.printer.PrintRecorded(ev); err != nil {
		h.logger.Error("Failed to print request", "error", err, "request_id", ev.Request.ID)
	}
}

// buildExchange turns a relayed request and its response into a report entry
func buildExchange(r *http.Request, captured *request.Captured, resp *forwarder.Response) *report.Exchange {
	headers := report.HeadersFrom(r.Header)
	if r.Host != "" {
		headers["host"] = []string{r.Host}
	}
	return &report.Exchange{
		URL:     captured.RequestURI,
		Method:  captured.Method,
		Headers: headers,
		Body:    report.ParseBody(captured.Body),
		ExpectedResult: report.ExpectedResult{
			StatusCode: resp.StatusCode,
			Headers:    report.HeadersFrom(resp.Header),
			Body:       report.ParseEncodedBody(resp.Body, resp.Header.Get("Content-Encoding")),
		},
	}
}

func (h *Handler) readRequestBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	if h.maxBodyBytes <= 0 {
		return io.ReadAll(r.Body)
	}

	limited := io.LimitReader(r.Body, h.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBodyBytes {
		return nil, errRequestBodyTooLarge
	}
	return body, nil
}

func (h *Handler) handleBodyReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errRequestBodyTooLarge):
		h.logger.Warn("Request body exceeds configured limit",
			"limit_bytes", h.maxBodyBytes,
		)
		http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
	default:
		h.logger.Error("Failed to read request body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
	}
}
