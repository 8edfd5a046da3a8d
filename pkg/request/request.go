package request

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Captured is an inbound request as the proxy received it
type Captured struct {
	ID          string      `json:"id" yaml:"id"`
	Timestamp   time.Time   `json:"timestamp" yaml:"timestamp"`
	Method      string      `json:"method" yaml:"method"`
	Proto       string      `json:"proto" yaml:"proto"`
	Host        string      `json:"host" yaml:"host"`
	RequestURI  string      `json:"request_uri" yaml:"request_uri"`
	Path        string      `json:"path" yaml:"path"`
	Query       string      `json:"query" yaml:"query"`
	RemoteAddr  string      `json:"remote_addr" yaml:"remote_addr"`
	UserAgent   string      `json:"user_agent" yaml:"user_agent"`
	Headers     http.Header `json:"headers" yaml:"headers"`
	Body        []byte      `json:"body" yaml:"-"`
	ContentType string      `json:"content_type" yaml:"content_type"`
	IsBinary    bool        `json:"is_binary" yaml:"is_binary"`
	Size        int64       `json:"size" yaml:"size"`
}

// Capture snapshots r with its already buffered body
func Capture(r *http.Request, body []byte) *Captured {
	contentType := r.Header.Get("Content-Type")

	return &Captured{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Method:      r.Method,
		Proto:       r.Proto,
		Host:        r.Host,
		RequestURI:  requestURI(r),
		Path:        r.URL.Path,
		Query:       r.URL.RawQuery,
		RemoteAddr:  getClientIP(r),
		UserAgent:   r.UserAgent(),
		Headers:     r.Header.Clone(),
		Body:        body,
		ContentType: contentType,
		IsBinary:    IsBinaryContent(contentType, body),
		Size:        int64(len(body)),
	}
}

// requestURI returns the target exactly as it appeared on the request line
func requestURI(r *http.Request) string {
	if r.RequestURI != "" && !strings.Contains(r.RequestURI, "://") {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

// getClientIP gets client real IP address
func getClientIP(r *http.Request) string {
	// Take the first IP (original client IP)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// IsBinaryContent detects if it's binary content
func IsBinaryContent(contentType string, body []byte) bool {
	binaryTypes := []string{
		"image/", "video/", "audio/", "font/",
		"application/octet-stream",
		"application/zip", "application/gzip",
		"application/pdf", "application/msword",
		"application/protobuf", "application/x-protobuf",
		"application/vnd.ms-", "application/vnd.openxmlformats-",
	}

	contentType = strings.ToLower(contentType)
	for _, binaryType := range binaryTypes {
		if strings.HasPrefix(contentType, binaryType) {
			return true
		}
	}

	// More than 10% are null bytes
	nullCount := 0
	for _, b := range body {
		if b == 0 {
			nullCount++
		}
	}
	return len(body) > 0 && nullCount > len(body)/10
}
