package request

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCapture(t *testing.T) {
	req := httptest.NewRequest("POST", "http://proxy.local/test/path?param=value&b=%2F", strings.NewReader(`{"test": "data"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "192.168.1.100")
	req.RemoteAddr = "10.0.0.1:12345"

	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("Failed to read request body: %v", err)
	}

	data := Capture(req, body)

	if data.Method != "POST" {
		t.Errorf("Expected method POST, got %s", data.Method)
	}
	if data.Proto != "HTTP/1.1" {
		t.Errorf("Expected proto HTTP/1.1, got %s", data.Proto)
	}
	if data.Host != "proxy.local" {
		t.Errorf("Expected host proxy.local, got %s", data.Host)
	}
	if data.RequestURI != "/test/path?param=value&b=%2F" {
		t.Errorf("Expected raw request URI, got %s", data.RequestURI)
	}
	if data.Path != "/test/path" {
		t.Errorf("Expected path /test/path, got %s", data.Path)
	}
	if data.Query != "param=value&b=%2F" {
		t.Errorf("Expected query param=value&b=%%2F, got %s", data.Query)
	}
	if data.UserAgent != "test-agent" {
		t.Errorf("Expected User-Agent test-agent, got %s", data.UserAgent)
	}
	if data.ContentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", data.ContentType)
	}
	if string(data.Body) != `{"test": "data"}` {
		t.Errorf("Expected body {\"test\": \"data\"}, got %s", string(data.Body))
	}
	if data.Size != 16 {
		t.Errorf("Expected size 16, got %d", data.Size)
	}
	if data.RemoteAddr != "192.168.1.100" {
		t.Errorf("Expected remote addr 192.168.1.100, got %s", data.RemoteAddr)
	}
	if _, err := uuid.Parse(data.ID); err != nil {
		t.Errorf("Expected uuid id, got %q", data.ID)
	}
}

func TestCaptureClientRequestURI(t *testing.T) {
	req, err := http.NewRequest("GET", "http://example.com/a/b?x=1", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	data := Capture(req, nil)
	if data.RequestURI != "/a/b?x=1" {
		t.Errorf("Expected /a/b?x=1, got %s", data.RequestURI)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expectedIP string
	}{
		{
			name:       "X-Forwarded-For single IP",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.100"},
			expectedIP: "192.168.1.100",
		},
		{
			name:       "X-Forwarded-For multiple IPs",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.100, 10.0.0.2, 172.16.0.1"},
			expectedIP: "192.168.1.100",
		},
		{
			name:       "X-Real-IP",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "192.168.1.200"},
			expectedIP: "192.168.1.200",
		},
		{
			name:       "RemoteAddr only",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{},
			expectedIP: "10.0.0.1",
		},
		{
			name:       "RemoteAddr IPv6",
			remoteAddr: "[::1]:8080",
			headers:    map[string]string{},
			expectedIP: "::1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "10.0.0.1",
			headers:    map[string]string{},
			expectedIP: "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{
				RemoteAddr: tt.remoteAddr,
				Header:     make(http.Header),
			}
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			if ip := getClientIP(req); ip != tt.expectedIP {
				t.Errorf("Expected IP %s, got %s", tt.expectedIP, ip)
			}
		})
	}
}

func TestIsBinaryContent(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		expected    bool
	}{
		{"JSON content", "application/json", []byte(`{"key": "value"}`), false},
		{"JPEG image", "image/jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, true},
		{"PDF file", "application/pdf", []byte("%PDF-1.4"), true},
		{"Plain text", "text/plain", []byte("Hello, World!"), false},
		{"Empty content type with null bytes", "", []byte{0x00, 0x00, 0x48, 0x65, 0x6C, 0x6C, 0x6F}, true},
		{"Form data", "application/x-www-form-urlencoded", []byte("key=value&foo=bar"), false},
		{"Upper-case type", "Image/PNG", []byte{0x89}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsBinaryContent(tt.contentType, tt.body); result != tt.expected {
				t.Errorf("Expected %v, got %v for content type %s", tt.expected, result, tt.contentType)
			}
		})
	}
}

func TestCaptureTimestampAndHeaders(t *testing.T) {
	before := time.Now()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer token123")
	data := Capture(req, nil)
	after := time.Now()

	if data.Timestamp.Before(before) || data.Timestamp.After(after) {
		t.Errorf("Timestamp %v should be between %v and %v", data.Timestamp, before, after)
	}

	data.Headers.Set("Authorization", "changed")
	if req.Header.Get("Authorization") != "Bearer token123" {
		t.Error("Original headers modified")
	}
}

func BenchmarkCapture(b *testing.B) {
	req := httptest.NewRequest("POST", "/api/test?param=value", nil)
	req.Header.Set("Content-Type", "application/json")
	body := []byte(`{"test": "data", "number": 123}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Capture(req, body)
	}
}
