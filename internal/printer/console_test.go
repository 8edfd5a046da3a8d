package printer

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/pkg/request"
)

func init() {
	color.NoColor = true
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

func newTestConsole(t *testing.T, cfg *config.OutputConfig) (*ConsolePrinter, *bytes.Buffer) {
	t.Helper()
	t.Setenv("REQTAPE_TEST_WIDTH", "80")
	buf := &bytes.Buffer{}
	return NewConsolePrinter(buf, noopLogger{}, cfg), buf
}

func recordedEvent(contentType string, body []byte) *Recorded {
	return &Recorded{
		Request: &request.Captured{
			Method:      "POST",
			Host:        "localhost:8080",
			Path:        "/users",
			Query:       "page=2",
			Proto:       "HTTP/1.1",
			Headers:     http.Header{"Content-Type": {contentType}, "Authorization": {"secret"}, "Connection": {"keep-alive"}},
			Body:        body,
			Timestamp:   time.Now(),
			ContentType: contentType,
			IsBinary:    request.IsBinaryContent(contentType, body),
		},
		Status:   201,
		Size:     17,
		Duration: 3 * time.Millisecond,
		Recorded: true,
	}
}

func TestConsolePrinter_PrintRecorded(t *testing.T) {
	p, buf := newTestConsole(t, &config.OutputConfig{})

	if err := p.PrintRecorded(recordedEvent("text/plain", []byte("hi"))); err != nil {
		t.Fatalf("print recorded failed: %v", err)
	}

	output := buf.String()
	if strings.Count(output, "\n") != 1 {
		t.Fatalf("expected a single line without verbose, got %q", output)
	}
	for _, want := range []string{"●", "POST", "/users?page=2", "201", "17 B"} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q: %s", want, output)
		}
	}

	buf.Reset()
	ev := recordedEvent("text/plain", nil)
	ev.Recorded = false
	if err := p.PrintRecorded(ev); err != nil {
		t.Fatalf("print recorded failed: %v", err)
	}
	if !strings.Contains(buf.String(), "○") {
		t.Fatalf("filtered exchange should use the hollow mark, got %s", buf.String())
	}
}

func TestConsolePrinter_VerboseRedactsHeaders(t *testing.T) {
	p, buf := newTestConsole(t, &config.OutputConfig{Verbose: true})

	if err := p.PrintRecorded(recordedEvent("text/plain", []byte("hello body"))); err != nil {
		t.Fatalf("print recorded failed: %v", err)
	}

	output := buf.String()
	if strings.Contains(output, "secret") {
		t.Fatalf("sensitive header should be redacted")
	}
	if !strings.Contains(output, "Authorization: [REDACTED]") {
		t.Fatalf("expected redacted authorization header, got %s", output)
	}
	if strings.Contains(output, "Connection:") {
		t.Fatalf("hop-by-hop header should be hidden, got %s", output)
	}
	if !strings.Contains(output, "POST /users?page=2 HTTP/1.1") {
		t.Fatalf("request line missing, got %s", output)
	}
	if !strings.Contains(output, "hello body") {
		t.Fatalf("body missing, got %s", output)
	}
}

func TestConsolePrinter_JSONPretty(t *testing.T) {
	cfg := &config.OutputConfig{
		Verbose:  true,
		BodyView: config.BodyViewConfig{Enable: true, PrettyJSON: true},
	}
	p, buf := newTestConsole(t, cfg)

	if err := p.PrintRecorded(recordedEvent("application/json", []byte(`{"foo":"bar","nested":{"a":1}}`))); err != nil {
		t.Fatalf("print recorded failed: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"foo\": \"bar\"") {
		t.Fatalf("expected pretty JSON output, got %s", buf.String())
	}
}

func TestConsolePrinter_FormTable(t *testing.T) {
	cfg := &config.OutputConfig{
		Verbose:  true,
		BodyView: config.BodyViewConfig{Enable: true, Form: true},
	}
	p, buf := newTestConsole(t, cfg)

	if err := p.PrintRecorded(recordedEvent("application/x-www-form-urlencoded", []byte("foo=bar&foo=baz&bar=baz"))); err != nil {
		t.Fatalf("print recorded failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Form data:") || !strings.Contains(output, "foo │ bar, baz") {
		t.Fatalf("expected form table output, got %s", output)
	}
}

func TestConsolePrinter_TruncationNotice(t *testing.T) {
	cfg := &config.OutputConfig{
		Verbose:  true,
		BodyView: config.BodyViewConfig{Enable: true, MaxPreviewBytes: 8},
	}
	p, buf := newTestConsole(t, cfg)

	if err := p.PrintRecorded(recordedEvent("text/plain", []byte("0123456789abcdef"))); err != nil {
		t.Fatalf("print recorded failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "[Body truncated to 8 B of 16 B]") {
		t.Fatalf("expected truncation notice, got %s", output)
	}
	if strings.Contains(output, "abcdef") {
		t.Fatalf("unexpected full body output when preview limit active")
	}
}

func TestConsolePrinter_BinaryNotice(t *testing.T) {
	p, buf := newTestConsole(t, &config.OutputConfig{Verbose: true})

	if err := p.PrintRecorded(recordedEvent("application/octet-stream", []byte{0x00, 0x01, 0x02, 0x03})); err != nil {
		t.Fatalf("print recorded failed: %v", err)
	}
	if !strings.Contains(buf.String(), "[Binary Body: application/octet-stream, 4 B. Content skipped.]") {
		t.Fatalf("expected binary notice, got %s", buf.String())
	}
}

func TestConsolePrinter_PrintResult(t *testing.T) {
	p, buf := newTestConsole(t, nil)

	results := []*Result{
		{Method: "GET", URL: "http://api/ok", Passed: true},
		{Method: "GET", URL: "http://api/bad"},
		{Method: "PUT", URL: "http://api/changed", Passed: true, Overridden: true},
	}
	for _, res := range results {
		if err := p.PrintResult(res); err != nil {
			t.Fatalf("print result failed: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "✓ GET") || !strings.Contains(lines[0], "http://api/ok") {
		t.Fatalf("unexpected pass line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "× GET") {
		t.Fatalf("unexpected fail line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "↻ PUT") {
		t.Fatalf("unexpected override line %q", lines[2])
	}
}

func TestConsolePrinter_PrintFailure(t *testing.T) {
	p, buf := newTestConsole(t, nil)

	f := &Failure{
		File:           "users.json",
		Index:          0,
		Method:         "GET",
		URL:            "http://api/users/1",
		ExpectedStatus: 200,
		ActualStatus:   500,
		Changes:        `~ $.name: "Ann" -> "Bob"`,
		Diff:           "--- Expected\n+++ Actual\n@@ -1 +1 @@\n-Ann\n+Bob\n",
	}
	if err := p.PrintFailure(f); err != nil {
		t.Fatalf("print failure failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"Mismatch in users.json, request #1: GET http://api/users/1",
		"Status: expected 200, got 500",
		`  ~ $.name: "Ann" -> "Bob"`,
		"  -Ann",
		"  +Bob",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q: %s", want, output)
		}
	}
}

func TestConsolePrinter_PrintFailureBody(t *testing.T) {
	p, buf := newTestConsole(t, nil)

	f := &Failure{
		Method:         "GET",
		URL:            "http://api/raw",
		ExpectedStatus: 200,
		ActualStatus:   200,
		ContentType:    "text/plain",
		ActualBody:     []byte("raw text"),
	}
	if err := p.PrintFailure(f); err != nil {
		t.Fatalf("print failure failed: %v", err)
	}
	output := buf.String()
	if strings.Contains(output, "Status:") {
		t.Fatalf("matching status should not be reported, got %s", output)
	}
	if !strings.Contains(output, "Actual body:\nraw text") {
		t.Fatalf("expected actual body, got %s", output)
	}
}

func TestConsolePrinter_PrintSummary(t *testing.T) {
	p, buf := newTestConsole(t, nil)

	if err := p.PrintSummary(&Summary{File: "a.json", Total: 3, Passed: 3, Overridden: 1}); err != nil {
		t.Fatalf("print summary failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "PASS a.json: 3/3 passed, 1 overridden") {
		t.Fatalf("unexpected summary %q", buf.String())
	}

	buf.Reset()
	if err := p.PrintSummary(&Summary{File: "b.json", Total: 2, Passed: 1, Failed: 1, Error: "boom"}); err != nil {
		t.Fatalf("print summary failed: %v", err)
	}
	output := buf.String()
	if !strings.HasPrefix(output, "FAIL b.json: 1/2 passed, 1 failed") || !strings.Contains(output, "  boom") {
		t.Fatalf("unexpected summary %q", output)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("alpha beta gamma delta", 11)
	if len(lines) != 2 || lines[0] != "alpha beta" || lines[1] != "gamma delta" {
		t.Fatalf("unexpected wrap %q", lines)
	}
	if got := wrapText("", 10); len(got) != 1 {
		t.Fatalf("empty text should produce one line, got %q", got)
	}
}
