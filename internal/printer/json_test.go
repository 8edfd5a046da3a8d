package printer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/pkg/request"
	"gopkg.in/yaml.v3"
)

func TestJSONPrinter_PrintRecorded(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewJSONPrinter(buf, noopLogger{})

	ev := &Recorded{
		Request: &request.Captured{
			Method:    "POST",
			Path:      "/demo",
			Timestamp: time.Now(),
			Headers:   http.Header{"Content-Type": {"application/json"}},
			Body:      []byte("{}"),
		},
		Status:   200,
		Recorded: true,
	}
	if err := p.PrintRecorded(ev); err != nil {
		t.Fatalf("print recorded failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["type"] != "recorded" {
		t.Fatalf("unexpected type: %v", decoded["type"])
	}
	if decoded["body_text"] != "{}" {
		t.Fatalf("unexpected body text: %v", decoded["body_text"])
	}
	data, ok := decoded["data"].(map[string]interface{})
	if !ok || data["status"] != float64(200) {
		t.Fatalf("unexpected data: %v", decoded["data"])
	}
}

func TestJSONPrinter_EventsAreLines(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewJSONPrinter(buf, noopLogger{})

	_ = p.PrintResult(&Result{File: "a.json", Method: "GET", URL: "http://x/<a>", Passed: true})
	_ = p.PrintFailure(&Failure{File: "a.json", Changes: "- $.id: 1", ActualBody: []byte{0xff}})
	_ = p.PrintSummary(&Summary{File: "a.json", Total: 2, Passed: 1, Failed: 1})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "http://x/<a>") {
		t.Fatalf("html should not be escaped: %s", lines[0])
	}
	var ids []float64
	for i, want := range []string{"result", "failure", "summary"} {
		var env map[string]interface{}
		if err := json.Unmarshal([]byte(lines[i]), &env); err != nil {
			t.Fatalf("line %d invalid json: %v", i, err)
		}
		if env["type"] != want {
			t.Fatalf("line %d: expected type %s, got %v", i, want, env["type"])
		}
		if _, ok := env["body_text"]; ok {
			t.Fatalf("line %d: unexpected body text", i)
		}
		ids = append(ids, env["id"].(float64))
	}
	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Fatalf("event ids should increase: %v", ids)
	}
}

func TestYAMLPrinter_Documents(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewYAMLPrinter(buf, noopLogger{})

	if err := p.PrintResult(&Result{File: "a.json", Method: "GET", URL: "http://x/", Passed: true}); err != nil {
		t.Fatalf("print result failed: %v", err)
	}
	if err := p.PrintSummary(&Summary{File: "a.json", Total: 1, Passed: 1}); err != nil {
		t.Fatalf("print summary failed: %v", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf.Bytes()))
	var first, second struct {
		Type string                 `yaml:"type"`
		Data map[string]interface{} `yaml:"data"`
	}
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode first document: %v", err)
	}
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("decode second document: %v", err)
	}
	if first.Type != "result" || first.Data["passed"] != true {
		t.Fatalf("unexpected first document %#v", first)
	}
	if second.Type != "summary" || second.Data["total"] != 1 {
		t.Fatalf("unexpected second document %#v", second)
	}
}

func TestNewWithWriter_Modes(t *testing.T) {
	buf := &bytes.Buffer{}
	if _, ok := NewWithWriter("json", buf, noopLogger{}, nil).(*JSONPrinter); !ok {
		t.Fatal("json mode should build a JSONPrinter")
	}
	if _, ok := NewWithWriter("yaml", buf, noopLogger{}, nil).(*YAMLPrinter); !ok {
		t.Fatal("yaml mode should build a YAMLPrinter")
	}
	if _, ok := NewWithWriter("console", buf, noopLogger{}, nil).(*ConsolePrinter); !ok {
		t.Fatal("console mode should build a ConsolePrinter")
	}

	p := NewWithWriter("json", buf, noopLogger{}, &config.OutputConfig{Silence: true})
	_ = p.PrintResult(&Result{Passed: true})
	_ = p.PrintRecorded(&Recorded{Request: &request.Captured{}})
	if buf.Len() != 0 {
		t.Fatalf("silence should drop per-request events, got %s", buf.String())
	}
	_ = p.PrintSummary(&Summary{Total: 1})
	if !strings.Contains(buf.String(), `"type":"summary"`) {
		t.Fatalf("silence should keep summaries, got %s", buf.String())
	}
}
