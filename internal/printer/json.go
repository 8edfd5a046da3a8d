package printer

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/funnyzak/reqtape/internal/logger"
)

// JSONPrinter 以 JSON 行输出事件
type JSONPrinter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	logger  logger.Logger
}

// NewJSONPrinter 创建 JSON 输出器
func NewJSONPrinter(out io.Writer, log logger.Logger) *JSONPrinter {
	if out == nil {
		out = os.Stdout
	}
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)
	return &JSONPrinter{encoder: encoder, logger: log}
}

type jsonEnvelope struct {
	Type     string      `json:"type"`
	ID       uint64      `json:"id"`
	Data     interface{} `json:"data"`
	BodyText string      `json:"body_text,omitempty"`
}

// PrintRecorded implements Printer
func (p *JSONPrinter) PrintRecorded(ev *Recorded) error {
	env := jsonEnvelope{Type: "recorded", Data: ev}
	if ev.Request != nil && !ev.Request.IsBinary {
		env.BodyText = bodyText(ev.Request.Body)
	}
	return p.emit(env)
}

// PrintResult implements Printer
func (p *JSONPrinter) PrintResult(res *Result) error {
	return p.emit(jsonEnvelope{Type: "result", Data: res})
}

// PrintFailure implements Printer
func (p *JSONPrinter) PrintFailure(f *Failure) error {
	return p.emit(jsonEnvelope{Type: "failure", Data: f, BodyText: bodyText(f.ActualBody)})
}

// PrintSummary implements Printer
func (p *JSONPrinter) PrintSummary(s *Summary) error {
	return p.emit(jsonEnvelope{Type: "summary", Data: s})
}

func (p *JSONPrinter) emit(env jsonEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	env.ID = nextEventNumber()
	if err := p.encoder.Encode(env); err != nil {
		if p.logger != nil {
			p.logger.Error("Failed to encode event JSON", "type", env.Type, "error", err)
		}
		return err
	}
	return nil
}

func bodyText(body []byte) string {
	if len(body) == 0 || !utf8.Valid(body) {
		return ""
	}
	return string(body)
}
