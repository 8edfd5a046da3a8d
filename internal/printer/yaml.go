package printer

import (
	"io"
	"os"
	"sync"

	"github.com/funnyzak/reqtape/internal/logger"
	"gopkg.in/yaml.v3"
)

// YAMLPrinter writes one YAML document per event
type YAMLPrinter struct {
	mu      sync.Mutex
	encoder *yaml.Encoder
	logger  logger.Logger
}

// NewYAMLPrinter 创建 YAML 输出器
func NewYAMLPrinter(out io.Writer, log logger.Logger) *YAMLPrinter {
	if out == nil {
		out = os.Stdout
	}
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	return &YAMLPrinter{encoder: encoder, logger: log}
}

type yamlEnvelope struct {
	Type     string      `yaml:"type"`
	ID       uint64      `yaml:"id"`
	Data     interface{} `yaml:"data"`
	BodyText string      `yaml:"body_text,omitempty"`
}

// PrintRecorded implements Printer
func (p *YAMLPrinter) PrintRecorded(ev *Recorded) error {
	env := yamlEnvelope{Type: "recorded", Data: ev}
	if ev.Request != nil && !ev.Request.IsBinary {
		env.BodyText = bodyText(ev.Request.Body)
	}
	return p.emit(env)
}

// PrintResult implements Printer
func (p *YAMLPrinter) PrintResult(res *Result) error {
	return p.emit(yamlEnvelope{Type: "result", Data: res})
}

// PrintFailure implements Printer
func (p *YAMLPrinter) PrintFailure(f *Failure) error {
	return p.emit(yamlEnvelope{Type: "failure", Data: f, BodyText: bodyText(f.ActualBody)})
}

// PrintSummary implements Printer
func (p *YAMLPrinter) PrintSummary(s *Summary) error {
	return p.emit(yamlEnvelope{Type: "summary", Data: s})
}

func (p *YAMLPrinter) emit(env yamlEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	env.ID = nextEventNumber()
	if err := p.encoder.Encode(env); err != nil {
		if p.logger != nil {
			p.logger.Error("Failed to encode event YAML", "type", env.Type, "error", err)
		}
		return err
	}
	return nil
}
