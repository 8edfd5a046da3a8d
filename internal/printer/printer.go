package printer

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/pkg/request"
)

// Printer 抽象输出接口
type Printer interface {
	PrintRecorded(*Recorded) error
	PrintResult(*Result) error
	PrintFailure(*Failure) error
	PrintSummary(*Summary) error
}

// Recorded is one exchange relayed by the recording proxy.
type Recorded struct {
	Request  *request.Captured `json:"request" yaml:"request"`
	Status   int               `json:"status" yaml:"status"`
	Size     int               `json:"size" yaml:"size"`
	Duration time.Duration     `json:"duration_ns" yaml:"duration"`
	// Recorded is false when the filters kept the exchange out of the report
	Recorded bool `json:"recorded" yaml:"recorded"`
}

// Result is the outcome of one replayed request.
type Result struct {
	File           string        `json:"file" yaml:"file"`
	Index          int           `json:"index" yaml:"index"`
	Method         string        `json:"method" yaml:"method"`
	URL            string        `json:"url" yaml:"url"`
	ExpectedStatus int           `json:"expected_status" yaml:"expected_status"`
	ActualStatus   int           `json:"actual_status" yaml:"actual_status"`
	Passed         bool          `json:"passed" yaml:"passed"`
	Overridden     bool          `json:"overridden,omitempty" yaml:"overridden,omitempty"`
	Duration       time.Duration `json:"duration_ns" yaml:"duration"`
}

// Failure details a replayed request that did not match.
type Failure struct {
	File           string `json:"file" yaml:"file"`
	Index          int    `json:"index" yaml:"index"`
	Method         string `json:"method" yaml:"method"`
	URL            string `json:"url" yaml:"url"`
	ExpectedStatus int    `json:"expected_status" yaml:"expected_status"`
	ActualStatus   int    `json:"actual_status" yaml:"actual_status"`
	// Changes lists differing paths, one per line
	Changes string `json:"changes,omitempty" yaml:"changes,omitempty"`
	// Diff is a unified diff of expected and actual bodies
	Diff        string `json:"diff,omitempty" yaml:"diff,omitempty"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	ActualBody  []byte `json:"-" yaml:"-"`
}

// Summary closes the output for one report file.
type Summary struct {
	File       string        `json:"file" yaml:"file"`
	Total      int           `json:"total" yaml:"total"`
	Passed     int           `json:"passed" yaml:"passed"`
	Failed     int           `json:"failed" yaml:"failed"`
	Overridden int           `json:"overridden" yaml:"overridden"`
	Duration   time.Duration `json:"duration_ns" yaml:"duration"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

var globalEventCounter uint64

func nextEventNumber() uint64 {
	return atomic.AddUint64(&globalEventCounter, 1)
}

// New 创建指定模式的 Printer
func New(mode string, log logger.Logger, cfg *config.OutputConfig) Printer {
	return NewWithWriter(mode, os.Stdout, log, cfg)
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(mode string, out io.Writer, log logger.Logger, cfg *config.OutputConfig) Printer {
	if cfg == nil {
		cfg = &config.OutputConfig{}
	}
	var p Printer
	switch mode {
	case "json":
		p = NewJSONPrinter(out, log)
	case "yaml":
		p = NewYAMLPrinter(out, log)
	default:
		p = NewConsolePrinter(out, log, cfg)
	}
	if cfg.Silence {
		return silent{Printer: p}
	}
	return p
}

// silent drops per-request lines but keeps failures and summaries
type silent struct {
	Printer
}

func (silent) PrintRecorded(*Recorded) error { return nil }
func (silent) PrintResult(*Result) error     { return nil }
