package printer

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/internal/logger"
	"golang.org/x/term"
)

// ColorScheme color scheme
type ColorScheme struct {
	MethodGET    *color.Color
	MethodPOST   *color.Color
	MethodPUT    *color.Color
	MethodDELETE *color.Color
	MethodPATCH  *color.Color
	HeaderKey    *color.Color
	HeaderValue  *color.Color
	Separator    *color.Color
	Muted        *color.Color
	BodyContent  *color.Color
	Notice       *color.Color
	Query        *color.Color
	Pass         *color.Color
	Fail         *color.Color
	Override     *color.Color
	DiffAdd      *color.Color
	DiffRemove   *color.Color
	DiffHunk     *color.Color
}

// NewColorScheme creates a new color scheme
func NewColorScheme() *ColorScheme {
	return &ColorScheme{
		MethodGET:    color.New(color.FgGreen, color.Bold),
		MethodPOST:   color.New(color.FgBlue, color.Bold),
		MethodPUT:    color.New(color.FgYellow, color.Bold),
		MethodDELETE: color.New(color.FgRed, color.Bold),
		MethodPATCH:  color.New(color.FgYellow),
		HeaderKey:    color.New(color.FgCyan),
		HeaderValue:  color.New(color.FgWhite),
		Separator:    color.New(color.FgYellow, color.Bold),
		Muted:        color.New(color.FgHiBlack),
		BodyContent:  color.New(color.FgWhite),
		Notice:       color.New(color.FgHiYellow, color.Bold),
		Query:        color.New(color.FgHiMagenta),
		Pass:         color.New(color.FgGreen, color.Bold),
		Fail:         color.New(color.FgRed, color.Bold),
		Override:     color.New(color.FgMagenta, color.Bold),
		DiffAdd:      color.New(color.FgGreen),
		DiffRemove:   color.New(color.FgRed),
		DiffHunk:     color.New(color.FgCyan),
	}
}

// ConsolePrinter console printer
type ConsolePrinter struct {
	mu          sync.Mutex
	out         io.Writer
	colorScheme *ColorScheme
	logger      logger.Logger
	verbose     bool
	body        *bodyFormatter
}

// NewConsolePrinter creates a new console printer
func NewConsolePrinter(out io.Writer, log logger.Logger, cfg *config.OutputConfig) *ConsolePrinter {
	if cfg == nil {
		cfg = &config.OutputConfig{}
	}
	if out == nil {
		out = os.Stdout
	}
	return &ConsolePrinter{
		out:         out,
		colorScheme: NewColorScheme(),
		logger:      log,
		verbose:     cfg.Verbose,
		body:        newBodyFormatter(&cfg.BodyView, log),
	}
}

// getTerminalWidth gets the current terminal width with fallback
func (p *ConsolePrinter) getTerminalWidth() int {
	if testWidth := os.Getenv("REQTAPE_TEST_WIDTH"); testWidth != "" {
		if width, err := strconv.Atoi(testWidth); err == nil {
			return clampWidth(width)
		}
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	switch {
	case width < 40:
		return 40
	case width > 150:
		return 150
	default:
		return width
	}
}

// PrintRecorded prints one proxied exchange on a single line, followed by
// the raw request when verbose output is on
func (p *ConsolePrinter) PrintRecorded(ev *Recorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := ev.Request
	mark := p.colorScheme.Pass.Sprint("●")
	if !ev.Recorded {
		mark = p.colorScheme.Muted.Sprint("○")
	}
	fmt.Fprintf(p.out, "%s %s %s%s %s %s\n",
		mark,
		p.getMethodColor(data.Method).Sprintf("%-6s", strings.ToUpper(data.Method)),
		p.colorScheme.Muted.Sprint(data.Host),
		p.formatURI(data.Path, data.Query),
		p.statusColor(ev.Status).Sprint(ev.Status),
		p.colorScheme.Muted.Sprintf("(%s, %s)", humanize.Bytes(uint64(ev.Size)), ev.Duration.Round(100_000)),
	)

	if !p.verbose {
		return nil
	}
	width := p.getTerminalWidth()
	p.printRequestLine(data.Method, data.Path, data.Query, data.Proto)
	p.printHeaders(data.Headers, width)
	fmt.Fprintln(p.out)
	p.printBody(data.ContentType, data.Body)
	p.colorScheme.Separator.Fprintln(p.out, p.buildSeparator(width))
	return nil
}

// PrintResult prints one replayed request
func (p *ConsolePrinter) PrintResult(res *Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var mark string
	switch {
	case res.Overridden:
		mark = p.colorScheme.Override.Sprint("↻")
	case res.Passed:
		mark = p.colorScheme.Pass.Sprint("✓")
	default:
		mark = p.colorScheme.Fail.Sprint("×")
	}
	fmt.Fprintf(p.out, "%s %s %s %s\n",
		mark,
		p.getMethodColor(res.Method).Sprintf("%-6s", strings.ToUpper(res.Method)),
		res.URL,
		p.colorScheme.Muted.Sprint(res.Duration.Round(100_000)),
	)
	return nil
}

// PrintFailure prints why a replayed request did not match
func (p *ConsolePrinter) PrintFailure(f *Failure) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	width := p.getTerminalWidth()
	p.colorScheme.Separator.Fprintln(p.out, p.buildSeparator(width))
	p.colorScheme.Fail.Fprintf(p.out, "Mismatch in %s, request #%d: %s %s\n", f.File, f.Index+1, strings.ToUpper(f.Method), f.URL)
	if f.ExpectedStatus != f.ActualStatus {
		fmt.Fprintf(p.out, "Status: expected %s, got %s\n",
			p.statusColor(f.ExpectedStatus).Sprint(f.ExpectedStatus),
			p.colorScheme.Fail.Sprint(f.ActualStatus))
	}
	if f.Changes != "" {
		fmt.Fprintln(p.out, "Changes:")
		for _, line := range strings.Split(f.Changes, "\n") {
			fmt.Fprintln(p.out, "  "+line)
		}
	}
	if f.Diff != "" {
		p.printDiff(f.Diff)
	} else if len(f.ActualBody) > 0 {
		fmt.Fprintln(p.out, "Actual body:")
		p.printBody(f.ContentType, f.ActualBody)
	}
	p.colorScheme.Separator.Fprintln(p.out, p.buildSeparator(width))
	return nil
}

// PrintSummary prints the totals for one report file
func (p *ConsolePrinter) PrintSummary(s *Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := p.colorScheme.Pass.Sprint("PASS")
	if s.Failed > 0 || s.Error != "" {
		status = p.colorScheme.Fail.Sprint("FAIL")
	}
	fmt.Fprintf(p.out, "%s %s: %d/%d passed", status, s.File, s.Passed, s.Total)
	if s.Overridden > 0 {
		fmt.Fprintf(p.out, ", %s", p.colorScheme.Override.Sprintf("%d overridden", s.Overridden))
	}
	if s.Failed > 0 {
		fmt.Fprintf(p.out, ", %s", p.colorScheme.Fail.Sprintf("%d failed", s.Failed))
	}
	fmt.Fprintf(p.out, " %s\n", p.colorScheme.Muted.Sprint(s.Duration.Round(1_000_000)))
	if s.Error != "" {
		p.colorScheme.Fail.Fprintln(p.out, "  "+s.Error)
	}
	return nil
}

func (p *ConsolePrinter) printDiff(diff string) {
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "@@"):
			p.colorScheme.DiffHunk.Fprintln(p.out, "  "+line)
		case strings.HasPrefix(line, "-"):
			p.colorScheme.DiffRemove.Fprintln(p.out, "  "+line)
		case strings.HasPrefix(line, "+"):
			p.colorScheme.DiffAdd.Fprintln(p.out, "  "+line)
		default:
			p.colorScheme.Muted.Fprintln(p.out, "  "+line)
		}
	}
}

func (p *ConsolePrinter) buildSeparator(width int) string {
	return strings.Repeat("-", clampWidth(width))
}

func (p *ConsolePrinter) formatURI(path, query string) string {
	if path == "" {
		path = "/"
	}
	if query == "" {
		return path
	}
	return path + "?" + p.colorScheme.Query.Sprint(query)
}

func (p *ConsolePrinter) printRequestLine(method, path, query, proto string) {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	p.getMethodColor(method).Fprintf(p.out, "%s ", strings.ToUpper(method))
	fmt.Fprintf(p.out, "%s %s\n", p.formatURI(path, query), proto)
}

func (p *ConsolePrinter) printHeaders(headers http.Header, width int) {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		if !p.shouldSkipHeader(strings.ToLower(key)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		displayValue := strings.Join(headers[key], ", ")
		if p.isSensitiveHeader(strings.ToLower(key)) {
			displayValue = "[REDACTED]"
		}
		p.printHeaderLine(key, displayValue, width)
	}
}

func (p *ConsolePrinter) printHeaderLine(key, value string, width int) {
	prefix := key + ": "
	available := width - utf8.RuneCountInString(prefix)
	if available < 20 {
		available = 20
	}

	wrapped := wrapText(value, available)
	p.colorScheme.HeaderKey.Fprint(p.out, prefix)
	p.colorScheme.HeaderValue.Fprintln(p.out, wrapped[0])

	indent := strings.Repeat(" ", utf8.RuneCountInString(prefix))
	for _, line := range wrapped[1:] {
		fmt.Fprint(p.out, indent)
		p.colorScheme.HeaderValue.Fprintln(p.out, line)
	}
}

func (p *ConsolePrinter) printBody(contentType string, body []byte) {
	if len(body) == 0 {
		p.colorScheme.Muted.Fprintln(p.out, "[Empty Body]")
		return
	}
	formatted := p.body.Format(contentType, body)
	for _, notice := range formatted.Notices {
		p.colorScheme.Notice.Fprintln(p.out, notice)
	}
	for _, line := range strings.Split(formatted.Text, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if trimmed == "" {
			continue
		}
		p.colorScheme.BodyContent.Fprintln(p.out, trimmed)
	}
}

// wrapText wraps text to fit within the specified width, preserving words
func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || maxWidth <= 0 {
		return []string{text}
	}

	var lines []string
	currentLine := words[0]
	currentWidth := utf8.RuneCountInString(currentLine)
	for _, word := range words[1:] {
		wordWidth := utf8.RuneCountInString(word)
		if currentWidth+1+wordWidth > maxWidth {
			lines = append(lines, currentLine)
			currentLine = word
			currentWidth = wordWidth
			continue
		}
		currentLine += " " + word
		currentWidth += 1 + wordWidth
	}
	return append(lines, currentLine)
}

// getMethodColor gets the corresponding color based on HTTP method
func (p *ConsolePrinter) getMethodColor(method string) *color.Color {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return p.colorScheme.MethodGET
	case http.MethodPost:
		return p.colorScheme.MethodPOST
	case http.MethodPut:
		return p.colorScheme.MethodPUT
	case http.MethodDelete:
		return p.colorScheme.MethodDELETE
	case http.MethodPatch:
		return p.colorScheme.MethodPATCH
	default:
		return color.New(color.FgWhite, color.Bold)
	}
}

func (p *ConsolePrinter) statusColor(status int) *color.Color {
	switch {
	case status >= 500:
		return p.colorScheme.Fail
	case status >= 400:
		return p.colorScheme.Notice
	default:
		return p.colorScheme.Pass
	}
}

// isSensitiveHeader checks if it's sensitive header information
func (p *ConsolePrinter) isSensitiveHeader(key string) bool {
	switch key {
	case "authorization", "cookie", "set-cookie", "x-api-key", "x-auth-token", "x-csrf-token", "x-session-token":
		return true
	}
	return false
}

// shouldSkipHeader checks if header should be skipped from display
func (p *ConsolePrinter) shouldSkipHeader(key string) bool {
	switch key {
	case "connection", "keep-alive", "proxy-connection", "te", "trailer", "transfer-encoding", "upgrade":
		return true
	}
	return false
}
