// Package replay reissues recorded requests and checks the responses
// against what was recorded.
package replay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/funnyzak/reqtape/internal/diff"
	"github.com/funnyzak/reqtape/internal/forwarder"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/internal/printer"
	"github.com/funnyzak/reqtape/internal/prompt"
	"github.com/funnyzak/reqtape/internal/report"
	"github.com/funnyzak/reqtape/internal/storage"
)

// Debug file names written on each failure when debug is on
const (
	ExpectedDebugFile = "expected.json"
	ActualDebugFile   = "actual.json"
)

const overrideQuestion = "Accept the actual response as the new expected result?"

// Client sends one buffered request
type Client interface {
	Do(ctx context.Context, out *forwarder.Outbound) (*forwarder.Response, error)
}

// Options replay settings
type Options struct {
	// BaseURL replaces the report's baseUrl when set
	BaseURL           string
	IgnoredProperties []string
	Interactive       bool
	Debug             bool
	DebugDir          string
}

// Deps are optional collaborators of the runner
type Deps struct {
	Confirmer prompt.Confirmer
	Printer   printer.Printer
	Store     storage.Store
	Logger    logger.Logger
	Now       func() time.Time
}

// Outcome summarizes the replay of one report
type Outcome struct {
	File       string
	Total      int
	Passed     int
	Failed     int
	Overridden int
	// Dirty is set once an override changed the report in memory
	Dirty    bool
	Duration time.Duration
	Results  []*storage.Result
}

// Runner replays reports one request at a time
type Runner struct {
	client Client
	opts   Options
	deps   Deps
}

// NewRunner creates a runner. A nil Confirmer rejects every override.
func NewRunner(client Client, opts Options, deps Deps) *Runner {
	if deps.Confirmer == nil {
		deps.Confirmer = prompt.Static(prompt.AnswerNo)
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.DebugDir == "" {
		opts.DebugDir = "."
	}
	return &Runner{client: client, opts: opts, deps: deps}
}

// RunFile loads the report at path, replays it and writes it back when an
// override changed it. Overrides are saved even when the run then fails.
func (r *Runner) RunFile(ctx context.Context, path string) (*Outcome, error) {
	rep, err := report.Load(path)
	if err != nil {
		return nil, err
	}

	outcome, runErr := r.run(ctx, path, rep)
	if outcome.Dirty {
		if err := report.Save(path, rep); err != nil {
			return outcome, errors.Join(runErr, fmt.Errorf("save overrides: %w", err))
		}
		r.deps.Logger.Info("Report updated with accepted overrides",
			"file", path,
			"overrides", outcome.Overridden,
		)
	}
	return outcome, runErr
}

// Run replays rep in stored order. It stops at the first failure that is not
// overridden and returns it with the outcome so far.
func (r *Runner) Run(ctx context.Context, rep *report.Report) (*Outcome, error) {
	return r.run(ctx, "", rep)
}

func (r *Runner) run(ctx context.Context, file string, rep *report.Report) (outcome *Outcome, err error) {
	started := r.deps.Now()
	outcome = &Outcome{File: file, Total: len(rep.Requests)}
	baseURL := strings.TrimRight(r.baseURL(rep), "/")

	defer func() {
		outcome.Duration = r.deps.Now().Sub(started)
		r.finish(outcome, baseURL, started, err)
	}()

	if baseURL == "" {
		return outcome, errors.New("no base URL: the report has none and no override was given")
	}

	for i, ex := range rep.Requests {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		if err := r.replayOne(ctx, outcome, baseURL, i, ex); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

func (r *Runner) baseURL(rep *report.Report) string {
	if r.opts.BaseURL != "" {
		return r.opts.BaseURL
	}
	return rep.BaseURL
}

func (r *Runner) replayOne(ctx context.Context, outcome *Outcome, baseURL string, index int, ex *report.Exchange) error {
	body, err := report.EncodeBody(ex.Body)
	if err != nil {
		return fmt.Errorf("request #%d: encode body: %w", index+1, err)
	}

	out := &forwarder.Outbound{
		Method: strings.ToUpper(ex.Method),
		URL:    baseURL + ex.URL,
		Header: r.buildHeaders(index, ex.Headers),
		Body:   body,
	}
	resp, err := r.client.Do(ctx, out)
	if err != nil {
		return &TransportError{Index: index, Method: out.Method, URL: out.URL, Err: err}
	}

	actualBody := report.ParseEncodedBody(resp.Body, resp.Header.Get("Content-Encoding"))
	result := &storage.Result{
		Index:          index,
		Method:         out.Method,
		URL:            ex.URL,
		ExpectedStatus: ex.ExpectedResult.StatusCode,
		ActualStatus:   resp.StatusCode,
	}
	outcome.Results = append(outcome.Results, result)

	assertion := r.check(index, ex, resp, actualBody)
	if assertion == nil {
		result.Passed = true
		outcome.Passed++
		r.printResult(outcome.File, index, out, ex, resp, true, false)
		return nil
	}
	result.Diff = assertion.Error()

	r.writeDebugFiles(ex.ExpectedResult.Body, actualBody)
	r.printFailure(outcome.File, out, assertion, resp)

	if !r.opts.Interactive {
		outcome.Failed++
		r.printResult(outcome.File, index, out, ex, resp, false, false)
		return assertion
	}

	answer, err := r.deps.Confirmer.Confirm(overrideQuestion)
	if err != nil {
		r.deps.Logger.Warn("Override prompt failed, treating as rejection", "error", err)
		answer = prompt.AnswerNo
	}
	if answer != prompt.AnswerYes {
		outcome.Failed++
		r.printResult(outcome.File, index, out, ex, resp, false, false)
		return fmt.Errorf("%w: %w", ErrOverrideRejected, assertion)
	}

	ex.ExpectedResult = report.ExpectedResult{
		StatusCode: resp.StatusCode,
		Headers:    report.HeadersFrom(resp.Header),
		Body:       actualBody,
	}
	outcome.Dirty = true
	outcome.Overridden++
	result.Passed = true
	r.printResult(outcome.File, index, out, ex, resp, true, true)
	return nil
}

// check compares status first and only diffs bodies when the status matches
func (r *Runner) check(index int, ex *report.Exchange, resp *forwarder.Response, actualBody any) *AssertionError {
	assertion := &AssertionError{
		Index:          index,
		Exchange:       ex,
		ExpectedStatus: ex.ExpectedResult.StatusCode,
		ActualStatus:   resp.StatusCode,
		ActualBody:     actualBody,
		ActualHeaders:  report.HeadersFrom(resp.Header),
	}
	if assertion.StatusMismatch() {
		return assertion
	}
	if d := diff.Compare(actualBody, ex.ExpectedResult.Body, r.opts.IgnoredProperties); d != nil {
		assertion.Diff = d
		return assertion
	}
	return nil
}

// buildHeaders reapplies recorded headers, dropping Host and anything that
// cannot be sent on the wire
func (r *Runner) buildHeaders(index int, recorded report.Headers) http.Header {
	header := make(http.Header, len(recorded))
	for _, name := range recorded.Names() {
		if strings.EqualFold(name, "host") {
			continue
		}
		if !httpguts.ValidHeaderFieldName(name) {
			r.deps.Logger.Warn("Skipping invalid header name", "request", index+1, "header", name)
			continue
		}
		for _, value := range recorded[name] {
			if !httpguts.ValidHeaderFieldValue(value) {
				r.deps.Logger.Warn("Skipping invalid header value", "request", index+1, "header", name)
				continue
			}
			header.Add(name, value)
		}
	}
	return header
}

func (r *Runner) writeDebugFiles(expected, actual any) {
	if !r.opts.Debug {
		return
	}
	files := map[string]any{
		ExpectedDebugFile: expected,
		ActualDebugFile:   actual,
	}
	for name, body := range files {
		path := filepath.Join(r.opts.DebugDir, name)
		if err := os.WriteFile(path, []byte(diff.Pretty(body)), 0o644); err != nil {
			r.deps.Logger.Error("Failed to write debug file", "path", path, "error", err)
			continue
		}
		r.deps.Logger.Debug("Wrote debug file", "path", path)
	}
}

func (r *Runner) printResult(file string, index int, out *forwarder.Outbound, ex *report.Exchange, resp *forwarder.Response, passed, overridden bool) {
	if r.deps.Printer == nil {
		return
	}
	err := r.deps.Printer.PrintResult(&printer.Result{
		File:           file,
		Index:          index,
		Method:         out.Method,
		URL:            out.URL,
		ExpectedStatus: ex.ExpectedResult.StatusCode,
		ActualStatus:   resp.StatusCode,
		Passed:         passed,
		Overridden:     overridden,
		Duration:       resp.Duration,
	})
	if err != nil {
		r.deps.Logger.Error("Failed to print result", "error", err)
	}
}

func (r *Runner) printFailure(file string, out *forwarder.Outbound, a *AssertionError, resp *forwarder.Response) {
	if r.deps.Printer == nil {
		return
	}
	f := &printer.Failure{
		File:           file,
		Index:          a.Index,
		Method:         out.Method,
		URL:            out.URL,
		ExpectedStatus: a.ExpectedStatus,
		ActualStatus:   a.ActualStatus,
		ContentType:    resp.Header.Get("Content-Type"),
	}
	if a.Diff != nil {
		f.Changes = a.Diff.String()
		f.Diff = diff.Unified(
			diff.Strip(a.Exchange.ExpectedResult.Body, r.opts.IgnoredProperties),
			diff.Strip(a.ActualBody, r.opts.IgnoredProperties),
		)
	} else {
		raw, err := report.Decompress(resp.Body, resp.Header.Get("Content-Encoding"))
		if err != nil {
			raw = resp.Body
		}
		f.ActualBody = raw
	}
	if err := r.deps.Printer.PrintFailure(f); err != nil {
		r.deps.Logger.Error("Failed to print failure", "error", err)
	}
}

// finish prints the summary and records the run in the history store
func (r *Runner) finish(outcome *Outcome, baseURL string, started time.Time, runErr error) {
	if r.deps.Printer != nil {
		summary := &printer.Summary{
			File:       outcome.File,
			Total:      outcome.Total,
			Passed:     outcome.Passed,
			Failed:     outcome.Failed,
			Overridden: outcome.Overridden,
			Duration:   outcome.Duration,
		}
		var assertion *AssertionError
		if runErr != nil && !errors.As(runErr, &assertion) {
			summary.Error = runErr.Error()
		}
		if err := r.deps.Printer.PrintSummary(summary); err != nil {
			r.deps.Logger.Error("Failed to print summary", "error", err)
		}
	}

	if r.deps.Store == nil {
		return
	}
	run := &storage.Run{
		File:       outcome.File,
		StartedAt:  started,
		FinishedAt: started.Add(outcome.Duration),
		BaseURL:    baseURL,
		Passed:     outcome.Passed,
		Failed:     outcome.Failed,
		Overrides:  outcome.Overridden,
		Status:     runStatus(runErr),
		Results:    outcome.Results,
	}
	if err := r.deps.Store.RecordRun(run); err != nil {
		r.deps.Logger.Warn("Failed to record run history", "file", outcome.File, "error", err)
	}
}

func runStatus(err error) string {
	var assertion *AssertionError
	switch {
	case err == nil:
		return storage.StatusPassed
	case errors.Is(err, ErrOverrideRejected):
		return storage.StatusRejected
	case errors.As(err, &assertion):
		return storage.StatusFailed
	default:
		return storage.StatusError
	}
}
