package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funnyzak/reqtape/internal/diff"
	"github.com/funnyzak/reqtape/internal/report"
)

// ErrOverrideRejected is returned when the operator declines to accept an
// actual response. It wraps the *AssertionError that prompted the question.
var ErrOverrideRejected = errors.New("override rejected by operator")

// AssertionError describes a replayed request whose response did not match
// the recorded one.
type AssertionError struct {
	// Index is the zero-based position of the exchange in the report
	Index          int
	Exchange       *report.Exchange
	ExpectedStatus int
	ActualStatus   int
	ActualBody     any
	ActualHeaders  report.Headers
	// Diff is nil when only the status differs
	Diff *diff.Result
}

func (e *AssertionError) Error() string {
	prefix := fmt.Sprintf("request #%d %s %s", e.Index+1, strings.ToUpper(e.Exchange.Method), e.Exchange.URL)
	if e.StatusMismatch() {
		return fmt.Sprintf("%s: expected status %d, got %d", prefix, e.ExpectedStatus, e.ActualStatus)
	}
	return fmt.Sprintf("%s: response body differs:\n%s", prefix, e.Diff.String())
}

// StatusMismatch reports whether the status codes differ.
func (e *AssertionError) StatusMismatch() bool {
	return e.ExpectedStatus != e.ActualStatus
}

// TransportError is a failure to get any response for a replayed request.
type TransportError struct {
	Index  int
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request #%d %s %s: %v", e.Index+1, strings.ToUpper(e.Method), e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
