// Package diff compares decoded JSON values and reports where they differ.
//
// Values are the shapes produced by encoding/json: map[string]any, []any,
// string, bool, nil and numbers as json.Number or float64.
package diff

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Kind classifies a single change.
type Kind string

const (
	Added   Kind = "added"
	Removed Kind = "removed"
	Changed Kind = "changed"
)

// Change is one differing leaf. Added means the value is only present in
// the actual side, Removed means it is only present in the expected side.
type Change struct {
	Path     string `json:"path"`
	Kind     Kind   `json:"kind"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
}

// Result holds every change found by Compare.
type Result struct {
	Changes []Change `json:"changes"`
}

// String renders one line per change.
func (r *Result) String() string {
	if r == nil || len(r.Changes) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range r.Changes {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch c.Kind {
		case Added:
			fmt.Fprintf(&b, "+ %s: %s", c.Path, compact(c.Actual))
		case Removed:
			fmt.Fprintf(&b, "- %s: %s", c.Path, compact(c.Expected))
		default:
			fmt.Fprintf(&b, "~ %s: %s -> %s", c.Path, compact(c.Expected), compact(c.Actual))
		}
	}
	return b.String()
}

// Compare reports the differences between actual and expected after
// removing every property named in ignored, at any depth, from both.
// It returns nil when the values are equal.
func Compare(actual, expected any, ignored []string) *Result {
	if len(ignored) > 0 {
		set := make(map[string]struct{}, len(ignored))
		for _, name := range ignored {
			set[name] = struct{}{}
		}
		actual = strip(actual, set)
		expected = strip(expected, set)
	}

	var changes []Change
	walk("$", expected, actual, &changes)
	if len(changes) == 0 {
		return nil
	}
	return &Result{Changes: changes}
}

// Strip returns a copy of v without the named properties at any depth.
func Strip(v any, ignored []string) any {
	if len(ignored) == 0 {
		return v
	}
	set := make(map[string]struct{}, len(ignored))
	for _, name := range ignored {
		set[name] = struct{}{}
	}
	return strip(v, set)
}

func strip(v any, ignored map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if _, skip := ignored[k]; skip {
				continue
			}
			out[k] = strip(val, ignored)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = strip(val, ignored)
		}
		return out
	default:
		return v
	}
}

func walk(path string, expected, actual any, changes *[]Change) {
	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			*changes = append(*changes, Change{Path: path, Kind: Changed, Expected: expected, Actual: actual})
			return
		}
		for _, k := range unionKeys(e, a) {
			ev, inE := e[k]
			av, inA := a[k]
			child := path + "." + k
			switch {
			case inE && !inA:
				*changes = append(*changes, Change{Path: child, Kind: Removed, Expected: ev})
			case !inE && inA:
				*changes = append(*changes, Change{Path: child, Kind: Added, Actual: av})
			default:
				walk(child, ev, av, changes)
			}
		}
	case []any:
		a, ok := actual.([]any)
		if !ok {
			*changes = append(*changes, Change{Path: path, Kind: Changed, Expected: expected, Actual: actual})
			return
		}
		n := len(e)
		if len(a) > n {
			n = len(a)
		}
		for i := 0; i < n; i++ {
			child := path + "[" + strconv.Itoa(i) + "]"
			switch {
			case i >= len(a):
				*changes = append(*changes, Change{Path: child, Kind: Removed, Expected: e[i]})
			case i >= len(e):
				*changes = append(*changes, Change{Path: child, Kind: Added, Actual: a[i]})
			default:
				walk(child, e[i], a[i], changes)
			}
		}
	default:
		if !scalarEqual(expected, actual) {
			*changes = append(*changes, Change{Path: path, Kind: Changed, Expected: expected, Actual: actual})
		}
	}
}

func unionKeys(a, b map[string]any) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func scalarEqual(a, b any) bool {
	an, aNum := number(a)
	bn, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && an.Cmp(bn) == 0
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case map[string]any, []any:
		return false
	default:
		return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
	}
}

func number(v any) (*big.Float, bool) {
	var s string
	switch n := v.(type) {
	case json.Number:
		s = n.String()
	case float64:
		return big.NewFloat(n), true
	case float32:
		return big.NewFloat(float64(n)), true
	case int:
		return new(big.Float).SetInt64(int64(n)), true
	case int64:
		return new(big.Float).SetInt64(n), true
	default:
		return nil, false
	}
	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil {
		return nil, false
	}
	return f, true
}

// Unified renders a unified diff of the pretty-printed values.
func Unified(expected, actual any) string {
	exp := pretty(expected)
	act := pretty(actual)
	if exp == act {
		return ""
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Sprintf("Expected:\n%s\n\nActual:\n%s", exp, act)
	}
	return out
}

// Pretty renders v as indented JSON. Strings are returned unchanged.
func Pretty(v any) string {
	return pretty(v)
}

func pretty(v any) string {
	if v == nil {
		return "<absent>"
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b) + "\n"
}

func compact(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
