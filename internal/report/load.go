package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationError reports a report file that cannot be used.
type ValidationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid report %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid report %s: %s", e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Load reads and validates a report file.
func Load(path string) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ValidationError{Path: path, Reason: "file does not exist"}
		}
		return nil, &ValidationError{Path: path, Reason: "cannot stat file", Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ValidationError{Path: path, Reason: "not a regular file"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: "cannot read file", Err: err}
	}
	r, err := Parse(data)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Path = path
			return nil, verr
		}
		return nil, &ValidationError{Path: path, Reason: "not a JSON file", Err: err}
	}
	return r, nil
}

// Parse decodes and validates report bytes.
func Parse(data []byte) (*Report, error) {
	if !json.Valid(data) {
		return nil, errors.New("malformed JSON")
	}
	var raw any
	if err := decode(data, &raw); err != nil {
		return nil, err
	}
	if reason := validate(raw); reason != "" {
		return nil, &ValidationError{Reason: reason}
	}
	var r Report
	if err := decode(data, &r); err != nil {
		return nil, &ValidationError{Reason: "unexpected field type", Err: err}
	}
	if r.Requests == nil {
		r.Requests = []*Exchange{}
	}
	return &r, nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func validate(raw any) string {
	top, ok := raw.(map[string]any)
	if !ok {
		return "top level must be an object"
	}
	if _, ok := top["baseUrl"].(string); !ok {
		return "baseUrl must be a string"
	}
	requests, ok := top["requests"].([]any)
	if !ok {
		return "requests must be an array"
	}
	for i, item := range requests {
		ex, ok := item.(map[string]any)
		if !ok {
			return fmt.Sprintf("requests[%d] must be an object", i)
		}
		if method, ok := ex["method"].(string); !ok || method == "" {
			return fmt.Sprintf("requests[%d].method must be a non-empty string", i)
		}
		if url, ok := ex["url"].(string); !ok || !strings.HasPrefix(url, "/") {
			return fmt.Sprintf("requests[%d].url must be a string starting with /", i)
		}
		expected, ok := ex["expectedResult"].(map[string]any)
		if !ok {
			return fmt.Sprintf("requests[%d].expectedResult must be an object", i)
		}
		code, ok := expected["statusCode"].(json.Number)
		if !ok {
			return fmt.Sprintf("requests[%d].expectedResult.statusCode must be a number", i)
		}
		n, err := code.Int64()
		if err != nil || n < 100 || n > 599 {
			return fmt.Sprintf("requests[%d].expectedResult.statusCode must be an integer between 100 and 599", i)
		}
	}
	return ""
}

// Save rewrites the report at path through a temporary file in the same
// directory.
func Save(path string, r *Report) error {
	if r.Requests == nil {
		r.Requests = []*Exchange{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

var (
	camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
	separators    = regexp.MustCompile(`[\s_]+`)
)

// KebabCase converts camelCase, spaces and underscores to kebab-case.
func KebabCase(s string) string {
	s = camelBoundary.ReplaceAllString(s, "$1-$2")
	s = separators.ReplaceAllString(s, "-")
	return strings.ToLower(s)
}
