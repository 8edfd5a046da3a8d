// Package report defines the recorded exchange format and reads, writes
// and streams report files.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Report is one recording session.
type Report struct {
	Timestamp string      `json:"timestamp"`
	BaseURL   string      `json:"baseUrl"`
	Requests  []*Exchange `json:"requests"`
}

// Exchange is a recorded request with the response it produced.
type Exchange struct {
	URL            string         `json:"url"`
	Method         string         `json:"method"`
	Headers        Headers        `json:"headers"`
	Body           any            `json:"body,omitempty"`
	ExpectedResult ExpectedResult `json:"expectedResult"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Exchange) UnmarshalJSON(data []byte) error {
	type plain Exchange
	aux := struct {
		*plain
		Body json.RawMessage `json:"body"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	body, err := decodeBody(aux.Body)
	if err != nil {
		return fmt.Errorf("body: %w", err)
	}
	e.Body = body
	return nil
}

// ExpectedResult is the response the replay is compared against.
type ExpectedResult struct {
	StatusCode int     `json:"statusCode"`
	Headers    Headers `json:"headers"`
	Body       any     `json:"body,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ExpectedResult) UnmarshalJSON(data []byte) error {
	type plain ExpectedResult
	aux := struct {
		*plain
		Body json.RawMessage `json:"body"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	body, err := decodeBody(aux.Body)
	if err != nil {
		return fmt.Errorf("expectedResult body: %w", err)
	}
	r.Body = body
	return nil
}

// Null is a body whose payload was the JSON literal null. A nil body means
// there was no payload at all.
type Null struct{}

// MarshalJSON implements json.Marshaler.
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// decodeBody maps a stored body back to its value. An absent key is nil and
// an explicit null is Null.
func decodeBody(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := decode(raw, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return Null{}, nil
	}
	return v, nil
}

// Headers maps lower-cased header names to their values. A single value is
// written as a JSON string and repeated values as an array.
type Headers map[string][]string

// HeadersFrom copies h, lower-casing every name.
func HeadersFrom(h http.Header) Headers {
	out := make(Headers, len(h))
	for name, values := range h {
		key := strings.ToLower(name)
		out[key] = append(out[key], values...)
	}
	return out
}

// Names returns the header names in sorted order.
func (h Headers) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the first value for name.
func (h Headers) Get(name string) string {
	if values := h[strings.ToLower(name)]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// MarshalJSON implements json.Marshaler.
func (h Headers) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h))
	for name, values := range h {
		switch len(values) {
		case 0:
			continue
		case 1:
			out[name] = values[0]
		default:
			out[name] = values
		}
	}
	return marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Headers) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*h = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	out := make(Headers, len(raw))
	for name, value := range raw {
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			out[name] = []string{single}
			continue
		}
		var multi []string
		if err := json.Unmarshal(value, &multi); err != nil {
			return fmt.Errorf("header %q: want string or array of strings", name)
		}
		out[name] = multi
	}
	*h = out
	return nil
}

// ParseBody returns nil for an empty payload, the decoded value for a
// valid JSON document (numbers as json.Number, a bare null as Null) and the
// raw text otherwise.
func ParseBody(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		var v any
		if err := decode(b, &v); err == nil {
			if v == nil {
				return Null{}
			}
			return v
		}
	}
	return string(b)
}

// EncodeBody turns a stored body back into request bytes. A nil body has
// no bytes and a string is sent as is.
func EncodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case Null:
		return []byte("null"), nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}

// marshal encodes v as compact JSON without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
