// Package filter builds the method and path predicates that decide which
// proxied exchanges are written to a report.
package filter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/funnyzak/reqtape/internal/glob"
)

// DefaultCacheSize bounds the number of memoized inputs per predicate.
const DefaultCacheSize = 4096

// Matcher matches a single value.
type Matcher interface {
	Match(string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(string) bool

// Match implements Matcher
func (f MatcherFunc) Match(s string) bool { return f(s) }

// Predicate is an immutable include/exclude filter with a bounded memo.
type Predicate struct {
	include   []Matcher
	exclude   []Matcher
	normalize func(string) string

	mu       sync.RWMutex
	cache    map[string]bool
	capacity int
}

// New builds a predicate from include and exclude matchers. A nil or empty
// list means the dimension is absent.
func New(include, exclude []Matcher) *Predicate {
	return &Predicate{
		include:  include,
		exclude:  exclude,
		cache:    make(map[string]bool),
		capacity: DefaultCacheSize,
	}
}

// NewMethodPredicate builds a predicate over HTTP method names. Methods are
// compared case-insensitively.
func NewMethodPredicate(include, exclude []string) *Predicate {
	p := New(methodMatchers(include), methodMatchers(exclude))
	p.normalize = strings.ToUpper
	return p
}

// NewPathPredicate builds a predicate over URL paths from glob patterns.
func NewPathPredicate(include, exclude []string) (*Predicate, error) {
	inc, err := globMatchers(include)
	if err != nil {
		return nil, fmt.Errorf("include paths: %w", err)
	}
	exc, err := globMatchers(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude paths: %w", err)
	}
	return New(inc, exc), nil
}

// Allow reports whether value passes the predicate.
func (p *Predicate) Allow(value string) bool {
	if p == nil || (len(p.include) == 0 && len(p.exclude) == 0) {
		return true
	}
	if p.normalize != nil {
		value = p.normalize(value)
	}

	p.mu.RLock()
	result, ok := p.cache[value]
	p.mu.RUnlock()
	if ok {
		return result
	}

	result = p.evaluate(value)

	p.mu.Lock()
	if len(p.cache) < p.capacity {
		p.cache[value] = result
	}
	p.mu.Unlock()

	return result
}

func (p *Predicate) evaluate(value string) bool {
	for _, m := range p.exclude {
		if m.Match(value) {
			return false
		}
	}
	if len(p.include) == 0 {
		return true
	}
	for _, m := range p.include {
		if m.Match(value) {
			return true
		}
	}
	return false
}

// CacheLen returns the number of memoized inputs.
func (p *Predicate) CacheLen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

func methodMatchers(methods []string) []Matcher {
	if len(methods) == 0 {
		return nil
	}
	matchers := make([]Matcher, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		method := m
		matchers = append(matchers, MatcherFunc(func(s string) bool { return s == method }))
	}
	return matchers
}

func globMatchers(patterns []string) ([]Matcher, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	matchers := make([]Matcher, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		m, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}
