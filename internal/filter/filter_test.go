package filter

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMatcher struct {
	value string
	calls atomic.Int64
}

func (m *countingMatcher) Match(s string) bool {
	m.calls.Add(1)
	return s == m.value
}

func TestMethodPredicateExcludeOnly(t *testing.T) {
	allow := NewMethodPredicate(nil, []string{"POST", "OPTIONS"})
	assert.False(t, allow.Allow("POST"))
	assert.False(t, allow.Allow("OPTIONS"))
	assert.True(t, allow.Allow("GET"))
	assert.True(t, allow.Allow("PUT"))
}

func TestMethodPredicateIncludeOnly(t *testing.T) {
	allow := NewMethodPredicate([]string{"POST", "OPTIONS"}, nil)
	assert.True(t, allow.Allow("POST"))
	assert.True(t, allow.Allow("OPTIONS"))
	assert.False(t, allow.Allow("GET"))
	assert.False(t, allow.Allow("PUT"))
}

func TestMethodPredicateIncludeAndExclude(t *testing.T) {
	allow := NewMethodPredicate([]string{"POST", "OPTIONS"}, []string{"GET"})
	assert.True(t, allow.Allow("POST"))
	assert.True(t, allow.Allow("OPTIONS"))
	assert.False(t, allow.Allow("GET"))
	assert.False(t, allow.Allow("PUT"))
}

func TestMethodPredicateConflictExcludeWins(t *testing.T) {
	allow := NewMethodPredicate([]string{"GET", "POST"}, []string{"post"})
	assert.True(t, allow.Allow("GET"))
	assert.False(t, allow.Allow("POST"))
	assert.False(t, allow.Allow("post"))
}

func TestMethodPredicateAbsent(t *testing.T) {
	allow := NewMethodPredicate(nil, nil)
	for _, m := range []string{"GET", "POST", "BREW"} {
		assert.True(t, allow.Allow(m))
	}
	assert.Zero(t, allow.CacheLen())

	var nilPredicate *Predicate
	assert.True(t, nilPredicate.Allow("GET"))
}

func TestPathPredicateExcludeOnly(t *testing.T) {
	allow, err := NewPathPredicate(nil, []string{"/**/health", "/client/**/cars/*"})
	require.NoError(t, err)
	assert.False(t, allow.Allow("/health"))
	assert.False(t, allow.Allow("/a/b/health"))
	assert.True(t, allow.Allow("/health2"))
	assert.True(t, allow.Allow("/client"))
	assert.True(t, allow.Allow("/client/cars"))
	assert.False(t, allow.Allow("/client/cars/2"))
	assert.True(t, allow.Allow("/client/bus/2"))
}

func TestPathPredicateIncludeOnly(t *testing.T) {
	allow, err := NewPathPredicate([]string{"/client/**/cars/**", "/client/**/bus/*"}, nil)
	require.NoError(t, err)
	assert.False(t, allow.Allow("/"))
	assert.False(t, allow.Allow("/any/things"))
	assert.False(t, allow.Allow("/client"))
	assert.False(t, allow.Allow("/client/cars"))
	assert.True(t, allow.Allow("/client/cars/"))
	assert.True(t, allow.Allow("/client/cars/2"))
	assert.True(t, allow.Allow("/client/bus/2"))
}

func TestPathPredicateIncludeAndExclude(t *testing.T) {
	allow, err := NewPathPredicate(
		[]string{"/client/**/cars/**", "/client/**/bus/*"},
		[]string{"/client/**/cars/2"},
	)
	require.NoError(t, err)
	assert.False(t, allow.Allow("/"))
	assert.False(t, allow.Allow("/client/cars"))
	assert.True(t, allow.Allow("/client/cars/"))
	assert.True(t, allow.Allow("/client/cars/1"))
	assert.False(t, allow.Allow("/client/cars/2"))
	assert.True(t, allow.Allow("/client/bus/2"))
}

func TestPredicateMemoized(t *testing.T) {
	include := &countingMatcher{value: "GET"}
	exclude := &countingMatcher{value: "DELETE"}
	p := New([]Matcher{include}, []Matcher{exclude})

	assert.True(t, p.Allow("GET"))
	assert.Equal(t, int64(1), include.calls.Load())
	assert.Equal(t, int64(1), exclude.calls.Load())

	assert.True(t, p.Allow("GET"))
	assert.Equal(t, int64(1), include.calls.Load())
	assert.Equal(t, int64(1), exclude.calls.Load())

	assert.False(t, p.Allow("DELETE"))
	assert.False(t, p.Allow("DELETE"))
	assert.Equal(t, int64(2), exclude.calls.Load())
	assert.Equal(t, 2, p.CacheLen())
}

func TestPredicateCacheBounded(t *testing.T) {
	m := &countingMatcher{value: "/x"}
	p := New([]Matcher{m}, nil)
	p.capacity = 2

	p.Allow("/a")
	p.Allow("/b")
	p.Allow("/c")
	assert.Equal(t, 2, p.CacheLen())

	before := m.calls.Load()
	p.Allow("/c")
	assert.Equal(t, before+1, m.calls.Load(), "uncached input must be evaluated again")
}

func TestPredicateConcurrentUse(t *testing.T) {
	allow, err := NewPathPredicate([]string{"/api/**"}, []string{"/api/internal/**"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/api/items/%d", i%4)
			assert.True(t, allow.Allow(path))
			assert.False(t, allow.Allow("/api/internal/metrics"))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, allow.CacheLen())
}

func TestPathPredicateSkipsBlankPatterns(t *testing.T) {
	allow, err := NewPathPredicate([]string{" ", ""}, nil)
	require.NoError(t, err)
	assert.True(t, allow.Allow("/anything"))
}
