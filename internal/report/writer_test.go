package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.UnixMilli(1700000000000) }

func TestWriterLayout(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterOptions{Name: "demoRun", OutputDir: dir, BaseURL: "http://up:8080", Now: fixedClock})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ScratchDir, "1700000000000-demoRun.json"), w.TempPath())
	assert.Equal(t, filepath.Join(dir, "demo-run.json"), w.FinalPath())

	for _, url := range []string{"/e1", "/e2", "/e3"} {
		require.NoError(t, w.Append(exchange(url, 200)))
	}
	assert.Equal(t, 3, w.Count())
	require.NoError(t, w.Finalize())

	_, err = os.Stat(w.TempPath())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, ScratchDir))
	assert.True(t, os.IsNotExist(err), "empty scratch dir should be removed")

	data, err := os.ReadFile(w.FinalPath())
	require.NoError(t, err)
	assert.Regexp(t, `^\{\n  "timestamp": "1700000000000",\n  "baseUrl": "http://up:8080",\n  "requests": \[\n    \{`, string(data))

	r, err := Load(w.FinalPath())
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", r.Timestamp)
	require.Len(t, r.Requests, 3)
	for i, url := range []string{"/e1", "/e2", "/e3"} {
		assert.Equal(t, url, r.Requests[i].URL)
	}
}

func TestWriterEmptyReport(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterOptions{Name: "empty", OutputDir: dir, BaseURL: "http://up"})
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	r, err := Load(w.FinalPath())
	require.NoError(t, err)
	assert.Empty(t, r.Requests)
}

func TestWriterFinalizeTwice(t *testing.T) {
	w, err := NewWriter(WriterOptions{Name: "x", OutputDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, w.Finalize())
	assert.ErrorIs(t, w.Finalize(), ErrFinalized)
	assert.ErrorIs(t, w.Append(exchange("/late", 200)), ErrFinalized)
}

func TestWriterDiscard(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterOptions{Name: "unused", OutputDir: dir, BaseURL: "http://up"})
	require.NoError(t, err)
	require.NoError(t, w.Discard())

	assert.NoFileExists(t, w.TempPath())
	assert.NoFileExists(t, w.FinalPath())
	assert.NoDirExists(t, filepath.Join(dir, ScratchDir))
	assert.ErrorIs(t, w.Finalize(), ErrFinalized)
	assert.ErrorIs(t, w.Discard(), ErrFinalized)
}

func TestWriterRemovesStaleTempFiles(t *testing.T) {
	dir := t.TempDir()
	scratch := filepath.Join(dir, ScratchDir)
	require.NoError(t, os.MkdirAll(scratch, 0o755))
	stale := filepath.Join(scratch, "123-demo.json")
	other := filepath.Join(scratch, "123-other.json")
	require.NoError(t, os.WriteFile(stale, []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("{"), 0o644))

	w, err := NewWriter(WriterOptions{Name: "demo", OutputDir: dir})
	require.NoError(t, err)
	defer func() { _ = w.Finalize() }()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(other)
	assert.NoError(t, err)
}

func TestWriterConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterOptions{Name: "load", OutputDir: dir, BaseURL: "http://up"})
	require.NoError(t, err)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.Append(exchange(fmt.Sprintf("/item/%d", i), 200)))
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Finalize())

	data, err := os.ReadFile(w.FinalPath())
	require.NoError(t, err)
	require.True(t, json.Valid(data))

	r, err := Load(w.FinalPath())
	require.NoError(t, err)
	require.Len(t, r.Requests, n)
	seen := make(map[string]bool, n)
	for _, ex := range r.Requests {
		seen[ex.URL] = true
	}
	assert.Len(t, seen, n)
}

func TestNewWriterRequiresName(t *testing.T) {
	_, err := NewWriter(WriterOptions{OutputDir: t.TempDir()})
	assert.Error(t, err)
}
