package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// ScratchDir is the directory under the output dir that holds reports
// while they are being recorded.
const ScratchDir = ".reqtape-tmp"

// ErrFinalized is returned by Append and Finalize once the report is closed.
var ErrFinalized = errors.New("report writer already finalized")

// WriterOptions configures a streaming report writer.
type WriterOptions struct {
	Name      string
	OutputDir string
	BaseURL   string
	// Now overrides the clock used for the report timestamp.
	Now func() time.Time
}

// Writer streams exchanges into a report file as they complete. The file
// is kept in the scratch dir and renamed into the output dir on Finalize.
type Writer struct {
	mu        sync.Mutex
	file      *os.File
	tempPath  string
	finalPath string
	count     int
	finalized bool
}

// NewWriter creates the scratch file and writes the report header.
func NewWriter(opts WriterOptions) (*Writer, error) {
	if opts.Name == "" {
		return nil, errors.New("report name is required")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	timestamp := strconv.FormatInt(now().UnixMilli(), 10)

	scratch := filepath.Join(opts.OutputDir, ScratchDir)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	if err := removeStale(scratch, opts.Name); err != nil {
		return nil, err
	}

	tempPath := filepath.Join(scratch, timestamp+"-"+opts.Name+".json")
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}

	baseURL, err := marshal(opts.BaseURL)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	header := "{\n  \"timestamp\": \"" + timestamp + "\",\n  \"baseUrl\": " + string(baseURL) + ",\n  \"requests\": ["
	if _, err := file.WriteString(header); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("write report header: %w", err)
	}

	return &Writer{
		file:      file,
		tempPath:  tempPath,
		finalPath: filepath.Join(opts.OutputDir, KebabCase(opts.Name)+".json"),
	}, nil
}

// Append writes one exchange. Safe for concurrent use; entries appear in
// the order the calls acquire the lock.
func (w *Writer) Append(ex *Exchange) error {
	data, err := marshal(ex)
	if err != nil {
		return fmt.Errorf("encode exchange: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}

	buf := make([]byte, 0, len(data)+6)
	if w.count > 0 {
		buf = append(buf, ',')
	}
	buf = append(buf, "\n    "...)
	buf = append(buf, data...)
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("write exchange: %w", err)
	}
	w.count++
	return nil
}

// Finalize closes the requests array and moves the report to its final
// path.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	if _, err := w.file.WriteString("\n  ]\n}\n"); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("write report trailer: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("sync report: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(w.tempPath, w.finalPath); err != nil {
		return fmt.Errorf("move report to %s: %w", w.finalPath, err)
	}
	// only succeeds when no other recording is in progress
	_ = os.Remove(filepath.Dir(w.tempPath))
	return nil
}

// Discard closes the report and removes it without publishing it.
func (w *Writer) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	_ = w.file.Close()
	if err := os.Remove(w.tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove report: %w", err)
	}
	_ = os.Remove(filepath.Dir(w.tempPath))
	return nil
}

// Count returns the number of exchanges written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// TempPath is where the report lives until Finalize.
func (w *Writer) TempPath() string { return w.tempPath }

// FinalPath is where Finalize moves the report.
func (w *Writer) FinalPath() string { return w.finalPath }

func removeStale(dir, name string) error {
	pattern := regexp.MustCompile(`^[0-9]+-` + regexp.QuoteMeta(name) + `\.json$`)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read scratch dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !pattern.MatchString(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale report %s: %w", entry.Name(), err)
		}
	}
	return nil
}
