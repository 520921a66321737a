package ingestion

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// defaultMaxReadBytes bounds how much of a single source one poll may
// consume, so one fast-growing session log cannot starve the others.
const defaultMaxReadBytes = 4 << 20

// Line is a complete, newline-terminated line returned by a poll,
// together with the byte offset of its first byte in the source file.
// The offset feeds the record fingerprint.
type Line struct {
	Text   string
	Offset int64
}

// sourceCursor tracks the read state of one append-only session log.
// Invariant: readOffset never exceeds the file size observed at the
// last read; a smaller current size means truncation/rotation.
type sourceCursor struct {
	sizeBytes    int64
	modifiedAt   time.Time
	readOffset   int64
	partial      []byte // held-over bytes of an unterminated trailing line
	partialStart int64  // file offset where partial begins
}

// TrackerStats exposes poll counters for the status API and tests.
type TrackerStats struct {
	Sources      int   `json:"sources"`
	ContentReads int64 `json:"content_reads"`
	StatSkips    int64 `json:"stat_skips"`
	Truncations  int64 `json:"truncations"`
}

// SourceTracker owns the per-source cursor map. Cursors live only in
// memory: a restart re-scans every source from byte zero and relies on
// the storage-side fingerprint upsert to stay idempotent.
type SourceTracker struct {
	mu           sync.Mutex
	cursors      map[string]*sourceCursor
	maxReadBytes int64
	logger       *pterm.Logger

	contentReads int64
	statSkips    int64
	truncations  int64
}

// NewSourceTracker creates a new source tracker
func NewSourceTracker(logger *pterm.Logger) *SourceTracker {
	return &SourceTracker{
		cursors:      make(map[string]*sourceCursor),
		maxReadBytes: defaultMaxReadBytes,
		logger:       logger,
	}
}

// Register adds a source path on first sight. Registering an already
// known path is a no-op so discovery can re-announce freely.
func (t *SourceTracker) Register(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.cursors[path]; exists {
		return
	}
	t.cursors[path] = &sourceCursor{}
	t.logger.Info("Registered source", t.logger.Args("path", path))
}

// Remove drops a source and its cursor.
func (t *SourceTracker) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, path)
}

// Paths returns the registered source paths in stable order.
func (t *SourceTracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := make([]string, 0, len(t.cursors))
	for p := range t.cursors {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// SourceCount returns the number of registered sources.
func (t *SourceTracker) SourceCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cursors)
}

// Stats returns a snapshot of the poll counters.
func (t *SourceTracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackerStats{
		Sources:      len(t.cursors),
		ContentReads: t.contentReads,
		StatSkips:    t.statSkips,
		Truncations:  t.truncations,
	}
}

// Poll returns the complete new lines appended to the source since the
// last poll. An unchanged source (same size and mtime) costs a single
// stat and no read. A source that disappeared returns nothing but keeps
// its cursor so a reappearing unchanged file is not reprocessed. A
// trailing line without a newline is buffered and prefixed onto the
// next read.
func (t *SourceTracker) Poll(path string) ([]Line, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.cursors[path]
	if !ok {
		return nil, nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Not fatal: keep the cursor for a possible reappearance.
			t.logger.Trace("Source missing, cursor retained", t.logger.Args("path", path))
			return nil, nil
		}
		return nil, err
	}

	size := fi.Size()
	modTime := fi.ModTime()

	// Core efficiency contract: unchanged source, zero read calls.
	if size == cur.sizeBytes && modTime.Equal(cur.modifiedAt) {
		t.statSkips++
		return nil, nil
	}

	// Truncation/rotation: the whole source is treated as new.
	if size < cur.readOffset {
		t.logger.Info("Source truncated, resetting cursor",
			t.logger.Args("path", path, "old_offset", cur.readOffset, "new_size", size))
		cur.readOffset = 0
		cur.partial = nil
		cur.partialStart = 0
		t.truncations++
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			t.logger.Warn("Permission denied reading source, skipping",
				t.logger.Args("path", path, "error", err))
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	if _, err := file.Seek(cur.readOffset, io.SeekStart); err != nil {
		return nil, err
	}

	buf, err := io.ReadAll(io.LimitReader(file, t.maxReadBytes))
	if err != nil {
		return nil, err
	}
	t.contentReads++

	if len(buf) == 0 {
		cur.sizeBytes = size
		cur.modifiedAt = modTime
		return nil, nil
	}

	lineStart := cur.readOffset
	data := buf
	if len(cur.partial) > 0 {
		lineStart = cur.partialStart
		data = append(append([]byte{}, cur.partial...), buf...)
	}

	lines := []Line{}
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		text := strings.TrimRight(string(data[:idx]), "\r")
		if text != "" {
			lines = append(lines, Line{Text: text, Offset: lineStart})
		}
		lineStart += int64(idx) + 1
		data = data[idx+1:]
	}

	// Whatever remains is an unterminated trailing line.
	if len(data) > 0 {
		cur.partial = append([]byte{}, data...)
		cur.partialStart = lineStart
	} else {
		cur.partial = nil
		cur.partialStart = 0
	}

	cur.readOffset += int64(len(buf))
	cur.modifiedAt = modTime
	if cur.readOffset < size {
		// Capped read: record the consumed size so the next poll does
		// not mistake the file for unchanged.
		cur.sizeBytes = cur.readOffset
	} else {
		cur.sizeBytes = size
	}

	t.logger.Trace("Polled source",
		t.logger.Args("path", path, "lines", len(lines), "offset", cur.readOffset))

	return lines, nil
}
