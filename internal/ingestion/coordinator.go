package ingestion

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"
	"github.com/karthik14478/clawwatch/internal/parser/agentlog"

	"github.com/pterm/pterm"
)

// Coordinator runs the ingest pipeline: it polls every tracked session
// log, parses and deduplicates new lines, and feeds the batch
// accumulator. A single loop owns all sources, so a flush that is
// stuck retrying naturally pauses reads and keeps memory bounded.
type Coordinator struct {
	tracker *SourceTracker
	parser  *agentlog.Parser
	dedup   *DedupCache
	batcher *BatchAccumulator
	logger  *pterm.Logger

	pollInterval  time.Duration
	holdTime      time.Duration
	pruneInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool

	statsMu       sync.Mutex
	totalParsed   int64
	parseFailures int64
	duplicates    int64
}

// NewCoordinator creates a new ingestion coordinator
func NewCoordinator(
	tracker *SourceTracker,
	parser *agentlog.Parser,
	dedup *DedupCache,
	batcher *BatchAccumulator,
	logger *pterm.Logger,
	pollInterval time.Duration,
	holdTime time.Duration,
	pruneInterval time.Duration,
) *Coordinator {
	if pollInterval <= 0 {
		pollInterval = 1 * time.Second
	}
	if holdTime <= 0 {
		holdTime = 2 * time.Second
	}
	if pruneInterval <= 0 {
		pruneInterval = 1 * time.Hour
	}
	return &Coordinator{
		tracker:       tracker,
		parser:        parser,
		dedup:         dedup,
		batcher:       batcher,
		logger:        logger,
		pollInterval:  pollInterval,
		holdTime:      holdTime,
		pruneInterval: pruneInterval,
	}
}

// Start launches the ingest and prune loops.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning {
		c.logger.Warn("Ingestion coordinator already running, skipping start")
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(2)
	go c.ingestLoop()
	go c.pruneLoop()

	c.isRunning = true
	c.logger.Info("Ingestion coordinator started",
		c.logger.Args("sources", c.tracker.SourceCount(), "poll_interval", c.pollInterval.String()))
	return nil
}

// Stop flushes the pending batch and stops the loops.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		c.logger.Debug("Ingestion coordinator not running, skipping stop")
		return
	}

	c.logger.Info("Stopping ingestion coordinator...")
	c.cancel()
	c.wg.Wait()
	c.isRunning = false
	c.logger.Info("Ingestion coordinator stopped successfully")
}

// IsRunning returns whether the coordinator is currently running
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning
}

// RegisterSource begins tracking a session log file.
func (c *Coordinator) RegisterSource(path string) {
	c.tracker.Register(path)
	c.logger.Info("Registered session log", c.logger.Args("path", path))
}

// RemoveSource stops tracking a session log file.
func (c *Coordinator) RemoveSource(path string) {
	c.tracker.Remove(path)
	c.logger.Info("Removed session log", c.logger.Args("path", path))
}

// SourceCount returns the number of tracked session logs.
func (c *Coordinator) SourceCount() int {
	return c.tracker.SourceCount()
}

// ingestLoop is the main processing loop
func (c *Coordinator) ingestLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	flushTimer := time.NewTimer(c.holdTime)
	defer flushTimer.Stop()

	for {
		select {
		case <-c.ctx.Done():
			// Flush remaining batch before exit
			if c.batcher.Pending() > 0 {
				c.logger.Debug("Flushing remaining batch on shutdown",
					c.logger.Args("count", c.batcher.Pending()))
				if err := c.batcher.Flush(); err != nil {
					c.logger.WithCaller().Error("Final flush failed, records will be re-read on next start",
						c.logger.Args("error", err))
				}
			}
			return

		case now := <-flushTimer.C:
			if c.batcher.Due(now) {
				// Flush logs its own failures; the retry gate below
				// takes over from there.
				_ = c.batcher.Flush()
			}
			flushTimer.Reset(c.holdTime)

		case <-ticker.C:
			// A failed batch blocks reads until it lands. Offsets
			// already advanced past its lines, so dropping it would
			// lose them.
			if c.batcher.Retrying() {
				if err := c.batcher.Flush(); err != nil {
					continue
				}
			}

			for _, path := range c.tracker.Paths() {
				c.pollSource(path)
				if c.batcher.Full() {
					_ = c.batcher.Flush()
					flushTimer.Reset(c.holdTime)
					if c.batcher.Retrying() {
						break
					}
				}
			}
		}
	}
}

// pollSource reads new lines from one source and feeds the batch.
// Errors are contained to the source; the others keep flowing.
func (c *Coordinator) pollSource(path string) {
	lines, err := c.tracker.Poll(path)
	if err != nil {
		c.logger.WithCaller().Error("Failed to read session log",
			c.logger.Args("path", path, "error", err))
		return
	}

	sourceName := filepath.Base(path)
	for _, line := range lines {
		if !c.parser.CanParse(line.Text) {
			c.logger.Trace("Skipping non-event line", c.logger.Args("path", path))
			continue
		}

		event, err := c.parser.Parse(line.Text)
		if err != nil {
			c.statsMu.Lock()
			c.parseFailures++
			c.statsMu.Unlock()
			c.logger.Warn("Failed to parse event line",
				c.logger.Args("path", path, "error", err, "line_preview", truncate(line.Text, 100)))
			continue
		}

		fp := Fingerprint(path, line.Offset, line.Text)
		if !c.dedup.ShouldIngest(fp) {
			c.statsMu.Lock()
			c.duplicates++
			c.statsMu.Unlock()
			continue
		}

		c.batcher.Offer(&models.AgentEvent{
			Fingerprint:  fp,
			SourceName:   sourceName,
			AgentID:      event.AgentID,
			SessionID:    event.SessionID,
			Kind:         event.Kind,
			Model:        event.Model,
			InputTokens:  event.InputTokens,
			OutputTokens: event.OutputTokens,
			CostUSD:      event.CostUSD,
			Message:      event.Message,
			Timestamp:    event.Timestamp,
		})
		c.statsMu.Lock()
		c.totalParsed++
		c.statsMu.Unlock()
	}
}

// pruneLoop evicts expired dedup entries in the background.
func (c *Coordinator) pruneLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			removed := c.dedup.Prune(now)
			if removed > 0 {
				c.logger.Debug("Pruned dedup cache",
					c.logger.Args("removed", removed, "remaining", c.dedup.Len()))
			}
		}
	}
}

// GetStatus returns the current status of the ingest pipeline.
func (c *Coordinator) GetStatus() map[string]interface{} {
	c.statsMu.Lock()
	totalParsed := c.totalParsed
	parseFailures := c.parseFailures
	duplicates := c.duplicates
	c.statsMu.Unlock()

	trackerStats := c.tracker.Stats()
	batchStats := c.batcher.Stats()

	return map[string]interface{}{
		"is_running":      c.IsRunning(),
		"sources":         trackerStats.Sources,
		"content_reads":   trackerStats.ContentReads,
		"stat_skips":      trackerStats.StatSkips,
		"truncations":     trackerStats.Truncations,
		"total_parsed":    totalParsed,
		"parse_failures":  parseFailures,
		"duplicates":      duplicates,
		"batch_pending":   batchStats.Pending,
		"batch_retrying":  batchStats.Retrying,
		"events_flushed":  batchStats.Flushed,
		"flush_failures":  batchStats.FlushFailures,
		"dedup_cache_len": c.dedup.Len(),
	}
}

// truncate truncates a string to maxLen characters for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
