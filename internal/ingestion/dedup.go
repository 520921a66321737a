package ingestion

import (
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// dedupShards splits the fingerprint set so that pruning one shard
// never blocks ShouldIngest calls hitting the other shards.
const dedupShards = 16

// Fingerprint derives the stable idempotency key for one ingested line:
// source path, byte offset of the line, and the payload itself. The
// same key guards the unique index on the events table.
func Fingerprint(path string, offset int64, payload string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", path, offset, payload)))
	return fmt.Sprintf("%x", sum)
}

type dedupShard struct {
	mu      sync.Mutex
	entries map[string]time.Time // fingerprint -> first seen
}

// DedupCache is a bounded, time-evicting idempotency filter. It is a
// hot-path optimization: correctness is ultimately owned by the
// storage-side fingerprint upsert, so eviction is advisory for memory,
// never a correctness hazard.
type DedupCache struct {
	retention time.Duration
	shards    [dedupShards]*dedupShard
}

// NewDedupCache creates a cache that remembers fingerprints for the
// given retention window.
func NewDedupCache(retention time.Duration) *DedupCache {
	c := &DedupCache{retention: retention}
	for i := range c.shards {
		c.shards[i] = &dedupShard{entries: make(map[string]time.Time)}
	}
	return c
}

func (c *DedupCache) shard(fingerprint string) *dedupShard {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return c.shards[h.Sum32()%dedupShards]
}

// ShouldIngest reports whether the fingerprint is new, recording it
// atomically on first sight. Check-and-insert happens under one shard
// lock, so two concurrent calls for the same fingerprint cannot both
// see "not seen yet".
func (c *DedupCache) ShouldIngest(fingerprint string) bool {
	return c.shouldIngestAt(fingerprint, time.Now())
}

func (c *DedupCache) shouldIngestAt(fingerprint string, now time.Time) bool {
	s := c.shard(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	if seen, ok := s.entries[fingerprint]; ok && now.Sub(seen) < c.retention {
		return false
	}
	s.entries[fingerprint] = now
	return true
}

// Prune removes entries older than the retention window. The sweep
// holds only one shard lock at a time, so ingestion stalls are bounded
// by a sixteenth of the structure rather than the whole set. Returns
// the number of evicted entries.
func (c *DedupCache) Prune(now time.Time) int {
	cutoff := now.Add(-c.retention)
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for fp, seen := range s.entries {
			if seen.Before(cutoff) {
				delete(s.entries, fp)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of fingerprints currently held.
func (c *DedupCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}
