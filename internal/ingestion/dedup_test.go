package ingestion

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("/logs/s1.jsonl", 128, `{"kind":"usage"}`)
	b := Fingerprint("/logs/s1.jsonl", 128, `{"kind":"usage"}`)
	if a != b {
		t.Error("Same inputs produced different fingerprints")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprint_DistinguishesInputs(t *testing.T) {
	base := Fingerprint("/logs/s1.jsonl", 128, `{"kind":"usage"}`)

	tests := []struct {
		name    string
		path    string
		offset  int64
		payload string
	}{
		{"different path", "/logs/s2.jsonl", 128, `{"kind":"usage"}`},
		{"different offset", "/logs/s1.jsonl", 256, `{"kind":"usage"}`},
		{"different payload", "/logs/s1.jsonl", 128, `{"kind":"error"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if Fingerprint(tc.path, tc.offset, tc.payload) == base {
				t.Error("Expected a distinct fingerprint")
			}
		})
	}
}

func TestDedupCache_FirstSeenThenDuplicate(t *testing.T) {
	cache := NewDedupCache(7 * 24 * time.Hour)
	fp := Fingerprint("/logs/s1.jsonl", 0, "payload")

	if !cache.ShouldIngest(fp) {
		t.Error("Expected first sighting to be ingested")
	}
	for i := 0; i < 3; i++ {
		if cache.ShouldIngest(fp) {
			t.Errorf("Expected duplicate %d to be rejected", i)
		}
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", cache.Len())
	}
}

func TestDedupCache_ExpiredEntryIngestedAgain(t *testing.T) {
	retention := 7 * 24 * time.Hour
	cache := NewDedupCache(retention)
	fp := "expired-entry"
	t0 := time.Now()

	if !cache.shouldIngestAt(fp, t0) {
		t.Fatal("Expected first sighting to be ingested")
	}
	if cache.shouldIngestAt(fp, t0.Add(retention-time.Second)) {
		t.Error("Expected rejection inside the retention window")
	}
	if !cache.shouldIngestAt(fp, t0.Add(retention)) {
		t.Error("Expected an expired fingerprint to be ingested again")
	}
}

func TestDedupCache_PruneBoundary(t *testing.T) {
	retention := 7 * 24 * time.Hour
	cache := NewDedupCache(retention)
	now := time.Now()

	cache.shouldIngestAt("old", now.Add(-retention-time.Minute))
	cache.shouldIngestAt("exactly-at-window", now.Add(-retention))
	cache.shouldIngestAt("fresh", now.Add(-time.Minute))

	removed := cache.Prune(now)
	if removed != 1 {
		t.Errorf("Expected 1 evicted entry, got %d", removed)
	}
	if cache.Len() != 2 {
		t.Errorf("Expected 2 remaining entries, got %d", cache.Len())
	}
}

func TestDedupCache_ConcurrentSameFingerprint(t *testing.T) {
	cache := NewDedupCache(time.Hour)
	fp := Fingerprint("/logs/s1.jsonl", 512, "contested")

	var ingested int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cache.ShouldIngest(fp) {
				atomic.AddInt64(&ingested, 1)
			}
		}()
	}
	wg.Wait()

	if ingested != 1 {
		t.Errorf("Expected exactly one winner, got %d", ingested)
	}
}

func TestDedupCache_ManyFingerprints(t *testing.T) {
	cache := NewDedupCache(time.Hour)

	for i := 0; i < 1000; i++ {
		fp := Fingerprint("/logs/s1.jsonl", int64(i), fmt.Sprintf("line-%d", i))
		if !cache.ShouldIngest(fp) {
			t.Fatalf("Unexpected duplicate at %d", i)
		}
	}
	if cache.Len() != 1000 {
		t.Errorf("Expected 1000 entries, got %d", cache.Len())
	}
}
