package main

import (
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AgentEvent minimal struct for duplicate detection
type AgentEvent struct {
	ID           uint `gorm:"primaryKey"`
	AgentID      string
	SessionID    string
	Kind         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Message      string
	Timestamp    time.Time
}

func (AgentEvent) TableName() string {
	return "agent_events"
}

// The ingest fingerprint includes the source path, so the same line
// re-read after a session log was moved between watch directories got
// a fresh fingerprint and slipped past the unique index. This tool
// finds rows whose content is identical and keeps the oldest copy.
func main() {
	dbPath := "./clawwatch.db"

	fmt.Println("🔧 ClawWatch Duplicate Event Cleanup Tool")
	fmt.Println("=========================================")
	fmt.Printf("Database: %s\n\n", dbPath)

	// Open database
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Count total records
	var totalCount int64
	db.Model(&AgentEvent{}).Count(&totalCount)
	fmt.Printf("📊 Found %d total events\n", totalCount)

	// Process in batches
	batchSize := 1000
	processed := 0
	totalDeleted := 0
	totalErrors := 0

	// content hash -> lowest event ID seen with that content
	seen := make(map[string]uint)
	var duplicateIDs []uint

	fmt.Println("\n🔄 Scanning for content duplicates...")

	// Keyset pagination so the later delete pass cannot shift pages.
	lastID := uint(0)

	for {
		var events []AgentEvent
		result := db.Where("id > ?", lastID).Order("id").Limit(batchSize).Find(&events)

		if result.Error != nil {
			log.Fatalf("Failed to fetch events: %v", result.Error)
		}

		if len(events) == 0 {
			break
		}

		for i := range events {
			ev := &events[i]

			// Path-independent content identity
			hashInput := fmt.Sprintf("%s|%s|%s|%s|%d|%d|%f|%s|%d",
				ev.AgentID,
				ev.SessionID,
				ev.Kind,
				ev.Model,
				ev.InputTokens,
				ev.OutputTokens,
				ev.CostUSD,
				ev.Message,
				ev.Timestamp.UnixMilli(),
			)
			sum := sha256.Sum256([]byte(hashInput))
			contentHash := fmt.Sprintf("%x", sum)

			if _, dup := seen[contentHash]; dup {
				duplicateIDs = append(duplicateIDs, ev.ID)
				continue
			}
			seen[contentHash] = ev.ID
		}

		lastID = events[len(events)-1].ID
		processed += len(events)
		fmt.Printf("   Scanned %d / %d events (Duplicates: %d)\r",
			processed, totalCount, len(duplicateIDs))
	}

	fmt.Printf("\n\n🗑️  Deleting %d duplicate events...\n", len(duplicateIDs))

	for start := 0; start < len(duplicateIDs); start += batchSize {
		end := start + batchSize
		if end > len(duplicateIDs) {
			end = len(duplicateIDs)
		}
		chunk := duplicateIDs[start:end]
		if err := db.Delete(&AgentEvent{}, chunk).Error; err != nil {
			fmt.Printf("❌ Error deleting batch starting at ID %d: %v\n", chunk[0], err)
			totalErrors += len(chunk)
			continue
		}
		totalDeleted += len(chunk)
	}

	fmt.Printf("\n✅ Cleanup completed!\n")
	fmt.Printf("   Total events: %d\n", totalCount)
	fmt.Printf("   Deleted: %d\n", totalDeleted)
	fmt.Printf("   Errors: %d\n", totalErrors)
	fmt.Printf("   Kept: %d\n", totalCount-int64(totalDeleted)-int64(totalErrors))
}
