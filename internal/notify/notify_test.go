package notify

import (
	"testing"

	"github.com/google/uuid"

	"stock-ledger/internal/core"
)

func TestFeedDropsOldestAtCapacity(t *testing.T) {
	feed := NewFeed(3)
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		feed.Publish(core.AlertEvent{Kind: core.AlertEventRaised, Alert: core.StockAlert{ID: ids[i]}})
	}

	recent := feed.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("recent = %d events, want 3", len(recent))
	}
	// Newest first.
	if recent[0].Alert.ID != ids[4] || recent[2].Alert.ID != ids[2] {
		t.Fatalf("unexpected order: %v", recent)
	}
}

func TestFeedRecentLimit(t *testing.T) {
	feed := NewFeed(10)
	for i := 0; i < 5; i++ {
		feed.Publish(core.AlertEvent{Kind: core.AlertEventUpdated})
	}
	if got := len(feed.Recent(2)); got != 2 {
		t.Fatalf("recent(2) = %d, want 2", got)
	}
	if got := len(feed.Recent(100)); got != 5 {
		t.Fatalf("recent(100) = %d, want 5", got)
	}
}
