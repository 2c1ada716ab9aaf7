package discord

import (
	"testing"
	"time"
)

func TestGcMessagesEvictsOnlyOldEntries(t *testing.T) {
	s := NewFanoutState()
	s.putEntry("chan-old", &messageCacheEntry{
		messageID: "m1",
		channelID: "chan-old",
		firstSeen: time.Now().Add(-2 * time.Hour),
	})
	s.putEntry("chan-new", &messageCacheEntry{
		messageID: "m2",
		channelID: "chan-new",
		firstSeen: time.Now(),
	})

	removed := s.gcMessages(time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, ok := s.getEntry("chan-old"); ok {
		t.Error("expected chan-old entry to be evicted")
	}
	if _, ok := s.getEntry("chan-new"); !ok {
		t.Error("expected chan-new entry to survive")
	}
}

func TestGcMessagesNoopWhenNothingStale(t *testing.T) {
	s := NewFanoutState()
	s.putEntry("chan-a", &messageCacheEntry{channelID: "chan-a", firstSeen: time.Now()})

	if removed := s.gcMessages(time.Hour); removed != 0 {
		t.Fatalf("expected 0 removed, got %d", removed)
	}
}

func TestSummaryMessageRoundTrip(t *testing.T) {
	s := NewFanoutState()
	if _, ok := s.summaryMessage(); ok {
		t.Fatal("expected no summary message initially")
	}

	s.setSummaryMessage("msg-123")
	id, ok := s.summaryMessage()
	if !ok || id != "msg-123" {
		t.Fatalf("got (%q, %v), want (%q, true)", id, ok, "msg-123")
	}

	s.evictSummaryMessage()
	if _, ok := s.summaryMessage(); ok {
		t.Error("expected summary message to be evicted")
	}
}
