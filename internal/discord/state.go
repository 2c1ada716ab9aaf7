package discord

import (
	"sync"
	"time"
)

// messageCacheEntry mirrors spec.md §3's MessageCacheEntry: the coalescer's
// in-memory view of the embed currently open in a channel.
type messageCacheEntry struct {
	messageID string
	channelID string
	firstSeen time.Time
	body      string
	callIDs   []int64
}

// FanoutState groups the Discord fan-out component's ad-hoc caches into one
// owner with one lock per cache (spec.md §9 DESIGN NOTES: "group these into
// an explicit FanoutState struct ... protect each cache with its own lock").
type FanoutState struct {
	messagesMu sync.Mutex
	messages   map[string]*messageCacheEntry // channel_id -> entry

	channelsMu sync.Mutex
	channels   map[string]string // talkgroup_id -> channel_id

	categoriesMu sync.Mutex
	categories   map[string]string // county (lowercased) -> category_id

	summaryMu        sync.Mutex
	summaryMessageID string // pinned periodic-summary message (spec.md §4.6), one per deployment
}

// NewFanoutState creates an empty FanoutState.
func NewFanoutState() *FanoutState {
	return &FanoutState{
		messages:   make(map[string]*messageCacheEntry),
		channels:   make(map[string]string),
		categories: make(map[string]string),
	}
}

func (s *FanoutState) getEntry(channelID string) (*messageCacheEntry, bool) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	e, ok := s.messages[channelID]
	return e, ok
}

func (s *FanoutState) putEntry(channelID string, e *messageCacheEntry) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	s.messages[channelID] = e
}

func (s *FanoutState) evictEntry(channelID string) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	delete(s.messages, channelID)
}

// gcMessages drops any cached entry whose first post is older than maxAge.
// A channel's cooldown window (spec.md §4.4, default 15s) always closes
// long before this runs hourly (spec.md §5); this only reclaims memory for
// channels that went quiet before their entry was ever evicted by Publish.
func (s *FanoutState) gcMessages(maxAge time.Duration) int {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for channelID, e := range s.messages {
		if e.firstSeen.Before(cutoff) {
			delete(s.messages, channelID)
			removed++
		}
	}
	return removed
}

func (s *FanoutState) cachedChannel(talkgroupID string) (string, bool) {
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()
	id, ok := s.channels[talkgroupID]
	return id, ok
}

func (s *FanoutState) cacheChannel(talkgroupID, channelID string) {
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()
	s.channels[talkgroupID] = channelID
}

func (s *FanoutState) cachedCategory(county string) (string, bool) {
	s.categoriesMu.Lock()
	defer s.categoriesMu.Unlock()
	id, ok := s.categories[county]
	return id, ok
}

func (s *FanoutState) cacheCategory(county, categoryID string) {
	s.categoriesMu.Lock()
	defer s.categoriesMu.Unlock()
	s.categories[county] = categoryID
}

func (s *FanoutState) summaryMessage() (string, bool) {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	return s.summaryMessageID, s.summaryMessageID != ""
}

func (s *FanoutState) setSummaryMessage(messageID string) {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	s.summaryMessageID = messageID
}

func (s *FanoutState) evictSummaryMessage() {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	s.summaryMessageID = ""
}
