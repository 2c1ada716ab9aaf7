// Package summarize implements the periodic dispatch summariser and the
// Ask-AI windowed Q&A of spec.md §4.6: both read a time-bounded slice of
// transcripts and hand them to an LLM, the summariser on a fixed schedule
// and Ask-AI per Discord modal submission.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/poisonednumber/scanner-map/internal/database"
	"github.com/poisonednumber/scanner-map/internal/llm"
)

const summaryBuckets = 4
const maxHighlights = 5

// thinkBlockRe mirrors internal/extract's <think>-stripping behavior; both
// packages forward raw reasoning-model output to the same kind of
// downstream consumer (a Discord embed / JSON field) that must not contain it.
var thinkBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>`)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

const summarySystemPrompt = `You summarise a window of public-safety radio dispatch transcripts for a live incident board.
Respond with EXACTLY ONE JSON object, no other text, of the shape:
{"summary": "one paragraph overview of the window", "highlights": [{"id": <call id>, "talk_group": "<talkgroup id>", "importance": "low|medium|high", "description": "<one sentence>", "timestamp": <unix seconds>}]}
Only reference call ids and talkgroup ids given to you. Do not invent details.`

// Highlight is one summariser-selected candidate call, per spec.md §4.6 step 3.
type Highlight struct {
	ID          int64  `json:"id"`
	TalkGroup   string `json:"talk_group"`
	Importance  string `json:"importance"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"`
}

// Snapshot is the summariser's output, rendered to both Discord and the
// web client's JSON feed.
type Snapshot struct {
	Summary     string      `json:"summary"`
	Highlights  []Highlight `json:"highlights"`
	GeneratedAt int64       `json:"generated_at"`
}

// DiscordPoster is the contract the summariser needs from internal/discord:
// edit-in-place a pinned message in a fixed channel. Defined on the
// consumer side, mirroring ingest.FanOut/ingest.PostTranscribe.
type DiscordPoster interface {
	PostSummary(ctx context.Context, channelID, title, body string) error
}

// Summarizer runs the spec.md §4.6 periodic summariser task. poster and
// channelID may be left nil/empty to disable the Discord half while still
// serving the JSON snapshot.
type Summarizer struct {
	db       *database.DB
	provider llm.Provider
	poster   DiscordPoster
	channelID string
	store    *LatestStore

	interval time.Duration
	lookback time.Duration

	log zerolog.Logger
}

func New(db *database.DB, provider llm.Provider, poster DiscordPoster, channelID string, store *LatestStore, interval, lookback time.Duration, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		db:        db,
		provider:  provider,
		poster:    poster,
		channelID: channelID,
		store:     store,
		interval:  interval,
		lookback:  lookback,
		log:       log,
	}
}

// Run ticks every interval until ctx is cancelled.
func (s *Summarizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Summarizer) tick(ctx context.Context) {
	until := time.Now().Unix()
	since := time.Now().Add(-s.lookback).Unix()

	calls, err := s.db.CallsInWindow(ctx, since, until)
	if err != nil {
		s.log.Error().Err(err).Msg("summariser: failed to fetch window")
		return
	}
	if len(calls) == 0 || s.provider == nil {
		return
	}

	candidates := pickCandidates(calls, since, until)
	userPrompt := buildPrompt(candidates, since, until)

	raw, err := s.provider.Complete(ctx, summarySystemPrompt, userPrompt)
	if err != nil {
		s.log.Warn().Err(err).Msg("summariser: llm completion failed")
		return
	}

	snap, err := parseSnapshot(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("summariser: failed to parse llm response")
		return
	}
	snap.GeneratedAt = time.Now().Unix()
	s.store.Set(snap)
	s.log.Info().Int("highlights", len(snap.Highlights)).Msg("summariser: snapshot updated")

	if s.poster == nil || s.channelID == "" {
		return
	}
	if err := s.poster.PostSummary(ctx, s.channelID, "Dispatch Summary", renderBody(snap)); err != nil {
		s.log.Warn().Err(err).Msg("summariser: failed to post discord summary")
	}
}

// pickCandidates implements spec.md §4.6 step 2: divide the window into 4
// equal buckets, take each bucket's single longest transcript. "Up to 5
// highlights total" is an Open Question the spec leaves unresolved against
// a 4-bucket split; this caps defensively at 5 rather than silently
// dropping a bucket pick, see DESIGN.md.
func pickCandidates(calls []*database.Call, since, until int64) []*database.Call {
	width := (until - since) / summaryBuckets
	if width <= 0 {
		width = 1
	}

	longest := make([]*database.Call, summaryBuckets)
	for _, c := range calls {
		idx := int((c.Timestamp - since) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= summaryBuckets {
			idx = summaryBuckets - 1
		}
		if longest[idx] == nil || len(c.Transcription) > len(longest[idx].Transcription) {
			longest[idx] = c
		}
	}

	var picked []*database.Call
	for _, c := range longest {
		if c != nil {
			picked = append(picked, c)
		}
	}
	if len(picked) > maxHighlights {
		picked = picked[:maxHighlights]
	}
	return picked
}

func buildPrompt(candidates []*database.Call, since, until int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s to %s\n\n", time.Unix(since, 0).UTC().Format(time.RFC3339), time.Unix(until, 0).UTC().Format(time.RFC3339))
	for _, c := range candidates {
		fmt.Fprintf(&b, "id=%d talk_group=%s ts=%d: %s\n", c.ID, c.TalkgroupID, c.Timestamp, c.Transcription)
	}
	return b.String()
}

// llmSnapshot mirrors the LLM's wire shape with Timestamp left as raw JSON
// so parseSnapshot can coerce either a number or a quoted string back to
// Unix seconds, per spec.md §4.6 step 4.
type llmSnapshot struct {
	Summary    string `json:"summary"`
	Highlights []struct {
		ID          int64           `json:"id"`
		TalkGroup   string          `json:"talk_group"`
		Importance  string          `json:"importance"`
		Description string          `json:"description"`
		Timestamp   json.RawMessage `json:"timestamp"`
	} `json:"highlights"`
}

func parseSnapshot(raw string) (Snapshot, error) {
	clean := thinkBlockRe.ReplaceAllString(raw, "")
	if m := codeFenceRe.FindStringSubmatch(clean); m != nil {
		clean = m[1]
	}
	clean = strings.TrimSpace(clean)

	var wire llmSnapshot
	if err := json.Unmarshal([]byte(clean), &wire); err != nil {
		return Snapshot{}, fmt.Errorf("summarize: decode llm response: %w", err)
	}

	snap := Snapshot{Summary: strings.TrimSpace(wire.Summary)}
	for _, h := range wire.Highlights {
		ts, ok := coerceTimestamp(h.Timestamp)
		if !ok {
			continue
		}
		snap.Highlights = append(snap.Highlights, Highlight{
			ID:          h.ID,
			TalkGroup:   h.TalkGroup,
			Importance:  h.Importance,
			Description: h.Description,
			Timestamp:   ts,
		})
	}
	return snap, nil
}

func coerceTimestamp(raw json.RawMessage) (int64, bool) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), true
	}
	return 0, false
}

func renderBody(snap Snapshot) string {
	var b strings.Builder
	b.WriteString(snap.Summary)
	for _, h := range snap.Highlights {
		fmt.Fprintf(&b, "\n\n**%s** (%s, %s): %s", h.TalkGroup, h.Importance, time.Unix(h.Timestamp, 0).UTC().Format("15:04 MST"), h.Description)
	}
	return b.String()
}
