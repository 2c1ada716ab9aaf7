package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/poisonednumber/scanner-map/internal/database"
	"github.com/poisonednumber/scanner-map/internal/llm"
)

// embedDescriptionLimit is Discord's hard cap on an embed description field.
const embedDescriptionLimit = 4096

// askAIContextChars approximates a 35,000-token context budget (spec.md
// §4.6) at ~4 characters/token, since internal/llm.Provider's Complete has
// no per-call context-window option to pass through to the backend — the
// window is bounded client-side instead of relying on an unverified
// provider option.
const askAIContextChars = 35_000 * 4

const askAISystemPrompt = `You answer questions about a single radio talkgroup's recent dispatch traffic.
Base your answer only on the transcripts provided. If the transcripts don't contain an answer, say so plainly.`

// AskAI implements discord.AskAI: a bounded-window Q&A over one talkgroup's
// recent transcripts (spec.md §4.6).
type AskAI struct {
	db       *database.DB
	provider llm.Provider
	lookback time.Duration
	location *time.Location
	log      zerolog.Logger
}

func NewAskAI(db *database.DB, provider llm.Provider, lookback time.Duration, location *time.Location, log zerolog.Logger) *AskAI {
	if location == nil {
		location = time.UTC
	}
	return &AskAI{db: db, provider: provider, lookback: lookback, location: location, log: log}
}

// Answer satisfies internal/discord's AskAI interface.
func (a *AskAI) Answer(ctx context.Context, talkgroupID, question string) (string, error) {
	if a.provider == nil {
		return "", fmt.Errorf("summarize: ask-ai has no llm provider configured")
	}
	hours := int(a.lookback.Hours())
	if hours <= 0 {
		hours = 1
	}

	calls, err := a.db.TalkgroupCallsSinceHours(ctx, talkgroupID, hours)
	if err != nil {
		return "", fmt.Errorf("summarize: fetch talkgroup window: %w", err)
	}
	if len(calls) == 0 {
		return "No transcripts found for this talkgroup in the last " + a.lookback.String() + ".", nil
	}

	transcript := formatTranscript(calls, a.location)
	userPrompt := fmt.Sprintf("Talkgroup %s, question: %s\n\nTranscripts:\n%s", talkgroupID, question, transcript)

	raw, err := a.provider.Complete(ctx, askAISystemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("summarize: ask-ai llm completion: %w", err)
	}

	answer := thinkBlockRe.ReplaceAllString(raw, "")
	answer = strings.TrimSpace(answer)
	if len(answer) > embedDescriptionLimit {
		answer = answer[:embedDescriptionLimit]
	}

	if err := a.db.InsertAskQuestion(ctx, talkgroupID, question, answer); err != nil {
		a.log.Warn().Err(err).Str("talkgroup_id", talkgroupID).Msg("failed to record ask-ai question")
	}

	return answer, nil
}

// formatTranscript renders calls oldest-first as "[<localised timestamp>]
// <text>" lines, truncating from the oldest end if the result would exceed
// the approximate context budget — the most recent traffic is the most
// relevant to a fresh question.
func formatTranscript(calls []*database.Call, loc *time.Location) string {
	lines := make([]string, len(calls))
	for i, c := range calls {
		ts := time.Unix(c.Timestamp, 0).In(loc).Format("2006-01-02 15:04:05 MST")
		lines[i] = fmt.Sprintf("[%s] %s", ts, c.Transcription)
	}

	joined := strings.Join(lines, "\n")
	for len(joined) > askAIContextChars && len(lines) > 1 {
		lines = lines[1:]
		joined = strings.Join(lines, "\n")
	}
	return joined
}
