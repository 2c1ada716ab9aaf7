package summarize

import (
	"strings"
	"testing"
	"time"

	"github.com/poisonednumber/scanner-map/internal/database"
)

func TestFormatTranscriptTrimsFromOldestEnd(t *testing.T) {
	// Each line is well past 1/5th of the budget, so the loop must drop
	// several of the oldest lines before the joined length fits.
	var calls []*database.Call
	for i := int64(0); i < 10; i++ {
		calls = append(calls, &database.Call{
			ID:            i,
			Timestamp:     1700000000 + i,
			Transcription: strings.Repeat("x", askAIContextChars/5) + "-" + string(rune('A'+i)),
		})
	}

	out := formatTranscript(calls, time.UTC)

	if len(out) > askAIContextChars {
		t.Errorf("formatted transcript length %d exceeds budget %d", len(out), askAIContextChars)
	}
	if !strings.Contains(out, "-J") {
		t.Error("expected the newest line (marker J) to survive the trim")
	}
	if strings.Contains(out, "-A") {
		t.Error("expected the oldest line (marker A) to be trimmed")
	}
}

func TestFormatTranscriptKeepsLastLineEvenOverBudget(t *testing.T) {
	calls := []*database.Call{
		{ID: 1, Timestamp: 1700000000, Transcription: strings.Repeat("x", askAIContextChars*2)},
	}
	out := formatTranscript(calls, time.UTC)
	if out == "" {
		t.Error("expected the single remaining line to be kept even though it exceeds the budget alone")
	}
}

func TestFormatTranscriptUnderBudgetKeepsEverything(t *testing.T) {
	calls := []*database.Call{
		{ID: 1, Timestamp: 1700000000, Transcription: "first"},
		{ID: 2, Timestamp: 1700000060, Transcription: "second"},
	}
	out := formatTranscript(calls, time.UTC)
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("expected both lines present, got %q", out)
	}
}
