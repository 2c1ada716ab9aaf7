package summarize

import (
	"testing"

	"github.com/poisonednumber/scanner-map/internal/database"
)

func TestPickCandidatesOnePerBucket(t *testing.T) {
	since := int64(0)
	until := int64(400) // 4 buckets of width 100

	calls := []*database.Call{
		{ID: 1, Timestamp: 10, Transcription: "short"},
		{ID: 2, Timestamp: 20, Transcription: "a much longer transmission in bucket zero"},
		{ID: 3, Timestamp: 150, Transcription: "bucket one pick"},
		{ID: 4, Timestamp: 399, Transcription: "bucket three pick"},
	}

	got := pickCandidates(calls, since, until)
	if len(got) != 3 {
		t.Fatalf("expected 3 picks (buckets 0,1,3), got %d", len(got))
	}
	if got[0].ID != 2 {
		t.Errorf("expected bucket 0 to pick the longer call (id=2), got id=%d", got[0].ID)
	}
}

func TestPickCandidatesCapsAtFive(t *testing.T) {
	// Buckets can never exceed summaryBuckets (4) in the current
	// implementation, so this exercises the defensive cap rather than
	// forcing more than 4 picks.
	since := int64(0)
	until := int64(4)
	calls := []*database.Call{
		{ID: 1, Timestamp: 0, Transcription: "a"},
		{ID: 2, Timestamp: 1, Transcription: "b"},
		{ID: 3, Timestamp: 2, Transcription: "c"},
		{ID: 4, Timestamp: 3, Transcription: "d"},
	}
	got := pickCandidates(calls, since, until)
	if len(got) > maxHighlights {
		t.Fatalf("expected at most %d picks, got %d", maxHighlights, len(got))
	}
}

func TestCoerceTimestampNumeric(t *testing.T) {
	ts, ok := coerceTimestamp([]byte(`1700000000`))
	if !ok || ts != 1700000000 {
		t.Fatalf("got (%d, %v), want (1700000000, true)", ts, ok)
	}
}

func TestCoerceTimestampQuotedNumericString(t *testing.T) {
	ts, ok := coerceTimestamp([]byte(`"1700000000"`))
	if !ok || ts != 1700000000 {
		t.Fatalf("got (%d, %v), want (1700000000, true)", ts, ok)
	}
}

func TestCoerceTimestampRFC3339String(t *testing.T) {
	ts, ok := coerceTimestamp([]byte(`"2023-11-14T22:13:20Z"`))
	if !ok || ts != 1700000000 {
		t.Fatalf("got (%d, %v), want (1700000000, true)", ts, ok)
	}
}

func TestCoerceTimestampInvalid(t *testing.T) {
	if _, ok := coerceTimestamp([]byte(`"not a timestamp"`)); ok {
		t.Error("expected invalid timestamp to fail coercion")
	}
}

func TestParseSnapshotStripsThinkBlockAndCodeFence(t *testing.T) {
	raw := "<think>reasoning the model shouldn't expose</think>\n```json\n" +
		`{"summary": "quiet night", "highlights": [{"id": 1, "talk_group": "100", "importance": "low", "description": "routine patrol check", "timestamp": "1700000000"}]}` +
		"\n```"

	snap, err := parseSnapshot(raw)
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}
	if snap.Summary != "quiet night" {
		t.Errorf("summary = %q, want %q", snap.Summary, "quiet night")
	}
	if len(snap.Highlights) != 1 || snap.Highlights[0].Timestamp != 1700000000 {
		t.Fatalf("unexpected highlights: %+v", snap.Highlights)
	}
}

func TestParseSnapshotDropsHighlightWithBadTimestamp(t *testing.T) {
	raw := `{"summary": "s", "highlights": [{"id": 1, "talk_group": "100", "timestamp": "garbage"}]}`
	snap, err := parseSnapshot(raw)
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}
	if len(snap.Highlights) != 0 {
		t.Fatalf("expected bad-timestamp highlight to be dropped, got %+v", snap.Highlights)
	}
}
