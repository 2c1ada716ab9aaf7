package storage

import (
	"testing"
	"time"
)

func TestGenerateAndParseKeyRoundTrip(t *testing.T) {
	cases := []KeyMeta{
		{
			Timestamp: time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC),
			System:    "metro_pd",
			Talkgroup: "52198",
			Source:    "1234567",
			Ext:       "wav",
		},
		{
			Timestamp: time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
			System:    "county",
			Talkgroup: "100",
			Source:    "0",
			Ext:       "m4a",
		},
	}

	for _, want := range cases {
		key := GenerateKey(want)
		got, err := ParseKey(key)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", key, err)
		}
		if !got.Timestamp.Equal(want.Timestamp) || got.System != want.System ||
			got.Talkgroup != want.Talkgroup || got.Source != want.Source || got.Ext != want.Ext {
			t.Errorf("round trip mismatch: got %+v, want %+v (key=%q)", got, want, key)
		}
	}
}

func TestGenerateKeyFormat(t *testing.T) {
	key := GenerateKey(KeyMeta{
		Timestamp: time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC),
		System:    "metro",
		Talkgroup: "52198",
		Source:    "1234567",
		Ext:       ".wav",
	})
	want := "20260305_143000_metro_52198_TO_52198_FROM_1234567.wav"
	if key != want {
		t.Errorf("GenerateKey = %q, want %q", key, want)
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	for _, bad := range []string{
		"not_a_key.wav",
		"20260305_143000_metro_52198_FROM_1234567.wav",
		"",
	} {
		if _, err := ParseKey(bad); err == nil {
			t.Errorf("ParseKey(%q): expected error, got nil", bad)
		}
	}
}
