package storage

import (
	"fmt"
	"strings"
	"time"
)

// KeyMeta is the (timestamp, system, talkgroup, source, ext) quintuple a
// stored audio key is derived from (spec.md §4.1).
type KeyMeta struct {
	Timestamp   time.Time
	System      string
	Talkgroup   string
	Source      string
	Ext         string
}

// GenerateKey builds the content-addressed key
// "YYYYMMDD_HHMMSS_<system>_<tg>_TO_<tg>_FROM_<src>.<ext>" (spec.md §4.1).
// The talkgroup appears twice (as both the "TO" and addressed talkgroup)
// because upstream dialects carry only a single destination talkgroup; the
// duplication keeps the key shape compatible with recorders that emit a
// distinct source/destination pair.
func GenerateKey(m KeyMeta) string {
	ts := m.Timestamp.UTC().Format("20060102_150405")
	ext := strings.TrimPrefix(m.Ext, ".")
	return fmt.Sprintf("%s_%s_%s_TO_%s_FROM_%s.%s",
		ts, m.System, m.Talkgroup, m.Talkgroup, m.Source, ext)
}

// ParseKey recovers the quintuple from a key built by GenerateKey. It
// satisfies the round-trip law in spec.md §8: parse(generate(meta)) == meta.
func ParseKey(key string) (KeyMeta, error) {
	base := key
	ext := ""
	if i := strings.LastIndex(key, "."); i >= 0 {
		base, ext = key[:i], key[i+1:]
	}

	parts := strings.Split(base, "_")
	// parts: [date, time, system..., tg, "TO", tg, "FROM", source...]
	fromIdx := -1
	for i, p := range parts {
		if p == "FROM" {
			fromIdx = i
			break
		}
	}
	if fromIdx < 0 || fromIdx+1 >= len(parts) {
		return KeyMeta{}, fmt.Errorf("storage: key %q missing FROM marker", key)
	}
	toKeywordIdx := fromIdx - 2
	tgIdx := fromIdx - 3
	if tgIdx < 2 || parts[toKeywordIdx] != "TO" {
		return KeyMeta{}, fmt.Errorf("storage: key %q does not match the generated format", key)
	}

	dateStr, timeStr := parts[0], parts[1]
	ts, err := time.ParseInLocation("20060102 150405", dateStr+" "+timeStr, time.UTC)
	if err != nil {
		return KeyMeta{}, fmt.Errorf("storage: key %q has unparseable timestamp: %w", key, err)
	}

	system := strings.Join(parts[2:tgIdx], "_")
	talkgroup := parts[tgIdx]
	source := strings.Join(parts[fromIdx+1:], "_")

	return KeyMeta{
		Timestamp: ts,
		System:    system,
		Talkgroup: talkgroup,
		Source:    source,
		Ext:       ext,
	}, nil
}
