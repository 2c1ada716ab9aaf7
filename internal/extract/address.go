// Package extract implements the address extractor and geocoder of
// spec.md §4.3: an LLM pulls a street address out of a dispatch transcript,
// a deterministic pipeline normalises it, and a geocoding provider resolves
// it to coordinates with a set of acceptance rules that reject low-quality
// matches.
package extract

import (
	"regexp"
	"strings"
)

// sentinel is the literal string the extraction prompt forces the model to
// return when no address is present.
const sentinel = "No address found"

var (
	thinkBlockRe  = regexp.MustCompile(`(?is)<think>.*?</think>`)
	parenRe       = regexp.MustCompile(`\([^)]*\)`)
	digitCommaRe  = regexp.MustCompile(`(\d)[,-](\d)`)
	trailingSpace = regexp.MustCompile(`[ \t]+`)
)

// streetAbbrev normalises common street-type spellings. Applied
// case-insensitively as a whole-word match; the list is alphabetical, and
// since no full spelling is a whole word of another, order does not matter.
var streetAbbrev = []struct {
	full  string
	short string
}{
	{"Avenue", "Ave"},
	{"Boulevard", "Blvd"},
	{"Circle", "Cir"},
	{"Court", "Ct"},
	{"Drive", "Dr"},
	{"Expressway", "Expy"},
	{"Highway", "Hwy"},
	{"Lane", "Ln"},
	{"Parkway", "Pkwy"},
	{"Place", "Pl"},
	{"Road", "Rd"},
	{"Square", "Sq"},
	{"Street", "St"},
	{"Terrace", "Ter"},
	{"Trail", "Trl"},
}

// usStateAbbrev is used to decide whether a normalised address already
// carries a state, so step 7 knows whether to append one.
var usStateAbbrev = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true,
}

// normalizeAddress implements spec.md §4.3's seven post-processing steps in
// order. An empty return means "no usable address" (sentinel, or the raw
// text reduced to nothing useful).
func normalizeAddress(raw, defaultState string) string {
	// 1. Strip <think>...</think>.
	s := thinkBlockRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)

	// 2. Sentinel check.
	if isSentinel(s) {
		return ""
	}

	// 3. Remove parenthesised comments and "Note:" lines.
	s = parenRe.ReplaceAllString(s, "")
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "Note:") {
			continue
		}
		kept = append(kept, l)
	}
	s = strings.TrimSpace(strings.Join(kept, "\n"))
	if s == "" {
		return ""
	}

	// 4. Collapse multi-line/over-long responses: prefer whichever is
	// shorter of the first line or the first three comma-segments.
	if strings.Contains(s, "\n") || strings.Count(s, ",") > 3 {
		firstLine := strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
		segs := strings.Split(s, ",")
		limit := 3
		if len(segs) < limit {
			limit = len(segs)
		}
		threeSegs := strings.TrimSpace(strings.Join(segs[:limit], ","))
		if len(threeSegs) > 0 && len(threeSegs) < len(firstLine) {
			s = threeSegs
		} else {
			s = firstLine
		}
	}

	// 5. Delete commas/hyphens between digits ("12,325" -> "12325").
	for digitCommaRe.MatchString(s) {
		s = digitCommaRe.ReplaceAllString(s, "$1$2")
	}

	// 6. Normalise street-type abbreviations.
	for _, ab := range streetAbbrev {
		s = replaceWholeWord(s, ab.full, ab.short)
	}

	s = strings.TrimSpace(trailingSpace.ReplaceAllString(s, " "))
	if s == "" || isSentinel(s) {
		return ""
	}

	// 7. Append state if absent.
	if defaultState != "" && !hasState(s) {
		s = s + ", " + defaultState
	}

	return s
}

func isSentinel(s string) bool {
	return strings.EqualFold(strings.TrimSpace(strings.Trim(s, ".")), sentinel)
}

func hasState(s string) bool {
	fields := regexp.MustCompile(`[,\s]+`).Split(s, -1)
	for _, f := range fields {
		if usStateAbbrev[strings.ToUpper(f)] {
			return true
		}
	}
	return false
}

func replaceWholeWord(s, word, repl string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.ReplaceAllString(s, repl)
}
