package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/poisonednumber/scanner-map/internal/database"
	"github.com/poisonednumber/scanner-map/internal/llm"
)

const minTranscriptLen = 15

const systemPromptTemplate = `You extract a single street address from a public-safety radio dispatch transcript.
The dispatch is for the town of %s.
Respond with EXACTLY ONE of:
  - a single-line street address (include the town and state if known)
  - the literal text: No address found
Do not explain your answer. Do not return a city name alone.`

// Extractor implements spec.md §4.3: gate on (mapped talkgroup, transcript
// length), ask an LLM for an address, normalise it, geocode it, and on
// acceptance persist (lat, lon, formatted_address) plus a hyperlinked
// transcript.
type Extractor struct {
	db           *database.DB
	provider     llm.Provider
	geocoder     Geocoder
	mapped       map[string]bool
	targetCounty map[string]bool
	defaultState string
	log          zerolog.Logger
}

func New(db *database.DB, provider llm.Provider, geocoder Geocoder, mappedTalkgroups, targetCounties map[string]bool, defaultState string, log zerolog.Logger) *Extractor {
	return &Extractor{
		db:           db,
		provider:     provider,
		geocoder:     geocoder,
		mapped:       mappedTalkgroups,
		targetCounty: targetCounties,
		defaultState: defaultState,
		log:          log,
	}
}

// Eligible reports whether a call should be run through extraction at all
// (spec.md §4.3 gating).
func (e *Extractor) Eligible(talkgroupID, transcription string) bool {
	return e.mapped[talkgroupID] && len(strings.TrimSpace(transcription)) >= minTranscriptLen
}

// Process runs the full extraction+geocode+persist pipeline for one call.
// Callers should invoke this only when Eligible returns true; Process itself
// re-checks length/gating as a defensive no-op rather than an error so a
// caller wiring mistake degrades silently instead of failing the call.
func (e *Extractor) Process(ctx context.Context, callID int64, talkgroupID, town, transcription string) {
	if !e.Eligible(talkgroupID, transcription) {
		return
	}

	systemPrompt := fmt.Sprintf(systemPromptTemplate, town)
	raw, err := e.provider.Complete(ctx, systemPrompt, transcription)
	if err != nil {
		e.log.Warn().Err(err).Int64("call_id", callID).Msg("address extraction llm call failed")
		return
	}

	address := normalizeAddress(raw, e.defaultState)
	if address == "" {
		return
	}

	geo, err := e.geocoder.Geocode(ctx, address)
	if err != nil {
		e.log.Warn().Err(err).Int64("call_id", callID).Str("address", address).Msg("geocode request failed")
		return
	}
	if geo == nil || e.rejected(geo) {
		return
	}

	mapURL := fmt.Sprintf("https://www.google.com/maps?q=%f,%f", geo.Lat, geo.Lon)
	rewritten := strings.Replace(transcription, address, fmt.Sprintf("[%s](%s)", address, mapURL), 1)

	if err := e.db.UpdateCoordinates(ctx, callID, geo.Lat, geo.Lon, geo.FormattedAddress, &rewritten); err != nil {
		e.log.Error().Err(err).Int64("call_id", callID).Msg("failed to persist geocoded call")
		return
	}
	e.log.Info().Int64("call_id", callID).Str("address", geo.FormattedAddress).Msg("call geocoded")
}

// rejected implements spec.md §4.3's geocode acceptance rules.
func (e *Extractor) rejected(geo *GeoResult) bool {
	if !geo.HasStreet {
		return true
	}
	if geo.IsBareCityPostcode {
		return true
	}
	if len(e.targetCounty) > 0 && !e.targetCounty[strings.ToLower(geo.County)] {
		return true
	}
	return false
}
