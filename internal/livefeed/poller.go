package livefeed

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/poisonednumber/scanner-map/internal/database"
	"github.com/poisonednumber/scanner-map/internal/llm"
)

const placeholderText = "[Transcription Pending...]"

// incidentCategories is the fixed enum the map loop's one-time classifier
// must choose from (spec.md §4.5: "exactly one of a fixed enum ... or
// OTHER"). Chosen to cover the common public-safety dispatch categories;
// spec.md leaves the exact member list as an Open Question.
var incidentCategories = []string{"FIRE", "MEDICAL", "TRAFFIC", "CRIME", "HAZMAT", "UTILITY", "OTHER"}

const classifySystemPrompt = "Classify this public-safety dispatch transcript into exactly one category. Respond with only the category word, nothing else. Categories: " +
	"FIRE, MEDICAL, TRAFFIC, CRIME, HAZMAT, UTILITY, OTHER."

// pendingState tracks, per call id, when a loop first saw it without a
// transcription, so the 10s placeholder wait (spec.md §4.5) can be timed
// and so a placeholder is emitted at most once per call.
type pendingState struct {
	firstSeen       time.Time
	placeholderSent bool
}

// Poller runs the map and feed loops. Each loop owns its own watermark and
// pending-call state; they never share state, matching spec.md §4.5's
// "each tracking its own watermark" requirement.
type Poller struct {
	db         *database.DB
	bus        *Bus
	classifier llm.Provider // nil disables map-loop categorization, not the loop itself

	mapPollInterval  time.Duration
	feedPollInterval time.Duration
	placeholderWait  time.Duration
	batchSize        int

	log zerolog.Logger
}

func NewPoller(db *database.DB, bus *Bus, classifier llm.Provider, mapPollInterval, feedPollInterval, placeholderWait time.Duration, batchSize int, log zerolog.Logger) *Poller {
	return &Poller{
		db:               db,
		bus:              bus,
		classifier:       classifier,
		mapPollInterval:  mapPollInterval,
		feedPollInterval: feedPollInterval,
		placeholderWait:  placeholderWait,
		batchSize:        batchSize,
		log:              log,
	}
}

// Run starts both polling loops and blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	go p.loop(ctx, "map", p.mapPollInterval, true, EventNewCall, p.classifyOnFirstEmission)
	go p.loop(ctx, "feed", p.feedPollInterval, false, EventLiveFeedUpdate, nil)
	<-ctx.Done()
}

type onEmit func(ctx context.Context, c *database.Call)

func (p *Poller) loop(ctx context.Context, name string, interval time.Duration, requireCoords bool, evType EventType, emit onEmit) {
	var watermark int64
	pending := make(map[int64]*pendingState)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, name, &watermark, pending, requireCoords, evType, emit)
		}
	}
}

func (p *Poller) poll(ctx context.Context, name string, watermark *int64, pending map[int64]*pendingState, requireCoords bool, evType EventType, emit onEmit) {
	rows, err := p.db.CallsAfterID(ctx, *watermark, p.batchSize, requireCoords)
	if err != nil {
		p.log.Error().Err(err).Str("loop", name).Msg("live feed poll failed")
		return
	}

	for _, c := range rows {
		if strings.TrimSpace(c.Transcription) == "" {
			if c.TranscribedAt == nil {
				// Genuinely still in flight: apply the placeholder-wait
				// policy and stop here so later calls don't get published
				// out of order ahead of this one.
				state, seen := pending[c.ID]
				if !seen {
					pending[c.ID] = &pendingState{firstSeen: time.Now()}
					break
				}
				if time.Since(state.firstSeen) < p.placeholderWait {
					break
				}
				if !state.placeholderSent {
					placeholder := *c
					placeholder.Transcription = placeholderText
					p.bus.Publish(Event{Type: evType, Call: &placeholder})
					state.placeholderSent = true
				}
				break
			}

			// Terminal: the transcription pipeline is done with this call
			// and it stayed empty, so nothing will ever arrive for it.
			// Surface it once and advance past it instead of blocking every
			// later call behind a watermark that could otherwise never move.
			delete(pending, c.ID)
			placeholder := *c
			placeholder.Transcription = placeholderText
			p.bus.Publish(Event{Type: evType, Call: &placeholder})
			*watermark = c.ID
			continue
		}

		delete(pending, c.ID)
		if emit != nil {
			emit(ctx, c)
		}
		p.bus.Publish(Event{Type: evType, Call: c})
		*watermark = c.ID
	}
}

// classifyOnFirstEmission implements the map loop's one-time LLM
// classification (spec.md §4.5), persisting the result so later polls
// never re-classify the same call.
func (p *Poller) classifyOnFirstEmission(ctx context.Context, c *database.Call) {
	if p.classifier == nil || c.Category != nil {
		return
	}
	raw, err := p.classifier.Complete(ctx, classifySystemPrompt, c.Transcription)
	if err != nil {
		p.log.Warn().Err(err).Int64("call_id", c.ID).Msg("live feed classification failed")
		return
	}
	category := normalizeCategory(raw)
	if err := p.db.UpdateCategory(ctx, c.ID, category); err != nil {
		p.log.Warn().Err(err).Int64("call_id", c.ID).Msg("failed to persist live feed category")
		return
	}
	c.Category = &category
}

func normalizeCategory(raw string) string {
	clean := strings.ToUpper(strings.TrimSpace(raw))
	for _, cat := range incidentCategories {
		if clean == cat || strings.Contains(clean, cat) {
			return cat
		}
	}
	return "OTHER"
}
