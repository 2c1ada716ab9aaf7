package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const embedColor = 0x3498DB

// CallInfo carries the fields the coalescer needs out of a finished Call,
// independent of the database package so this code can be unit tested
// without a live DB.
type CallInfo struct {
	CallID        int64
	TalkgroupID   string
	County        string
	AlphaTag      string
	SourceUnitID  string
	SignalErrors  *int
	SignalSpikes  *int
	Transcription string
	AudioURL      string
}

// Coalescer implements spec.md §4.4's per-channel message coalescer: it
// resolves the target channel for a talkgroup, then applies the decision
// table (new embed / append / evict-and-new) against a cooldown and a
// 4096-char body budget.
type Coalescer struct {
	session      *discordgo.Session
	state        *FanoutState
	guildID      string
	publicDomain string
	cooldown     time.Duration
	bodyBudget   int
	log          zerolog.Logger
}

func NewCoalescer(session *discordgo.Session, state *FanoutState, guildID, publicDomain string, log zerolog.Logger) *Coalescer {
	return &Coalescer{
		session:      session,
		state:        state,
		guildID:      guildID,
		publicDomain: publicDomain,
		cooldown:     15 * time.Second,
		bodyBudget:   4096,
		log:          log,
	}
}

// WithCooldownAndBudget overrides the defaults (COALESCE_COOLDOWN /
// COALESCE_BODY_BUDGET), returning the same Coalescer for chaining.
func (c *Coalescer) WithCooldownAndBudget(cooldown time.Duration, budget int) *Coalescer {
	if cooldown > 0 {
		c.cooldown = cooldown
	}
	if budget > 0 {
		c.bodyBudget = budget
	}
	return c
}

// Publish posts or appends a line for one call to its talkgroup's channel,
// per the spec.md §4.4 decision table. Fan-out errors are recovered
// locally (FanoutTransient in spec.md §7): a failure never blocks the
// pipeline, it just means the cache entry is evicted so the next call opens
// a fresh embed.
func (c *Coalescer) Publish(ctx context.Context, info CallInfo) {
	channelID, err := c.resolveChannel(info.TalkgroupID, info.County, info.AlphaTag)
	if err != nil {
		c.log.Warn().Err(err).Str("talkgroup", info.TalkgroupID).Msg("discord channel resolution failed")
		return
	}

	line := formatLine(info)

	entry, ok := c.state.getEntry(channelID)
	if ok && time.Since(entry.firstSeen) < c.cooldown {
		appended := entry.body + "\n\n" + line
		if len(appended) <= c.bodyBudget {
			if err := c.editEmbed(channelID, entry.messageID, appended, info.TalkgroupID); err != nil {
				c.log.Warn().Err(err).Str("channel", channelID).Msg("discord edit failed, evicting cache entry")
				c.state.evictEntry(channelID)
				c.sendNew(channelID, info, line)
				return
			}
			entry.body = appended
			entry.callIDs = append(entry.callIDs, info.CallID)
			c.state.putEntry(channelID, entry)
			return
		}
		// Would exceed the body budget: do not edit, evict, start fresh.
		c.state.evictEntry(channelID)
	}

	c.sendNew(channelID, info, line)
}

func (c *Coalescer) sendNew(channelID string, info CallInfo, line string) {
	msg, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embed:      buildEmbed(line),
		Components: buildButtons(c.publicDomain, info.TalkgroupID),
	})
	if err != nil {
		c.log.Warn().Err(err).Str("channel", channelID).Msg("discord send failed")
		return
	}
	c.state.putEntry(channelID, &messageCacheEntry{
		messageID: msg.ID,
		channelID: channelID,
		firstSeen: time.Now(),
		body:      line,
		callIDs:   []int64{info.CallID},
	})
}

func (c *Coalescer) editEmbed(channelID, messageID, body, talkgroupID string) error {
	embeds := []*discordgo.MessageEmbed{buildEmbed(body)}
	components := buildButtons(c.publicDomain, talkgroupID)
	_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    channelID,
		ID:         messageID,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

// MessageURL returns the jump-link to the coalesced post currently open in
// a channel, or "" if no message is cached. Exposed so an alert-keyword
// publisher (out of scope here per spec.md §1) can link to the original post.
func (c *Coalescer) MessageURL(channelID string) string {
	entry, ok := c.state.getEntry(channelID)
	if !ok {
		return ""
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", c.guildID, channelID, entry.messageID)
}

func buildEmbed(body string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: body,
		Color:       embedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// formatLine implements spec.md §4.4's line format:
// "**<source-tag>**<signal-quality?>: <transcription> [Audio](<audio-url>)".
func formatLine(info CallInfo) string {
	tag := info.SourceUnitID
	if tag == "" {
		tag = "unknown"
	}

	var quality string
	if info.SignalErrors != nil && info.SignalSpikes != nil {
		quality = fmt.Sprintf(" (errors=%d spikes=%d)", *info.SignalErrors, *info.SignalSpikes)
	}

	text := strings.TrimSpace(info.Transcription)
	if text == "" {
		text = "[no transcription]"
	}

	line := fmt.Sprintf("**%s**%s: %s", tag, quality, text)
	if info.AudioURL != "" {
		line += fmt.Sprintf(" [Audio](%s)", info.AudioURL)
	}
	return line
}
