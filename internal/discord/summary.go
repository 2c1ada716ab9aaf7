package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// PostSummary edits the pinned periodic-summary message in channelID in
// place, or creates and pins one on first use (spec.md §4.6 step 5: "edit-
// in-place on a pinned message"). Failures evict the cached message id so
// the next tick starts fresh, the same recovery policy as the per-talkgroup
// coalescer (spec.md §7 FanoutTransient).
func (b *Bot) PostSummary(ctx context.Context, channelID, title, body string) error {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: body,
		Color:       embedColor,
	}

	if messageID, ok := b.coalescer.state.summaryMessage(); ok {
		embeds := []*discordgo.MessageEmbed{embed}
		_, err := b.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel: channelID,
			ID:      messageID,
			Embeds:  &embeds,
		})
		if err == nil {
			return nil
		}
		b.log.Warn().Err(err).Str("channel", channelID).Msg("discord: summary edit failed, posting fresh")
		b.coalescer.state.evictSummaryMessage()
	}

	msg, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Embed: embed})
	if err != nil {
		return fmt.Errorf("discord: send summary message: %w", err)
	}
	if err := b.session.ChannelMessagePin(channelID, msg.ID); err != nil {
		b.log.Warn().Err(err).Str("channel", channelID).Msg("discord: failed to pin summary message")
	}
	b.coalescer.state.setSummaryMessage(msg.ID)
	return nil
}
