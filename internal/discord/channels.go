package discord

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// channelNameRe matches anything Discord channel names forbid; everything
// else gets collapsed to a single hyphen.
var channelNameRe = regexp.MustCompile(`[^a-z0-9-]+`)

func channelSlug(s string) string {
	slug := channelNameRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "general"
	}
	if len(slug) > 90 {
		slug = slug[:90]
	}
	return slug
}

// resolveCategory returns the category channel id for a county, creating it
// on first sight and memoising the result (spec.md §4.4: "created on demand
// and memoised").
func (c *Coalescer) resolveCategory(county string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(county))
	if key == "" {
		key = "general"
	}
	if id, ok := c.state.cachedCategory(key); ok {
		return id, nil
	}

	name := channelSlug(county)
	if name == "" {
		name = "general"
	}

	channels, err := c.session.GuildChannels(c.guildID)
	if err != nil {
		return "", fmt.Errorf("discord: list guild channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(ch.Name, name) {
			c.state.cacheCategory(key, ch.ID)
			return ch.ID, nil
		}
	}

	created, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	})
	if err != nil {
		return "", fmt.Errorf("discord: create category %q: %w", name, err)
	}
	c.state.cacheCategory(key, created.ID)
	return created.ID, nil
}

// resolveChannel returns the text channel id for a talkgroup, creating the
// channel (and its county category) on first sight and memoising the
// result.
func (c *Coalescer) resolveChannel(talkgroupID, county, alphaTag string) (string, error) {
	if id, ok := c.state.cachedChannel(talkgroupID); ok {
		return id, nil
	}

	categoryID, err := c.resolveCategory(county)
	if err != nil {
		return "", err
	}

	name := channelSlug(alphaTag)
	if alphaTag == "" {
		name = channelSlug("tg-" + talkgroupID)
	}

	channels, err := c.session.GuildChannels(c.guildID)
	if err != nil {
		return "", fmt.Errorf("discord: list guild channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.ParentID == categoryID && strings.EqualFold(ch.Name, name) {
			c.state.cacheChannel(talkgroupID, ch.ID)
			return ch.ID, nil
		}
	}

	created, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: categoryID,
	})
	if err != nil {
		return "", fmt.Errorf("discord: create channel %q: %w", name, err)
	}
	c.state.cacheChannel(talkgroupID, created.ID)
	return created.ID, nil
}
