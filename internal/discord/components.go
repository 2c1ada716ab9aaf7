package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const askAIButtonPrefix = "askai_button:"
const askAIModalPrefix = "askai_modal:"

// buildButtons returns the two always-present buttons spec.md §4.4
// requires on every coalesced embed: a link button to the live map scoped
// to the talkgroup, and a button that opens the Ask AI modal.
func buildButtons(publicDomain, talkgroupID string) []discordgo.MessageComponent {
	listenURL := "https://example.invalid/"
	if publicDomain != "" {
		listenURL = fmt.Sprintf("https://%s/?tg=%s", publicDomain, talkgroupID)
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label: "Listen Live",
					Style: discordgo.LinkButton,
					URL:   listenURL,
				},
				discordgo.Button{
					Label:    "Ask AI",
					Style:    discordgo.PrimaryButton,
					CustomID: askAIButtonPrefix + talkgroupID,
				},
			},
		},
	}
}
