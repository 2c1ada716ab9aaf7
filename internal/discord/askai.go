package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const askAICommandName = "ask"

// AskAI answers a bounded-window question about one talkgroup's recent
// transcripts (spec.md §4.6). The concrete implementation (internal/summarize)
// owns the lookback window, transcript formatting, and <think>-block
// stripping; this package only needs the question/answer contract.
type AskAI interface {
	Answer(ctx context.Context, talkgroupID, question string) (string, error)
}

// registerAskAI wires the Ask AI button (opens a modal) and the /ask
// slash command (talkgroup id + question as options) to asker. Both paths
// converge on the same modal-submit and deferred-followup handling.
func registerAskAI(router *CommandRouter, asker AskAI, log zerolog.Logger) {
	router.RegisterComponentPrefix(askAIButtonPrefix, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		talkgroupID := strings.TrimPrefix(i.MessageComponentData().CustomID, askAIButtonPrefix)
		openAskAIModal(s, i, talkgroupID, log)
	})

	router.RegisterModalPrefix(askAIModalPrefix, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		talkgroupID := strings.TrimPrefix(i.ModalSubmitData().CustomID, askAIModalPrefix)
		question := modalTextValue(i, "question")
		answerAskAI(s, i, asker, talkgroupID, question, log)
	})

	router.RegisterCommand(askAICommandName, &discordgo.ApplicationCommand{
		Name:        askAICommandName,
		Description: "Ask a question about a talkgroup's recent radio traffic",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "talkgroup",
				Description: "Talkgroup id",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "question",
				Description: "Your question",
				Required:    true,
			},
		},
	}, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		opts := i.ApplicationCommandData().Options
		var talkgroupID, question string
		for _, o := range opts {
			switch o.Name {
			case "talkgroup":
				talkgroupID = o.StringValue()
			case "question":
				question = o.StringValue()
			}
		}
		answerAskAI(s, i, asker, talkgroupID, question, log)
	})
}

// openAskAIModal opens the question-entry modal for a talkgroup; the
// talkgroup id rides along in the modal's custom_id so the submit handler
// doesn't need any server-side pending state.
func openAskAIModal(s *discordgo.Session, i *discordgo.InteractionCreate, talkgroupID string, log zerolog.Logger) {
	err := RespondModal(s, i, &discordgo.InteractionResponseData{
		CustomID: askAIModalCustomID(talkgroupID),
		Title:    "Ask AI",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    "question",
					Label:       "Your question",
					Style:       discordgo.TextInputParagraph,
					Placeholder: "What's happening near downtown?",
					Required:    boolPtr(true),
					MaxLength:   500,
				},
			}},
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("discord: failed to open ask ai modal")
	}
}

func askAIModalCustomID(talkgroupID string) string {
	return askAIModalPrefix + talkgroupID
}

// modalTextValue pulls a single TextInput's value out of a modal submission
// by its custom_id (spec.md §4.4's Ask AI modal has exactly one field).
func modalTextValue(i *discordgo.InteractionCreate, customID string) string {
	for _, row := range i.ModalSubmitData().Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			ti, ok := comp.(*discordgo.TextInput)
			if ok && ti.CustomID == customID {
				return strings.TrimSpace(ti.Value)
			}
		}
	}
	return ""
}

func answerAskAI(s *discordgo.Session, i *discordgo.InteractionCreate, asker AskAI, talkgroupID, question string, log zerolog.Logger) {
	if asker == nil {
		_ = RespondEphemeral(s, i, "Ask AI is not configured on this deployment.")
		return
	}
	if err := DeferReply(s, i); err != nil {
		log.Warn().Err(err).Msg("discord: failed to defer ask ai reply")
		return
	}

	answer, err := asker.Answer(context.Background(), talkgroupID, question)
	if err != nil {
		_ = FollowUp(s, i, fmt.Sprintf("Ask AI failed: %v", err))
		return
	}
	if err := FollowUp(s, i, answer); err != nil {
		log.Warn().Err(err).Msg("discord: failed to send ask ai follow-up")
	}
}
