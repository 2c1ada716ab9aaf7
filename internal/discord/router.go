package discord

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for slash command, button, and modal handlers.
type HandlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches Discord interactions to registered handlers. It
// is a trimmed version of a general slash-command router: this bot only
// needs one slash command (/ask) plus per-talkgroup buttons and the Ask AI
// modal, so autocomplete routing is not carried.
type CommandRouter struct {
	mu              sync.RWMutex
	commands        map[string]commandEntry
	components      map[string]HandlerFunc
	componentPrefix map[string]HandlerFunc
	modals          map[string]HandlerFunc
	modalPrefix     map[string]HandlerFunc
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		commands:        make(map[string]commandEntry),
		components:      make(map[string]HandlerFunc),
		componentPrefix: make(map[string]HandlerFunc),
		modals:          make(map[string]HandlerFunc),
		modalPrefix:     make(map[string]HandlerFunc),
	}
}

// RegisterCommand registers a handler for a top-level slash command.
func (r *CommandRouter) RegisterCommand(name string, cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = commandEntry{command: cmd, handler: handler}
}

// RegisterComponentPrefix registers a handler for any message component
// whose custom_id starts with prefix. The Ask AI button uses a dynamic
// per-talkgroup suffix, so prefix matching is how it is routed (Listen Live
// is a link button and never produces an interaction).
func (r *CommandRouter) RegisterComponentPrefix(prefix string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.componentPrefix[prefix] = handler
}

// RegisterModal registers a handler for a modal submit interaction with an
// exact custom_id.
func (r *CommandRouter) RegisterModal(customID string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modals[customID] = handler
}

// RegisterModalPrefix registers a handler for any modal submit whose
// custom_id starts with prefix, for modals that carry extra state (like a
// talkgroup id) appended to their custom_id.
func (r *CommandRouter) RegisterModalPrefix(prefix string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modalPrefix[prefix] = handler
}

// ApplicationCommands returns the top-level command definitions for
// registration with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var cmds []*discordgo.ApplicationCommand
	for _, entry := range r.commands {
		if entry.command != nil {
			cmds = append(cmds, entry.command)
		}
	}
	return cmds
}

// Handle dispatches an interaction to the appropriate handler.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.handleApplicationCommand(s, i)
	case discordgo.InteractionMessageComponent:
		r.handleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		r.handleModal(s, i)
	}
}

func (r *CommandRouter) handleApplicationCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		RespondEphemeral(s, i, "Unknown command.")
		return
	}
	entry.handler(s, i)
}

func (r *CommandRouter) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	r.mu.RLock()
	var handler HandlerFunc
	var ok bool
	for prefix, h := range r.componentPrefix {
		if strings.HasPrefix(customID, prefix) {
			handler, ok = h, true
			break
		}
	}
	r.mu.RUnlock()

	if !ok {
		RespondEphemeral(s, i, "Unknown component.")
		return
	}
	handler(s, i)
}

func (r *CommandRouter) handleModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.ModalSubmitData().CustomID

	r.mu.RLock()
	handler, ok := r.modals[customID]
	if !ok {
		for prefix, h := range r.modalPrefix {
			if strings.HasPrefix(customID, prefix) {
				handler, ok = h, true
				break
			}
		}
	}
	r.mu.RUnlock()

	if !ok {
		RespondEphemeral(s, i, "Unknown modal.")
		return
	}
	handler(s, i)
}
