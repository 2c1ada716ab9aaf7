// Package discord implements the Discord per-talkgroup message coalescer
// (spec.md §4.4): it owns the discordgo.Session lifecycle, resolves
// category/channel per talkgroup, coalesces transcription lines into a
// single edited embed within a cooldown window, and answers the "Ask AI"
// modal with a bounded-window question over a talkgroup's transcripts.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// messageCacheGCInterval and messageCacheMaxAge implement spec.md §5's
// "message-cache GC task every hour".
const (
	messageCacheGCInterval = time.Hour
	messageCacheMaxAge     = time.Hour
)

// Config holds the Discord bot's own configuration, kept separate from the
// process-wide config.Config so this package can be built and tested
// without importing it.
type Config struct {
	Token        string
	GuildID      string
	PublicDomain string // used to build the "Listen Live" link button URL
}

// Bot owns the Discord gateway connection and the fan-out state built on
// top of it.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	guildID   string
	router    *CommandRouter
	coalescer *Coalescer
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
	log       zerolog.Logger
}

// New creates a Bot and opens its gateway connection. The returned Bot is
// not yet posting commands to Discord; call Run for that. asker may be nil,
// in which case the Ask AI button and /ask command respond with a
// not-configured message instead of failing to register.
func New(cfg Config, asker AskAI, log zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	router := NewCommandRouter()
	state := NewFanoutState()
	coalescer := NewCoalescer(session, state, cfg.GuildID, cfg.PublicDomain, log.With().Str("component", "coalescer").Logger())

	b := &Bot{
		session:   session,
		guildID:   cfg.GuildID,
		router:    router,
		coalescer: coalescer,
		log:       log,
	}

	registerAskAI(router, asker, log)

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Coalescer returns the per-channel message coalescer (spec.md §4.4).
func (b *Bot) Coalescer() *Coalescer {
	return b.coalescer
}

// Run registers slash commands with the Discord API and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		b.log.Info().Int("count", len(registered)).Msg("discord commands registered")
	}

	go b.runMessageCacheGC(ctx)

	<-ctx.Done()
	return ctx.Err()
}

func (b *Bot) runMessageCacheGC(ctx context.Context) {
	ticker := time.NewTicker(messageCacheGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.coalescer.state.gcMessages(messageCacheMaxAge); n > 0 {
				b.log.Info().Int("evicted", n).Msg("discord message cache gc")
			}
		}
	}
}

// Close disconnects from Discord and unregisters commands.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					b.log.Warn().Err(err).Str("command", cmd.Name).Msg("failed to delete discord command")
				}
			}
		}
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}
		b.log.Info().Msg("discord bot closed")
	})
	return closeErr
}
