// Package discord relays Frinny to Discord as slash commands. It owns the
// discordgo.Session lifecycle and routes interactions to registered
// commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token, with or without the "Bot " prefix.
	Token string

	// GuildID scopes command registration to one guild, which applies
	// instantly. Empty registers global commands.
	GuildID string
}

// Responder is the part of [discordgo.Session] that handlers answer
// interactions through.
type Responder interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Responder = (*discordgo.Session)(nil)

// Bot is a gateway connection plus the commands it serves.
type Bot struct {
	session *discordgo.Session
	router  *CommandRouter
	guildID string

	mu         sync.Mutex
	registered []*discordgo.ApplicationCommand
	closeOnce  sync.Once
}

// New prepares a bot. No connection is made until [Bot.Run].
func New(cfg Config) (*Bot, error) {
	token := strings.TrimSpace(strings.TrimPrefix(cfg.Token, "Bot "))
	if token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	// Slash commands arrive without privileged intents.
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{session: session, router: NewCommandRouter(), guildID: cfg.GuildID}
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	return b, nil
}

// Router returns the command router. Commands must be registered before
// [Bot.Run].
func (b *Bot) Router() *CommandRouter { return b.router }

// Run connects, publishes the registered commands and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	appID := b.session.State.User.ID

	cmds := b.router.ApplicationCommands()
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
	if err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	b.mu.Lock()
	b.registered = registered
	b.mu.Unlock()
	slog.Info("discord relay online", "user", b.session.State.User.Username, "commands", len(registered), "guild_id", b.guildID)

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects. Guild commands are removed on the way out; global
// commands stay registered since Discord takes up to an hour to
// propagate them again.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.guildID != "" && b.session.State != nil && b.session.State.User != nil {
			appID := b.session.State.User.ID
			for _, cmd := range b.registered {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
	})
	return closeErr
}

// UserID returns the id of the user behind i: the guild member in a
// server, the user in a direct message.
func UserID(i *discordgo.InteractionCreate) string {
	switch {
	case i == nil || i.Interaction == nil:
		return ""
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	}
	return ""
}
