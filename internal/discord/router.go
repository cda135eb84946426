package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc answers one interaction.
type HandlerFunc func(s Responder, i *discordgo.InteractionCreate)

// Command is a slash command: the definition sent to Discord, the handler
// for invocations and, when any option sets Autocomplete, the handler that
// suggests values while the user types.
type Command struct {
	Definition   *discordgo.ApplicationCommand
	Handle       HandlerFunc
	Autocomplete HandlerFunc
}

// CommandRouter dispatches interactions to registered commands by name.
type CommandRouter struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{commands: make(map[string]Command)}
}

// Register adds c. Names must be unique.
func (r *CommandRouter) Register(c Command) error {
	if c.Definition == nil || c.Definition.Name == "" || c.Handle == nil {
		return errors.New("discord: command needs a named definition and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[c.Definition.Name]; dup {
		return fmt.Errorf("discord: command /%s registered twice", c.Definition.Name)
	}
	r.commands[c.Definition.Name] = c
	return nil
}

// ApplicationCommands returns the definitions sorted by name, ready for a
// bulk overwrite.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, c := range r.commands {
		cmds = append(cmds, c.Definition)
	}
	slices.SortFunc(cmds, func(a, b *discordgo.ApplicationCommand) int { return strings.Compare(a.Name, b.Name) })
	return cmds
}

// Handle dispatches i. A panicking handler is answered with an ephemeral
// apology instead of taking the gateway goroutine down.
func (r *CommandRouter) Handle(s Responder, i *discordgo.InteractionCreate) {
	var autocomplete bool
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
	case discordgo.InteractionApplicationCommandAutocomplete:
		autocomplete = true
	default:
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
		return
	}
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	c, ok := r.commands[name]
	r.mu.RUnlock()

	switch {
	case !ok && autocomplete:
		RespondChoices(s, i, nil)
		return
	case !ok:
		slog.Warn("discord: unknown command", "name", name)
		RespondEphemeral(s, i, "Unknown command.")
		return
	}

	h := c.Handle
	if autocomplete {
		if c.Autocomplete == nil {
			RespondChoices(s, i, nil)
			return
		}
		h = c.Autocomplete
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("discord: command panicked", "name", name, "panic", p)
			if !autocomplete {
				RespondEphemeral(s, i, "Something went wrong while handling /"+name+".")
			}
		}
	}()
	h(s, i)
}
