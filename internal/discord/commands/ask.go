package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Monterroso/Frinny-Backend/internal/agent"
	"github.com/Monterroso/Frinny-Backend/internal/discord"
	"github.com/Monterroso/Frinny-Backend/internal/mood"
)

// DefaultAskTimeout bounds one /ask turn.
const DefaultAskTimeout = 2 * time.Minute

// Topics offered by /ask, mapped to agent event types.
var topics = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Rules question", Value: "query"},
	{Name: "Character creation", Value: "character_creation"},
	{Name: "Level up", Value: "level_up"},
	{Name: "Combat turn", Value: "combat_turn"},
}

var moodEmoji = map[mood.Mood]string{
	mood.Happy:    "😊",
	mood.Thinking: "🤔",
	mood.Confused: "😕",
	mood.Scared:   "😨",
}

// AskCommand relays /ask questions to the agent. Each user has one
// conversation per channel.
type AskCommand struct {
	invoker  agent.Invoker
	personas []string
	base     context.Context
	timeout  time.Duration
}

// NewAskCommand creates an AskCommand. base bounds every turn's lifetime;
// personas are offered as choices.
func NewAskCommand(base context.Context, inv agent.Invoker, personas []string, timeout time.Duration) *AskCommand {
	if timeout <= 0 {
		timeout = DefaultAskTimeout
	}
	return &AskCommand{invoker: inv, personas: personas, base: base, timeout: timeout}
}

// Register registers /ask with the router.
func (c *AskCommand) Register(router *discord.CommandRouter) error {
	return router.Register(discord.Command{
		Definition:   c.Definition(),
		Handle:       c.handle,
		Autocomplete: c.autocomplete,
	})
}

// Definition returns the /ask ApplicationCommand for Discord registration.
func (c *AskCommand) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "ask",
		Description: "Ask Frinny about Pathfinder 2E",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "question",
				Description: "What do you want to know?",
				Required:    true,
				MaxLength:   1500,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "topic",
				Description: "What kind of help you need",
				Choices:     topics,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "persona",
				Description:  "Who answers (only for a new conversation)",
				Autocomplete: len(c.personas) > 0,
			},
		},
	}
}

// autocomplete suggests personas whose name contains what was typed.
func (c *AskCommand) autocomplete(s discord.Responder, i *discordgo.InteractionCreate) {
	var typed string
	for _, o := range i.ApplicationCommandData().Options {
		if o.Focused && o.Name == "persona" {
			typed = strings.ToLower(strings.TrimSpace(o.StringValue()))
		}
	}
	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, p := range c.personas {
		if strings.Contains(strings.ToLower(p), typed) {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: p, Value: p})
		}
	}
	discord.RespondChoices(s, i, choices)
}

func (c *AskCommand) handle(s discord.Responder, i *discordgo.InteractionCreate) {
	opts := options(i)
	question := strings.TrimSpace(stringOpt(opts, "question"))
	if question == "" {
		discord.RespondEphemeral(s, i, "Ask me something first!")
		return
	}
	user := discord.UserID(i)
	if user == "" {
		discord.RespondEphemeral(s, i, "I couldn't tell who is asking.")
		return
	}
	if err := discord.DeferReply(s, i); err != nil {
		slog.Warn("discord: failed to defer /ask", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	defer cancel()

	resp := c.invoker.Invoke(ctx, agent.Request{
		EventType:   stringOpt(opts, "topic"),
		UserID:      "discord:" + user,
		ContextID:   "discord:" + i.ChannelID,
		Personality: stringOpt(opts, "persona"),
		Payload:     map[string]any{"message": question, "source": "discord"},
	})
	discord.FollowUp(s, i, Format(resp))
}

// Format renders an agent response as a Discord message.
func Format(resp agent.Response) string {
	text := strings.TrimSpace(resp.Text)
	if resp.Status == agent.StatusError && text == "" {
		text = resp.Error
	}
	if e, ok := moodEmoji[mood.Mood(resp.Mood)]; ok {
		text = e + " " + text
	}
	if resp.Persona != "" {
		text = "**" + resp.Persona + ":** " + text
	}
	return text
}
