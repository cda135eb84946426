package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Monterroso/Frinny-Backend/internal/discord"
	"github.com/Monterroso/Frinny-Backend/internal/feedback"
)

// FeedbackCommand handles /feedback by writing an entry to the feedback sink.
type FeedbackCommand struct {
	sink feedback.Sink
	base context.Context
	now  func() time.Time
}

// NewFeedbackCommand creates a FeedbackCommand writing to sink.
func NewFeedbackCommand(base context.Context, sink feedback.Sink) *FeedbackCommand {
	return &FeedbackCommand{sink: sink, base: base, now: time.Now}
}

// Register registers /feedback with the router.
func (fc *FeedbackCommand) Register(router *discord.CommandRouter) error {
	return router.Register(discord.Command{Definition: fc.Definition(), Handle: fc.handle})
}

// Definition returns the /feedback ApplicationCommand for Discord registration.
func (fc *FeedbackCommand) Definition() *discordgo.ApplicationCommand {
	minRating, maxRating := 1.0, 5.0
	return &discordgo.ApplicationCommand{
		Name:        "feedback",
		Description: "Tell us how Frinny is doing",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "rating",
				Description: "1 (poor) to 5 (great)",
				Required:    true,
				MinValue:    &minRating,
				MaxValue:    maxRating,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "comment",
				Description: "What worked? What didn't?",
				MaxLength:   1000,
			},
		},
	}
}

func (fc *FeedbackCommand) handle(s discord.Responder, i *discordgo.InteractionCreate) {
	opts := options(i)
	e := feedback.Entry{
		Timestamp: fc.now(),
		UserID:    "discord:" + discord.UserID(i),
		Source:    feedback.SourceDiscord,
		ContextID: "discord:" + i.ChannelID,
		Rating:    min(max(intOpt(opts, "rating"), 1), 5),
		Comment:   strings.TrimSpace(stringOpt(opts, "comment")),
	}

	ctx, cancel := context.WithTimeout(fc.base, 5*time.Second)
	defer cancel()
	if err := fc.sink.Save(ctx, e); err != nil {
		slog.Error("discord: failed to save feedback", "user_id", e.UserID, "err", err)
		discord.RespondEphemeral(s, i, "Failed to record feedback. Please try again later.")
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Thanks for the feedback! (%d/5)", e.Rating))
}
