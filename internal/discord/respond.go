package discord

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// MaxMessageLength is Discord's limit on message content, in characters.
const MaxMessageLength = 2000

// maxChoices is Discord's limit on autocomplete suggestions.
const maxChoices = 25

// RespondEphemeral answers i with a message only the invoking user sees.
func RespondEphemeral(s Responder, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: Truncate(content),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("discord: ephemeral response failed", "err", err)
	}
}

// RespondChoices answers an autocomplete interaction. Extra choices beyond
// Discord's limit are dropped.
func RespondChoices(s Responder, i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) {
	if len(choices) > maxChoices {
		choices = choices[:maxChoices]
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Debug("discord: autocomplete response failed", "err", err)
	}
}

// DeferReply acknowledges a slow command. Discord drops interactions that
// are not answered within three seconds.
func DeferReply(s Responder, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

// FollowUp posts content after a deferred reply, split over as many
// messages as needed. It stops at the first failed message.
func FollowUp(s Responder, i *discordgo.InteractionCreate, content string) {
	for n, part := range Split(content, MaxMessageLength) {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: part}); err != nil {
			slog.Warn("discord: follow-up failed", "part", n, "err", err)
			return
		}
	}
}

// Truncate shortens content to [MaxMessageLength] characters.
func Truncate(content string) string {
	if utf8.RuneCountInString(content) <= MaxMessageLength {
		return content
	}
	r := []rune(content)
	return string(r[:MaxMessageLength-1]) + "…"
}

// Split breaks content into parts of at most limit characters, preferring
// paragraph breaks, then line breaks, then spaces. Empty content yields a
// single empty part so a follow-up is always sent.
func Split(content string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(content) > limit {
		r := []rune(content)
		// One rune past the limit so a separator right at the limit counts.
		window := string(r[:limit+1])
		cut := -1
		for _, sep := range []string{"\n\n", "\n", " "} {
			if idx := strings.LastIndex(window, sep); idx > 0 {
				cut = idx
				break
			}
		}
		if cut < 0 {
			parts = append(parts, string(r[:limit]))
			content = string(r[limit:])
			continue
		}
		parts = append(parts, strings.TrimRight(content[:cut], " \n"))
		content = strings.TrimLeft(content[cut:], " \n")
	}
	return append(parts, content)
}
