package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Monterroso/Frinny-Backend/internal/agent"
	agentmock "github.com/Monterroso/Frinny-Backend/internal/agent/mock"
	"github.com/Monterroso/Frinny-Backend/internal/discord"
	"github.com/Monterroso/Frinny-Backend/internal/discord/mock"
	"github.com/Monterroso/Frinny-Backend/internal/feedback"
)

func interaction(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "chan-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "user-1"}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func str(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func num(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	// Discord delivers integers as JSON numbers.
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v)}
}

// ── /ask ─────────────────────────────────────────────────────────────────────

func TestAsk_RelaysToInvoker(t *testing.T) {
	t.Parallel()

	inv := &agentmock.Invoker{Response: agent.Response{
		Status: agent.StatusSuccess, Persona: "Frinny", Mood: "happy", Text: "Flanking makes the target off-guard.",
	}}
	resp := &mock.InteractionResponder{}
	NewAskCommand(context.Background(), inv, []string{"Frinny", "GameMaster"}, time.Second).
		handle(resp, interaction("ask", str("question", " what is flanking? "), str("topic", "combat_turn"), str("persona", "GameMaster")))

	calls := inv.Calls()
	if len(calls) != 1 {
		t.Fatalf("Invoke calls = %d", len(calls))
	}
	req := calls[0]
	if req.UserID != "discord:user-1" || req.ContextID != "discord:chan-1" {
		t.Errorf("identity = %q %q", req.UserID, req.ContextID)
	}
	if req.EventType != "combat_turn" || req.Personality != "GameMaster" || req.Payload["message"] != "what is flanking?" {
		t.Errorf("request = %+v", req)
	}

	first := resp.Responses[0]
	if first.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("first response type = %v, want deferred", first.Type)
	}
	f := resp.LastFollowUp()
	if f == nil || f.Content != "**Frinny:** 😊 Flanking makes the target off-guard." {
		t.Errorf("follow-up = %+v", f)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	t.Parallel()

	inv := &agentmock.Invoker{}
	resp := &mock.InteractionResponder{}
	NewAskCommand(context.Background(), inv, nil, 0).handle(resp, interaction("ask", str("question", "   ")))

	if inv.CallCount() != 0 {
		t.Error("invoker called for empty question")
	}
	if last := resp.LastResponse(); last == nil || !strings.Contains(last.Data.Content, "Ask me something") {
		t.Errorf("response = %+v", last)
	}
}

func TestAsk_DeferFailureSkipsInvoke(t *testing.T) {
	t.Parallel()

	inv := &agentmock.Invoker{}
	resp := &mock.InteractionResponder{Err: errors.New("unknown interaction")}
	NewAskCommand(context.Background(), inv, nil, 0).handle(resp, interaction("ask", str("question", "hi")))

	if inv.CallCount() != 0 {
		t.Error("invoker called after failed defer")
	}
}

func TestAsk_TimeoutBoundsTurn(t *testing.T) {
	t.Parallel()

	inv := &agentmock.Invoker{InvokeFunc: func(ctx context.Context, _ agent.Request) agent.Response {
		if _, ok := ctx.Deadline(); !ok {
			return agent.Response{Status: agent.StatusError, Error: "no deadline"}
		}
		return agent.Response{Status: agent.StatusSuccess, Text: "ok"}
	}}
	resp := &mock.InteractionResponder{}
	NewAskCommand(context.Background(), inv, nil, time.Minute).handle(resp, interaction("ask", str("question", "hi")))

	if f := resp.LastFollowUp(); f == nil || f.Content != "ok" {
		t.Errorf("follow-up = %+v", f)
	}
}

func TestAsk_Definition(t *testing.T) {
	t.Parallel()

	def := NewAskCommand(context.Background(), &agentmock.Invoker{}, []string{"Frinny", "GameMaster"}, 0).Definition()
	if def.Name != "ask" || len(def.Options) != 3 || !def.Options[0].Required {
		t.Fatalf("definition = %+v", def)
	}
	if !def.Options[2].Autocomplete {
		t.Error("persona option should autocomplete")
	}
}

func TestAsk_AutocompletePersona(t *testing.T) {
	t.Parallel()

	r := discord.NewCommandRouter()
	if err := NewAskCommand(context.Background(), &agentmock.Invoker{}, []string{"Frinny", "GameMaster"}, 0).Register(r); err != nil {
		t.Fatalf("Register: %v", err)
	}
	i := interaction("ask", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "persona", Type: discordgo.ApplicationCommandOptionString, Value: "game", Focused: true,
	})
	i.Type = discordgo.InteractionApplicationCommandAutocomplete

	resp := &mock.InteractionResponder{}
	r.Handle(resp, i)

	last := resp.LastResponse()
	if last == nil || last.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Fatalf("response = %+v", last)
	}
	if len(last.Data.Choices) != 1 || last.Data.Choices[0].Name != "GameMaster" {
		t.Errorf("choices = %+v", last.Data.Choices)
	}
}

func TestAsk_LongAnswerIsSplit(t *testing.T) {
	t.Parallel()

	para := strings.Repeat("Strike twice, then step. ", 60)
	inv := &agentmock.Invoker{Response: agent.Response{Status: agent.StatusSuccess, Text: para + "\n\n" + para}}
	resp := &mock.InteractionResponder{}
	NewAskCommand(context.Background(), inv, nil, 0).handle(resp, interaction("ask", str("question", "tactics?")))

	if n := len(resp.FollowUps); n < 2 {
		t.Fatalf("follow-ups = %d, want the answer split", n)
	}
	for _, f := range resp.FollowUps {
		if len([]rune(f.Content)) > discord.MaxMessageLength {
			t.Errorf("follow-up of %d characters exceeds the limit", len([]rune(f.Content)))
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp agent.Response
		want string
	}{
		{"plain", agent.Response{Status: agent.StatusSuccess, Text: "hi"}, "hi"},
		{"mood and persona", agent.Response{Status: agent.StatusSuccess, Persona: "GameMaster", Mood: "thinking", Text: "Hmm."}, "**GameMaster:** 🤔 Hmm."},
		{"default mood has no emoji", agent.Response{Status: agent.StatusSuccess, Mood: "default", Text: "hi"}, "hi"},
		{"error text", agent.Response{Status: agent.StatusError, Mood: "confused", Text: "Oops!"}, "😕 Oops!"},
		{"error without text", agent.Response{Status: agent.StatusError, Error: "failed"}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Format(tt.resp); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ── /feedback ────────────────────────────────────────────────────────────────

type failingSink struct{}

func (failingSink) Save(context.Context, feedback.Entry) error { return errors.New("disk full") }

func TestFeedback_Saves(t *testing.T) {
	t.Parallel()

	sink := &feedback.MemoryStore{}
	resp := &mock.InteractionResponder{}
	NewFeedbackCommand(context.Background(), sink).handle(resp, interaction("feedback", num("rating", 4), str("comment", " love the puns ")))

	got := sink.Entries()
	if len(got) != 1 {
		t.Fatalf("entries = %d", len(got))
	}
	e := got[0]
	if e.Rating != 4 || e.Comment != "love the puns" || e.Source != feedback.SourceDiscord || e.UserID != "discord:user-1" {
		t.Errorf("entry = %+v", e)
	}
	if last := resp.LastResponse(); last == nil || last.Data.Content != "Thanks for the feedback! (4/5)" {
		t.Errorf("response = %+v", last)
	}
}

func TestFeedback_ClampsRating(t *testing.T) {
	t.Parallel()

	sink := &feedback.MemoryStore{}
	NewFeedbackCommand(context.Background(), sink).handle(&mock.InteractionResponder{}, interaction("feedback", num("rating", 9)))
	if got := sink.Entries(); len(got) != 1 || got[0].Rating != 5 {
		t.Errorf("entries = %+v", got)
	}
}

func TestFeedback_SinkFailure(t *testing.T) {
	t.Parallel()

	resp := &mock.InteractionResponder{}
	NewFeedbackCommand(context.Background(), failingSink{}).handle(resp, interaction("feedback", num("rating", 3)))
	if last := resp.LastResponse(); last == nil || !strings.Contains(last.Data.Content, "Failed to record feedback") {
		t.Errorf("response = %+v", last)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r := discord.NewCommandRouter()
	if err := NewAskCommand(context.Background(), &agentmock.Invoker{}, nil, 0).Register(r); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if err := NewFeedbackCommand(context.Background(), &feedback.MemoryStore{}).Register(r); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	cmds := r.ApplicationCommands()
	if len(cmds) != 2 || cmds[0].Name != "ask" || cmds[1].Name != "feedback" {
		t.Errorf("commands = %v", cmds)
	}
	if err := NewFeedbackCommand(context.Background(), &feedback.MemoryStore{}).Register(r); err == nil {
		t.Error("duplicate registration should fail")
	}
}
