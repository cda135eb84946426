package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Monterroso/Frinny-Backend/internal/mcp"
	mcpmock "github.com/Monterroso/Frinny-Backend/internal/mcp/mock"
	"github.com/Monterroso/Frinny-Backend/pkg/provider/llm"
	llmmock "github.com/Monterroso/Frinny-Backend/pkg/provider/llm/mock"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

var prompt = []types.Message{
	{Role: types.RoleSystem, Content: "You are Frinny."},
	{Role: types.RoleUser, Content: "Roll me a d20 and check the flanking rule."},
}

func toolCall(id, name, args string) types.ToolCall {
	return types.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestNewToolLoop_NilProvider(t *testing.T) {
	t.Parallel()
	if _, err := NewToolLoop(nil, nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestToolLoop_PlainAnswer(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Squeak! Hello."}}
	host := &mcpmock.Host{ToolsResult: []types.ToolDefinition{{Name: "roll_dice"}}}
	loop, _ := NewToolLoop(p, host, WithTemperature(0.7), WithMaxTokens(256))

	got, err := loop.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Squeak! Hello." {
		t.Errorf("reply = %q", got)
	}
	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0.7 || req.MaxTokens != 256 || len(req.Tools) != 1 {
		t.Errorf("request = %+v", req)
	}
	if host.CallCount("ExecuteTool") != 0 {
		t.Error("tool executed for a plain answer")
	}
}

func TestToolLoop_ExecutesToolsAndFeedsResults(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{
			toolCall("c1", "roll_dice", `{"expression":"1d20"}`),
			toolCall("c2", "pf2e_get_rule", `{"id":"combat-flanking"}`),
		}},
		{Content: "You rolled a 17, and flanking makes them off-guard!"},
	}}
	host := &mcpmock.Host{
		ToolsResult: []types.ToolDefinition{{Name: "roll_dice"}, {Name: "pf2e_get_rule"}},
		ExecuteToolResults: map[string]*mcp.ToolResult{
			"roll_dice":     {Content: `{"total":17}`},
			"pf2e_get_rule": {Content: "Flanking: off-guard"},
		},
	}
	loop, _ := NewToolLoop(p, host)

	got, err := loop.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(got, "17") {
		t.Errorf("reply = %q", got)
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("Complete calls = %d, want 2", len(calls))
	}
	second := calls[1].Req.Messages
	if len(second) != len(prompt)+3 {
		t.Fatalf("second request has %d messages, want %d", len(second), len(prompt)+3)
	}
	if a := second[2]; a.Role != types.RoleAssistant || len(a.ToolCalls) != 2 {
		t.Errorf("assistant tool-call message = %+v", a)
	}
	for i, want := range []struct{ id, content string }{
		{"c1", `{"total":17}`},
		{"c2", "Flanking: off-guard"},
	} {
		m := second[3+i]
		if m.Role != types.RoleTool || m.ToolCallID != want.id || m.Content != want.content {
			t.Errorf("tool message %d = %+v", i, m)
		}
	}
	if len(prompt) != 2 {
		t.Error("caller's prompt slice was modified")
	}
}

func TestToolLoop_ToolErrorsGoBackToModel(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{
			toolCall("a", "missing_tool", `{}`),
			toolCall("b", "combat_analyzer", `{}`),
		}},
		{Content: "Sorry, my tools fizzled."},
	}}
	host := &mcpmock.Host{
		ToolsResult: []types.ToolDefinition{{Name: "combat_analyzer"}},
		ExecuteToolResults: map[string]*mcp.ToolResult{
			"combat_analyzer": {Content: "combat_state is required", IsError: true},
		},
	}
	loop, _ := NewToolLoop(p, host)

	if _, err := loop.Generate(context.Background(), prompt); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	msgs := p.Calls()[1].Req.Messages
	if c := msgs[3].Content; !strings.HasPrefix(c, "error: ") || !strings.Contains(c, "not found") {
		t.Errorf("missing tool message = %q", c)
	}
	if c := msgs[4].Content; c != "error: combat_state is required" {
		t.Errorf("tool error message = %q", c)
	}
}

func TestToolLoop_RoundsAreBounded(t *testing.T) {
	t.Parallel()

	var n atomic.Int32
	p := &llmmock.Provider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		n.Add(1)
		if len(req.Tools) == 0 {
			return &llm.CompletionResponse{Content: "Fine, no more dice."}, nil
		}
		return &llm.CompletionResponse{ToolCalls: []types.ToolCall{toolCall("x", "roll_dice", `{}`)}}, nil
	}}
	host := &mcpmock.Host{
		ToolsResult:       []types.ToolDefinition{{Name: "roll_dice"}},
		ExecuteToolResult: &mcp.ToolResult{Content: "4"},
	}
	loop, _ := NewToolLoop(p, host, WithMaxRounds(3))

	got, err := loop.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Fine, no more dice." {
		t.Errorf("reply = %q", got)
	}
	// Three tool rounds plus the final call without tools.
	if n.Load() != 4 {
		t.Errorf("Complete calls = %d, want 4", n.Load())
	}
	if host.CallCount("ExecuteTool") != 3 {
		t.Errorf("ExecuteTool calls = %d, want 3", host.CallCount("ExecuteTool"))
	}
}

func TestToolLoop_ToolsRunConcurrently(t *testing.T) {
	t.Parallel()

	const n = 4
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	calls := make([]types.ToolCall, n)
	for i := range calls {
		calls[i] = toolCall(string(rune('a'+i)), "slow", `{}`)
	}
	p := &llmmock.Provider{CompleteResponses: []*llm.CompletionResponse{
		{ToolCalls: calls},
		{Content: "done"},
	}}
	host := &mcpmock.Host{
		ToolsResult: []types.ToolDefinition{{Name: "slow"}},
		ExecuteToolFunc: func(context.Context, string, string) (*mcp.ToolResult, error) {
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return &mcp.ToolResult{Content: "ok"}, nil
		},
	}
	loop, _ := NewToolLoop(p, host)

	if _, err := loop.Generate(context.Background(), prompt); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if peak < 2 {
		t.Errorf("peak concurrency = %d, want tools to overlap", peak)
	}
}

func TestToolLoop_Errors(t *testing.T) {
	t.Parallel()

	t.Run("provider error", func(t *testing.T) {
		t.Parallel()
		upstream := errors.New("rate limited")
		loop, _ := NewToolLoop(&llmmock.Provider{CompleteErr: upstream}, nil)
		_, err := loop.Generate(context.Background(), prompt)
		if !errors.Is(err, upstream) {
			t.Errorf("err = %v, want wrapped upstream error", err)
		}
	})

	t.Run("empty reply", func(t *testing.T) {
		t.Parallel()
		loop, _ := NewToolLoop(&llmmock.Provider{CompleteResponse: &llm.CompletionResponse{}}, nil)
		_, err := loop.Generate(context.Background(), prompt)
		if !errors.Is(err, ErrEmptyReply) {
			t.Errorf("err = %v, want ErrEmptyReply", err)
		}
	})

	t.Run("cancelled during tools", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
			ToolCalls: []types.ToolCall{toolCall("1", "slow", `{}`)},
		}}
		host := &mcpmock.Host{
			ToolsResult: []types.ToolDefinition{{Name: "slow"}},
			ExecuteToolFunc: func(context.Context, string, string) (*mcp.ToolResult, error) {
				cancel()
				return &mcp.ToolResult{Content: "late"}, nil
			},
		}
		loop, _ := NewToolLoop(p, host)
		_, err := loop.Generate(ctx, prompt)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}
