package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Monterroso/Frinny-Backend/pkg/provider/llm"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		msg   types.Message
		check func(t *testing.T, got any)
	}{
		{name: "system", msg: types.Message{Role: types.RoleSystem, Content: "You are Frinny."}},
		{name: "user", msg: types.Message{Role: types.RoleUser, Content: "What is flanking?"}},
		{name: "assistant", msg: types.Message{Role: types.RoleAssistant, Content: "Flanking makes a foe off-guard."}},
		{name: "tool", msg: types.Message{Role: types.RoleTool, Content: `{"found":true}`, ToolCallID: "call_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := convertMessage(tt.msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.msg.Role {
			case types.RoleSystem:
				if p.OfSystem == nil {
					t.Fatal("expected OfSystem to be set")
				}
			case types.RoleUser:
				if p.OfUser == nil {
					t.Fatal("expected OfUser to be set")
				}
			case types.RoleAssistant:
				if p.OfAssistant == nil {
					t.Fatal("expected OfAssistant to be set")
				}
			case types.RoleTool:
				if p.OfTool == nil || p.OfTool.ToolCallID != "call_1" {
					t.Fatalf("expected OfTool with ToolCallID call_1, got %+v", p.OfTool)
				}
			}
		})
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	t.Parallel()
	msg := types.Message{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "pf2e_rules_lookup", Arguments: `{"query":"flanking"}`},
		},
	}
	p, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(p.OfAssistant.ToolCalls))
	}
	tc := p.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "pf2e_rules_lookup" {
		t.Errorf("unexpected tool call %+v", tc)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(types.Message{Role: "narrator"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model       string
		window      int
		vision      bool
		toolCalling bool
	}{
		{"gpt-4o", 128_000, true, true},
		{"gpt-4o-mini", 128_000, true, true},
		{"gpt-4", 8_192, false, true},
		{"gpt-3.5-turbo", 16_385, false, true},
		{"o1-mini", 128_000, false, false},
		{"my-custom-model", 128_000, false, true},
	}
	for _, tt := range tests {
		caps := modelCapabilities(tt.model)
		if caps.ContextWindow != tt.window {
			t.Errorf("%s: context window = %d, want %d", tt.model, caps.ContextWindow, tt.window)
		}
		if caps.SupportsVision != tt.vision {
			t.Errorf("%s: vision = %v, want %v", tt.model, caps.SupportsVision, tt.vision)
		}
		if caps.SupportsToolCalling != tt.toolCalling {
			t.Errorf("%s: tool calling = %v, want %v", tt.model, caps.SupportsToolCalling, tt.toolCalling)
		}
		if caps.MaxOutputTokens <= 0 {
			t.Errorf("%s: expected positive MaxOutputTokens", tt.model)
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty API key")
	}
	p, err := New("sk-test", "", WithBaseURL("https://gateway.example.com"), WithOrganization("org-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", p.Model(), DefaultModel)
	}
}

func TestComplete_ToolCallsAndTemperature(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "pf2e_rules_lookup", "arguments": "{\"query\":\"flanking\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages:    []types.Message{{Role: types.RoleUser, Content: "How does flanking work?"}},
		Tools:       []types.ToolDefinition{{Name: "pf2e_rules_lookup", Description: "rules", Parameters: map[string]any{"type": "object"}}},
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "pf2e_rules_lookup" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if got["temperature"] != 0.2 {
		t.Errorf("temperature sent = %v, want 0.2", got["temperature"])
	}
	if tools, _ := got["tools"].([]any); len(tools) != 1 {
		t.Errorf("expected 1 tool in request, got %v", got["tools"])
	}
}

func TestComplete_EmptyMessages(t *testing.T) {
	t.Parallel()
	p, _ := New("sk-test", "gpt-4o")
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty messages")
	}
}

// chatServer answers every request with status and body and records the
// decoded request.
func chatServer(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	got := map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestComplete_ErrorClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, llm.ErrUnauthorized},
		{http.StatusTooManyRequests, llm.ErrRateLimited},
		{http.StatusBadRequest, llm.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			srv, _ := chatServer(t, tt.status, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
			p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err = p.Complete(ctx, llm.CompletionRequest{
				Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_ZeroTemperatureAndRefusal(t *testing.T) {
	t.Parallel()

	srv, got := chatServer(t, http.StatusOK, `{
		"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "", "refusal": "I can't help with that."}}]
	}`)
	p, _ := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"))
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "I can't help with that." {
		t.Errorf("Content = %q, want refusal text", resp.Content)
	}
	if v, ok := (*got)["temperature"]; !ok || v != 0.0 {
		t.Errorf("temperature = %v (sent %v), want explicit 0", v, ok)
	}
}

func TestBuildParams_ReasoningModelOmitsTemperature(t *testing.T) {
	t.Parallel()

	p, _ := New("sk-test", "o3-mini")
	params, err := p.buildParams(llm.CompletionRequest{
		Messages:    []types.Message{{Role: types.RoleUser, Content: "hi"}},
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.Temperature.Valid() {
		t.Errorf("temperature set for reasoning model: %v", params.Temperature)
	}
}
