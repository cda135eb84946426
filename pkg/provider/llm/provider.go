// Package llm defines the Provider interface for Large Language Model backends.
//
// The agent treats generation as a black box: it hands the provider the full
// conversation history plus the tool catalogue and receives either final text
// or a set of tool calls to execute before asking again. Providers wrap a
// remote API (OpenAI, or any backend reachable through any-llm-go) and hide the
// SDK specifics behind that one call.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"

	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// Sentinel errors providers wrap so callers can react to the failure class
// without knowing the SDK.
var (
	// ErrUnauthorized means the API key was missing, wrong or revoked.
	ErrUnauthorized = errors.New("llm: unauthorized")

	// ErrRateLimited means the backend throttled the request or the
	// account ran out of quota.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrBadRequest means the backend rejected the request itself, for
	// example because the history exceeds the context window. Retrying the
	// same request elsewhere is unlikely to help.
	ErrBadRequest = errors.New("llm: bad request")
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history, system message first when
	// present. The last message typically drives the response.
	Messages []types.Message

	// Tools is the set of function definitions offered to the model. Providers
	// whose model cannot call tools ignore this field.
	Tools []types.ToolDefinition

	// Temperature controls output randomness in the range [0.0, 2.0].
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's answer to one CompletionRequest.
type CompletionResponse struct {
	// Content is the assistant's text. Empty when the model responds
	// exclusively with tool calls.
	Content string

	// ToolCalls lists tool invocations requested by the model. The caller
	// executes them and appends the results before calling Complete again.
	ToolCalls []types.ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	Capabilities() types.ModelCapabilities
}
