// Package types defines the shared types used across Frinny packages.
//
// These types are the lingua franca between the LLM providers, the checkpoint
// store, the conversation session and the tool host. Each package defines its
// own domain types; cross-cutting structures live here to avoid import cycles.
package types

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single turn in a conversation history.
//
// Messages are immutable once appended to a conversation. Tool-call messages
// carry a structured invocation payload in ToolCalls and tool results carry
// the correlation id in ToolCallID.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant or RoleTool.
	Role string `json:"role" bson:"role"`

	// Content is the text content of the message.
	Content string `json:"content" bson:"content"`

	// Name is an optional participant name.
	Name string `json:"name,omitempty" bson:"name,omitempty"`

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty" bson:"tool_calls,omitempty"`

	// ToolCallID is set when Role is RoleTool, identifying which tool call
	// this message answers.
	ToolCallID string `json:"tool_call_id,omitempty" bson:"tool_call_id,omitempty"`
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string `json:"id" bson:"id"`

	// Name is the tool/function name.
	Name string `json:"name" bson:"name"`

	// Arguments is the JSON-encoded arguments string.
	Arguments string `json:"arguments" bson:"arguments"`
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any

	// MaxDurationMs is the declared upper bound, used as a hard timeout.
	// Zero means the host default applies.
	MaxDurationMs int
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool
}
