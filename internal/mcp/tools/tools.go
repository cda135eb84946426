// Package tools defines the shared [Tool] type used by the built-in tool
// packages. Each sub-package exports a constructor returning the tools it
// provides, ready for registration with the MCP host.
package tools

import (
	"context"

	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// Tool is an in-process tool: an LLM-facing definition plus its handler.
type Tool struct {
	// Definition is the schema offered to the model. Its MaxDurationMs is
	// enforced by the host as a hard timeout.
	Definition types.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a JSON
	// result. Returned errors are shown to the model as tool errors.
	// Implementations must be safe for concurrent use and honour ctx.
	Handler func(ctx context.Context, args string) (string, error)
}
