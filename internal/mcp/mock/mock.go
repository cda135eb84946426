// Package mock provides a test double for the [mcp.Host] interface.
//
// [Host] records every method call and returns whatever its exported fields
// are set to. Per-tool answers go in ExecuteToolResults; ExecuteToolFunc
// overrides everything when a test needs to inspect arguments.
//
//	h := &mock.Host{
//	    ToolsResult: []types.ToolDefinition{{Name: "roll_dice"}},
//	    ExecuteToolResults: map[string]*mcp.ToolResult{
//	        "roll_dice": {Content: `{"total":17}`},
//	    },
//	}
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Monterroso/Frinny-Backend/internal/mcp"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Host is a configurable test double for [mcp.Host]. Safe for concurrent use.
type Host struct {
	mu    sync.Mutex
	calls []Call

	// RegisterServerErr is returned by RegisterServer.
	RegisterServerErr error

	// ToolsResult is returned by Tools.
	ToolsResult []types.ToolDefinition

	// ExecuteToolResults maps a tool name to its result. A name missing from
	// the map yields ExecuteToolResult, or an [mcp.ErrToolNotFound] error
	// when that is nil too.
	ExecuteToolResults map[string]*mcp.ToolResult
	ExecuteToolResult  *mcp.ToolResult

	// ExecuteToolErr, when non-nil, is returned by every ExecuteTool call.
	ExecuteToolErr error

	// ExecuteToolFunc, when set, replaces all of the above.
	ExecuteToolFunc func(ctx context.Context, name, args string) (*mcp.ToolResult, error)

	// HealthResult is returned by Health.
	HealthResult []mcp.ToolHealth

	// CloseErr is returned by Close.
	CloseErr error
}

var _ mcp.Host = (*Host)(nil)

func (h *Host) record(method string, args ...any) {
	h.calls = append(h.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded invocations.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// CallCount returns how many times method was invoked.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// RegisterServer implements [mcp.Host].
func (h *Host) RegisterServer(_ context.Context, cfg mcp.ServerConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("RegisterServer", cfg)
	return h.RegisterServerErr
}

// Tools implements [mcp.Host].
func (h *Host) Tools() []types.ToolDefinition {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Tools")
	return slices.Clone(h.ToolsResult)
}

// ExecuteTool implements [mcp.Host].
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.Lock()
	h.record("ExecuteTool", name, args)
	fn := h.ExecuteToolFunc
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, name, args)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ExecuteToolErr != nil {
		return nil, h.ExecuteToolErr
	}
	res, ok := h.ExecuteToolResults[name]
	if !ok {
		res = h.ExecuteToolResult
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %q", mcp.ErrToolNotFound, name)
	}
	cp := *res
	return &cp, nil
}

// Health implements [mcp.Host].
func (h *Host) Health() []mcp.ToolHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Health")
	return slices.Clone(h.HealthResult)
}

// Close implements [mcp.Host].
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Close")
	return h.CloseErr
}
