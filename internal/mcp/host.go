// Package mcp defines the tool host the agent consults when the model asks
// for a tool call.
//
// A host owns a catalogue of tools. Some are in-process Go functions (the
// PF2e rules lookup, dice, combat and level-up helpers); others live in
// external Model Context Protocol servers reached over stdio or streamable
// HTTP. The agent does not care which: it lists [Host.Tools], offers them to
// the model and routes each call through [Host.ExecuteTool].
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"
	"errors"

	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// ErrToolNotFound is returned by [Host.ExecuteTool] for a name that is not in
// the catalogue.
var ErrToolNotFound = errors.New("mcp: tool not found")

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server. Must be unique within a [Host].
	Name string

	// Transport is [TransportStdio] or [TransportStreamableHTTP].
	Transport Transport

	// Command is the executable and its arguments, used with stdio.
	Command string

	// URL is the endpoint, used with streamable-http.
	URL string

	// Env holds extra environment variables for a stdio server process.
	Env map[string]string
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's output, usually a JSON document, ready to be
	// handed back to the model as a tool message.
	Content string

	// IsError marks an application-level failure. Content then carries the
	// message. Transport failures are reported through the error return.
	IsError bool

	// DurationMs is the wall-clock execution time.
	DurationMs int64
}

// ToolHealth summarises recent runtime behaviour of one tool.
type ToolHealth struct {
	Name      string
	Server    string
	P50Ms     int64
	P99Ms     int64
	CallCount int
	ErrorRate float64
}

// Host manages the tool catalogue and routes tool calls.
type Host interface {
	// RegisterServer connects to the MCP server described by cfg and imports
	// its tools. Registering an existing name replaces the old connection
	// and its tools.
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// Tools returns every registered tool sorted by name.
	Tools() []types.ToolDefinition

	// ExecuteTool runs the named tool with JSON-encoded args. A handler
	// failure yields a result with IsError set and a nil error.
	ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// Health reports rolling latency and error figures per tool, sorted by name.
	Health() []ToolHealth

	// Close shuts down all server connections. The host must not be used
	// afterwards.
	Close() error
}
