// Package mcphost provides the concrete [mcp.Host].
//
// External servers are reached through the official MCP Go SDK over stdio or
// streamable HTTP. In-process tools registered with [Host.RegisterBuiltin]
// skip the protocol entirely and call their handler directly. Both kinds share
// one catalogue, one per-call timeout policy and one rolling health window.
//
//	h := mcphost.New(mcphost.WithMetrics(observe.DefaultMetrics()))
//	_ = h.RegisterBuiltin(ruleslookup.Tools(client)...)
//	res, err := h.ExecuteTool(ctx, "roll_dice", `{"expression":"1d20+7"}`)
package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Monterroso/Frinny-Backend/internal/mcp"
	"github.com/Monterroso/Frinny-Backend/internal/observe"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

const (
	// DefaultToolTimeout bounds a tool that declares no MaxDurationMs.
	DefaultToolTimeout = 10 * time.Second

	defaultWindowSize = 100
	builtinServerName = "builtin"
)

type toolEntry struct {
	def          types.ToolDefinition
	serverName   string
	measurements *rollingWindow

	// builtinFn is non-nil for in-process tools.
	builtinFn func(ctx context.Context, args string) (string, error)
}

type serverConn struct {
	session *mcpsdk.ClientSession
}

// Host is the concrete [mcp.Host]. Create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]*toolEntry
	servers map[string]serverConn

	client         *mcpsdk.Client
	defaultTimeout time.Duration
	metrics        *observe.Metrics
}

var _ mcp.Host = (*Host)(nil)

// Option configures a [Host].
type Option func(*Host)

// WithDefaultTimeout sets the timeout for tools that declare none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.defaultTimeout = d
		}
	}
}

// WithMetrics records every tool call to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// New creates an empty Host.
func New(opts ...Option) *Host {
	h := &Host{
		tools:          make(map[string]*toolEntry),
		servers:        make(map[string]serverConn),
		defaultTimeout: DefaultToolTimeout,
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "frinny-mcphost", Version: "1.0.0"},
			nil,
		),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue. An existing server of the same name is closed and its tools
// are dropped first.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return errors.New("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.Command(executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp host: list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range h.tools {
			if t.serverName == cfg.Name {
				delete(h.tools, name)
			}
		}
	}
	h.servers[cfg.Name] = serverConn{session: session}

	for _, t := range discovered {
		if existing, ok := h.tools[t.Name]; ok && existing.builtinFn != nil {
			slog.Warn("mcp host: server tool shadowed by builtin", "server", cfg.Name, "tool", t.Name)
			continue
		}
		h.tools[t.Name] = &toolEntry{
			def: types.ToolDefinition{
				Name:          t.Name,
				Description:   t.Description,
				Parameters:    schemaToMap(t.InputSchema),
				MaxDurationMs: int(maxDurationHint(t)),
			},
			serverName:   cfg.Name,
			measurements: newRollingWindow(defaultWindowSize),
		}
	}
	slog.Info("mcp server registered", "server", cfg.Name, "tools", len(discovered))
	return nil
}

// maxDurationHint reads an optional max_duration_ms from the tool's _meta.
func maxDurationHint(t *mcpsdk.Tool) int64 {
	if t.Meta == nil {
		return 0
	}
	switch n := t.Meta["max_duration_ms"].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// Tools returns every registered tool sorted by name.
func (h *Host) Tools() []types.ToolDefinition {
	h.mu.RLock()
	defs := make([]types.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		defs = append(defs, e.def)
	}
	h.mu.RUnlock()

	slices.SortFunc(defs, func(a, b types.ToolDefinition) int { return strings.Compare(a.Name, b.Name) })
	return defs
}

// ExecuteTool runs the named tool under its declared MaxDurationMs, or the
// host default. A handler error or a timeout is returned as a result with
// IsError set so the model can see what went wrong.
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", mcp.ErrToolNotFound, name)
	}

	timeout := h.defaultTimeout
	if entry.def.MaxDurationMs > 0 {
		timeout = time.Duration(entry.def.MaxDurationMs) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx, span := observe.StartSpan(callCtx, "tool "+name,
		trace.WithAttributes(attribute.String("tool.name", name), attribute.String("tool.server", entry.serverName)))
	defer span.End()

	start := time.Now()
	var (
		result  *mcp.ToolResult
		execErr error
	)
	if entry.builtinFn != nil {
		result = executeBuiltin(callCtx, entry, args)
	} else {
		result, execErr = h.executeMCPTool(callCtx, entry, args)
	}
	elapsed := time.Since(start)

	if execErr == nil && result.IsError && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.Content = fmt.Sprintf("tool %s timed out after %s", name, timeout)
	}

	failed := execErr != nil || result.IsError
	entry.measurements.Record(elapsed.Milliseconds(), failed)
	if h.metrics != nil {
		var recErr error
		if failed {
			recErr = errors.New("tool failed")
		}
		h.metrics.RecordToolCall(ctx, name, elapsed, recErr)
	}

	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		return nil, execErr
	}
	if result.IsError {
		span.SetStatus(codes.Error, result.Content)
	}
	result.DurationMs = elapsed.Milliseconds()
	return result, nil
}

func executeBuiltin(ctx context.Context, entry *toolEntry, args string) *mcp.ToolResult {
	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := entry.builtinFn(ctx, args)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return &mcp.ToolResult{Content: o.err.Error(), IsError: true}
		}
		return &mcp.ToolResult{Content: o.out}
	case <-ctx.Done():
		return &mcp.ToolResult{Content: ctx.Err().Error(), IsError: true}
	}
}

func (h *Host) executeMCPTool(ctx context.Context, entry *toolEntry, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	conn, ok := h.servers[entry.serverName]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp host: server %q not found for tool %q", entry.serverName, entry.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return &mcp.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
		}
	}

	res, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: entry.def.Name, Arguments: argsMap})
	if err != nil {
		if ctx.Err() != nil {
			return &mcp.ToolResult{Content: ctx.Err().Error(), IsError: true}, nil
		}
		return nil, fmt.Errorf("mcp host: call tool %q: %w", entry.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return &mcp.ToolResult{Content: sb.String(), IsError: res.IsError}, nil
}

// Health reports the rolling window figures for every tool.
func (h *Host) Health() []mcp.ToolHealth {
	h.mu.RLock()
	out := make([]mcp.ToolHealth, 0, len(h.tools))
	for name, e := range h.tools {
		out = append(out, mcp.ToolHealth{
			Name:      name,
			Server:    e.serverName,
			P50Ms:     e.measurements.P50(),
			P99Ms:     e.measurements.P99(),
			CallCount: e.measurements.Count(),
			ErrorRate: e.measurements.ErrorRate(),
		})
	}
	h.mu.RUnlock()

	slices.SortFunc(out, func(a, b mcp.ToolHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Close shuts down all server connections and clears the catalogue.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp host: close server %q: %w", name, err))
		}
		delete(h.servers, name)
	}
	h.tools = make(map[string]*toolEntry)
	return errors.Join(errs...)
}

// splitCommand splits "/bin/foo --bar baz" into ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (string, []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
