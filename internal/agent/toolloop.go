package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Monterroso/Frinny-Backend/internal/mcp"
	"github.com/Monterroso/Frinny-Backend/internal/observe"
	"github.com/Monterroso/Frinny-Backend/pkg/provider/llm"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// DefaultMaxToolRounds bounds how many times the model may ask for tools
// within one turn.
const DefaultMaxToolRounds = 5

// DefaultTemperature is the sampling temperature used unless overridden.
const DefaultTemperature = 0.2

var _ Generator = (*ToolLoop)(nil)

// ToolLoop is a [Generator] that lets the model call tools.
//
// Each round sends the working history to the model. When the model asks
// for tools they all run concurrently, their results are appended as tool
// messages and the model is asked again. After MaxRounds tool rounds the
// model gets one last call with no tools offered, so it has to answer.
//
// The working history is private to one Generate call; nothing but the
// final text leaves it.
type ToolLoop struct {
	llm         llm.Provider
	host        mcp.Host // may be nil: no tools
	temperature float64
	maxTokens   int
	maxRounds   int
	metrics     *observe.Metrics
}

// ToolLoopOption configures a [ToolLoop].
type ToolLoopOption func(*ToolLoop)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ToolLoopOption {
	return func(l *ToolLoop) { l.temperature = t }
}

// WithMaxTokens caps the completion length. Zero keeps the provider default.
func WithMaxTokens(n int) ToolLoopOption {
	return func(l *ToolLoop) { l.maxTokens = n }
}

// WithMaxRounds sets the tool round limit. Values below one are ignored.
func WithMaxRounds(n int) ToolLoopOption {
	return func(l *ToolLoop) {
		if n > 0 {
			l.maxRounds = n
		}
	}
}

// WithLoopMetrics sets the metrics sink for model latency.
func WithLoopMetrics(m *observe.Metrics) ToolLoopOption {
	return func(l *ToolLoop) { l.metrics = m }
}

// NewToolLoop creates a ToolLoop. host may be nil.
func NewToolLoop(provider llm.Provider, host mcp.Host, opts ...ToolLoopOption) (*ToolLoop, error) {
	if provider == nil {
		return nil, errors.New("agent: LLM provider must not be nil")
	}
	l := &ToolLoop{
		llm:         provider,
		host:        host,
		temperature: DefaultTemperature,
		maxRounds:   DefaultMaxToolRounds,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Generate implements [Generator].
func (l *ToolLoop) Generate(ctx context.Context, msgs []types.Message) (string, error) {
	ctx, span := observe.StartSpan(ctx, "agent.generate")
	defer span.End()

	var tools []types.ToolDefinition
	if l.host != nil {
		tools = l.host.Tools()
	}
	working := slices.Clone(msgs)

	for round := 0; ; round++ {
		offered := tools
		if round >= l.maxRounds {
			offered = nil
		}
		resp, err := l.complete(ctx, working, offered)
		if err != nil {
			span.RecordError(err)
			return "", err
		}
		if len(resp.ToolCalls) == 0 || len(offered) == 0 {
			if resp.Content == "" {
				return "", ErrEmptyReply
			}
			span.SetAttributes(attribute.Int("agent.tool_rounds", round))
			return resp.Content, nil
		}

		working = append(working, types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		results, err := l.runTools(ctx, resp.ToolCalls)
		if err != nil {
			return "", err
		}
		working = append(working, results...)
	}
}

func (l *ToolLoop) complete(ctx context.Context, msgs []types.Message, tools []types.ToolDefinition) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := l.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		Tools:       tools,
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	})
	if l.metrics != nil {
		l.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("agent: complete: %w", err)
	}
	if resp == nil {
		return nil, ErrEmptyReply
	}
	return resp, nil
}

// runTools executes calls concurrently and returns one tool message per
// call, in call order. A failing tool yields an error text for the model;
// only a cancelled ctx aborts the round.
func (l *ToolLoop) runTools(ctx context.Context, calls []types.ToolCall) ([]types.Message, error) {
	out := make([]types.Message, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			out[i] = types.Message{
				Role:       types.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    l.runTool(gctx, call),
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("agent: tools: %w", err)
	}
	return out, nil
}

func (l *ToolLoop) runTool(ctx context.Context, call types.ToolCall) string {
	ctx, span := observe.StartSpan(ctx, "agent.tool",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	res, err := l.host.ExecuteTool(ctx, call.Name, call.Arguments)
	if err != nil {
		span.RecordError(err)
		observe.Logger(ctx).Warn("tool call failed", slog.String("tool", call.Name), slog.Any("err", err))
		return fmt.Sprintf("error: %v", err)
	}
	if res.IsError {
		return "error: " + res.Content
	}
	return res.Content
}
