// Package mock provides a test double for the llm.Provider interface.
//
// Responses are served from CompleteResponses in order, which lets a test
// script a whole tool loop: first a response with ToolCalls, then the final
// text. When the script is exhausted CompleteResponse is returned for every
// further call.
//
//	p := &mock.Provider{
//	    CompleteResponses: []*llm.CompletionResponse{
//	        {ToolCalls: []types.ToolCall{{ID: "1", Name: "roll_dice", Arguments: `{"expression":"1d20"}`}}},
//	        {Content: "You rolled a 17!"},
//	    },
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/Monterroso/Frinny-Backend/pkg/provider/llm"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// CompleteResponses are consumed one per call, in order.
	CompleteResponses []*llm.CompletionResponse

	// CompleteResponse is returned once CompleteResponses is exhausted.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned from every Complete call.
	CompleteErr error

	// CompleteFunc, if set, overrides all of the above.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	// Messages are copied so later appends by the caller do not alter the record.
	req.Messages = slices.Clone(req.Messages)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	if fn != nil {
		p.mu.Unlock()
		return fn(ctx, req)
	}
	defer p.mu.Unlock()
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.next < len(p.CompleteResponses) {
		resp := p.CompleteResponses[p.next]
		p.next++
		return resp, nil
	}
	return p.CompleteResponse, nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a snapshot of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.CompleteCalls)
}

// Reset clears recorded calls and rewinds the scripted responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}

var _ llm.Provider = (*Provider)(nil)
