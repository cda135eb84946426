// Package mock provides a test double for [agent.Invoker].
//
// The mock is safe for concurrent use and records every request:
//
//	inv := &mock.Invoker{Response: agent.Response{Status: agent.StatusSuccess}}
//	resp := inv.Invoke(ctx, agent.Request{EventType: "query", UserID: "u1"})
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/Monterroso/Frinny-Backend/internal/agent"
)

var _ agent.Invoker = (*Invoker)(nil)

// Invoker is a mock implementation of [agent.Invoker].
type Invoker struct {
	mu sync.Mutex

	// Response is returned from every Invoke call. RequestID and ContextID
	// are copied from the request when left empty.
	Response agent.Response

	// InvokeFunc, when set, replaces Response.
	InvokeFunc func(ctx context.Context, req agent.Request) agent.Response

	calls []agent.Request
}

// Invoke records req and returns the configured response.
func (m *Invoker) Invoke(ctx context.Context, req agent.Request) agent.Response {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.InvokeFunc
	resp := m.Response
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if resp.RequestID == "" {
		resp.RequestID = req.RequestID
	}
	if resp.ContextID == "" {
		resp.ContextID = req.ContextID
	}
	return resp
}

// Calls returns a snapshot of the recorded requests.
func (m *Invoker) Calls() []agent.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns the number of Invoke calls.
func (m *Invoker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
