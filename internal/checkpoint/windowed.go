package checkpoint

import (
	"context"

	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

var _ Store = (*Windowed)(nil)

// Windowed bounds the persisted history. On every Put it keeps a leading
// system message plus the newest max messages. Reads are untouched.
type Windowed struct {
	inner Store
	max   int
}

// NewWindowed wraps inner. A max of zero or less disables truncation.
func NewWindowed(inner Store, max int) *Windowed {
	return &Windowed{inner: inner, max: max}
}

// Get implements [Store.Get].
func (w *Windowed) Get(ctx context.Context, key Key) (State, bool, error) {
	return w.inner.Get(ctx, key)
}

// Put implements [Store.Put].
func (w *Windowed) Put(ctx context.Context, key Key, state State) error {
	state.Messages = Window(state.Messages, w.max)
	return w.inner.Put(ctx, key, state)
}

// Ping implements [Store.Ping].
func (w *Windowed) Ping(ctx context.Context) error { return w.inner.Ping(ctx) }

// Close implements [Store.Close].
func (w *Windowed) Close() error { return w.inner.Close() }

// Name implements [Store.Name].
func (w *Windowed) Name() string { return w.inner.Name() }

// Window returns msgs trimmed to a leading system message plus the last max
// other messages. The cut never starts on a tool result, which would be
// orphaned from its call. msgs is not modified.
func Window(msgs []types.Message, max int) []types.Message {
	if max <= 0 {
		return msgs
	}
	var head []types.Message
	body := msgs
	if len(msgs) > 0 && msgs[0].Role == types.RoleSystem {
		head, body = msgs[:1], msgs[1:]
	}
	if len(body) <= max {
		return msgs
	}
	body = body[len(body)-max:]
	for len(body) > 0 && body[0].Role == types.RoleTool {
		body = body[1:]
	}
	out := make([]types.Message, 0, len(head)+len(body))
	out = append(out, head...)
	return append(out, body...)
}
