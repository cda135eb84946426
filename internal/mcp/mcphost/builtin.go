package mcphost

import (
	"errors"
	"fmt"

	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools"
)

// RegisterBuiltin adds in-process tools to the catalogue. A tool with an
// existing name replaces the old entry. Nothing is registered when any tool
// is invalid.
func (h *Host) RegisterBuiltin(ts ...tools.Tool) error {
	for _, t := range ts {
		if t.Definition.Name == "" {
			return errors.New("mcp host: builtin tool must have a non-empty name")
		}
		if t.Handler == nil {
			return fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", t.Definition.Name)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range ts {
		h.tools[t.Definition.Name] = &toolEntry{
			def:          t.Definition,
			serverName:   builtinServerName,
			measurements: newRollingWindow(defaultWindowSize),
			builtinFn:    t.Handler,
		}
	}
	return nil
}
