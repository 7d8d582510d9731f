// Package executor holds the host-action backends behind
// [command.Executor] and a logging executor used when no backend is
// configured.
//
// Backends live in subpackages: osascript drives macOS through AppleScript
// and mcpexec forwards actions to an MCP tool server.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/earshot/internal/command"
)

// ErrUnsupported is returned by a backend that cannot perform an action.
var ErrUnsupported = errors.New("executor: unsupported action")

// Unsupported wraps [ErrUnsupported] with the action name.
func Unsupported(action command.ActionID) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, action)
}

// Log is a [command.Executor] that only logs what it would do. It never
// fails.
type Log struct {
	Logger *slog.Logger
}

var _ command.Executor = Log{}

// Execute logs req.
func (l Log) Execute(ctx context.Context, req command.ActionRequest) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "executor: action", "action", req.Action, "arg", req.Arg, "locale", req.Locale)
	return nil
}
