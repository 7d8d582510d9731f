// Package mcpexec executes whitelisted host actions as tool calls on an MCP
// server.
//
// Each action maps to one tool. By default the tool is named after the
// action ("open_app", "volume_up", ...); Config.Tools overrides individual
// names. The tool receives the resolved argument and the session locale:
//
//	{"arg": "Safari", "locale": "en"}
//
// Actions whose tool the server does not advertise fail with
// [executor.ErrUnsupported].
package mcpexec

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/internal/executor"
)

// Transport selects how the MCP server is reached.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// Config describes the MCP server and the action-to-tool mapping.
type Config struct {
	Transport Transport

	// Command is the server executable and its arguments, split on spaces.
	// Used with [TransportStdio].
	Command string

	// Env holds extra environment variables for the server process.
	Env map[string]string

	// URL is the endpoint for [TransportStreamableHTTP].
	URL string

	// Tools overrides the tool name per action.
	Tools map[command.ActionID]string
}

// session is the part of *mcpsdk.ClientSession the executor uses.
type session interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

// Executor is a [command.Executor] backed by an MCP client session.
type Executor struct {
	mu        sync.RWMutex
	session   session
	available map[string]bool
	names     map[command.ActionID]string
}

var _ command.Executor = (*Executor)(nil)

// Connect starts or dials the MCP server in cfg and lists its tools.
func Connect(ctx context.Context, cfg Config) (*Executor, error) {
	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		fields := strings.Fields(cfg.Command)
		if len(fields) == 0 {
			return nil, fmt.Errorf("mcpexec: stdio transport requires a command")
		}
		cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcpexec: streamable-http transport requires a url")
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return nil, fmt.Errorf("mcpexec: unknown transport %q", cfg.Transport)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "earshot", Version: "1.0.0"}, nil)
	sess, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpexec: connect: %w", err)
	}

	var tools []string
	for tool, err := range sess.Tools(ctx, nil) {
		if err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("mcpexec: list tools: %w", err)
		}
		tools = append(tools, tool.Name)
	}
	return newExecutor(sess, tools, cfg.Tools), nil
}

func newExecutor(sess session, tools []string, names map[command.ActionID]string) *Executor {
	e := &Executor{
		session:   sess,
		available: make(map[string]bool, len(tools)),
		names:     names,
	}
	for _, t := range tools {
		e.available[t] = true
	}
	for _, a := range command.Actions {
		if a == command.ActionWeather {
			continue
		}
		if name := e.toolFor(a); !e.available[name] {
			slog.Warn("mcpexec: server has no tool for action", "action", a, "tool", name)
		}
	}
	return e
}

func (e *Executor) toolFor(a command.ActionID) string {
	if name, ok := e.names[a]; ok && name != "" {
		return name
	}
	return string(a)
}

// Execute calls the tool mapped to req.Action. A tool result flagged as an
// error is returned as an error carrying the tool's text.
func (e *Executor) Execute(ctx context.Context, req command.ActionRequest) error {
	e.mu.RLock()
	sess := e.session
	e.mu.RUnlock()
	if sess == nil {
		return fmt.Errorf("mcpexec: executor closed")
	}

	name := e.toolFor(req.Action)
	if !e.available[name] {
		return executor.Unsupported(req.Action)
	}

	res, err := sess.CallTool(ctx, &mcpsdk.CallToolParams{
		Name: name,
		Arguments: map[string]any{
			"arg":    req.Arg,
			"locale": string(req.Locale),
		},
	})
	if err != nil {
		return fmt.Errorf("mcpexec: call %q: %w", name, err)
	}
	if res.IsError {
		return fmt.Errorf("mcpexec: tool %q failed: %s", name, text(res))
	}
	return nil
}

// Close ends the MCP session.
func (e *Executor) Close() error {
	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}

func text(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
