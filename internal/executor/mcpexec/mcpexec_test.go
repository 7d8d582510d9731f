package mcpexec

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/internal/executor"
	"github.com/MrWong99/earshot/pkg/types"
)

type fakeSession struct {
	mu     sync.Mutex
	calls  []*mcpsdk.CallToolParams
	result *mcpsdk.CallToolResult
	err    error
	closed int
}

func (f *fakeSession) CallTool(_ context.Context, p *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &mcpsdk.CallToolResult{}, nil
	}
	return f.result, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func TestExecuteCallsMappedTool(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	e := newExecutor(sess, []string{"open_app", "mac_volume_up"}, map[command.ActionID]string{
		command.ActionVolumeUp: "mac_volume_up",
	})
	ctx := context.Background()

	if err := e.Execute(ctx, command.ActionRequest{Action: command.ActionOpenApp, Arg: "Safari", Locale: types.LocaleEN}); err != nil {
		t.Fatalf("open app: %v", err)
	}
	if err := e.Execute(ctx, command.ActionRequest{Action: command.ActionVolumeUp, Locale: types.LocaleRU}); err != nil {
		t.Fatalf("volume up: %v", err)
	}

	if len(sess.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(sess.calls))
	}
	first := sess.calls[0]
	args, ok := first.Arguments.(map[string]any)
	if first.Name != "open_app" || !ok || args["arg"] != "Safari" || args["locale"] != "en" {
		t.Errorf("first call = %s %v", first.Name, first.Arguments)
	}
	if sess.calls[1].Name != "mac_volume_up" {
		t.Errorf("second call tool = %q, want mac_volume_up", sess.calls[1].Name)
	}
}

func TestExecuteMissingTool(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	e := newExecutor(sess, []string{"open_app"}, nil)
	err := e.Execute(context.Background(), command.ActionRequest{Action: command.ActionScreenshot})
	if !errors.Is(err, executor.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if len(sess.calls) != 0 {
		t.Errorf("tool called for missing action")
	}
}

func TestExecuteToolError(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{result: &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "app not installed"}},
	}}
	e := newExecutor(sess, []string{"open_app"}, nil)
	err := e.Execute(context.Background(), command.ActionRequest{Action: command.ActionOpenApp, Arg: "Nope"})
	if err == nil || !strings.Contains(err.Error(), "app not installed") {
		t.Fatalf("err = %v, want tool error text", err)
	}
}

func TestExecuteTransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("pipe closed")
	e := newExecutor(&fakeSession{err: boom}, []string{"mute"}, nil)
	if err := e.Execute(context.Background(), command.ActionRequest{Action: command.ActionMute}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	e := newExecutor(sess, []string{"mute"}, nil)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if sess.closed != 1 {
		t.Errorf("session closed %d times, want 1", sess.closed)
	}
	if err := e.Execute(context.Background(), command.ActionRequest{Action: command.ActionMute}); err == nil {
		t.Error("Execute after Close succeeded")
	}
}

func TestConnectValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "unknown transport", cfg: Config{Transport: "carrier-pigeon"}, want: "unknown transport"},
		{name: "stdio without command", cfg: Config{Transport: TransportStdio}, want: "requires a command"},
		{name: "http without url", cfg: Config{Transport: TransportStreamableHTTP}, want: "requires a url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Connect(context.Background(), tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
