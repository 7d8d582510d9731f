package osascript

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/internal/executor"
)

type call struct {
	name string
	args []string
}

// script returns the AppleScript source of an osascript call.
func (c call) script() string {
	if c.name != "osascript" || len(c.args) != 2 {
		return ""
	}
	return c.args[1]
}

// fakeRunner records calls. An output is returned when its key is a
// substring of the arguments; keys must not overlap.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	outputs map[string]string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, args: args})
	if f.err != nil {
		return "", f.err
	}
	joined := strings.Join(args, " ")
	for k, v := range f.outputs {
		if strings.Contains(joined, k) {
			return v, nil
		}
	}
	return "", nil
}

func (f *fakeRunner) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newExecutor(r *fakeRunner) *Executor {
	return New(WithRunner(r), WithSettle(0))
}

func TestExecuteScripts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  command.ActionRequest
		want []string
	}{
		{
			name: "open app",
			req:  command.ActionRequest{Action: command.ActionOpenApp, Arg: "Safari"},
			want: []string{`tell application "Safari" to activate`},
		},
		{
			name: "quit app",
			req:  command.ActionRequest{Action: command.ActionQuitApp, Arg: "Telegram"},
			want: []string{`tell application "Telegram" to quit`},
		},
		{
			name: "type text is escaped",
			req:  command.ActionRequest{Action: command.ActionTypeText, Arg: `say "hi" \o/`},
			want: []string{`keystroke "say \"hi\" \\o/"`},
		},
		{
			name: "press return",
			req:  command.ActionRequest{Action: command.ActionPressKey, Arg: "return"},
			want: []string{"key code 36"},
		},
		{
			name: "unknown key falls back to escape",
			req:  command.ActionRequest{Action: command.ActionPressKey, Arg: "f13"},
			want: []string{"key code 53"},
		},
		{
			name: "volume up",
			req:  command.ActionRequest{Action: command.ActionVolumeUp},
			want: []string{"set v to v + (6)", "set volume output volume v"},
		},
		{
			name: "volume down",
			req:  command.ActionRequest{Action: command.ActionVolumeDown},
			want: []string{"set v to v + (-6)"},
		},
		{
			name: "mute",
			req:  command.ActionRequest{Action: command.ActionMute},
			want: []string{"set volume with output muted"},
		},
		{
			name: "play pause defaults to music",
			req:  command.ActionRequest{Action: command.ActionPlayPause},
			want: []string{`tell application "Music" to playpause`},
		},
		{
			name: "close tab",
			req:  command.ActionRequest{Action: command.ActionCloseTab},
			want: []string{"key code 13 using {command down}"},
		},
		{
			name: "close window",
			req:  command.ActionRequest{Action: command.ActionCloseWindow},
			want: []string{"key code 13 using {command down, shift down}"},
		},
		{
			name: "close browser",
			req:  command.ActionRequest{Action: command.ActionCloseBrowser},
			want: []string{"key code 12 using {command down}"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &fakeRunner{}
			if err := newExecutor(r).Execute(context.Background(), tt.req); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			src := r.last().script()
			for _, w := range tt.want {
				if !strings.Contains(src, w) {
					t.Errorf("script %q missing %q", src, w)
				}
			}
		})
	}
}

func TestExecutePrograms(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	e := New(WithRunner(r), WithScreenshotDir("/tmp/shots"))

	if err := e.Execute(context.Background(), command.ActionRequest{Action: command.ActionWebSearch, Arg: "go generics"}); err != nil {
		t.Fatalf("web search: %v", err)
	}
	got := r.last()
	if got.name != "open" || got.args[0] != "https://www.google.com/search?q=go+generics" {
		t.Errorf("web search call = %+v", got)
	}

	if err := e.Execute(context.Background(), command.ActionRequest{Action: command.ActionScreenshot}); err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	got = r.last()
	if got.name != "screencapture" || strings.Join(got.args, " ") != "-x /tmp/shots" {
		t.Errorf("screenshot call = %+v", got)
	}
}

func TestTrackNeedsMusic(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{outputs: map[string]string{"first playlist": "OK"}}
	e := newExecutor(r)
	ctx := context.Background()

	if err := e.Execute(ctx, command.ActionRequest{Action: command.ActionNextTrack}); err == nil {
		t.Fatal("next track without an active player succeeded")
	}
	if err := e.Execute(ctx, command.ActionRequest{Action: command.ActionPlayPlaylist, Arg: "Chill"}); err != nil {
		t.Fatalf("play playlist: %v", err)
	}
	if err := e.Execute(ctx, command.ActionRequest{Action: command.ActionPreviousTrack}); err != nil {
		t.Fatalf("previous track: %v", err)
	}
	if src := r.last().script(); src != `tell application "Music" to previous track` {
		t.Errorf("script = %q", src)
	}
}

func TestPlaylistError(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{outputs: map[string]string{"first playlist": "ERR -1728 not found"}}
	err := newExecutor(r).Execute(context.Background(), command.ActionRequest{Action: command.ActionPlayPlaylist, Arg: "Nope"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want playlist failure", err)
	}
}

func TestPlayVideo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		url        string
		wantSecond bool
	}{
		{name: "first result", url: "https://www.youtube.com/watch?v=x"},
		{name: "music redirect takes second", url: "https://music.youtube.com/watch?v=x", wantSecond: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &fakeRunner{outputs: map[string]string{
				"CLICKED_FIRST":     "CLICKED_FIRST",
				"CLICKED_SECOND":    "CLICKED_SECOND",
				"URL of active tab": tt.url,
				"ALREADY_PLAYING":   "PLAY",
				"history.back()":    "BACK",
				"v.pause(); return": "PAUSE",
			}}
			e := newExecutor(r)
			ctx := context.Background()

			if err := e.Execute(ctx, command.ActionRequest{Action: command.ActionPlayVideo, Arg: "lofi beats"}); err != nil {
				t.Fatalf("play video: %v", err)
			}
			var all strings.Builder
			for _, c := range r.calls {
				all.WriteString(c.script())
			}
			if !strings.Contains(all.String(), "search_query=lofi+beats") {
				t.Error("search URL not opened")
			}
			if got := strings.Contains(all.String(), "CLICKED_SECOND"); got != tt.wantSecond {
				t.Errorf("clicked second = %v, want %v", got, tt.wantSecond)
			}

			// Play/pause now goes to the YouTube tab.
			if err := e.Execute(ctx, command.ActionRequest{Action: command.ActionPlayPause}); err != nil {
				t.Fatalf("play pause: %v", err)
			}
			if !strings.Contains(r.last().script(), "v.pause()") {
				t.Errorf("play pause script = %q", r.last().script())
			}
		})
	}
}

func TestPlayVideoNoResults(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{outputs: map[string]string{"CLICKED_FIRST": "NO_VIDEO_RENDERER"}}
	err := newExecutor(r).Execute(context.Background(), command.ActionRequest{Action: command.ActionPlayVideo, Arg: "x"})
	if err == nil || !strings.Contains(err.Error(), "NO_VIDEO_RENDERER") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunnerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("not permitted")
	r := &fakeRunner{err: boom}
	err := newExecutor(r).Execute(context.Background(), command.ActionRequest{Action: command.ActionMute})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestUnsupportedAction(t *testing.T) {
	t.Parallel()

	err := newExecutor(&fakeRunner{}).Execute(context.Background(), command.ActionRequest{Action: command.ActionWeather})
	if !errors.Is(err, executor.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}
