// Package osascript performs host actions on macOS by running AppleScript
// through the osascript binary, plus the open and screencapture tools.
//
// Most actions are fire-and-forget scripts. Media control remembers which
// player was started last (Music or a YouTube tab in Chrome) so that
// play/pause reaches the right one.
package osascript

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/internal/executor"
)

const (
	defaultVolumeStep = 6
	defaultSettle     = 2 * time.Second
	defaultScreenDir  = "~/Desktop"
)

// macOS virtual key codes, US layout.
var keyCodes = map[string]int{
	"return": 36,
	"tab":    48,
	"space":  49,
	"delete": 51,
	"escape": 53,
}

type player int

const (
	playerNone player = iota
	playerMusic
	playerYouTube
)

// Runner runs an external program and returns its trimmed standard output.
// A non-zero exit status is an error carrying the trimmed standard error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner is the [Runner] backed by os/exec.
type ExecRunner struct{}

// Run implements [Runner].
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Option configures an [Executor].
type Option func(*Executor)

// WithRunner replaces the process runner. Tests use it to capture scripts.
func WithRunner(r Runner) Option {
	return func(e *Executor) { e.run = r }
}

// WithVolumeStep sets the output volume change per volume command, in
// percent. Default: 6.
func WithVolumeStep(step int) Option {
	return func(e *Executor) { e.volumeStep = step }
}

// WithSettle sets how long YouTube playback waits for a page to render
// between steps. Default: 2 s.
func WithSettle(d time.Duration) Option {
	return func(e *Executor) { e.settle = d }
}

// WithScreenshotDir sets the screencapture target directory.
func WithScreenshotDir(dir string) Option {
	return func(e *Executor) { e.screenDir = dir }
}

// Executor is a [command.Executor] for macOS. It is safe for concurrent use.
type Executor struct {
	run        Runner
	volumeStep int
	settle     time.Duration
	screenDir  string

	mu     sync.Mutex
	active player
}

var _ command.Executor = (*Executor)(nil)

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		run:        ExecRunner{},
		volumeStep: defaultVolumeStep,
		settle:     defaultSettle,
		screenDir:  defaultScreenDir,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute performs req.
func (e *Executor) Execute(ctx context.Context, req command.ActionRequest) error {
	switch req.Action {
	case command.ActionOpenApp:
		return e.script(ctx, fmt.Sprintf(`tell application "%s" to activate`, escape(req.Arg)))
	case command.ActionQuitApp:
		return e.script(ctx, fmt.Sprintf(`tell application "%s" to quit`, escape(req.Arg)))
	case command.ActionTypeText:
		return e.script(ctx, "tell application \"System Events\"\n"+
			fmt.Sprintf("  keystroke \"%s\"\n", escape(req.Arg))+
			"end tell")
	case command.ActionPressKey:
		code, ok := keyCodes[req.Arg]
		if !ok {
			code = keyCodes["escape"]
		}
		return e.script(ctx, fmt.Sprintf("tell application \"System Events\"\n  key code %d\nend tell", code))
	case command.ActionVolumeUp:
		return e.volume(ctx, e.volumeStep)
	case command.ActionVolumeDown:
		return e.volume(ctx, -e.volumeStep)
	case command.ActionMute:
		return e.script(ctx, "set volume with output muted")
	case command.ActionPlayPause:
		return e.playPause(ctx)
	case command.ActionNextTrack:
		return e.track(ctx, "next track")
	case command.ActionPreviousTrack:
		return e.track(ctx, "previous track")
	case command.ActionScreenshot:
		_, err := e.run.Run(ctx, "screencapture", "-x", e.screenDir)
		return err
	case command.ActionWebSearch:
		_, err := e.run.Run(ctx, "open", "https://www.google.com/search?q="+url.QueryEscape(req.Arg))
		return err
	case command.ActionCloseTab:
		return e.chromeKey(ctx, "{command down}", 13)
	case command.ActionCloseWindow:
		return e.chromeKey(ctx, "{command down, shift down}", 13)
	case command.ActionCloseBrowser:
		return e.chromeKey(ctx, "{command down}", 12)
	case command.ActionPlayPlaylist:
		return e.playPlaylist(ctx, req.Arg)
	case command.ActionPlayVideo:
		return e.playVideo(ctx, req.Arg)
	default:
		return executor.Unsupported(req.Action)
	}
}

func (e *Executor) script(ctx context.Context, src string) error {
	_, err := e.output(ctx, src)
	return err
}

func (e *Executor) output(ctx context.Context, src string) (string, error) {
	out, err := e.run.Run(ctx, "osascript", "-e", src)
	if err != nil {
		return "", fmt.Errorf("osascript: %w", err)
	}
	return out, nil
}

func (e *Executor) volume(ctx context.Context, delta int) error {
	return e.script(ctx, "set v to output volume of (get volume settings)\n"+
		fmt.Sprintf("set v to v + (%d)\n", delta)+
		"if v > 100 then set v to 100\n"+
		"if v < 0 then set v to 0\n"+
		"set volume output volume v")
}

func (e *Executor) player() player {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Executor) setPlayer(p player) {
	e.mu.Lock()
	e.active = p
	e.mu.Unlock()
}

func (e *Executor) playPause(ctx context.Context) error {
	if e.player() == playerYouTube {
		res, err := e.chromeJS(ctx, jsTogglePlay)
		if err != nil {
			return err
		}
		if !strings.Contains(res, "PLAY") && !strings.Contains(res, "PAUSE") {
			return fmt.Errorf("osascript: youtube toggle: %s", res)
		}
		return nil
	}
	return e.script(ctx, `tell application "Music" to playpause`)
}

// track skips in Music. Only Music has a track list.
func (e *Executor) track(ctx context.Context, verb string) error {
	if e.player() != playerMusic {
		return fmt.Errorf("osascript: %s needs Music to be the active player", verb)
	}
	return e.script(ctx, fmt.Sprintf(`tell application "Music" to %s`, verb))
}

func (e *Executor) chromeKey(ctx context.Context, modifiers string, code int) error {
	return e.script(ctx, "tell application \"Google Chrome\" to activate\n"+
		"delay 0.05\n"+
		"tell application \"System Events\"\n"+
		fmt.Sprintf("  key code %d using %s\n", code, modifiers)+
		"end tell")
}

func (e *Executor) playPlaylist(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("osascript: empty playlist name")
	}
	out, err := e.output(ctx, "tell application \"Music\"\n"+
		"  activate\n"+
		"  delay 0.2\n"+
		"  set shuffle enabled to true\n"+
		"  try\n"+
		fmt.Sprintf("    set pl to first playlist whose name is \"%s\"\n", escape(name))+
		"    play pl\n"+
		"    return \"OK\"\n"+
		"  on error errMsg number errNum\n"+
		"    return \"ERR \" & errNum & \" \" & errMsg\n"+
		"  end try\n"+
		"end tell")
	if err != nil {
		return err
	}
	if out != "OK" {
		return fmt.Errorf("osascript: playlist %q: %s", name, out)
	}
	e.setPlayer(playerMusic)
	return nil
}

// playVideo searches YouTube in a new Chrome tab and starts the first
// result. When the first result redirects to YouTube Music it goes back and
// takes the second one.
func (e *Executor) playVideo(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("osascript: empty video query")
	}
	target := "https://www.youtube.com/results?search_query=" + url.QueryEscape(query)
	if err := e.script(ctx, "tell application \"Google Chrome\"\n"+
		"  activate\n"+
		"  if (count of windows) = 0 then make new window\n"+
		"  set t to make new tab at end of tabs of front window\n"+
		fmt.Sprintf("  set URL of t to \"%s\"\n", escape(target))+
		"  set active tab index of front window to (count of tabs of front window)\n"+
		"end tell"); err != nil {
		return err
	}
	if err := e.wait(ctx, e.settle); err != nil {
		return err
	}

	res, err := e.chromeJS(ctx, jsClickFirst)
	if err != nil {
		return err
	}
	if !strings.Contains(res, "CLICKED_FIRST") {
		return fmt.Errorf("osascript: youtube search: %s", res)
	}
	if err := e.wait(ctx, e.settle); err != nil {
		return err
	}

	current, err := e.output(ctx, "tell application \"Google Chrome\"\n"+
		"  if (count of windows) = 0 then return \"\"\n"+
		"  return URL of active tab of front window\n"+
		"end tell")
	if err != nil {
		return err
	}
	if strings.Contains(current, "music.youtube.com") {
		if _, err := e.chromeJS(ctx, "history.back(); 'BACK';"); err != nil {
			return err
		}
		if err := e.wait(ctx, e.settle/2); err != nil {
			return err
		}
		if _, err := e.chromeJS(ctx, jsClickSecond); err != nil {
			return err
		}
		if err := e.wait(ctx, e.settle); err != nil {
			return err
		}
	}

	res, err = e.chromeJS(ctx, jsForcePlay)
	if err != nil {
		return err
	}
	if !strings.Contains(res, "PLAY") {
		return fmt.Errorf("osascript: youtube play: %s", res)
	}
	e.setPlayer(playerYouTube)
	return nil
}

func (e *Executor) chromeJS(ctx context.Context, js string) (string, error) {
	return e.output(ctx, "tell application \"Google Chrome\"\n"+
		"  if (count of windows) = 0 then return \"NO_WINDOW\"\n"+
		"  set t to active tab of front window\n"+
		fmt.Sprintf("  return execute t javascript \"%s\"\n", escape(js))+
		"end tell")
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// escape quotes s for an AppleScript string literal.
func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

const (
	jsClickFirst = `(() => {
  const first = document.querySelector('ytd-video-renderer a#thumbnail') ||
    document.querySelector('ytd-video-renderer a#video-title');
  if (!first) return "NO_VIDEO_RENDERER";
  first.click();
  return "CLICKED_FIRST";
})();`

	jsClickSecond = `(() => {
  const vids = Array.from(document.querySelectorAll('ytd-video-renderer'));
  if (vids.length < 2) return "NO_SECOND";
  const a = vids[1].querySelector('a#thumbnail') || vids[1].querySelector('a#video-title');
  if (!a) return "NO_SECOND_LINK";
  a.click();
  return "CLICKED_SECOND";
})();`

	jsForcePlay = `(() => {
  const v = document.querySelector('video');
  if (!v) return "NO_VIDEO";
  if (v.paused) { v.play(); return "PLAY"; }
  return "ALREADY_PLAYING";
})();`

	jsTogglePlay = `(() => {
  const v = document.querySelector('video');
  if (!v) return "NO_VIDEO";
  if (v.paused) { v.play(); return "PLAY"; }
  v.pause(); return "PAUSE";
})();`
)
