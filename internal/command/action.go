// Package command recognizes whitelisted voice commands and turns them into
// action requests.
//
// The whitelist is a declarative table of [Rule] values grouped by locale.
// The [Dispatcher] walks the table of the session locale first and then the
// other locale, top to bottom, and the first matching rule wins. Rules that
// would otherwise shadow each other are ordered longest and most specific
// first; [Validate] rejects a table where an earlier rule makes a later one
// unreachable.
package command

import (
	"context"

	"github.com/MrWong99/earshot/pkg/types"
)

// ActionID names a host action.
type ActionID string

// Host actions.
const (
	ActionOpenApp       ActionID = "open_app"
	ActionQuitApp       ActionID = "quit_app"
	ActionWebSearch     ActionID = "web_search"
	ActionTypeText      ActionID = "type_text"
	ActionPressKey      ActionID = "press_key"
	ActionVolumeUp      ActionID = "volume_up"
	ActionVolumeDown    ActionID = "volume_down"
	ActionMute          ActionID = "mute"
	ActionPlayPause     ActionID = "play_pause"
	ActionNextTrack     ActionID = "next_track"
	ActionPreviousTrack ActionID = "previous_track"
	ActionScreenshot    ActionID = "screenshot"
	ActionCloseTab      ActionID = "close_tab"
	ActionCloseWindow   ActionID = "close_window"
	ActionCloseBrowser  ActionID = "close_browser"
	ActionPlayPlaylist  ActionID = "play_playlist"
	ActionPlayVideo     ActionID = "play_video"

	// ActionWeather is a query: its reply is the fetched text.
	ActionWeather ActionID = "weather"
)

// Actions lists every action the default tables use.
var Actions = []ActionID{
	ActionOpenApp, ActionQuitApp, ActionWebSearch, ActionTypeText, ActionPressKey,
	ActionVolumeUp, ActionVolumeDown, ActionMute, ActionPlayPause, ActionNextTrack,
	ActionPreviousTrack, ActionScreenshot, ActionCloseTab, ActionCloseWindow,
	ActionCloseBrowser, ActionPlayPlaylist, ActionPlayVideo, ActionWeather,
}

// ActionRequest is a resolved command ready for execution.
type ActionRequest struct {
	Action ActionID

	// Arg is the rule argument after whitelist resolution: an application
	// name, a key name, a search query, or free text.
	Arg string

	// Locale is the session language at dispatch time.
	Locale types.Locale
}

// Executor performs host actions.
type Executor interface {
	Execute(ctx context.Context, req ActionRequest) error
}

// Querier answers query actions such as [ActionWeather].
type Querier interface {
	Query(ctx context.Context, req ActionRequest) (string, error)
}
