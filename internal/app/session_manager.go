package app

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/journal"
	"github.com/MrWong99/earshot/internal/lexicon"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/reply"
	"github.com/MrWong99/earshot/internal/session"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/types"
)

// SessionDeps holds the long-lived collaborators shared by every session.
// They do not change on reload.
type SessionDeps struct {
	LLM      llm.Provider
	Executor command.Executor

	// Querier answers query actions such as weather. Optional.
	Querier command.Querier

	Playback session.Speaker
	Journal  journal.Recorder
	Metrics  *observe.Metrics
}

// ProfileInfo describes the session profile currently handed to new
// connections.
type ProfileInfo struct {
	// Version starts at 1 and increases with every applied reload.
	Version  int
	LoadedAt time.Time
	Language types.Locale
}

type profile struct {
	info ProfileInfo
	cfg  session.Config
}

// SessionManager builds the [session.Config] for new connections from the
// current configuration. A reload swaps the profile atomically; sessions that
// are already running keep the profile they started with.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	deps    SessionDeps
	current atomic.Pointer[profile]
}

// NewSessionManager creates a SessionManager with the profile built from cfg.
func NewSessionManager(cfg *config.Config, deps SessionDeps) (*SessionManager, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("app: session manager requires an LLM provider")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("app: session manager requires an action executor")
	}
	if deps.Playback == nil {
		return nil, fmt.Errorf("app: session manager requires a playback queue")
	}
	sm := &SessionManager{deps: deps}
	p, err := sm.build(cfg, 1)
	if err != nil {
		return nil, err
	}
	sm.current.Store(p)
	return sm, nil
}

// Apply rebuilds the profile from cfg. On error the previous profile stays
// in effect.
func (sm *SessionManager) Apply(cfg *config.Config) error {
	p, err := sm.build(cfg, sm.current.Load().info.Version+1)
	if err != nil {
		return err
	}
	sm.current.Store(p)
	slog.Info("session profile reloaded", "version", p.info.Version, "language", p.info.Language)
	return nil
}

// SessionConfig returns the configuration for a new session. It satisfies
// [server.ConfigSource].
func (sm *SessionManager) SessionConfig() session.Config {
	return sm.current.Load().cfg
}

// WakeWords returns the current wake vocabulary for locale. The recognizer
// boosts these words.
func (sm *SessionManager) WakeWords(locale types.Locale) []string {
	return sm.current.Load().cfg.Lexicon.WakeWords(locale)
}

// Info returns metadata about the current profile.
func (sm *SessionManager) Info() ProfileInfo {
	return sm.current.Load().info
}

func (sm *SessionManager) build(cfg *config.Config, version int) (*profile, error) {
	var lexOpts []lexicon.Option
	for loc, lc := range cfg.Locales {
		if len(lc.WakeWords) > 0 {
			lexOpts = append(lexOpts, lexicon.WithWakeWords(loc, lc.WakeWords...))
		}
		if len(lc.SleepWords) > 0 {
			lexOpts = append(lexOpts, lexicon.WithSleepWords(loc, lc.SleepWords...))
		}
	}
	if cfg.Assistant.FuzzyWake > 0 {
		lexOpts = append(lexOpts, lexicon.WithFuzzyWake(cfg.Assistant.FuzzyWake))
	}

	catalog := command.DefaultCatalog().WithApps(cfg.Actions.Apps)
	cmdOpts := []command.Option{command.WithRules(command.DefaultRules(catalog))}
	if cfg.Actions.Timeout > 0 {
		cmdOpts = append(cmdOpts, command.WithTimeout(cfg.Actions.Timeout))
	}
	if sm.deps.Querier != nil {
		cmdOpts = append(cmdOpts, command.WithQuerier(sm.deps.Querier))
	}
	dispatcher, err := command.New(sm.deps.Executor, cmdOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: build command table: %w", err)
	}

	a := cfg.Assistant
	engine := reply.New(sm.deps.LLM, reply.Config{
		SystemPrompt: a.SystemPrompt,
		Temperature:  a.Temperature,
		MaxTokens:    a.MaxTokens,
		Timeout:      a.ReplyTimeout,
		Fallbacks:    a.FallbackReply,
	})

	lang := cfg.DefaultLanguage()
	return &profile{
		info: ProfileInfo{Version: version, LoadedAt: time.Now(), Language: lang},
		cfg: session.Config{
			Lexicon:      lexicon.New(lexOpts...),
			Commands:     dispatcher,
			Replies:      engine,
			Playback:     sm.deps.Playback,
			Journal:      sm.deps.Journal,
			Metrics:      sm.deps.Metrics,
			Language:     lang,
			HistoryLimit: a.HistoryLimit,
			TurnQueue:    cfg.Server.TurnQueue,
			ReadBuffer:   cfg.Server.ReadBuffer,
		},
	}, nil
}
