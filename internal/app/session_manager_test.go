package app_test

import (
	"context"
	"slices"
	"testing"

	"github.com/MrWong99/earshot/internal/app"
	"github.com/MrWong99/earshot/internal/command"
	cmdmock "github.com/MrWong99/earshot/internal/command/mock"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/playback"
	llmmock "github.com/MrWong99/earshot/pkg/provider/llm/mock"
	"github.com/MrWong99/earshot/pkg/types"
)

func newSessionManager(t *testing.T, cfg *config.Config) (*app.SessionManager, *cmdmock.Executor) {
	t.Helper()
	exec := &cmdmock.Executor{}
	sm, err := app.NewSessionManager(cfg, app.SessionDeps{
		LLM:      &llmmock.Provider{},
		Executor: exec,
		Playback: playback.NewMailbox(),
	})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return sm, exec
}

func TestNewSessionManager_RequiresDeps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		deps app.SessionDeps
	}{
		{name: "no llm", deps: app.SessionDeps{Executor: &cmdmock.Executor{}, Playback: playback.NewMailbox()}},
		{name: "no executor", deps: app.SessionDeps{LLM: &llmmock.Provider{}, Playback: playback.NewMailbox()}},
		{name: "no playback", deps: app.SessionDeps{LLM: &llmmock.Provider{}, Executor: &cmdmock.Executor{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := app.NewSessionManager(testConfig(), tt.deps); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSessionManager_Profile(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Assistant.DefaultLanguage = types.LocaleEN
	cfg.Assistant.HistoryLimit = 4
	cfg.Server.TurnQueue = 2
	cfg.Locales = map[types.Locale]config.LocaleConfig{
		types.LocaleEN: {WakeWords: []string{"computer"}},
	}
	sm, _ := newSessionManager(t, cfg)

	sc := sm.SessionConfig()
	if sc.Language != types.LocaleEN || sc.HistoryLimit != 4 || sc.TurnQueue != 2 {
		t.Errorf("session config = lang %s history %d queue %d", sc.Language, sc.HistoryLimit, sc.TurnQueue)
	}
	if sc.Replies == nil || sc.Commands == nil || sc.Playback == nil {
		t.Fatal("session config is missing collaborators")
	}
	if got := sm.WakeWords(types.LocaleEN); !slices.Contains(got, "computer") {
		t.Errorf("WakeWords(en) = %v, want computer", got)
	}
	if info := sm.Info(); info.Version != 1 || info.Language != types.LocaleEN {
		t.Errorf("Info() = %+v", info)
	}
}

func TestSessionManager_ApplyAddsApps(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	sm, exec := newSessionManager(t, cfg)
	ctx := context.Background()

	before := sm.SessionConfig()
	res, ok := before.Commands.Dispatch(ctx, types.LocaleEN, "open slack")
	if !ok || res.Status != command.StatusRejected {
		t.Fatalf("before reload: %+v ok=%v, want rejected", res, ok)
	}

	updated := testConfig()
	updated.Actions.Apps = map[string]string{"slack": "Slack"}
	if err := sm.Apply(updated); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if sm.Info().Version != 2 {
		t.Fatalf("version = %d, want 2", sm.Info().Version)
	}

	res, ok = sm.SessionConfig().Commands.Dispatch(ctx, types.LocaleEN, "open slack")
	if !ok || res.Status != command.StatusOK {
		t.Fatalf("after reload: %+v ok=%v, want ok", res, ok)
	}
	reqs := exec.Requests()
	if len(reqs) != 1 || reqs[0].Action != command.ActionOpenApp || reqs[0].Arg != "Slack" {
		t.Fatalf("executor requests = %+v", reqs)
	}

	// The snapshot taken before the reload is unchanged.
	if res, _ := before.Commands.Dispatch(ctx, types.LocaleEN, "open slack"); res.Status != command.StatusRejected {
		t.Errorf("old profile changed: %+v", res)
	}
}
