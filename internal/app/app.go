// Package app wires all earshot subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves devices until its context ends, and Shutdown tears
// everything down in order. Reload applies a changed configuration to
// sessions opened afterwards.
//
// For testing, inject doubles via functional options (WithListener,
// WithExecutor, WithJournal, ...). When an option is not provided, New
// creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/executor"
	"github.com/MrWong99/earshot/internal/executor/mcpexec"
	"github.com/MrWong99/earshot/internal/executor/osascript"
	"github.com/MrWong99/earshot/internal/health"
	"github.com/MrWong99/earshot/internal/journal"
	"github.com/MrWong99/earshot/internal/journal/postgres"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/playback"
	"github.com/MrWong99/earshot/internal/recognizer"
	"github.com/MrWong99/earshot/internal/server"
	"github.com/MrWong99/earshot/internal/weather"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

// Providers holds one interface value per provider slot. STT and LLM are
// required. A nil TTS makes every reply text-only. Populated by main.go via
// the config registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	listener net.Listener
	executor command.Executor
	querier  command.Querier
	journal  journal.Recorder

	// Subsystems: initialised in New, torn down in Shutdown.
	sessions *SessionManager
	mailbox  *playback.Mailbox
	worker   *playback.Worker
	server   *server.Server
	health   *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithListener serves devices on ln instead of listening on the configured
// address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithExecutor injects the host action backend instead of creating one from
// config.
func WithExecutor(e command.Executor) Option {
	return func(a *App) { a.executor = e }
}

// WithQuerier injects the answerer for query actions instead of the weather
// client.
func WithQuerier(q command.Querier) Option {
	return func(a *App) { a.querier = q }
}

// WithJournal injects the interaction journal instead of creating one from
// config.
func WithJournal(j journal.Recorder) Option {
	return func(a *App) { a.journal = j }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. Use Option functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: an STT provider is required")
	}
	if providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.health = health.New()

	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}
	if err := a.initActions(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init actions: %w", err)
	}
	a.initPlayback()

	sessions, err := NewSessionManager(cfg, SessionDeps{
		LLM:      providers.LLM,
		Executor: a.executor,
		Querier:  a.querier,
		Playback: a.mailbox,
		Journal:  a.journal,
		Metrics:  a.metrics,
	})
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.sessions = sessions

	factory := recognizer.NewFactory(providers.STT, recognizer.Config{
		Languages: cfg.RecognizerLanguages(),
		Keywords:  sessions.WakeWords,
	})
	a.server = server.New(factory, sessions.SessionConfig)
	a.health.Add(health.Ready("listener", a.server.Accepting))

	return a, nil
}

func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	jc := a.cfg.Journal
	if jc.PostgresDSN == "" {
		a.journal = journal.Nop{}
		return nil
	}
	var opts []postgres.Option
	if jc.QueueSize > 0 {
		opts = append(opts, postgres.WithQueueSize(jc.QueueSize))
	}
	store, err := postgres.New(ctx, jc.PostgresDSN, opts...)
	if err != nil {
		return err
	}
	a.journal = store
	a.closers = append(a.closers, store.Close)
	a.health.Add(health.Checker{Name: "journal", Check: store.Ping})
	slog.Info("journal connected")
	return nil
}

func (a *App) initActions(ctx context.Context) error {
	ac := a.cfg.Actions
	if a.querier == nil {
		wopts := []weather.Option{}
		if ac.Weather.BaseURL != "" {
			wopts = append(wopts, weather.WithBaseURL(ac.Weather.BaseURL))
		}
		if ac.Weather.DefaultLocation != "" {
			wopts = append(wopts, weather.WithDefaultLocation(ac.Weather.DefaultLocation))
		}
		timeout := ac.Weather.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		wopts = append(wopts, weather.WithHTTPClient(&http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}))
		a.querier = weather.New(wopts...)
	}
	if a.executor != nil {
		return nil
	}

	switch ac.Executor {
	case config.ExecutorOSAScript:
		var opts []osascript.Option
		if ac.VolumeStep > 0 {
			opts = append(opts, osascript.WithVolumeStep(ac.VolumeStep))
		}
		a.executor = osascript.New(opts...)
	case config.ExecutorMCP:
		tools := make(map[command.ActionID]string, len(ac.MCP.Tools))
		for action, tool := range ac.MCP.Tools {
			tools[command.ActionID(action)] = tool
		}
		exec, err := mcpexec.Connect(ctx, mcpexec.Config{
			Transport: mcpexec.Transport(ac.MCP.Transport),
			Command:   ac.MCP.Command,
			Env:       ac.MCP.Env,
			URL:       ac.MCP.URL,
			Tools:     tools,
		})
		if err != nil {
			return err
		}
		a.executor = exec
		a.closers = append(a.closers, exec.Close)
	default:
		a.executor = executor.Log{Logger: slog.Default().With("component", "actions")}
	}
	slog.Info("action executor ready", "kind", executorKind(ac.Executor))
	return nil
}

func (a *App) initPlayback() {
	a.mailbox = playback.NewMailbox()
	a.mailbox.OnReplace(func() {
		a.metrics.PlaybackCoalesced.Add(context.Background(), 1)
	})

	pc := a.cfg.Playback
	voice := a.cfg.Assistant.Voice
	opts := []playback.WorkerOption{
		playback.WithMetrics(a.metrics),
		playback.WithVoice(types.VoiceProfile{ID: voice.ID, Name: voice.Name, Provider: a.cfg.Providers.TTS.Name}),
	}
	if pc.SynthTimeout > 0 {
		opts = append(opts, playback.WithSynthTimeout(pc.SynthTimeout))
	}
	a.worker = playback.NewWorker(a.mailbox, a.providers.TTS, opts...)
}

// Sessions exposes the session profile manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Server exposes the device listener, mainly for status reporting.
func (a *App) Server() *server.Server { return a.server }

// Reload applies a changed configuration. Vocabulary, assistant, and app
// alias changes reach sessions opened afterwards. Everything listed in
// d.RestartRequired is only logged. It matches [config.ChangeFunc].
func (a *App) Reload(_, updated *config.Config, d config.ConfigDiff) {
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", strings.Join(d.RestartRequired, ", "))
	}
	if !d.AssistantChanged && !d.VocabularyChanged && !d.AppsChanged {
		return
	}
	if err := a.sessions.Apply(updated); err != nil {
		slog.Error("config reload rejected, keeping previous session profile", "err", err)
	}
}

// Run serves devices until ctx is cancelled. It also runs the playback
// workers and, when configured, the HTTP side server with health and metrics
// endpoints. Run returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.ListenAddr())
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}
	slog.Info("listening for devices", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer a.mailbox.Close()
		return a.server.Serve(ctx, ln)
	})
	g.Go(func() error {
		return a.worker.Run(ctx, a.cfg.Playback.Workers)
	})
	if addr := a.cfg.Server.HTTPAddr; addr != "" {
		srv := a.httpServer(addr)
		g.Go(func() error {
			slog.Info("http side server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func (a *App) httpServer(addr string) *http.Server {
	mux := http.NewServeMux()
	a.health.Register(mux)
	path := a.cfg.Telemetry.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	mux.Handle("GET "+path, promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// Shutdown releases the journal and the action executor. Call it after Run
// has returned. If ctx expires before all closers finish, the remaining ones
// are skipped and ctx's error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = err
				return
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}

func executorKind(k config.ExecutorKind) config.ExecutorKind {
	if k == "" {
		return config.ExecutorLog
	}
	return k
}
