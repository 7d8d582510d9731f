package app_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/app"
	cmdmock "github.com/MrWong99/earshot/internal/command/mock"
	"github.com/MrWong99/earshot/internal/config"
	journalmock "github.com/MrWong99/earshot/internal/journal/mock"
	"github.com/MrWong99/earshot/internal/protocol"
	llmmock "github.com/MrWong99/earshot/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/earshot/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/earshot/pkg/provider/tts/mock"
)

// testConfig returns a minimal valid config for tests.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "deepgram"},
			LLM: config.ProviderEntry{Name: "openai"},
			TTS: config.ProviderEntry{Name: "openai"},
		},
	}
}

// testProviders returns mock providers. The recognizer hears the wake word
// in every chunk of audio.
func testProviders() *app.Providers {
	return &app.Providers{
		STT: &sttmock.Provider{OnAudio: func(s *sttmock.Session, _ []byte) { s.EmitFinal("jarvis") }},
		LLM: &llmmock.Provider{},
		TTS: &ttsmock.Provider{SynthesizeChunks: [][]byte{{9, 9}}},
	}
}

func newTestApp(t *testing.T, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithExecutor(&cmdmock.Executor{}),
		app.WithQuerier(&cmdmock.Querier{}),
		app.WithJournal(&journalmock.Recorder{}),
	}, opts...)
	a, err := app.New(context.Background(), testConfig(), testProviders(), opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers *app.Providers
	}{
		{name: "nil", providers: nil},
		{name: "no stt", providers: &app.Providers{LLM: &llmmock.Provider{}}},
		{name: "no llm", providers: &app.Providers{STT: &sttmock.Provider{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := app.New(context.Background(), testConfig(), tt.providers); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_DefaultsToLogExecutorAndNopJournal(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestApp_RunServesDevices(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	a := newTestApp(t, app.WithListener(ln))

	rec := httptest.NewRecorder()
	a.Health().Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before Run = %d, want 503", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := protocol.NewReader(conn)

	want := []string{protocol.TokenSleeping, protocol.TokenListeningOff}
	readLines(t, r, want...)

	rec = httptest.NewRecorder()
	a.Health().Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz while running = %d, want 200", rec.Code)
	}

	if _, err := conn.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readLines(t, r, protocol.TokenAwake, protocol.TokenListeningOff, "Да?")
	frame, err := r.Next()
	if err != nil {
		t.Fatalf("speech frame: %v", err)
	}
	if frame.Kind != protocol.FrameSpeech || string(frame.Audio) != string([]byte{9, 9}) {
		t.Fatalf("frame = %+v, want speech 9 9", frame)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func readLines(t *testing.T, r *protocol.Reader, want ...string) {
	t.Helper()
	for _, w := range want {
		f, err := r.Next()
		if err != nil {
			t.Fatalf("reading %q: %v", w, err)
		}
		if f.Kind != protocol.FrameLine || f.Line != w {
			t.Fatalf("got %+v, want line %q", f, w)
		}
	}
}

func TestApp_Reload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		wantVersion int
	}{
		{
			name:        "apps reload",
			mutate:      func(c *config.Config) { c.Actions.Apps = map[string]string{"slack": "Slack"} },
			wantVersion: 2,
		},
		{
			name:        "assistant reload",
			mutate:      func(c *config.Config) { c.Assistant.SystemPrompt = "Be brief." },
			wantVersion: 2,
		},
		{
			name:        "restart only",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":7000" },
			wantVersion: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newTestApp(t)
			old := testConfig()
			updated := testConfig()
			tt.mutate(updated)
			a.Reload(old, updated, config.Diff(old, updated))
			if got := a.Sessions().Info().Version; got != tt.wantVersion {
				t.Fatalf("profile version = %d, want %d", got, tt.wantVersion)
			}
		})
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
