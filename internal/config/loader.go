package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/pkg/types"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper-native"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown keys are rejected. An empty document yields the zero Config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ReadBuffer < 0 {
		errs = append(errs, fmt.Errorf("server.read_buffer must not be negative"))
	}
	if cfg.Server.TurnQueue < 0 {
		errs = append(errs, fmt.Errorf("server.turn_queue must not be negative"))
	}

	p := cfg.Providers
	validateProviderName("stt", p.STT.Name)
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("tts", p.TTS.Name)
	for _, fb := range p.STTFallbacks {
		validateProviderName("stt", fb.Name)
	}
	for _, fb := range p.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	for _, fb := range p.TTSFallbacks {
		validateProviderName("tts", fb.Name)
	}
	if p.STT.Name == "" {
		errs = append(errs, fmt.Errorf("providers.stt is required"))
	}
	if p.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("providers.llm is required"))
	}
	if p.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; replies will be sent as text only")
	}
	if len(p.STTFallbacks) > 0 && p.STT.Name == "" {
		errs = append(errs, fmt.Errorf("providers.stt_fallbacks requires providers.stt"))
	}
	if len(p.TTSFallbacks) > 0 && p.TTS.Name == "" {
		errs = append(errs, fmt.Errorf("providers.tts_fallbacks requires providers.tts"))
	}

	a := cfg.Assistant
	if a.DefaultLanguage != "" && !a.DefaultLanguage.Valid() {
		errs = append(errs, fmt.Errorf("assistant.default_language %q is invalid; valid values: ru, en", a.DefaultLanguage))
	}
	if a.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_limit must not be negative"))
	}
	if t := a.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0, 2]", *t))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_tokens must not be negative"))
	}
	if a.FuzzyWake < 0 || a.FuzzyWake > 1 {
		errs = append(errs, fmt.Errorf("assistant.fuzzy_wake %.2f is out of range [0, 1]", a.FuzzyWake))
	}
	for loc := range a.FallbackReply {
		if !loc.Valid() {
			errs = append(errs, fmt.Errorf("assistant.fallback_reply: unknown locale %q", loc))
		}
	}

	for loc, lc := range cfg.Locales {
		if !loc.Valid() {
			errs = append(errs, fmt.Errorf("locales: unknown locale %q", loc))
			continue
		}
		if p.STT.Name == "whisper-native" && lc.ModelPath == "" {
			errs = append(errs, fmt.Errorf("locales.%s.model_path is required for whisper-native", loc))
		}
	}
	if p.STT.Name == "whisper-native" {
		for _, loc := range types.Locales {
			if _, ok := cfg.Locales[loc]; !ok {
				errs = append(errs, fmt.Errorf("locales.%s.model_path is required for whisper-native", loc))
			}
		}
	}

	errs = append(errs, validateActions(cfg.Actions)...)

	if cfg.Playback.Workers < 0 {
		errs = append(errs, fmt.Errorf("playback.workers must not be negative"))
	}
	if cfg.Journal.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("journal.queue_size must not be negative"))
	}
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

func validateActions(a ActionsConfig) []error {
	var errs []error
	if a.Executor != "" && !a.Executor.IsValid() {
		errs = append(errs, fmt.Errorf("actions.executor %q is invalid; valid values: osascript, mcp, log", a.Executor))
	}
	if a.Executor == ExecutorMCP {
		m := a.MCP
		switch {
		case !m.Transport.IsValid():
			errs = append(errs, fmt.Errorf("actions.mcp.transport %q is invalid; valid values: stdio, streamable-http", m.Transport))
		case m.Transport == MCPTransportStdio && m.Command == "":
			errs = append(errs, fmt.Errorf("actions.mcp.command is required when transport is stdio"))
		case m.Transport == MCPTransportStreamableHTTP && m.URL == "":
			errs = append(errs, fmt.Errorf("actions.mcp.url is required when transport is streamable-http"))
		}
	}
	for action := range a.MCP.Tools {
		if !slices.Contains(command.Actions, command.ActionID(action)) {
			errs = append(errs, fmt.Errorf("actions.mcp.tools: unknown action %q", action))
		}
	}
	if a.VolumeStep < 0 || a.VolumeStep > 100 {
		errs = append(errs, fmt.Errorf("actions.volume_step %d is out of range [0, 100]", a.VolumeStep))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
