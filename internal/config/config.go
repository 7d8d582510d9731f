// Package config provides the configuration schema, loader, and provider
// registry for the earshot voice assistant server.
package config

import (
	"time"

	"github.com/MrWong99/earshot/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ExecutorKind selects the host action backend.
type ExecutorKind string

const (
	// ExecutorOSAScript drives macOS through AppleScript.
	ExecutorOSAScript ExecutorKind = "osascript"

	// ExecutorMCP forwards actions to an MCP tool server.
	ExecutorMCP ExecutorKind = "mcp"

	// ExecutorLog only logs actions. It is the default.
	ExecutorLog ExecutorKind = "log"
)

// IsValid reports whether k is a recognised executor kind.
func (k ExecutorKind) IsValid() bool {
	switch k {
	case ExecutorOSAScript, ExecutorMCP, ExecutorLog:
		return true
	}
	return false
}

// MCPTransport selects how the MCP action server is reached.
type MCPTransport string

const (
	MCPTransportStdio          MCPTransport = "stdio"
	MCPTransportStreamableHTTP MCPTransport = "streamable-http"
)

// IsValid reports whether t is a recognised MCP transport.
func (t MCPTransport) IsValid() bool {
	return t == MCPTransportStdio || t == MCPTransportStreamableHTTP
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig                  `yaml:"server"`
	Providers ProvidersConfig               `yaml:"providers"`
	Assistant AssistantConfig               `yaml:"assistant"`
	Locales   map[types.Locale]LocaleConfig `yaml:"locales"`
	Actions   ActionsConfig                 `yaml:"actions"`
	Playback  PlaybackConfig                `yaml:"playback"`
	Journal   JournalConfig                 `yaml:"journal"`
	Telemetry TelemetryConfig               `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the device-facing TCP address. Default: ":6000".
	ListenAddr string `yaml:"listen_addr"`

	// HTTPAddr serves /healthz, /readyz and /metrics. Empty disables the
	// side server.
	HTTPAddr string `yaml:"http_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// ReadBuffer is the size of a single socket read in bytes.
	ReadBuffer int `yaml:"read_buffer"`

	// TurnQueue is how many utterances a session may have waiting for a
	// reply before new ones are dropped.
	TurnQueue int `yaml:"turn_queue"`
}

// ProvidersConfig declares which provider implementation to use for each
// stage. Each entry selects a named provider registered in the [Registry].
// Fallback entries are tried in order when the primary fails.
type ProvidersConfig struct {
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation ("openai",
	// "deepgram", "whisper-native", ...).
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig shapes the conversational behaviour of every session.
// All fields are hot-reloadable and apply to sessions opened afterwards.
type AssistantConfig struct {
	// DefaultLanguage is the locale of a new session. Default: ru.
	DefaultLanguage types.Locale `yaml:"default_language"`

	// HistoryLimit caps the remembered messages per session.
	HistoryLimit int `yaml:"history_limit"`

	SystemPrompt string `yaml:"system_prompt"`

	// Temperature of reply generation. Unset means the engine default; 0 is
	// kept as 0.
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`

	// ReplyTimeout bounds one reply generation.
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	Voice VoiceConfig `yaml:"voice"`

	// FallbackReply is spoken when reply generation fails, per locale.
	FallbackReply map[types.Locale]string `yaml:"fallback_reply"`

	// FuzzyWake enables tolerant wake matching at this Jaro-Winkler
	// threshold. Zero keeps matching exact.
	FuzzyWake float64 `yaml:"fuzzy_wake"`
}

// VoiceConfig selects the synthesized voice.
type VoiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Instructions steer the delivery for providers that support it.
	Instructions string `yaml:"instructions"`
}

// LocaleConfig holds per-locale vocabulary and recognizer settings.
type LocaleConfig struct {
	// Language is the recognizer language code for this locale ("ru",
	// "en-US"). Default: the locale code.
	Language string `yaml:"language"`

	// ModelPath is the whisper model file for whisper-native.
	ModelPath string `yaml:"model_path"`

	// WakeWords and SleepWords replace the built-in vocabularies when set.
	WakeWords  []string `yaml:"wake_words"`
	SleepWords []string `yaml:"sleep_words"`
}

// ActionsConfig selects and configures the host action backend.
type ActionsConfig struct {
	// Executor selects the backend. Default: log.
	Executor ExecutorKind `yaml:"executor"`

	// Timeout bounds a single action. Default: 15s.
	Timeout time.Duration `yaml:"timeout"`

	// Apps adds spoken English aliases to the application whitelist.
	Apps map[string]string `yaml:"apps"`

	// VolumeStep is the osascript volume change per command in percent.
	VolumeStep int `yaml:"volume_step"`

	MCP     MCPConfig     `yaml:"mcp"`
	Weather WeatherConfig `yaml:"weather"`
}

// MCPConfig describes the MCP server that performs actions.
type MCPConfig struct {
	Transport MCPTransport      `yaml:"transport"`
	Command   string            `yaml:"command"`
	Env       map[string]string `yaml:"env"`
	URL       string            `yaml:"url"`

	// Tools maps an action name to a tool name when they differ.
	Tools map[string]string `yaml:"tools"`
}

// WeatherConfig configures the weather query.
type WeatherConfig struct {
	BaseURL         string        `yaml:"base_url"`
	DefaultLocation string        `yaml:"default_location"`
	Timeout         time.Duration `yaml:"timeout"`
}

// PlaybackConfig configures speech delivery.
type PlaybackConfig struct {
	// Workers is the number of concurrent synthesis workers. Default: 1.
	Workers int `yaml:"workers"`

	// SynthTimeout bounds synthesis of one reply.
	SynthTimeout time.Duration `yaml:"synth_timeout"`
}

// JournalConfig configures the interaction journal. An empty DSN disables it.
type JournalConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`

	// QueueSize bounds entries waiting to be written.
	QueueSize int `yaml:"queue_size"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// MetricsPath is where the Prometheus handler is mounted on the side
	// server. Default: /metrics.
	MetricsPath string `yaml:"metrics_path"`

	// TraceSampleRatio is the fraction of new traces recorded, in [0, 1].
	// Zero means sample everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// ListenAddr returns the configured device address or the default.
func (c *Config) ListenAddr() string {
	if c.Server.ListenAddr == "" {
		return ":6000"
	}
	return c.Server.ListenAddr
}

// DefaultLanguage returns the configured session locale or ru.
func (c *Config) DefaultLanguage() types.Locale {
	if c.Assistant.DefaultLanguage.Valid() {
		return c.Assistant.DefaultLanguage
	}
	return types.LocaleRU
}

// RecognizerLanguages maps each locale to its recognizer language code.
// Locales without an override are omitted.
func (c *Config) RecognizerLanguages() map[types.Locale]string {
	out := make(map[types.Locale]string, len(c.Locales))
	for loc, lc := range c.Locales {
		if lc.Language != "" {
			out[loc] = lc.Language
		}
	}
	return out
}
