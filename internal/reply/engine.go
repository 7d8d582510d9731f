// Package reply turns a free-form utterance into a one-sentence spoken answer
// using an [llm.Provider].
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/types"
)

// DefaultSystemPrompt keeps answers short enough to speak in a few seconds.
const DefaultSystemPrompt = "You are a real-time voice assistant. " +
	"Use the same language as the user. " +
	"If unsure about facts, clearly say you don't know. " +
	"Do not invent people, games or places if you are not sure. " +
	"Short, clear sentences. Year is 2026. No markdown, no lists." +
	"Answer in one short sentence. Max 10 words"

const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 30
	defaultTimeout     = 20 * time.Second
)

// ErrEmptyReply is returned when the provider answered with nothing.
var ErrEmptyReply = errors.New("reply: empty completion")

// DefaultFallbacks are spoken when the provider fails.
var DefaultFallbacks = map[types.Locale]string{
	types.LocaleEN: "Sorry, something went wrong while generating a reply.",
	types.LocaleRU: "Извините, при генерации ответа произошла ошибка.",
}

// Config tunes an [Engine]. Zero fields take the package defaults.
type Config struct {
	SystemPrompt string

	// Temperature defaults to DefaultTemperature when nil. Zero is a valid
	// setting.
	Temperature *float64

	MaxTokens    int
	Timeout      time.Duration

	// Fallbacks overrides [DefaultFallbacks] per locale.
	Fallbacks map[types.Locale]string
}

// Engine answers utterances. It holds no per-session state and is safe for
// concurrent use.
type Engine struct {
	llm         llm.Provider
	cfg         Config
	temperature float64
}

// New creates an Engine over p.
func New(p llm.Provider, cfg Config) *Engine {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	fallbacks := make(map[types.Locale]string, len(DefaultFallbacks))
	for l, s := range DefaultFallbacks {
		fallbacks[l] = s
	}
	for l, s := range cfg.Fallbacks {
		if s != "" {
			fallbacks[l] = s
		}
	}
	cfg.Fallbacks = fallbacks
	return &Engine{llm: p, cfg: cfg, temperature: temperature}
}

// Reply asks the provider for an answer to utterance given the earlier turns
// in history. The returned text is a single line.
func (e *Engine) Reply(ctx context.Context, history []types.Message, utterance string) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return "", ErrEmptyReply
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	msgs := make([]types.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, types.Message{Role: "user", Content: utterance})

	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: e.cfg.SystemPrompt,
		Messages:     msgs,
		Temperature:  &e.temperature,
		MaxTokens:    e.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("reply: complete: %w", err)
	}
	text := strings.Join(strings.Fields(resp.Content), " ")
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// Fallback returns the apology spoken in locale when Reply fails.
func (e *Engine) Fallback(locale types.Locale) string {
	if s, ok := e.cfg.Fallbacks[locale]; ok {
		return s
	}
	return DefaultFallbacks[types.LocaleEN]
}
