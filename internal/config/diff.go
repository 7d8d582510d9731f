package config

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/MrWong99/earshot/pkg/types"
)

// ConfigDiff describes what changed between two configs. Only fields that
// are applied without a restart are tracked; a change anywhere else is
// reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssistantChanged covers prompts, sampling, voice and fallback phrases.
	AssistantChanged bool

	// VocabularyChanged covers wake and sleep words and fuzzy matching.
	VocabularyChanged bool

	// AppsChanged covers the application whitelist.
	AppsChanged bool

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AssistantChanged && !d.VocabularyChanged &&
		!d.AppsChanged && len(d.RestartRequired) == 0
}

// Summary returns a short comma-separated list of changes for logging.
func (d ConfigDiff) Summary() string {
	var parts []string
	if d.LogLevelChanged {
		parts = append(parts, "log_level="+string(d.NewLogLevel))
	}
	if d.AssistantChanged {
		parts = append(parts, "assistant")
	}
	if d.VocabularyChanged {
		parts = append(parts, "vocabulary")
	}
	if d.AppsChanged {
		parts = append(parts, "apps")
	}
	for _, s := range d.RestartRequired {
		parts = append(parts, s+" (restart required)")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// Diff compares old and updated configs and returns what changed.
func Diff(old, updated *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != updated.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = updated.Server.LogLevel
	}

	oa, na := old.Assistant, updated.Assistant
	if oa.SystemPrompt != na.SystemPrompt || !sameFloat(oa.Temperature, na.Temperature) ||
		oa.MaxTokens != na.MaxTokens || oa.ReplyTimeout != na.ReplyTimeout ||
		oa.HistoryLimit != na.HistoryLimit || oa.DefaultLanguage != na.DefaultLanguage ||
		oa.Voice != na.Voice || !maps.Equal(oa.FallbackReply, na.FallbackReply) {
		d.AssistantChanged = true
	}

	if oa.FuzzyWake != na.FuzzyWake || !vocabularyEqual(old.Locales, updated.Locales) {
		d.VocabularyChanged = true
	}

	if !maps.Equal(old.Actions.Apps, updated.Actions.Apps) {
		d.AppsChanged = true
	}

	// Everything else is wired at startup.
	oldSrv, newSrv := old.Server, updated.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	if oldSrv != newSrv {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, updated.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !recognizerEqual(old.Locales, updated.Locales) {
		d.RestartRequired = append(d.RestartRequired, "locales")
	}
	oact, nact := old.Actions, updated.Actions
	oact.Apps, nact.Apps = nil, nil
	if !reflect.DeepEqual(oact, nact) {
		d.RestartRequired = append(d.RestartRequired, "actions")
	}
	if old.Playback != updated.Playback {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}
	if old.Journal != updated.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}
	if old.Telemetry != updated.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

func vocabularyEqual(a, b map[types.Locale]LocaleConfig) bool {
	return maps.EqualFunc(a, b, func(x, y LocaleConfig) bool {
		return slices.Equal(x.WakeWords, y.WakeWords) && slices.Equal(x.SleepWords, y.SleepWords)
	})
}

func recognizerEqual(a, b map[types.Locale]LocaleConfig) bool {
	return maps.EqualFunc(a, b, func(x, y LocaleConfig) bool {
		return x.Language == y.Language && x.ModelPath == y.ModelPath
	})
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
