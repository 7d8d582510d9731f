package command

import (
	"maps"

	"github.com/MrWong99/earshot/internal/text"
)

// Catalog holds the argument whitelists.
type Catalog struct {
	// Apps maps a spoken English alias to the application name.
	Apps map[string]string

	// AppsRU maps a spoken Russian alias to a key of Apps.
	AppsRU map[string]string

	// KeysEN and KeysRU map a spoken key name to the canonical key
	// (return, tab, escape, space, delete).
	KeysEN map[string]string
	KeysRU map[string]string
}

// DefaultCatalog returns the built-in whitelists.
func DefaultCatalog() Catalog {
	return Catalog{
		Apps: map[string]string{
			"safari":             "Safari",
			"chrome":             "Google Chrome",
			"google chrome":      "Google Chrome",
			"vscode":             "Visual Studio Code",
			"vs code":            "Visual Studio Code",
			"visual studio code": "Visual Studio Code",
			"telegram":           "Telegram",
			"discord":            "Discord",
			"finder":             "Finder",
			"notes":              "Notes",
			"music":              "Music",
			"terminal":           "Terminal",
		},
		AppsRU: map[string]string{
			"сафари":           "safari",
			"гугл":             "chrome",
			"гугл хром":        "google chrome",
			"вс код":           "vscode",
			"видео студио код": "vscode",
			"телеграмм":        "telegram",
			"дискорд":          "discord",
			"файндер":          "finder",
			"заметки":          "notes",
			"музыку":           "music",
			"терминал":         "terminal",
		},
		KeysEN: map[string]string{
			"enter":     "return",
			"return":    "return",
			"tab":       "tab",
			"escape":    "escape",
			"esc":       "escape",
			"space":     "space",
			"backspace": "delete",
			"delete":    "delete",
		},
		KeysRU: map[string]string{
			"энтер":    "return",
			"интер":    "return",
			"таб":      "tab",
			"эскейп":   "escape",
			"эск":      "escape",
			"пробел":   "space",
			"бэкспейс": "delete",
			"делит":    "delete",
		},
	}
}

// WithApps returns a copy of c with extra English aliases merged in.
func (c Catalog) WithApps(extra map[string]string) Catalog {
	apps := maps.Clone(c.Apps)
	for alias, app := range extra {
		apps[text.Phrase(alias)] = app
	}
	c.Apps = apps
	return c
}

// Resolver maps a normalized argument onto a whitelisted value.
type Resolver func(arg string) (string, bool)

// App resolves English aliases only.
func (c Catalog) App(arg string) (string, bool) {
	app, ok := c.Apps[arg]
	return app, ok
}

// AppAnyLocale resolves a Russian alias to its English key first.
func (c Catalog) AppAnyLocale(arg string) (string, bool) {
	if en, ok := c.AppsRU[arg]; ok {
		arg = en
	}
	return c.App(arg)
}

// KeyEN resolves English key names.
func (c Catalog) KeyEN(arg string) (string, bool) {
	k, ok := c.KeysEN[arg]
	return k, ok
}

// KeyRU resolves Russian key names.
func (c Catalog) KeyRU(arg string) (string, bool) {
	k, ok := c.KeysRU[arg]
	return k, ok
}
