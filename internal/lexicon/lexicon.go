package lexicon

import (
	"github.com/antzucaro/matchr"

	"github.com/MrWong99/earshot/internal/text"
	"github.com/MrWong99/earshot/pkg/types"
)

// minFuzzyRunes keeps short tokens such as "spy" or "rus" out of fuzzy wake
// matching.
const minFuzzyRunes = 4

// fuzzyFallbackThreshold is the Jaro-Winkler score required when the token
// and the wake word share no Double Metaphone code. Cyrillic words produce no
// codes, so they are always judged by this threshold.
const fuzzyFallbackThreshold = 0.92

// Default vocabularies.
var (
	DefaultWakeWords = map[types.Locale][]string{
		types.LocaleEN: {"jarvis", "assistant"},
		types.LocaleRU: {"джарвис", "жарвис", "ассистент", "тардис", "джервис"},
	}

	DefaultSleepWords = map[types.Locale][]string{
		types.LocaleEN: {"sleep"},
		types.LocaleRU: {"слип", "усни", "спи", "засни", "спать"},
	}

	// DefaultSwitchPhrases maps a whole utterance to the locale it requests.
	// Phrases are matched against the complete normalized utterance, never as
	// substrings.
	DefaultSwitchPhrases = map[types.Locale][]string{
		types.LocaleEN: {
			"english", "eng", "inglish", "english mode", "speak english",
			"switch to english", "change to english", "in english", "change to russian",
			"английский", "по английски", "по-английски", "переключись на английский",
			"переключи на английский", "смена", "английский режим",
		},
		types.LocaleRU: {
			"russian", "rus", "русский", "по русски", "по-русски", "russian mode",
			"speak russian", "switch to russian", "in russian", "говори по русски",
			"говори по-русски", "переключись на русский", "переключи на русский",
			"русский режим",
		},
	}
)

// Option configures a [Lexicon].
type Option func(*Lexicon)

// WithWakeWords replaces the wake vocabulary of locale.
func WithWakeWords(locale types.Locale, words ...string) Option {
	return func(l *Lexicon) { l.wake[locale] = NewVocabulary(words...) }
}

// WithSleepWords replaces the sleep vocabulary of locale.
func WithSleepWords(locale types.Locale, words ...string) Option {
	return func(l *Lexicon) { l.sleep[locale] = NewVocabulary(words...) }
}

// WithFuzzyWake makes wake detection tolerate near-misses from the recognizer.
// A token matches a wake word when both share a Double Metaphone code and
// their Jaro-Winkler similarity is at least threshold. A threshold of zero or
// less keeps matching exact.
func WithFuzzyWake(threshold float64) Option {
	return func(l *Lexicon) { l.fuzzy = threshold }
}

// Lexicon holds the vocabularies of every locale. It is read-only after
// construction and safe for concurrent use.
type Lexicon struct {
	wake     map[types.Locale]Vocabulary
	sleep    map[types.Locale]Vocabulary
	wakeAll  Vocabulary
	sleepAll Vocabulary
	switches map[string]types.Locale
	fuzzy    float64
}

// New returns a Lexicon with the default vocabularies, modified by opts.
func New(opts ...Option) *Lexicon {
	l := &Lexicon{
		wake:     make(map[types.Locale]Vocabulary, len(types.Locales)),
		sleep:    make(map[types.Locale]Vocabulary, len(types.Locales)),
		switches: make(map[string]types.Locale),
	}
	for _, loc := range types.Locales {
		l.wake[loc] = NewVocabulary(DefaultWakeWords[loc]...)
		l.sleep[loc] = NewVocabulary(DefaultSleepWords[loc]...)
		for _, p := range DefaultSwitchPhrases[loc] {
			l.switches[text.Phrase(p)] = loc
		}
	}
	for _, o := range opts {
		o(l)
	}

	wakes := make([]Vocabulary, 0, len(l.wake))
	sleeps := make([]Vocabulary, 0, len(l.sleep))
	for _, loc := range types.Locales {
		wakes = append(wakes, l.wake[loc])
		sleeps = append(sleeps, l.sleep[loc])
	}
	l.wakeAll = Union(wakes...)
	l.sleepAll = Union(sleeps...)
	return l
}

// HasWake reports whether any token is a wake word of any locale.
func (l *Lexicon) HasWake(tokens []string) bool {
	return containsFunc(tokens, l.isWake)
}

// HasSleep reports whether any token is a sleep word of any locale.
func (l *Lexicon) HasSleep(tokens []string) bool {
	return ContainsAny(tokens, l.sleepAll)
}

// StripWake removes a leading run of wake words.
func (l *Lexicon) StripWake(tokens []string) string {
	return stripFunc(tokens, l.isWake)
}

// SwitchTarget reports the locale requested when the whole normalized
// utterance is a language-switch phrase.
func (l *Lexicon) SwitchTarget(joined string) (types.Locale, bool) {
	loc, ok := l.switches[joined]
	return loc, ok
}

// WakeWords returns the wake vocabulary of locale, sorted. The recognizer
// adapter boosts these as keywords.
func (l *Lexicon) WakeWords(locale types.Locale) []string {
	return l.wake[locale].Words()
}

func (l *Lexicon) isWake(token string) bool {
	if l.wakeAll.Has(token) {
		return true
	}
	if l.fuzzy <= 0 || len([]rune(token)) < minFuzzyRunes {
		return false
	}
	for w := range l.wakeAll {
		if l.fuzzyMatch(token, w) {
			return true
		}
	}
	return false
}

func (l *Lexicon) fuzzyMatch(token, word string) bool {
	score := matchr.JaroWinkler(token, word, false)
	if sharesMetaphone(token, word) {
		return score >= l.fuzzy
	}
	return score >= max(l.fuzzy, fuzzyFallbackThreshold)
}

func sharesMetaphone(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
