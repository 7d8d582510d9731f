package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/earshot/internal/text"
	"github.com/MrWong99/earshot/pkg/types"
)

// Rule is one whitelist entry.
//
// A rule matches when the normalized utterance equals one of Phrases, or
// when it starts with Prefix followed by a non-empty argument. With
// AllowBare, Prefix alone also matches and yields an empty argument.
type Rule struct {
	Locale types.Locale

	Phrases []string
	Prefix  string

	AllowBare bool

	// RawArg takes the argument from the utterance as spoken, preserving
	// case and punctuation, instead of from its normalized form.
	RawArg bool

	// Resolve, if set, maps the argument onto the whitelist. An argument it
	// rejects produces Reject without executing anything.
	Resolve Resolver

	Action ActionID

	// Query marks an action answered by a [Querier].
	Query bool

	OK     string
	Fail   string
	Reject string
}

// match reports whether the rule applies to the utterance and extracts the
// argument. joined is the normalized utterance, raw the text as spoken.
func (r Rule) match(joined, raw string) (string, bool) {
	for _, p := range r.Phrases {
		if joined == p {
			return "", true
		}
	}
	if r.Prefix == "" {
		return "", false
	}
	if joined == r.Prefix {
		return "", r.AllowBare
	}
	rest, ok := strings.CutPrefix(joined, r.Prefix+" ")
	if !ok {
		return "", false
	}
	if r.RawArg {
		if arg := text.DropWords(raw, len(strings.Fields(r.Prefix))); arg != "" {
			return arg, true
		}
	}
	return rest, true
}

// normalized returns a copy with every phrase and prefix normalized.
func (r Rule) normalized() Rule {
	phrases := make([]string, len(r.Phrases))
	for i, p := range r.Phrases {
		phrases[i] = text.Phrase(p)
	}
	r.Phrases = phrases
	r.Prefix = text.Phrase(r.Prefix)
	return r
}

// label names the rule in errors and logs.
func (r Rule) label() string {
	if r.Prefix != "" {
		return fmt.Sprintf("%s %q…", r.Locale, r.Prefix)
	}
	return fmt.Sprintf("%s %q", r.Locale, r.Phrases)
}

// Validate checks a rule table. Within one locale, a phrase or prefix that
// an earlier prefix already covers is unreachable and is reported, as are
// rules with no phrase and no prefix.
func Validate(rules []Rule) error {
	var errs []error
	seen := make(map[types.Locale][]Rule)

	for i, raw := range rules {
		r := raw.normalized()
		if !r.Locale.Valid() {
			errs = append(errs, fmt.Errorf("command: rule %d: invalid locale %q", i, r.Locale))
		}
		if len(r.Phrases) == 0 && r.Prefix == "" {
			errs = append(errs, fmt.Errorf("command: rule %d: no phrase and no prefix", i))
		}
		if r.Action == "" {
			errs = append(errs, fmt.Errorf("command: rule %d: no action", i))
		}

		for _, earlier := range seen[r.Locale] {
			if earlier.Prefix == "" {
				continue
			}
			for _, p := range r.Phrases {
				if strings.HasPrefix(p, earlier.Prefix+" ") || (p == earlier.Prefix && earlier.AllowBare) {
					errs = append(errs, fmt.Errorf("command: phrase %q of rule %s is shadowed by %s", p, r.label(), earlier.label()))
				}
			}
			if r.Prefix != "" && (r.Prefix == earlier.Prefix || strings.HasPrefix(r.Prefix, earlier.Prefix+" ")) {
				errs = append(errs, fmt.Errorf("command: rule %s is shadowed by %s", r.label(), earlier.label()))
			}
		}
		seen[r.Locale] = append(seen[r.Locale], r)
	}
	return errors.Join(errs...)
}
