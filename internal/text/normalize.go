// Package text turns raw recognizer output into the token form every matcher
// in earshot works on.
package text

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// separators are replaced by a single space before tokenizing. Any other
// punctuation stays attached to its word.
var separators = strings.NewReplacer(
	",", " ",
	".", " ",
	"!", " ",
	"?", " ",
	":", " ",
	";", " ",
	"-", " ",
)

// Normalized is the tokenized form of an utterance.
type Normalized struct {
	// Tokens are the whitespace-separated words, lowercased.
	Tokens []string

	// Joined is Tokens joined with single spaces.
	Joined string
}

// Empty reports whether the utterance had no words.
func (n Normalized) Empty() bool { return len(n.Tokens) == 0 }

// Normalize lowercases raw with Unicode case mapping, replaces the separator
// punctuation with spaces, and splits on whitespace. It never fails; empty
// input yields an empty [Normalized].
func Normalize(raw string) Normalized {
	// cases.Caser is stateful, so each call gets its own.
	lower := cases.Lower(language.Und).String(raw)
	tokens := strings.Fields(separators.Replace(lower))
	return Normalized{
		Tokens: tokens,
		Joined: strings.Join(tokens, " "),
	}
}

// Phrase normalizes raw and returns only the joined form. Vocabulary and
// command tables pass their literals through Phrase so that "по-русски" and
// "по русски" compare equal.
func Phrase(raw string) string {
	return Normalize(raw).Joined
}

// DropWords returns raw with its first n whitespace-separated words removed.
// Case and inner punctuation of the remainder are preserved, which is what
// free-text command arguments such as "type <text>" need.
func DropWords(raw string, n int) string {
	rest := strings.TrimSpace(raw)
	for range n {
		i := strings.IndexFunc(rest, isSpace)
		if i < 0 {
			return ""
		}
		rest = strings.TrimLeftFunc(rest[i:], isSpace)
	}
	return rest
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
