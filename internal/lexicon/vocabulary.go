// Package lexicon answers the only two questions the session layer asks of a
// transcript: does it contain a word from a vocabulary, and what is left once
// a leading run of such words is removed.
//
// A [Lexicon] bundles the per-locale wake and sleep vocabularies together with
// the voice language-switch phrases. Wake and sleep detection always match the
// union of all locales, so "jarvis" wakes a session that is in Russian mode.
package lexicon

import (
	"slices"
	"strings"

	"github.com/MrWong99/earshot/internal/text"
)

// Vocabulary is a set of normalized single-token words.
type Vocabulary map[string]struct{}

// NewVocabulary normalizes each word and returns the resulting set. Entries
// that normalize to nothing are dropped. Entries that normalize to several
// tokens contribute each token.
func NewVocabulary(words ...string) Vocabulary {
	v := make(Vocabulary, len(words))
	for _, w := range words {
		for _, tok := range text.Normalize(w).Tokens {
			v[tok] = struct{}{}
		}
	}
	return v
}

// Has reports whether token is in the vocabulary.
func (v Vocabulary) Has(token string) bool {
	_, ok := v[token]
	return ok
}

// Words returns the vocabulary sorted.
func (v Vocabulary) Words() []string {
	out := make([]string, 0, len(v))
	for w := range v {
		out = append(out, w)
	}
	slices.Sort(out)
	return out
}

// Union returns a new vocabulary holding the words of every input.
func Union(vs ...Vocabulary) Vocabulary {
	out := make(Vocabulary)
	for _, v := range vs {
		for w := range v {
			out[w] = struct{}{}
		}
	}
	return out
}

// ContainsAny reports whether any token is an exact member of vocab.
func ContainsAny(tokens []string, vocab Vocabulary) bool {
	return containsFunc(tokens, vocab.Has)
}

// StripLeadingMatches removes the maximal leading run of tokens that are in
// vocab and joins the remainder with single spaces. The result is empty when
// every token matched. Applying it twice gives the same result as once.
func StripLeadingMatches(tokens []string, vocab Vocabulary) string {
	return stripFunc(tokens, vocab.Has)
}

func containsFunc(tokens []string, match func(string) bool) bool {
	return slices.ContainsFunc(tokens, match)
}

func stripFunc(tokens []string, match func(string) bool) string {
	i := 0
	for i < len(tokens) && match(tokens[i]) {
		i++
	}
	return strings.Join(tokens[i:], " ")
}
