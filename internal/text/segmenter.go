package text

import (
	"strings"
	"unicode"
)

// Sentence is one ordered unit of segmented text.
type Sentence struct {
	Index int
	Text  string
}

// abbreviations whose trailing period does not end a sentence.
// Multi-period forms are stored without the final period (e.g. "e.g").
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "rev": {},
	"sr": {}, "jr": {}, "st": {}, "mt": {}, "gen": {}, "sen": {},
	"vs": {}, "etc": {}, "inc": {}, "ltd": {}, "co": {}, "corp": {},
	"no": {}, "vol": {}, "fig": {}, "dept": {}, "est": {}, "approx": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {},
	"aug": {}, "sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {},
	"e.g": {}, "i.e": {}, "a.m": {}, "p.m": {}, "u.s": {}, "u.k": {},
	"u.s.a": {}, "ph.d": {},
}

// Normalize unifies line endings and trims surrounding whitespace.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// Segment splits normalized text into ordered sentences. It never fails:
// empty or whitespace-only input yields an empty slice.
//
// A period ends a sentence only when it is followed by whitespace and the
// next word does not start lowercase, the word before it is not a known
// abbreviation, and it is not embedded in a token (decimals, URLs, emails
// never reach the boundary check because their periods have no trailing
// whitespace).
func Segment(text string) []Sentence {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	var sentences []Sentence

	emit := func(start, end int) {
		t := strings.TrimSpace(string(runes[start:end]))
		if t != "" {
			sentences = append(sentences, Sentence{Index: len(sentences), Text: t})
		}
	}

	start := 0
	i := 0
	for i < len(runes) {
		if !isTerminal(runes[i]) {
			i++
			continue
		}

		// Absorb the whole punctuation run plus any closing quotes/brackets
		// so "Really?!" and `He said "stop."` end after the closer.
		end := i
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}

		if !isBoundary(runes, i, end) {
			i = end
			continue
		}

		emit(start, end)
		start = end
		i = end
	}

	emit(start, len(runes))
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
}

// isBoundary reports whether the terminal run starting at punct and ending
// at runEnd closes a sentence.
func isBoundary(runes []rune, punct, runEnd int) bool {
	if runEnd >= len(runes) {
		return true
	}

	// Periods glued to the next token are decimals, URL path separators,
	// or email domains, never boundaries.
	if !unicode.IsSpace(runes[runEnd]) {
		return false
	}

	// A lowercase continuation means the punctuation was not terminal
	// ("vs. the competition", "wait... then").
	next := runEnd
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next < len(runes) && unicode.IsLower(runes[next]) {
		return false
	}

	// Single period: check the word in front of it against the
	// abbreviation list.
	if runes[punct] == '.' && punct+1 == runEnd {
		if _, ok := abbreviations[wordBefore(runes, punct)]; ok {
			return false
		}
	}

	return true
}

// wordBefore returns the lowercased token immediately preceding position i,
// with leading punctuation stripped. Interior periods are kept so that
// "e.g." style abbreviations match their stored form.
func wordBefore(runes []rune, i int) string {
	start := i
	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}
	word := strings.ToLower(string(runes[start:i]))
	return strings.TrimLeft(word, "(\"'[“‘")
}
