package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkLength leaves headroom under the 5000-character
// per-request limit common to hosted synthesis providers.
const DefaultMaxChunkLength = 4900

// Chunk is one provider-safe request unit: consecutive sentences packed
// up to the maximum length, in original text order.
type Chunk struct {
	Index int
	Text  string
}

// BuildChunks greedily packs sentences into chunks no longer than
// maxLength characters, joining sentences with a single space. A sentence
// that alone exceeds maxLength is split at word boundaries into its own
// run of consecutive chunks, never merged with its neighbors.
func BuildChunks(sentences []Sentence, maxLength int) []Chunk {
	if maxLength <= 0 {
		maxLength = DefaultMaxChunkLength
	}

	var chunks []Chunk
	emit := func(text string) {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: text})
	}

	var current string
	currentLen := 0
	for _, s := range sentences {
		length := utf8.RuneCountInString(s.Text)

		if length > maxLength {
			if current != "" {
				emit(current)
				current, currentLen = "", 0
			}
			for _, frag := range splitAtWordBoundaries(s.Text, maxLength) {
				emit(frag)
			}
			continue
		}

		switch {
		case current == "":
			current, currentLen = s.Text, length
		case currentLen+1+length <= maxLength:
			current += " " + s.Text
			currentLen += 1 + length
		default:
			emit(current)
			current, currentLen = s.Text, length
		}
	}
	if current != "" {
		emit(current)
	}

	return chunks
}

// BuildChunksFromText runs the full normalize → segment → pack sequence.
// When segmentation finds no boundaries in non-empty input, the whole
// normalized text is treated as a single sentence and packed (and split
// at word boundaries if still oversized).
func BuildChunksFromText(raw string, maxLength int) []Chunk {
	normalized := Normalize(raw)
	if normalized == "" {
		return nil
	}

	sentences := Segment(normalized)
	if len(sentences) == 0 {
		sentences = []Sentence{{Index: 0, Text: normalized}}
	}

	return BuildChunks(sentences, maxLength)
}

// splitAtWordBoundaries cuts an oversized sentence at the last word
// boundary at or before maxLength, repeatedly, with a hard cut only when
// a fragment contains no boundary at all.
func splitAtWordBoundaries(s string, maxLength int) []string {
	runes := []rune(strings.TrimSpace(s))
	var frags []string

	for len(runes) > maxLength {
		cut := -1
		for i := maxLength; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}

		if cut == -1 {
			frags = append(frags, string(runes[:maxLength]))
			runes = runes[maxLength:]
			continue
		}

		frag := strings.TrimSpace(string(runes[:cut]))
		if frag != "" {
			frags = append(frags, frag)
		}
		runes = runes[cut+1:]
	}

	if rest := strings.TrimSpace(string(runes)); rest != "" {
		frags = append(frags, rest)
	}

	return frags
}
