package text

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Hints maps words to phoneme strings that replace the phonemizer output.
type Hints map[string]string

// LoadHints reads a YAML mapping of word to phonemes.
func LoadHints(path string) (Hints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("text: read hints: %w", err)
	}

	return ParseHints(data)
}

// ParseHints decodes a YAML mapping of word to phonemes.
func ParseHints(data []byte) (Hints, error) {
	var h Hints
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("text: parse hints: %w", err)
	}

	if h == nil {
		h = Hints{}
	}

	return h, nil
}

// Lookup returns the hint for word. A single trailing punctuation mark is
// ignored for the lookup and re-appended to the hint.
func (h Hints) Lookup(word string) (string, bool) {
	last, size := utf8.DecodeLastRuneInString(word)
	stripped := size > 0 && len(word) > size && strings.ContainsRune(Punctuation, last)

	key := word
	if stripped {
		key = word[:len(word)-size]
	}

	phon, ok := h[key]
	if !ok {
		return word, false
	}

	if stripped {
		phon += string(last)
	}

	return phon, true
}

// PhonemizeWithHints phonemizes text word by word, taking hinted words from
// h and passing the rest to p.
func PhonemizeWithHints(ctx context.Context, p Phonemizer, h Hints, text string) (string, error) {
	words := strings.Split(text, " ")
	out := make([]string, len(words))

	for i, w := range words {
		if w == "" {
			continue
		}

		if phon, ok := h.Lookup(w); ok {
			out[i] = phon
			continue
		}

		phon, err := p.Phonemize(ctx, w)
		if err != nil {
			return "", err
		}

		out[i] = phon
	}

	return strings.Join(out, " "), nil
}
