package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkBySentence splits text into chunks at sentence boundaries, grouping
// consecutive sentences while staying within maxRunes per chunk. The model
// generates each chunk separately, which bounds the sequence length of a
// single forward pass.
// If maxRunes is 0, no splitting is performed.
// Sentences that individually exceed maxRunes are kept intact as a single chunk.
func ChunkBySentence(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)

		if size == 0 {
			current.WriteString(s)
			size = n

			continue
		}

		if size+1+n > maxRunes {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(s)
			size = n
		} else {
			current.WriteByte(' ')
			current.WriteString(s)
			size += 1 + n
		}
	}

	if size > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// splitSentences splits text after '.', '!', '?' or '…' when the mark is
// followed by whitespace or ends the text, keeping the terminator attached to
// its sentence. Decimals such as "3.5" therefore stay in one piece.
// Empty segments are dropped.
func splitSentences(text string) []string {
	var sentences []string

	start := 0

	for i, r := range text {
		if !isTerminator(r) {
			continue
		}

		end := i + utf8.RuneLen(r)
		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(next) {
				continue
			}
		}

		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}

		start = end
	}

	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}
