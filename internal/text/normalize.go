package text

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when the input has no characters left after
// trimming.
var ErrEmptyText = errors.New("text is empty")

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	lineEndings  = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\ufeff", "")
)

// Normalize prepares raw request text for the cleaners. Line endings become
// \n, a byte order mark is dropped and the text is composed to NFC so that a
// decomposed "a" plus diaeresis reaches the cleaners as "ä". Outer whitespace
// is trimmed; inner whitespace is left to the cleaners.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(norm.NFC.String(lineEndings.Replace(s)))
	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// Lowercase maps every letter to lower case.
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// CollapseWhitespace replaces each run of whitespace with a single space.
// Leading and trailing whitespace is collapsed, not trimmed.
func CollapseWhitespace(s string) string {
	return whitespaceRE.ReplaceAllLiteralString(s, " ")
}
