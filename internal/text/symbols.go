package text

import (
	"strings"
	"unicode"
)

// Pad is the padding symbol; it always has ID 0.
const Pad = "_"

// Punctuation lists the marks that survive phonemization.
const Punctuation = `!'(),.:;? -"«»…`

const (
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyzäöüÄÖÜß"
	digits  = "0123456789"

	ipaVowels     = "iyɨʉɯuɪʏʊeøɘəɵɤoɛœɜɞʌɔæɐaɶɑɒᵻ"
	ipaNonPulm    = "ʘɓǀɗǃʄǂɠǁʛ"
	ipaPulmonic   = "pbtdʈɖcɟkɡqɢʔɴŋɲɳnɱmʙrʀⱱɾɽɸβfvθðszʃʒʂʐçʝxɣχʁħʕhɦɬɮʋɹɻjɰlɭʎʟ"
	ipaSuprasegm  = "ˈˌːˑ"
	ipaOther      = "ʍwɥʜʢʡɕʑɺɧ"
	ipaDiacritics = "ɚ˞ɫ"
	ipaExtra      = "g\u025d\u0325\u0329\u032f\u0303\u030d\u0361"
)

// approved is the input alphabet accepted before phonemization.
var approved = runeSet(letters + digits + Punctuation)

// symbols is the model vocabulary: pad first, then punctuation, letters and
// IPA phonemes. Duplicates keep their first position.
var symbols = buildSymbols(
	Pad, Punctuation, letters,
	ipaVowels, ipaNonPulm, ipaPulmonic, ipaSuprasegm, ipaOther, ipaDiacritics, ipaExtra,
)

var symbolIDs = func() map[rune]int64 {
	m := make(map[rune]int64, len(symbols))
	for i, r := range symbols {
		m[r] = int64(i)
	}

	return m
}()

func buildSymbols(groups ...string) []rune {
	seen := make(map[rune]bool)

	var out []rune

	for _, g := range groups {
		for _, r := range g {
			if seen[r] {
				continue
			}

			seen[r] = true
			out = append(out, r)
		}
	}

	return out
}

func runeSet(s string) map[rune]struct{} {
	m := make(map[rune]struct{}, len(s))
	for _, r := range s {
		m[r] = struct{}{}
	}

	return m
}

// NumSymbols returns the vocabulary size. It is the default NumChars of the
// acoustic model.
func NumSymbols() int {
	return len(symbols)
}

// Symbols returns a copy of the vocabulary in ID order.
func Symbols() []rune {
	return append([]rune(nil), symbols...)
}

// ToSequence maps each rune of s to its symbol ID. Runes outside the
// vocabulary are skipped.
func ToSequence(s string) []int64 {
	ids := make([]int64, 0, len(s))
	for _, r := range s {
		if id, ok := symbolIDs[r]; ok {
			ids = append(ids, id)
		}
	}

	return ids
}

// FromSequence maps symbol IDs back to text. Out-of-range IDs are skipped.
func FromSequence(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= int64(len(symbols)) {
			continue
		}

		b.WriteRune(symbols[id])
	}

	return b.String()
}

// FilterApproved drops every rune outside the accepted input alphabet
// (letters incl. umlauts, digits, punctuation and space). Other whitespace
// becomes a space so that words on separate lines stay apart.
func FilterApproved(s string) string {
	return strings.Map(func(r rune) rune {
		if _, ok := approved[r]; ok {
			return r
		}

		if unicode.IsSpace(r) {
			return ' '
		}

		return -1
	}, s)
}
