package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters and marks that do not decompose into ASCII under NFKD.
var asciiFold = strings.NewReplacer(
	"ß", "ss", "ẞ", "SS",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "Th",
	"ı", "i",
	"„", `"`, "“", `"`, "”", `"`, "«", `"`, "»", `"`,
	"‚", "'", "‘", "'", "’", "'",
	"–", "-", "—", "-",
	"…", "...",
)

// ConvertToASCII transliterates s to plain ASCII: accents are stripped
// ("é" -> "e"), ligatures and special letters are spelled out ("ß" -> "ss")
// and anything left outside ASCII is dropped.
func ConvertToASCII(s string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)

	out, _, err := transform.String(t, asciiFold.Replace(s))
	if err != nil {
		out = s
	}

	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}

		return r
	}, out)
}
