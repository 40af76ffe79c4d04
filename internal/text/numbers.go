package text

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	decimalRE = regexp.MustCompile(`[0-9]+\.[0-9]+`)
	ordinalRE = regexp.MustCompile(`[0-9]+\.+`)
	numberRE  = regexp.MustCompile(`[0-9]+`)
)

// NormalizeNumbers spells out digits as German words. Decimals become
// "<a> Komma <b>", digit runs followed by periods become ordinals
// ("10." -> "zehnten", "21." -> "einundzwanzigsten"), and every other digit
// run becomes a cardinal. Any number followed by a period is read as an
// ordinal, including a sentence-final one.
func NormalizeNumbers(s string) string {
	s = decimalRE.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(m, ".", " Komma ")
	})

	s = ordinalRE.ReplaceAllStringFunc(s, func(m string) string {
		digits := strings.TrimRight(m, ".")
		suffix := "sten"

		if n, err := strconv.ParseInt(digits, 10, 64); err == nil && n < 20 {
			suffix = "ten"
		}

		return digits + strings.Repeat(suffix, len(m)-len(digits))
	})

	return numberRE.ReplaceAllStringFunc(s, spellDigits)
}

func spellDigits(digits string) string {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		// Beyond int64: read digit by digit.
		words := make([]string, 0, len(digits))
		for _, d := range digits {
			words = append(words, GermanCardinal(int64(d-'0')))
		}

		return strings.Join(words, " ")
	}

	return GermanCardinal(n)
}

var (
	germanOnes = [...]string{
		"null", "eins", "zwei", "drei", "vier", "fünf", "sechs", "sieben", "acht", "neun",
		"zehn", "elf", "zwölf", "dreizehn", "vierzehn", "fünfzehn", "sechzehn", "siebzehn", "achtzehn", "neunzehn",
	}
	germanTens = [...]string{
		"", "", "zwanzig", "dreißig", "vierzig", "fünfzig", "sechzig", "siebzig", "achtzig", "neunzig",
	}
)

type germanScale struct {
	value    int64
	singular string
	plural   string
}

var germanScales = []germanScale{
	{1_000_000_000_000_000_000, "Trillion", "Trillionen"},
	{1_000_000_000_000_000, "Billiarde", "Billiarden"},
	{1_000_000_000_000, "Billion", "Billionen"},
	{1_000_000_000, "Milliarde", "Milliarden"},
	{1_000_000, "Million", "Millionen"},
}

// GermanCardinal spells n as a German cardinal number: 1 "eins", 21
// "einundzwanzig", 100 "einhundert", 1000 "eintausend", 2000000 "zwei
// Millionen". Negative numbers get a "minus" prefix.
func GermanCardinal(n int64) string {
	if n == 0 {
		return germanOnes[0]
	}

	if n < 0 {
		if n == -n {
			// MinInt64 has no positive counterpart.
			return "minus " + spellDigits(strconv.FormatInt(n, 10)[1:])
		}

		return "minus " + GermanCardinal(-n)
	}

	var parts []string

	for _, sc := range germanScales {
		if n < sc.value {
			continue
		}

		count := n / sc.value
		n %= sc.value

		if count == 1 {
			parts = append(parts, "eine "+sc.singular)
		} else {
			parts = append(parts, belowThousand(count, true)+" "+sc.plural)
		}
	}

	if n > 0 {
		var b strings.Builder

		if thousands := n / 1000; thousands > 0 {
			b.WriteString(belowThousand(thousands, false))
			b.WriteString("tausend")
		}

		if rest := n % 1000; rest > 0 {
			b.WriteString(belowThousand(rest, true))
		}

		parts = append(parts, b.String())
	}

	return strings.Join(parts, " ")
}

// belowThousand spells 1..999. final selects "eins" over "ein" for a
// trailing one.
func belowThousand(n int64, final bool) string {
	var b strings.Builder

	if h := n / 100; h > 0 {
		b.WriteString(unitPrefix(h))
		b.WriteString("hundert")
	}

	r := n % 100

	switch {
	case r == 0:
	case r == 1 && !final:
		b.WriteString("ein")
	case r < 20:
		b.WriteString(germanOnes[r])
	default:
		if u := r % 10; u > 0 {
			b.WriteString(unitPrefix(u))
			b.WriteString("und")
		}

		b.WriteString(germanTens[r/10])
	}

	return b.String()
}

func unitPrefix(u int64) string {
	if u == 1 {
		return "ein"
	}

	return germanOnes[u]
}
