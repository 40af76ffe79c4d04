package text

import "regexp"

type abbreviation struct {
	re          *regexp.Regexp
	replacement string
}

var abbreviations = buildAbbreviations([][2]string{
	{"mrs", "misess"},
	{"mr", "mister"},
	{"dr", "doctor"},
	{"st", "saint"},
	{"co", "company"},
	{"jr", "junior"},
	{"maj", "major"},
	{"gen", "general"},
	{"drs", "doctors"},
	{"rev", "reverend"},
	{"lt", "lieutenant"},
	{"hon", "honorable"},
	{"sgt", "sergeant"},
	{"capt", "captain"},
	{"esq", "esquire"},
	{"ltd", "limited"},
	{"col", "colonel"},
	{"ft", "fort"},
})

func buildAbbreviations(pairs [][2]string) []abbreviation {
	out := make([]abbreviation, len(pairs))
	for i, p := range pairs {
		out[i] = abbreviation{
			re:          regexp.MustCompile(`(?i)\b` + p[0] + `\.`),
			replacement: p[1],
		}
	}

	return out
}

// ExpandAbbreviations replaces common English abbreviations ("Dr.", "St.",
// "Ltd.") with their spoken form. Matching ignores case and needs the
// trailing period.
func ExpandAbbreviations(s string) string {
	for _, a := range abbreviations {
		s = a.re.ReplaceAllLiteralString(s, a.replacement)
	}

	return s
}
