package compliance

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// unitSynonyms folds spelled-out and abbreviated units onto one token.
// Response-area names carry both distance ("5 mi") and time ("5 min")
// spellings for the same ring, so both collapse onto "min" once they
// follow a number.
var unitSynonyms = map[string]string{
	"mi":      "mi",
	"mile":    "mi",
	"miles":   "mi",
	"min":     "min",
	"mins":    "min",
	"minute":  "min",
	"minutes": "min",
}

// numberUnit matches a number immediately followed by a unit token
var numberUnit = regexp.MustCompile(`\b(\d+(?:\.\d+)?) ?(mi|min)\b`)

// numberUnitGlued splits "5miles" / "10minutes" into number and unit
var numberUnitGlued = regexp.MustCompile(`^(\d+(?:\.\d+)?)([a-z]+)$`)

// NormalizeAreaName lower-cases, strips punctuation, collapses whitespace and
// unifies unit variants so that "5 Mile Zone", "5mi zone" and "5MIN  Zone"
// all normalize to "5min zone".
func NormalizeAreaName(name string) string {
	s := cases.Fold().String(norm.NFKC.String(name))
	s = stripPunctuation(s)

	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if unit, ok := unitSynonyms[tok]; ok {
			tokens[i] = unit
			continue
		}
		if m := numberUnitGlued.FindStringSubmatch(tok); m != nil {
			if unit, ok := unitSynonyms[m[2]]; ok {
				tokens[i] = m[1] + unit
			}
		}
	}

	s = strings.Join(tokens, " ")
	return numberUnit.ReplaceAllString(s, "${1}min")
}

// AreaNamesMatch reports whether two names are equal after normalization
func AreaNamesMatch(a, b string) bool {
	na, nb := NormalizeAreaName(a), NormalizeAreaName(b)
	return na != "" && na == nb
}

// AreaContains reports a substring match in either direction after
// normalization. Empty names never match.
func AreaContains(a, b string) bool {
	na, nb := NormalizeAreaName(a), NormalizeAreaName(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// stripPunctuation replaces punctuation with spaces, keeping decimal points
func stripPunctuation(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' && i > 0 && i < len(runes)-1 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
