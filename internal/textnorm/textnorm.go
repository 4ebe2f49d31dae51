// Package textnorm normalizes multilingual query and alias text so that
// French, English, Arabic-script and Latin-transliterated darija forms of
// the same phrase compare equal. It also provides the bigram similarity
// used by fuzzy alias matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks after NFD decomposition. This folds
// Latin diacritics (é→e) and Arabic harakat/hamza marks in one pass.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// arabicFolder maps Arabic letter variants that do not decompose
// canonically onto a single form.
var arabicFolder = strings.NewReplacer(
	"ة", "ه", // ta marbuta → ha
	"ى", "ي", // alef maksura → ya
	"ـ", "", // tatweel
)

// Normalize lowercases, folds diacritics and Arabic letter variants,
// replaces punctuation with spaces and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)

	folded, _, err := transform.String(stripMarks, s)
	if err == nil {
		s = folded
	}
	s = arabicFolder.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Bigrams returns the set of adjacent rune pairs of s.
func Bigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	runes := []rune(s)
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}

// BigramSimilarity is the Jaccard index of the bigram sets of a and b.
func BigramSimilarity(a, b string) float64 {
	ba := Bigrams(a)
	bb := Bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	intersection := 0
	for g := range ba {
		if _, ok := bb[g]; ok {
			intersection++
		}
	}
	union := len(ba) + len(bb) - intersection

	return float64(intersection) / float64(union)
}
