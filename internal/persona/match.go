package persona

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	phoneticThreshold = 0.70
	fuzzyThreshold    = 0.85
)

// matchName finds the registered name closest to input, used to suggest a
// correction for misspelt persona names such as "game master" or "Frinnie".
//
// Names whose Double Metaphone codes overlap the input are accepted from
// phoneticThreshold; otherwise pure Jaro-Winkler similarity must reach
// fuzzyThreshold.
func matchName(input string, names []string) (string, float64, bool) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" || len(names) == 0 {
		return "", 0, false
	}
	inTokens := strings.Fields(in)
	inCodes := metaphone(strings.Join(inTokens, ""))

	var (
		best      string
		bestScore float64
		bestPhon  bool
	)
	for _, name := range names {
		n := strings.ToLower(name)
		score := matchr.JaroWinkler(in, n, false)
		// "game master" vs "gamemaster".
		if joined := strings.Join(inTokens, ""); joined != in {
			if s := matchr.JaroWinkler(joined, n, false); s > score {
				score = s
			}
		}
		phon := overlap(inCodes, metaphone(n))

		switch {
		case phon && score >= phoneticThreshold:
			if !bestPhon || score > bestScore {
				best, bestScore, bestPhon = name, score, true
			}
		case !bestPhon && score >= fuzzyThreshold && score > bestScore:
			best, bestScore = name, score
		}
	}
	return best, bestScore, best != ""
}

func metaphone(s string) []string {
	p, alt := matchr.DoubleMetaphone(s)
	out := make([]string, 0, 2)
	for _, c := range []string{p, alt} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func overlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
