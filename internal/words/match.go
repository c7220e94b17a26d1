package words

import "github.com/antzucaro/matchr"

// nearThreshold is the Jaro-Winkler similarity above which a mismatch is
// reported as a near miss.
const nearThreshold = 0.85

// Match is the outcome of comparing an answer against the expected word.
type Match struct {
	Expected    string  `json:"expected"`
	Got         string  `json:"got"`
	Exact       bool    `json:"exact"`
	Similarity  float64 `json:"similarity"`
	SoundsAlike bool    `json:"sounds_alike"`
}

// Near reports whether a wrong answer was close, either in spelling or in
// sound.
func (m Match) Near() bool {
	return !m.Exact && (m.SoundsAlike || m.Similarity >= nearThreshold)
}

// Compare normalizes both strings and compares them. Similarity is
// Jaro-Winkler on the normalized forms; SoundsAlike is true when the words
// share a Double Metaphone code.
func Compare(expected, got string) Match {
	e, g := Normalize(expected), Normalize(got)
	m := Match{Expected: e, Got: g}
	if e == "" || g == "" {
		return m
	}

	m.Exact = e == g
	m.Similarity = matchr.JaroWinkler(e, g, false)
	m.SoundsAlike = soundsAlike(e, g)
	return m
}

func soundsAlike(a, b string) bool {
	a1, a2 := matchr.DoubleMetaphone(a)
	b1, b2 := matchr.DoubleMetaphone(b)
	for _, x := range []string{a1, a2} {
		if x == "" {
			continue
		}
		if x == b1 || x == b2 {
			return true
		}
	}
	return false
}
