// Package words holds practice word lists and the text normalization used
// to name recordings and compare confirmations.
package words

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ErrInvalidList is returned for empty lists or blank entries.
var ErrInvalidList = errors.New("words: invalid word list")

// List is an ordered set of words to practise.
type List struct {
	Language string   `yaml:"language" json:"language"`
	Words    []string `yaml:"words" json:"words"`
}

// Default returns the built-in Spanish list.
func Default() List {
	return List{
		Language: "es",
		Words:    []string{"Feliz", "Jugo", "Mapa", "Ñandú", "Whisky", "Zanahoria"},
	}
}

// Load reads a YAML word list from path.
func Load(path string) (List, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return List{}, fmt.Errorf("open word list: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes a YAML word list. Unknown keys are rejected.
//
//	language: es
//	words: [Feliz, Jugo]
func Parse(r io.Reader) (List, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var l List
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return List{}, fmt.Errorf("%w: empty document", ErrInvalidList)
		}
		return List{}, fmt.Errorf("%w: %w", ErrInvalidList, err)
	}
	return New(l.Language, l.Words)
}

// New builds a List, trimming each word. Blank words and empty lists are
// rejected.
func New(language string, words []string) (List, error) {
	if len(words) == 0 {
		return List{}, fmt.Errorf("%w: no words", ErrInvalidList)
	}
	out := make([]string, len(words))
	for i, w := range words {
		w = strings.TrimSpace(w)
		if Normalize(w) == "" {
			return List{}, fmt.Errorf("%w: entry %d is blank", ErrInvalidList, i)
		}
		out[i] = w
	}
	return List{Language: language, Words: out}, nil
}

// Normalize folds s into a lower-case key without accents, suitable both
// for file names and for comparing what was said with what was expected.
// Letters and digits are kept, runs of anything else become one underscore.
//
//	Normalize("Ñandú")       == "nandu"
//	Normalize(" Buenos  días") == "buenos_dias"
func Normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
