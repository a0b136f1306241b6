package report

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywords []byte

type bucketFile struct {
	Buckets []struct {
		Name     string   `yaml:"name"`
		Category string   `yaml:"category"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"buckets"`
}

type keyword struct {
	bucket, category, text string
	re                     *regexp.Regexp // nil for phrases
}

func (k keyword) match(s string) bool {
	if k.re == nil {
		return strings.Contains(s, k.text)
	}
	return k.re.MatchString(s)
}

// Buckets maps prompt words to product categories.
type Buckets struct {
	keywords []keyword
}

// LoadBuckets parses a YAML bucket file.
func LoadBuckets(data []byte) (*Buckets, error) {
	var f bucketFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("keyword buckets: %w", err)
	}
	b := &Buckets{}
	for _, bk := range f.Buckets {
		if bk.Name == "" {
			return nil, fmt.Errorf("keyword buckets: bucket without name")
		}
		for _, w := range bk.Keywords {
			w = Normalize(w)
			if w == "" {
				continue
			}
			k := keyword{bucket: bk.Name, category: bk.Category, text: w}
			if !strings.Contains(w, " ") {
				k.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `(?:s|es)?\b`)
			}
			b.keywords = append(b.keywords, k)
		}
	}
	return b, nil
}

// DefaultBuckets returns the embedded bucket set.
func DefaultBuckets() *Buckets {
	b, err := LoadBuckets(defaultKeywords)
	if err != nil {
		panic(err)
	}
	return b
}

// Match returns the bucket of the longest keyword found in an already
// normalized text. Earlier keywords win ties.
func (b *Buckets) Match(s string) *Hint {
	var best *keyword
	for i := range b.keywords {
		k := &b.keywords[i]
		if !k.match(s) {
			continue
		}
		if best == nil || utf8.RuneCountInString(k.text) > utf8.RuneCountInString(best.text) {
			best = k
		}
	}
	if best == nil {
		return nil
	}
	return &Hint{Bucket: best.bucket, Category: best.category, Keyword: best.text}
}

// Normalize lower-cases s and strips diacritics.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
