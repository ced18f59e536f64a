package linkedin

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var wsRun = regexp.MustCompile(`\s+`)

// Classifier decides whether a post body reads like a hiring post. The
// keyword set is configuration data: literal phrases and regexp sources are
// folded into one case-insensitive alternation where any whitespace in a
// phrase tolerates line wraps.
//
// The subject guard replaces the original pattern set's negative lookarounds
// ("you are hiring" is someone talking about the reader, not an opening).
// RE2 has no lookbehind, so each alternation match is checked against the
// text right before it instead.
type Classifier struct {
	pattern  *regexp.Regexp
	subjects *regexp.Regexp
}

// NewClassifier compiles the keyword patterns and the excluded leading
// subjects ("you", "they", ...). At least one pattern is required.
func NewClassifier(patterns, excludedSubjects []string) (*Classifier, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("at least one hiring pattern is required")
	}

	refined := make([]string, len(patterns))
	for i, p := range patterns {
		refined[i] = wsRun.ReplaceAllLiteralString(p, `\s+`)
	}
	expr := `(?i)(?:` + strings.Join(refined, "|") + `)`
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile hiring pattern alternation: %w", err)
	}

	c := &Classifier{pattern: pattern}
	if len(excludedSubjects) > 0 {
		escaped := make([]string, len(excludedSubjects))
		for i, s := range excludedSubjects {
			escaped[i] = regexp.QuoteMeta(s)
		}
		// Matches an excluded subject ending just before a keyword match.
		// \s* rather than \s+: contraction patterns ("'re hiring") start at
		// the apostrophe, directly adjacent to the subject.
		subjExpr := `(?i)\b(?:` + strings.Join(escaped, "|") + `)\s*$`
		subjects, err := regexp.Compile(subjExpr)
		if err != nil {
			return nil, fmt.Errorf("compile excluded subjects: %w", err)
		}
		c.subjects = subjects
	}
	return c, nil
}

// IsHiring reports whether any keyword match survives the subject guard.
// Binary and stateless; one surviving match is enough.
func (c *Classifier) IsHiring(body string) bool {
	text := foldDiacritics(body)
	for _, loc := range c.pattern.FindAllStringIndex(text, -1) {
		if c.subjects != nil && c.subjects.MatchString(text[:loc[0]]) {
			continue
		}
		return true
	}
	return false
}

// foldDiacritics strips combining marks so decorated unicode ("𝐡𝐢𝐫𝐢𝐧𝐠" posts
// aside, "hïring" at least) still matches plain keywords.
func foldDiacritics(str string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, str)
	if err != nil {
		return str
	}
	return result
}
