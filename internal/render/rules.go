package render

import (
	"fmt"
	"regexp"
	"strings"
)

// Level controls how much phonetic nuance (tone, aspiration, glottal markers)
// survives into the display form.
type Level int

const (
	Advanced Level = iota
	Intermediate
	Simple
)

var levelNames = [...]string{
	Advanced:     "advanced",
	Intermediate: "intermediate",
	Simple:       "simple",
}

// String returns the lower-case name of the level.
func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel parses a level name.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return Advanced, fmt.Errorf("unknown detail level: %q", s)
}

// Levels is a set of detail levels a rule applies to.
type Levels uint8

const (
	OnAdvanced     Levels = 1 << Advanced
	OnIntermediate Levels = 1 << Intermediate
	OnSimple       Levels = 1 << Simple
	OnAll                 = OnAdvanced | OnIntermediate | OnSimple
)

// Has reports whether l is in the set.
func (s Levels) Has(l Level) bool {
	return s&(1<<l) != 0
}

// Rule is one row of the substitution table. Replacement is expanded with
// regexp template syntax (${1} refers to the first group).
type Rule struct {
	Name        string
	Levels      Levels
	Pattern     *regexp.Regexp
	Replacement string
}

// Apply runs the rule over s. A rule that does not match is a no-op.
func (r Rule) Apply(s string) string {
	return r.Pattern.ReplaceAllString(s, r.Replacement)
}

// Markup emitted by the rules.
const (
	LineBreak = "<br/>"

	grayOpen  = "<span class='gray'>"
	grayClose = "</span>"
)

func gray(s string) string { return grayOpen + s + grayClose }

func rule(name string, levels Levels, pattern, replacement string) Rule {
	return Rule{
		Name:        name,
		Levels:      levels,
		Pattern:     regexp.MustCompile(pattern),
		Replacement: replacement,
	}
}

// Patterns are written with \x{...} escapes for combining marks so the table
// stays readable; a bare combining mark would attach to the preceding quote.
const (
	lineBreaks = `\r\n|\r|\n`

	macron     = `\x{0304}`
	lineBelow  = `\x{0331}`
	unreleased = `\x{031A}`
	ringBelow  = `\x{0325}`
	ringAbove  = `\x{030A}`
	toneLetter = `˥˦˧˨˩`
)

// phoneticRules is the ordered table behind Phonetic. Order is load-bearing:
// the y and c rewrites must run before the level blocks and the glyph map,
// since the glyph map reintroduces a bare "y" (from j and ɟ) that must not be
// turned into "ü". Likewise "ŋ" before whitespace is checked before the
// general "ŋ" rule, and "tɕ" before "ɕ".
var phoneticRules = []Rule{
	rule("line-break", OnAll, lineBreaks, LineBreak),
	rule("front-rounded-y", OnAll, `y`, "ü"),
	rule("palatal-c", OnAll, `c`, "ky"),

	// advanced
	rule("back-vowel-muted", OnAdvanced, `ɔ([`+macron+lineBelow+`])?`, gray("o${1}")),
	rule("central-vowel-muted", OnAdvanced, `ə([`+macron+lineBelow+`])?`, gray("a${1}")),
	rule("aspiration-muted", OnAdvanced, `3`, gray("ʰ")),

	// intermediate
	rule("strip-tone-length", OnIntermediate, `[`+macron+lineBelow+`3`+toneLetter+`]`, ""),

	// simple
	rule("strip-all-marks", OnSimple, `[`+macron+lineBelow+`3ʰʔ`+unreleased+`ː`+toneLetter+`]`, ""),

	rule("glottal-stop-before-stop", OnAdvanced|OnIntermediate, `ʔ([kp])`+unreleased, "<sub>${1}</sub>"),
	rule("glottal-stop", OnAdvanced|OnIntermediate, `ʔ`, "<sub>ʔ</sub>"),
	rule("back-vowel-plain", OnIntermediate|OnSimple, `ɔ`, "o"),
	rule("central-vowel-gray", OnIntermediate, `ə`, gray("a")),
	rule("central-vowel-plain", OnSimple, `ə`, "a"),
	rule("unreleased-n", OnAll, `n`+unreleased, "n"),

	// level-independent glyph map
	rule("velar-fricative", OnAll, `ɣ`, "g"),
	rule("half-voicing", OnAll, `[`+ringBelow+ringAbove+`]`, ""),
	rule("retroflex-d", OnAll, `ɖ`, "ḍ"),
	rule("retroflex-t", OnAll, `ʈ`, "ṭ"),
	rule("palatal-nasal", OnAll, `ɲ`, "ny"),
	rule("front-rounded-o", OnAll, `ø`, "ö"),
	rule("palatal-stop", OnAll, `ɟ`, "gy"),
	rule("palatal-approximant", OnAll, `j`, "y"),
	rule("open-mid-e", OnAll, `ɛ`, "è"),
	rule("mid-e", OnAll, `e`, "é"),
	rule("velar-nasal-final", OnAll, `ŋ([\s\v\x{FEFF}\p{Z}])`, "ng${1}"),
	rule("velar-nasal", OnAll, `ŋ`, "ṅ"),
	rule("alveolo-palatal-affricate", OnAll, `tɕ`, "ch"),
	rule("alveolo-palatal-fricative", OnAll, `ɕ`, "sh"),
	rule("voiced-alveolo-palatal-affricate", OnAll, `dʑ`, "j"),
	rule("alveolar-affricate", OnAll, `dz`, "z"),
}

var ipaRules = []Rule{
	rule("line-break", OnAll, lineBreaks, LineBreak),
	rule("aspiration-muted", OnAll, `3`, gray("ʰ")),
}

var kvpRules = []Rule{
	rule("line-break", OnAll, lineBreaks, LineBreak),
}

// Rules returns a copy of the ordered phonetic rule table.
func Rules() []Rule {
	out := make([]Rule, len(phoneticRules))
	copy(out, phoneticRules)
	return out
}
