package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneticLevels(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		level Level
		want  string
	}{
		{"muted vowel and aspiration", "mɔ3ŋ\n", Advanced, "m<span class='gray'>o</span><span class='gray'>ʰ</span>ṅ<br/>"},
		{"intermediate strips aspiration", "mɔ3ŋ\n", Intermediate, "moṅ<br/>"},
		{"simple strips aspiration", "mɔ3ŋ\n", Simple, "moṅ<br/>"},

		{"advanced keeps vowel diacritic", "\u0254\u0304", Advanced, "<span class='gray'>o\u0304</span>"},
		{"intermediate drops vowel diacritic", "\u0254\u0304", Intermediate, "o"},
		{"advanced central vowel", "\u0259\u0331", Advanced, "<span class='gray'>a\u0331</span>"},
		{"intermediate central vowel", "\u0259\u0331", Intermediate, "<span class='gray'>a</span>"},
		{"simple central vowel", "\u0259\u0331", Simple, "a"},

		{"advanced glottal before stop", "aʔk\u031a", Advanced, "a<sub>k</sub>"},
		{"advanced bare glottal", "aʔ", Advanced, "a<sub>ʔ</sub>"},
		{"intermediate glottal before stop", "aʔp\u031a", Intermediate, "a<sub>p</sub>"},
		{"simple glottal stripped", "aʔk\u031a", Simple, "ak"},
		{"unreleased n", "pɛn\u031a", Advanced, "p\u00e8n"},

		{"advanced keeps tone letters", "ka˥˩", Advanced, "ka˥˩"},
		{"intermediate strips tone letters", "ka˥˩", Intermediate, "ka"},
		{"advanced keeps breath mark", "tɕʰo", Advanced, "chʰo"},
		{"simple strips breath mark", "tɕʰo", Simple, "cho"},
		{"simple strips length", "øː", Simple, "ö"},
		{"advanced keeps length", "øː", Advanced, "öː"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Phonetic(tt.raw, tt.level))
		})
	}
}

func TestPhoneticGlyphMap(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ɣa", "ga"},
		{"b\u0325a", "ba"},
		{"b\u030aa", "ba"},
		{"ɖa", "ḍa"},
		{"ʈa", "ṭa"},
		{"ɲe", "ny\u00e9"},
		{"ø", "ö"},
		{"ɟa", "gya"},
		{"ja", "ya"},
		{"ɛ", "\u00e8"},
		{"e", "\u00e9"},
		{"ŋ a", "ng a"},
		{"ŋ\ta", "ng\ta"},
		{"ŋ\u00a0a", "ng\u00a0a"},
		{"ŋ\va", "ng\va"},
		{"ŋ\ufeffa", "ng\ufeffa"},
		{"ŋa", "ṅa"},
		{"ŋ", "ṅ"},
		{"tɕa", "cha"},
		{"ɕa", "sha"},
		{"dʑa", "ja"},
		{"dza", "za"},
	}

	for _, tt := range tests {
		for _, level := range []Level{Advanced, Intermediate, Simple} {
			t.Run(tt.raw+"/"+level.String(), func(t *testing.T) {
				assert.Equal(t, tt.want, Phonetic(tt.raw, level))
			})
		}
	}
}

func TestPhoneticOrdering(t *testing.T) {
	// y and c are rewritten before anything else; the later j and ɟ rules
	// produce bare "y" that must survive untouched.
	for _, level := range []Level{Advanced, Intermediate, Simple} {
		assert.Equal(t, "üky", Phonetic("yc", level), level.String())
		assert.Equal(t, "üa ya gya", Phonetic("ya ja ɟa", level), level.String())
	}
	// The final-ŋ rule must win over the general one; the line break marker
	// is not whitespace.
	assert.Equal(t, "ng ṅ<br/>", Phonetic("ŋ ŋ\n", Simple))
}

func TestPhoneticLineBreaks(t *testing.T) {
	assert.Equal(t, "a<br/>b<br/>d<br/>", Phonetic("a\r\nb\rd\n", Simple))
	assert.Equal(t, "a<br/><br/>b", Phonetic("a\n\nb", Advanced))
}

func TestPhoneticDeterministic(t *testing.T) {
	raw := "ɲiŋ3 tɕe\u0331 ʔk\u031a yc dʑə\u0304 ɔ\n"
	for _, level := range []Level{Advanced, Intermediate, Simple} {
		first := Phonetic(raw, level)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Phonetic(raw, level))
		}
	}
}

func TestSimpleHasNoMarkupSpans(t *testing.T) {
	raw := "\u0254\u0304 \u0259\u0331 3 ʔk\u031a ʔ ʰ ː ˥˦˧˨˩ n\u031a\n"

	adv := Phonetic(raw, Advanced)
	assert.Contains(t, adv, "<span")
	assert.Contains(t, adv, "<sub>")

	simple := Phonetic(raw, Simple)
	assert.NotContains(t, simple, "<span")
	assert.NotContains(t, simple, "<sub>")
	assert.Equal(t, "o a  k"+strings.Repeat(" ", 5)+"n<br/>", simple)
}

func TestUnmatchedPassesThrough(t *testing.T) {
	raw := "xyz 123 ?!"
	// Only the y rule applies.
	assert.Equal(t, "xüz 12<span class='gray'>ʰ</span> ?!", Phonetic(raw, Advanced))
	assert.Equal(t, "", Phonetic("", Advanced))
	assert.Equal(t, "(?) abc", KVP("(?) abc"))
}

func TestIPA(t *testing.T) {
	assert.Equal(t, "kʰa<span class='gray'>ʰ</span><br/>", IPA("kʰa3\n"))
	assert.Equal(t, "ɲiŋ", IPA("ɲiŋ"))
}

func TestKVP(t *testing.T) {
	assert.Equal(t, "sangyé<br/>pal<br/>", KVP("sangyé\r\npal\n"))
}

func TestRender(t *testing.T) {
	b := Render("tashi\n", "ʈa3ɕi\n")
	require.NotNil(t, b)

	assert.Equal(t, "tashi<br/>", b.KVP)
	assert.Equal(t, "ʈa<span class='gray'>ʰ</span>ɕi<br/>", b.IPA)
	assert.Equal(t, "ṭa<span class='gray'>ʰ</span>shi<br/>", b.Advanced)
	assert.Equal(t, "ṭashi<br/>", b.Intermediate)
	assert.Equal(t, "ṭashi<br/>", b.Simple)

	for _, v := range Variants {
		assert.NotEmpty(t, b.Variant(v), v)
	}
	assert.Equal(t, "", b.Variant("unknown"))

	var nilBundle *Bundle
	assert.Equal(t, "", nilBundle.Variant(VariantKVP))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "ka\nkhaʰ &\n", PlainText("ka<br/>kha<span class='gray'>ʰ</span> &amp;<BR>"))
	assert.Equal(t, "a\nb\nc", PlainText("a<br>b<br />c"))
	assert.Equal(t, "a k", PlainText("a <sub>k</sub>"))
	// Combining sequences are composed for the clipboard.
	assert.Equal(t, "\u00e9", PlainText("e\u0301"))
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"advanced", "Intermediate", "SIMPLE"} {
		l, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(name), l.String())
	}
	_, err := ParseLevel("expert")
	assert.Error(t, err)
}

func TestRuleTableOrder(t *testing.T) {
	rules := Rules()
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		_, dup := index[r.Name]
		require.False(t, dup, "duplicate rule name %q", r.Name)
		index[r.Name] = i
	}

	before := [][2]string{
		{"line-break", "front-rounded-y"},
		{"front-rounded-y", "palatal-approximant"},
		{"palatal-c", "palatal-stop"},
		{"palatal-c", "back-vowel-muted"},
		{"glottal-stop-before-stop", "glottal-stop"},
		{"palatal-stop", "palatal-approximant"},
		{"velar-nasal-final", "velar-nasal"},
		{"alveolo-palatal-affricate", "alveolo-palatal-fricative"},
	}
	for _, pair := range before {
		assert.Less(t, index[pair[0]], index[pair[1]], "%s must run before %s", pair[0], pair[1])
	}
}

func TestRuleApplyIndependently(t *testing.T) {
	for _, r := range Rules() {
		// Each rule is a no-op on text it does not match.
		assert.Equal(t, "QQQ", r.Apply("QQQ"), r.Name)
	}
}
