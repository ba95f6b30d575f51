// Package render turns the raw encodings returned by the phonetics service
// into display text.
//
// Every function here is pure: the same raw input always produces the same
// output. Rendering is a one-shot transform from raw to display; feeding
// rendered output back in is not meaningful.
package render

import (
	"html"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// Variant names accepted by Bundle.Variant.
const (
	VariantKVP          = "kvp"
	VariantIPA          = "ipa"
	VariantAdvanced     = "advanced"
	VariantIntermediate = "intermediate"
	VariantSimple       = "simple"
)

// Variants lists every display variant in presentation order.
var Variants = []string{
	VariantKVP,
	VariantIPA,
	VariantAdvanced,
	VariantIntermediate,
	VariantSimple,
}

// Bundle holds every display variant computed from one raw romanized and
// phonetic pair. A Bundle is never mutated after construction; a refresh
// produces a new one.
type Bundle struct {
	KVP          string `json:"kvp"`
	IPA          string `json:"ipa"`
	Advanced     string `json:"advanced"`
	Intermediate string `json:"intermediate"`
	Simple       string `json:"simple"`
}

// Variant returns the display text for the named variant, or "" when the
// name is unknown.
func (b *Bundle) Variant(name string) string {
	if b == nil {
		return ""
	}
	switch name {
	case VariantKVP:
		return b.KVP
	case VariantIPA:
		return b.IPA
	case VariantAdvanced:
		return b.Advanced
	case VariantIntermediate:
		return b.Intermediate
	case VariantSimple:
		return b.Simple
	}
	return ""
}

func apply(rules []Rule, s string, level Level) string {
	for _, r := range rules {
		if r.Levels.Has(level) {
			s = r.Apply(s)
		}
	}
	return s
}

// Phonetic renders a raw phonetic (IPA-style) string at the given detail level.
func Phonetic(raw string, level Level) string {
	return apply(phoneticRules, raw, level)
}

// IPA renders a raw phonetic string close to its original form: line breaks
// become markers and the weak aspiration digit becomes a muted "ʰ".
func IPA(raw string) string {
	return apply(ipaRules, raw, Advanced)
}

// KVP renders a raw romanized string. Only line breaks are rewritten.
func KVP(raw string) string {
	return apply(kvpRules, raw, Advanced)
}

// Render computes all five display variants from the same raw inputs.
func Render(romanized, phonetic string) *Bundle {
	return &Bundle{
		KVP:          KVP(romanized),
		IPA:          IPA(phonetic),
		Advanced:     Phonetic(phonetic, Advanced),
		Intermediate: Phonetic(phonetic, Intermediate),
		Simple:       Phonetic(phonetic, Simple),
	}
}

var (
	breakTag = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag   = regexp.MustCompile(`<[^>]*>`)
)

// PlainText strips display markup for copying: line-break markers become
// newlines, remaining tags are dropped and entities decoded.
func PlainText(markup string) string {
	s := breakTag.ReplaceAllString(markup, "\n")
	s = anyTag.ReplaceAllString(s, "")
	return norm.NFC.String(html.UnescapeString(s))
}
