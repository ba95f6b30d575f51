// Package prefs holds the user-adjustable options and working text of an
// editing session.
//
// Each option lives under its own storage key and is read and written
// independently. Reads never fail: an absent, unreadable or invalid value
// falls back to the option's default. Writes return the store error so the
// caller decides, visibly, whether to ignore it.
package prefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"kvpedit/internal/render"
	"kvpedit/internal/store"
)

// Storage keys.
const (
	KeyGranularity  = "kvp_segmentationType"
	KeyVariant      = "kvp_phoneticization"
	KeySanskritMode = "kvp_sanskritMode"
	KeyAnusvara     = "kvp_anusvaraStyle"
	KeySourceText   = "kvp_originalText"
	KeySegmented    = "kvp_segmentedText"
)

// Granularity selects the segmentation endpoint.
type Granularity string

const (
	GranularityWords Granularity = "words"
	GranularityPairs Granularity = "two"
	GranularityOnes  Granularity = "one"
)

// Sanskrit handling modes understood by the service.
const (
	SanskritKeep      = "keep"
	SanskritIAST      = "iast"
	SanskritPhonetics = "phonetics"
)

// Defaults.
const (
	DefaultGranularity  = GranularityWords
	DefaultVariant      = render.VariantKVP
	DefaultSanskritMode = SanskritKeep
	DefaultAnusvara     = "ṃ"
)

// DefaultSourceText is shown when no source text has been stored.
const DefaultSourceText = `གང་གི་བློ་གྲོས་སྒྲིབ་གཉིས་སྤྲིན་བྲལ་ཉི་ལྟར་རྣམ་དག་རབ་གསལ་བས།།
ཇི་སྙེད་དོན་ཀུན་ཇི་བཞིན་གཟིགས་ཕྱིར་ཉིད་ཀྱི་ཐུགས་ཀར་གླེགས་བམ་འཛིན།།
གང་དག་སྲིད་པའི་བཙོན་རར་མ་རིག་མུན་འཐུམས་སྡུག་བསྔལ་གྱིས་གཟིར་བའི།།
འགྲོ་ཚོགས་ཀུན་ལ་བུ་གཅིག་ལྟར་བརྩེ་ཡན་ལག་དྲུག་བཅུའི་དབྱངས་ལྡན་གསུང༌།།
འབྲུག་ལྟར་ཆེར་སྒྲོགས་ཉོན་མོངས་གཉིད་སློང་ལས་ཀྱི་ལྕགས་སྒྲོག་འགྲོལ་མཛད་ཅིང༌།།
མ་རིག་མུན་སེལ་སྡུག་བསྔལ་མྱུ་གུ་ཇི་སྙེད་གཅོད་མཛད་རལ་གྲི་བསྣམས།།
གདོད་ནས་དག་ཅིང་ས་བཅུའི་མཐར་སོན་ཡོན་ཏན་ལུས་རྫོགས་རྒྱལ་སྲས་ཐུ་བོའི་སྐུ།།
བཅུ་ཕྲག་བཅུ་དང་བཅུ་གཉིས་རྒྱན་སྤྲས་བདག་བློའི་མུན་སེལ་འཇམ་པའི་དབྱངས་ལ་རབ་ཏུ་འདུད།།`

var (
	// ErrUnknownOption is returned for an option name that does not exist.
	ErrUnknownOption = errors.New("unknown option")
	// ErrInvalidValue is returned when a value is outside an option's domain.
	ErrInvalidValue = errors.New("invalid value")
)

// Preferences is a point-in-time copy of every option.
type Preferences struct {
	Granularity   Granularity
	Variant       string
	SanskritMode  string
	Anusvara      string
	SourceText    string
	SegmentedText string
}

// Defaults returns the preferences of a fresh session.
func Defaults() Preferences {
	return Preferences{
		Granularity:  DefaultGranularity,
		Variant:      DefaultVariant,
		SanskritMode: DefaultSanskritMode,
		Anusvara:     DefaultAnusvara,
		SourceText:   DefaultSourceText,
	}
}

// option describes one named, independently persisted value.
type option struct {
	key      string
	def      string
	validate func(string) bool
}

var options = map[string]option{
	"granularity":   {KeyGranularity, string(DefaultGranularity), validGranularity},
	"variant":       {KeyVariant, DefaultVariant, validVariant},
	"sanskrit_mode": {KeySanskritMode, DefaultSanskritMode, validSanskritMode},
	"anusvara":      {KeyAnusvara, DefaultAnusvara, validAnusvara},
	"source_text":   {KeySourceText, DefaultSourceText, nonEmpty},
	"segmented":     {KeySegmented, "", nil},
}

// Names lists the option names accepted by Get and Set.
func Names() []string {
	names := make([]string, 0, len(options))
	for n := range options {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func validGranularity(s string) bool {
	switch Granularity(s) {
	case GranularityWords, GranularityPairs, GranularityOnes:
		return true
	}
	return false
}

func validVariant(s string) bool {
	for _, v := range render.Variants {
		if v == s {
			return true
		}
	}
	return false
}

func validSanskritMode(s string) bool {
	switch s {
	case SanskritKeep, SanskritIAST, SanskritPhonetics:
		return true
	}
	return false
}

func validAnusvara(s string) bool {
	return utf8.RuneCountInString(s) == 1
}

// A stored empty source text means "nothing stored".
func nonEmpty(s string) bool { return s != "" }

// ParseGranularity accepts the stored names plus the aliases "pairs" and
// "singles".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "words", "word":
		return GranularityWords, nil
	case "two", "pairs", "pair":
		return GranularityPairs, nil
	case "one", "singles", "single":
		return GranularityOnes, nil
	}
	return "", fmt.Errorf("%w: granularity %q", ErrInvalidValue, s)
}

// Store reads and writes options through a KV.
type Store struct {
	kv store.KV
}

// New returns a Store over kv. A nil kv behaves as an unavailable store.
func New(kv store.KV) *Store {
	if kv == nil {
		kv = store.Unavailable{}
	}
	return &Store{kv: kv}
}

func (s *Store) read(o option) string {
	v, ok, err := s.kv.Get(o.key)
	if err != nil || !ok {
		return o.def
	}
	if o.validate != nil && !o.validate(v) {
		return o.def
	}
	return v
}

func (s *Store) write(o option, value string) error {
	if err := s.kv.Set(o.key, value); err != nil {
		return fmt.Errorf("persist %s: %w", o.key, err)
	}
	return nil
}

// Load reads every option, falling back to defaults.
func (s *Store) Load() Preferences {
	return Preferences{
		Granularity:   s.Granularity(),
		Variant:       s.Variant(),
		SanskritMode:  s.SanskritMode(),
		Anusvara:      s.Anusvara(),
		SourceText:    s.SourceText(),
		SegmentedText: s.SegmentedText(),
	}
}

func (s *Store) Granularity() Granularity { return Granularity(s.read(options["granularity"])) }
func (s *Store) Variant() string          { return s.read(options["variant"]) }
func (s *Store) SanskritMode() string     { return s.read(options["sanskrit_mode"]) }
func (s *Store) Anusvara() string         { return s.read(options["anusvara"]) }
func (s *Store) SegmentedText() string    { return s.read(options["segmented"]) }

// SourceText returns the stored source text, or DefaultSourceText when
// nothing or "" was stored.
func (s *Store) SourceText() string { return s.read(options["source_text"]) }

// SetGranularity persists the segmentation granularity.
func (s *Store) SetGranularity(g Granularity) error {
	return s.set("granularity", string(g))
}

// SetVariant persists the display variant.
func (s *Store) SetVariant(v string) error {
	return s.set("variant", v)
}

// SetSanskritMode persists the sanskrit handling mode.
func (s *Store) SetSanskritMode(m string) error {
	return s.set("sanskrit_mode", m)
}

// SetAnusvara persists the anusvara glyph.
func (s *Store) SetAnusvara(glyph string) error {
	return s.set("anusvara", glyph)
}

// SetSourceText persists the source text. Storing "" is allowed; it reads
// back as DefaultSourceText in the next session.
func (s *Store) SetSourceText(text string) error {
	return s.write(options["source_text"], text)
}

// SetSegmentedText persists the segmented text.
func (s *Store) SetSegmentedText(text string) error {
	return s.write(options["segmented"], text)
}

// Get returns the effective value of the named option.
func (s *Store) Get(name string) (string, error) {
	o, ok := options[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	return s.read(o), nil
}

// Set validates and persists the named option.
func (s *Store) Set(name, value string) error {
	if name == "granularity" {
		g, err := ParseGranularity(value)
		if err != nil {
			return err
		}
		value = string(g)
	}
	return s.set(name, value)
}

func (s *Store) set(name, value string) error {
	if err := Validate(name, value); err != nil {
		return err
	}
	return s.write(options[name], value)
}

// Validate reports whether value is acceptable for the named option. Any
// source text is acceptable, including "".
func Validate(name, value string) error {
	o, ok := options[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	if o.validate != nil && name != "source_text" && !o.validate(value) {
		return fmt.Errorf("%w: %s %q", ErrInvalidValue, name, value)
	}
	return nil
}

// Reset removes every stored option so the next Load returns defaults.
func (s *Store) Reset() error {
	var errs []error
	for _, name := range Names() {
		if err := s.kv.Delete(options[name].key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
