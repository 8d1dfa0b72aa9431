// Package langdetect guesses the language of titles that declare none.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// bibliographic maps ISO 639-3 codes to the MARC bibliographic codes used in
// catalog records where the two differ.
var bibliographic = map[string]string{
	"fra": "fre",
	"deu": "ger",
	"nld": "dut",
}

// Detector detects the languages sort titles are configured for. The lingua
// models load on first use.
type Detector struct {
	languages []lingua.Language

	once     sync.Once
	detector lingua.LanguageDetector
}

// New creates a detector for English and the major European catalog
// languages.
func New() *Detector {
	return &Detector{languages: []lingua.Language{
		lingua.English,
		lingua.French,
		lingua.German,
		lingua.Spanish,
		lingua.Italian,
		lingua.Portuguese,
		lingua.Dutch,
	}}
}

// DetectISO3 returns the catalog ISO 639-3 code of text. Text with fewer than
// six letters is not guessed.
func (d *Detector) DetectISO3(text string) (string, bool) {
	sample := strings.TrimSpace(text)
	letters := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 6 {
		return "", false
	}

	language, ok := d.get().DetectLanguageOf(sample)
	if !ok {
		return "", false
	}

	code := strings.ToLower(language.IsoCode639_3().String())
	if len(code) != 3 {
		return "", false
	}
	if b, ok := bibliographic[code]; ok {
		code = b
	}
	return code, true
}

func (d *Detector) get() lingua.LanguageDetector {
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(d.languages...).
			Build()
	})
	return d.detector
}
