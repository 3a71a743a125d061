// Package detector wraps language detection for book analysis and the
// --source auto path. Prompts want full language names ("German"); the CLI
// speaks ISO 639-1 codes. Both are provided here.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// Detector identifies the language of a text sample. Building the
// underlying model is expensive; reuse the instance.
type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build(),
	}
}

// Detect returns the detected language, false when it cannot be determined.
func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// DetectName returns the full English name of the detected language, as
// used in prompt text.
func (d *Detector) DetectName(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.String(), true
}

// isoNames maps common ISO 639-1 codes to full names for prompts.
var isoNames = map[string]string{
	"en": "English", "de": "German", "fr": "French", "es": "Spanish",
	"it": "Italian", "pt": "Portuguese", "nl": "Dutch", "ru": "Russian",
	"ja": "Japanese", "zh": "Chinese", "ko": "Korean", "pl": "Polish",
	"sv": "Swedish", "da": "Danish", "no": "Norwegian", "fi": "Finnish",
	"cs": "Czech", "hu": "Hungarian", "ro": "Romanian", "tr": "Turkish",
	"ar": "Arabic", "he": "Hebrew", "hi": "Hindi", "th": "Thai",
	"vi": "Vietnamese", "uk": "Ukrainian", "el": "Greek",
}

// LanguageName resolves a language code or name to the full name prompts
// expect. Codes outside the map pass through unchanged: a full name is
// already fine. Empty and "auto" fall back to English.
func LanguageName(code string) string {
	if code == "" || code == "auto" {
		return "English"
	}
	if name, ok := isoNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
