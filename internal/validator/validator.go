// Package validator spot-checks that translated paragraphs are actually in
// the target language. Mismatches are reported, never fatal: the check is a
// quality signal for the run summary, not a gate.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/knyhotran/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt
// language detection. Shorter texts produce unreliable results and are
// accepted without validation.
const minValidationLength = 20

// Validator checks translated text against an expected target language.
// The underlying detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

func New() *Validator {
	return &Validator{det: detector.New()}
}

// IsValid returns true when text appears to be written in targetLang (ISO
// 639-1). Short and ambiguous texts pass without error; an empty text
// fails. When the detected language differs the error names both codes.
func (v *Validator) IsValid(text, targetLang string) (bool, error) {
	if targetLang == "" {
		return true, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}
	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}
	if !strings.EqualFold(detected, targetLang) {
		return false, fmt.Errorf("expected %s but detected %s", targetLang, detected)
	}
	return true, nil
}

// Mismatch is one failed spot check.
type Mismatch struct {
	Index  int
	Reason string
}

// SpotCheck validates up to sampleCount paragraphs, evenly spaced across
// the sequence for representative coverage, and returns the mismatches.
func (v *Validator) SpotCheck(paragraphs []string, targetLang string, sampleCount int) []Mismatch {
	if sampleCount <= 0 || len(paragraphs) == 0 {
		return nil
	}

	step := len(paragraphs) / sampleCount
	if step < 1 {
		step = 1
	}

	var mismatches []Mismatch
	for i := 0; i < len(paragraphs) && len(mismatches) < sampleCount; i += step {
		ok, err := v.IsValid(paragraphs[i], targetLang)
		if !ok {
			mismatches = append(mismatches, Mismatch{Index: i, Reason: err.Error()})
		}
	}
	return mismatches
}
