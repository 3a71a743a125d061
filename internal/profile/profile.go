// Package profile loads genre-specific translation profiles from JSON files.
//
// A profile controls everything a genre needs tuned: style instructions,
// protected proper nouns, a seed glossary, per-pass sampling temperatures,
// and the intervals at which rolling context and glossary refreshes run.
// A loaded profile is immutable for the duration of a run.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Defaults applied when a profile file omits a field.
const (
	DefaultMinReviewChars         = 300
	DefaultContextUpdateInterval  = 15
	DefaultGlossaryUpdateInterval = 20

	DefaultTranslateTemperature = 0.3
	DefaultReviewTemperature    = 0.4
	DefaultRefineTemperature    = 0.2

	// maxProtectedNounLen filters out editor notes that sometimes end up in
	// the protected_nouns list of hand-edited profiles.
	maxProtectedNounLen = 100
)

// Temperatures holds the sampling temperature for each pipeline pass.
type Temperatures struct {
	Translate float64 `json:"translate"`
	Review    float64 `json:"review"`
	Refine    float64 `json:"refine"`
}

// Profile is a fully-resolved translation profile. Every field has an
// explicit value after Load or Default; consumers never check for zero
// values themselves.
type Profile struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	SourceLanguage    string   `json:"source_language"`
	StyleInstructions []string `json:"style_instructions"`
	ProtectedNouns    []string `json:"protected_nouns"`

	GlossarySeed map[string]string `json:"glossary_seed"`

	Temperature Temperatures `json:"temperature"`

	// MinReviewChars is both the short-text dispatch threshold and the
	// review-skip threshold: units shorter than this get pass 1 only.
	MinReviewChars int `json:"min_review_chars"`

	// ContextUpdateInterval and GlossaryUpdateInterval count dispatched
	// units between rolling-context and glossary refresh calls.
	ContextUpdateInterval  int `json:"context_update_interval"`
	GlossaryUpdateInterval int `json:"glossary_update_interval"`
}

// Default returns the built-in profile used when no profile file is given.
func Default() *Profile {
	return &Profile{
		Name: "Default",
		StyleInstructions: []string{
			"Produce natural, fluent literary prose in the target language",
			"Preserve the author's voice, tone, and style",
			"Translate idioms by meaning, not word-for-word",
			"Maintain sentence rhythm and pacing where possible",
			"Use natural target-language sentence structures",
		},
		ProtectedNouns: nil,
		GlossarySeed:   map[string]string{},
		Temperature: Temperatures{
			Translate: DefaultTranslateTemperature,
			Review:    DefaultReviewTemperature,
			Refine:    DefaultRefineTemperature,
		},
		MinReviewChars:         DefaultMinReviewChars,
		ContextUpdateInterval:  DefaultContextUpdateInterval,
		GlossaryUpdateInterval: DefaultGlossaryUpdateInterval,
	}
}

// rawProfile mirrors the profile file format. Optional numeric fields are
// pointers so absent values can fall back to defaults instead of zero.
type rawProfile struct {
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	SourceLanguage    string            `json:"source_language"`
	StyleInstructions []string          `json:"style_instructions"`
	ProtectedNouns    []string          `json:"protected_nouns"`
	GlossarySeed      map[string]string `json:"glossary_seed"`
	Temperature       map[string]any    `json:"temperature"`
	MinReviewChars    *int              `json:"min_review_chars"`
	ContextInterval   *int              `json:"context_update_interval"`
	GlossaryInterval  *int              `json:"glossary_update_interval"`
}

// Load reads a profile JSON file, applies defaults for missing fields, and
// filters junk entries (editor notes in protected_nouns, "_comment" keys in
// the glossary seed and temperature maps).
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var raw rawProfile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	p := Default()

	if raw.Name != "" {
		p.Name = raw.Name
	} else {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	p.Description = raw.Description
	p.SourceLanguage = raw.SourceLanguage

	if len(raw.StyleInstructions) > 0 {
		p.StyleInstructions = raw.StyleInstructions
	}

	p.ProtectedNouns = filterProtectedNouns(raw.ProtectedNouns)

	for src, tgt := range raw.GlossarySeed {
		if strings.HasPrefix(src, "_") {
			continue
		}
		p.GlossarySeed[src] = tgt
	}

	if t, ok := temperatureValue(raw.Temperature, "translate"); ok {
		p.Temperature.Translate = t
	}
	if t, ok := temperatureValue(raw.Temperature, "review"); ok {
		p.Temperature.Review = t
	}
	if t, ok := temperatureValue(raw.Temperature, "refine"); ok {
		p.Temperature.Refine = t
	}

	if raw.MinReviewChars != nil {
		p.MinReviewChars = *raw.MinReviewChars
	}
	if raw.ContextInterval != nil {
		p.ContextUpdateInterval = *raw.ContextInterval
	}
	if raw.GlossaryInterval != nil {
		p.GlossaryUpdateInterval = *raw.GlossaryInterval
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

func (p *Profile) validate() error {
	if p.MinReviewChars < 0 {
		return fmt.Errorf("min_review_chars must not be negative")
	}
	if p.ContextUpdateInterval <= 0 {
		return fmt.Errorf("context_update_interval must be positive")
	}
	if p.GlossaryUpdateInterval <= 0 {
		return fmt.Errorf("glossary_update_interval must be positive")
	}
	for _, t := range []float64{p.Temperature.Translate, p.Temperature.Review, p.Temperature.Refine} {
		if t < 0 || t > 1 {
			return fmt.Errorf("temperature %v out of range [0,1]", t)
		}
	}
	return nil
}

// StyleText renders the style instructions as a bulleted block for prompts.
func (p *Profile) StyleText() string {
	lines := make([]string, 0, len(p.StyleInstructions))
	for _, s := range p.StyleInstructions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, "-") {
			s = "- " + s
		}
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n")
}

// junkNounPrefixes mark entries that are editor instructions, not nouns.
var junkNounPrefixes = []string{
	"Names,", "Add ", "DELETE", "Delete ", "Character ", "One entry",
}

func filterProtectedNouns(nouns []string) []string {
	var out []string
	for _, n := range nouns {
		n = strings.TrimSpace(n)
		if n == "" || len(n) >= maxProtectedNounLen {
			continue
		}
		junk := false
		for _, prefix := range junkNounPrefixes {
			if strings.HasPrefix(n, prefix) {
				junk = true
				break
			}
		}
		if !junk {
			out = append(out, n)
		}
	}
	return out
}

// temperatureValue extracts a named float from the raw temperature map,
// ignoring "_comment" entries and non-numeric values.
func temperatureValue(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
