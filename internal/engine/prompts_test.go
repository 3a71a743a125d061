package engine

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		response string
		ok       bool
	}{
		{"QUALITY_OK", true},
		{"  QUALITY_OK\n", true},
		{"", true},
		{"   \n\t", true},
		{"quality_ok", false}, // sentinel is case-sensitive
		{"QUALITY_OK but one thing", false},
		{"1. LOCATION: ...\nPROBLEM: ...", false},
	}
	for _, tt := range tests {
		v := parseVerdict(tt.response)
		if v.ok != tt.ok {
			t.Errorf("parseVerdict(%q).ok = %v, want %v", tt.response, v.ok, tt.ok)
		}
		if !v.ok && v.issues == "" {
			t.Errorf("parseVerdict(%q) has issues verdict but empty issue text", tt.response)
		}
	}
}

// The prompt-prefix cache only hits while consecutive system prompts share a
// byte-identical head. Everything before the glossary section must stay
// stable as glossary and context evolve between units.
func TestTranslateSystemPrefixStable(t *testing.T) {
	b := newPromptBuilder("German", "Ukrainian", "- keep register", []string{"Aria", "Drachenfels"})

	s1 := b.translateSystem("  Schwert → меч", "The heroes reached the gate.", "")
	s2 := b.translateSystem("  Drache → дракон\n  Schwert → меч", "They crossed the river at dawn.", "")

	marker := "═══ GLOSSARY"
	i1 := strings.Index(s1, marker)
	i2 := strings.Index(s2, marker)
	if i1 < 0 || i2 < 0 {
		t.Fatal("glossary section marker missing from translate system prompt")
	}
	if i1 != i2 || s1[:i1] != s2[:i2] {
		t.Error("translate system prompt head changed between units; prefix cache would miss")
	}
}

func TestProtectedSectionTruncation(t *testing.T) {
	nouns := make([]string, maxPromptNouns+5)
	for i := range nouns {
		nouns[i] = fmt.Sprintf("Name%02d", i)
	}
	b := newPromptBuilder("German", "Ukrainian", "", nouns)

	section := b.protectedSection()
	if !strings.Contains(section, "5 more protected terms omitted") {
		t.Errorf("protectedSection missing omission note:\n%s", section)
	}
	if strings.Contains(section, nouns[maxPromptNouns]) {
		t.Errorf("protectedSection rendered a noun past the cap")
	}
	if !strings.Contains(section, nouns[0]) || !strings.Contains(section, nouns[maxPromptNouns-1]) {
		t.Errorf("protectedSection dropped nouns inside the cap")
	}
}

func TestProtectedSectionEmpty(t *testing.T) {
	b := newPromptBuilder("German", "Ukrainian", "", nil)
	if got := b.protectedSection(); got != "" {
		t.Errorf("protectedSection() = %q for no nouns, want empty", got)
	}
}

func TestBatchInstruction(t *testing.T) {
	note := batchInstruction(4)
	if !strings.Contains(note, "4 paragraphs") {
		t.Errorf("batchInstruction missing count: %q", note)
	}
	if !strings.Contains(note, ParagraphDelimiter) {
		t.Errorf("batchInstruction missing delimiter: %q", note)
	}
}

func TestReviewSystemCarriesSentinel(t *testing.T) {
	b := newPromptBuilder("German", "Ukrainian", "- style", nil)
	sys := b.reviewSystem("", "")
	if !strings.Contains(sys, reviewOKSentinel) {
		t.Error("review system prompt does not name the no-issues sentinel")
	}
}

func TestFirstRunes(t *testing.T) {
	if got := firstRunes("привіт", 3); got != "при" {
		t.Errorf("firstRunes cut mid-rune: %q", got)
	}
	if got := firstRunes("short", 100); got != "short" {
		t.Errorf("firstRunes(%q, 100) = %q", "short", got)
	}
}
