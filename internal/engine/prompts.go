package engine

import (
	"fmt"
	"strings"
)

// reviewOKSentinel is the exact string the review pass returns when the
// translation needs no fixes. The check is case-sensitive.
const reviewOKSentinel = "QUALITY_OK"

const (
	// maxPromptNouns caps the protected-noun list rendered into the
	// translate system prompt; the review prompt uses a shorter list.
	maxPromptNouns       = 60
	maxReviewPromptNouns = 30

	// maxGlossaryPromptTerms caps how many glossary pairs are rendered
	// into any prompt.
	maxGlossaryPromptTerms = 60
)

// promptBuilder renders the system and user prompts for every pass.
//
// The translate/review/refine system prompts are built so that everything
// before the glossary section is byte-identical across consecutive calls.
// Only the trailing glossary/context sections change between units, which
// keeps the prompt-prefix cache hitting on the long static head.
type promptBuilder struct {
	sourceLang string
	targetLang string
	style      string
	nouns      []string
}

func newPromptBuilder(sourceLang, targetLang, style string, protectedNouns []string) *promptBuilder {
	return &promptBuilder{
		sourceLang: sourceLang,
		targetLang: targetLang,
		style:      style,
		nouns:      protectedNouns,
	}
}

// protectedSection renders up to maxPromptNouns protected nouns, noting how
// many were omitted when the list is longer.
func (b *promptBuilder) protectedSection() string {
	if len(b.nouns) == 0 {
		return ""
	}
	shown := b.nouns
	omitted := 0
	if len(shown) > maxPromptNouns {
		omitted = len(shown) - maxPromptNouns
		shown = shown[:maxPromptNouns]
	}
	var sb strings.Builder
	sb.WriteString("\n═══ PROTECTED PROPER NOUNS — NEVER TRANSLATE THESE ═══\n")
	sb.WriteString(strings.Join(shown, ", "))
	if omitted > 0 {
		fmt.Fprintf(&sb, "\n(%d more protected terms omitted — also never translate established names)", omitted)
	}
	sb.WriteString("\nThese names/terms must appear in the translation EXACTLY as written above.\n")
	return sb.String()
}

// protectedShortList is the compact rendering used inside the review prompt.
func (b *promptBuilder) protectedShortList() string {
	if len(b.nouns) == 0 {
		return "(none)"
	}
	shown := b.nouns
	if len(shown) > maxReviewPromptNouns {
		shown = shown[:maxReviewPromptNouns]
	}
	return strings.Join(shown, ", ")
}

// batchInstruction tells the model to preserve the paragraph delimiter and
// count through a pass.
func batchInstruction(paragraphCount int) string {
	return fmt.Sprintf(
		"\n═══ BATCH MODE ═══\n"+
			"The input contains %d paragraphs separated by %s\n"+
			"Separate translated paragraphs with %s as well.\n"+
			"Translate EVERY paragraph completely. The paragraph count MUST stay exactly %d.",
		paragraphCount, ParagraphDelimiter, ParagraphDelimiter, paragraphCount)
}

func batchReviewNote(isBatch bool) string {
	if !isBatch {
		return ""
	}
	return fmt.Sprintf(
		"\nNOTE: The text contains %s paragraph delimiters. "+
			"Treat each delimited section as a separate paragraph for review.",
		ParagraphDelimiter)
}

func (b *promptBuilder) translateSystem(glossary, rollingContext, batchNote string) string {
	if glossary == "" {
		glossary = "(none yet — beginning of book)"
	}
	if rollingContext == "" {
		rollingContext = "(beginning of text)"
	}
	return fmt.Sprintf(`You are an expert literary translator specialising in %[1]s → %[2]s translation. Your translations are published-quality: natural, fluent, and faithful to the author's voice.

═══ STYLE INSTRUCTIONS ═══
%[3]s

═══ TRANSLATION RULES ═══
1. Output ONLY the %[2]s translation — no commentary, notes, or explanations
2. Translate COMPLETELY — never shorten, summarise, or omit any content
3. Preserve all HTML/XML tags exactly as they appear
4. Preserve the author's sentence structure and rhythm where natural in %[2]s
5. Translate idioms and expressions by meaning, not word-for-word
6. Maintain register: formal stays formal, colloquial stays colloquial
7. For dialogue, use natural spoken %[2]s appropriate to the character
8. Preserve intentional stylistic choices (short sentences for tension, long sentences for atmosphere, etc.)
%[4]s
═══ GLOSSARY (established translations in this book) ═══
%[5]s

═══ NARRATIVE CONTEXT (story so far) ═══
%[6]s
%[7]s`,
		b.sourceLang, b.targetLang, b.style, b.protectedSection(), glossary, rollingContext, batchNote)
}

func (b *promptBuilder) translateUser(text string) string {
	return fmt.Sprintf("Translate the following %s text into %s:\n\n%s", b.sourceLang, b.targetLang, text)
}

func (b *promptBuilder) reviewSystem(glossary, batchNote string) string {
	if glossary == "" {
		glossary = "(empty)"
	}
	return fmt.Sprintf(`You are a senior literary translation editor reviewing a %[1]s → %[2]s translation. You have decades of experience with published literary translations.

═══ REVIEW CHECKLIST ═══
Examine the translation against the original on ALL of these axes:

1. COMPLETENESS — Is anything missing, added, or significantly altered?
2. ACCURACY — Are meanings preserved precisely? Any mistranslations?
3. PROTECTED NOUNS — Are any protected names/terms incorrectly translated? (These must NEVER be changed: %[3]s)
4. STYLE FIDELITY — Does the translation match the original's style?
   Check against these style instructions:
   %[4]s
5. TONE & ATMOSPHERE — Is the mood, register, and emotional weight preserved?
6. NATURALNESS — Does it read like native %[2]s prose, not "translationese"?
7. GLOSSARY CONSISTENCY — Do translated terms match the established glossary?
8. SENTENCE QUALITY — Are there awkward constructions, unnatural word order, or anglicisms (or source-language interference)?
%[5]s
═══ GLOSSARY ═══
%[6]s

═══ OUTPUT FORMAT ═══
If the translation is excellent with no issues, respond with ONLY: %[7]s

Otherwise, produce a numbered list. For each issue:
- LOCATION: the affected passage (quote briefly)
- PROBLEM: what is wrong and why
- SEVERITY: minor / moderate / critical
- FIX: the corrected %[2]s text`,
		b.sourceLang, b.targetLang, b.protectedShortList(), b.style, batchNote, glossary, reviewOKSentinel)
}

func (b *promptBuilder) reviewUser(original, translation string) string {
	return fmt.Sprintf("ORIGINAL (%s):\n%s\n\nTRANSLATION (%s):\n%s",
		b.sourceLang, original, b.targetLang, translation)
}

func (b *promptBuilder) refineSystem(glossary, batchNote string) string {
	if glossary == "" {
		glossary = "(empty)"
	}
	return fmt.Sprintf(`You are a professional literary translator performing final revision of a %[1]s → %[2]s translation.

═══ INSTRUCTIONS ═══
1. Fix ALL issues identified in the review — every single one
2. Preserve the author's style, voice, and tone throughout
3. Protected proper nouns must NEVER be translated
4. Maintain all HTML/XML tags exactly as they appear
5. Output ONLY the corrected %[2]s translation — no notes or commentary
6. If the review says "%[3]s", return the translation UNCHANGED
%[4]s
═══ GLOSSARY ═══
%[5]s`,
		b.sourceLang, b.targetLang, reviewOKSentinel, batchNote, glossary)
}

func (b *promptBuilder) refineUser(original, translation, issues string) string {
	return fmt.Sprintf(
		"ORIGINAL (%s):\n%s\n\nCURRENT TRANSLATION (%s):\n%s\n\nEDITOR REVIEW:\n%s\n\nProduce the corrected final %s translation:",
		b.sourceLang, original, b.targetLang, translation, issues, b.targetLang)
}

func (b *promptBuilder) contextSystem() string {
	return fmt.Sprintf(`You are a literary translator's assistant maintaining a rolling narrative summary.

Produce a concise summary (max 4 sentences) capturing:
- Key characters present and their current state/emotions
- Current location and setting
- Plot developments and narrative momentum
- Overall mood/atmosphere

Write the summary in %s. Respond ONLY with the summary.`, b.targetLang)
}

func (b *promptBuilder) contextUser(previousSummary, original, translation string) string {
	if previousSummary == "" {
		return fmt.Sprintf("Original:\n%s\n\nTranslation:\n%s",
			firstRunes(original, 2000), firstRunes(translation, 2000))
	}
	return fmt.Sprintf("Previous summary:\n%s\n\nNew original text:\n%s\n\nNew translation:\n%s",
		previousSummary, firstRunes(original, 1500), firstRunes(translation, 1500))
}

func (b *promptBuilder) glossarySystem() string {
	return fmt.Sprintf(`Extract important translated term pairs from the original/translation pair below.

Return a JSON object mapping source terms to %s translations.
Include: character names, place names, recurring objects, technical terms, invented words, titles, and any terms that should stay consistent throughout the book.
Maximum 15 entries. Focus on terms that appear repeatedly.

Respond ONLY with a valid JSON object, no markdown fences or commentary.`, b.targetLang)
}

func (b *promptBuilder) glossaryUser(original, translation string) string {
	return fmt.Sprintf("ORIGINAL (%s):\n%s\n\nTRANSLATION (%s):\n%s",
		b.sourceLang, firstRunes(original, 2000), b.targetLang, firstRunes(translation, 2000))
}

// firstRunes returns at most n runes of s.
func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
