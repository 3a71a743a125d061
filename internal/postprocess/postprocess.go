// Package postprocess strips common LLM artifacts from generated
// translations before they re-enter the pipeline: leaked reasoning blocks,
// echoed instructions, and decorative quote wrapping.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes model artifacts from text and returns the trimmed result.
// The paragraph delimiter used by batch payloads survives untouched; only
// reasoning tags, prompt echoes, and outer quotes are removed.
func Clean(text string) string {
	text = stripReasoning(text)
	text = stripEchoes(text)
	text = stripOuterQuotes(text)
	return strings.TrimSpace(text)
}

// reasoningBlockRe matches closed <thinking>-style blocks. Tag variants are
// enumerated because RE2 has no backreferences.
var reasoningBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// openReasoningRe matches a reasoning tag the model opened but never closed
// (output truncated mid-thought).
var openReasoningRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func stripReasoning(text string) string {
	text = reasoningBlockRe.ReplaceAllString(text, "")
	text = openReasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// echoRes match introductory phrases models prepend despite being told not
// to. Anchored at the start and requiring a colon to avoid eating content.
var echoRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:refined |polished |corrected |final |translated )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished |corrected |final )?(?:translation|translated text)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:refined |polished |corrected |final |translated )?(?:translation|text)\s*:`),
}

func stripEchoes(text string) string {
	for _, re := range echoRes {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// quotePairs are the wrapping pairs stripped when they enclose the entire
// output.
var quotePairs = [][2]rune{
	{'"', '"'},
	{'\'', '\''},
	{'«', '»'},
	{'“', '”'}, // curly double quotes
	{'‘', '’'}, // curly single quotes
}

func stripOuterQuotes(text string) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text
	}
	for _, pair := range quotePairs {
		if runes[0] == pair[0] && runes[len(runes)-1] == pair[1] {
			return strings.TrimSpace(string(runes[1 : len(runes)-1]))
		}
	}
	return text
}
