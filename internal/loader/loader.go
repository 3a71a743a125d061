// Package loader reads plain-text books into ordered paragraph sequences
// and reassembles translated paragraphs into an output document. The
// translation engine only ever sees plain text units; all document
// structure knowledge lives here.
package loader

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxParagraphChars bounds a single paragraph sent to the model. Paragraphs
// longer than this are split at sentence boundaries first, then word
// boundaries, then hard-cut.
const MaxParagraphChars = 6000

// Document is an ordered sequence of source paragraphs.
type Document struct {
	Paragraphs []string
}

// LoadFile reads a UTF-8 plain-text book. Paragraphs are separated by blank
// lines; single line breaks inside a paragraph are soft wraps and collapse
// to spaces. Oversized paragraphs are split (see MaxParagraphChars).
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read book file: %w", err)
	}
	return Parse(string(data)), nil
}

// Parse splits raw text into paragraphs.
func Parse(text string) *Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		para := strings.TrimSpace(flattenSoftWraps(block))
		if para == "" {
			continue
		}
		paragraphs = append(paragraphs, splitOversized(para)...)
	}
	return &Document{Paragraphs: paragraphs}
}

// WordCount returns the whitespace-separated word count of the document.
func (d *Document) WordCount() int {
	n := 0
	for _, p := range d.Paragraphs {
		n += len(strings.Fields(p))
	}
	return n
}

// CharCount returns the rune count of the document body.
func (d *Document) CharCount() int {
	n := 0
	for _, p := range d.Paragraphs {
		n += utf8.RuneCountInString(p)
	}
	return n
}

// Blocks groups consecutive paragraphs into batch blocks of at most
// blockChars runes each (one paragraph minimum per block, however long).
// blockChars <= 0 disables batching: every block holds one paragraph.
//
// A multi-paragraph block is handed to the engine as a newline-joined
// payload, the batch-mode signal of the translate contract.
func (d *Document) Blocks(blockChars int) [][]string {
	if blockChars <= 0 {
		blocks := make([][]string, 0, len(d.Paragraphs))
		for _, p := range d.Paragraphs {
			blocks = append(blocks, []string{p})
		}
		return blocks
	}

	var blocks [][]string
	var current []string
	size := 0
	for _, p := range d.Paragraphs {
		plen := utf8.RuneCountInString(p)
		if len(current) > 0 && size+plen > blockChars {
			blocks = append(blocks, current)
			current = nil
			size = 0
		}
		current = append(current, p)
		size += plen
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

// Assemble joins translated paragraphs back into document text, one blank
// line between paragraphs.
func Assemble(paragraphs []string) string {
	return strings.Join(paragraphs, "\n\n") + "\n"
}

// WriteFile writes the assembled translation to path.
func WriteFile(path string, paragraphs []string) error {
	if err := os.WriteFile(path, []byte(Assemble(paragraphs)), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// flattenSoftWraps joins the lines of one paragraph block with spaces.
func flattenSoftWraps(block string) string {
	lines := strings.Split(block, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, " ")
}

// splitOversized cuts a paragraph longer than MaxParagraphChars into
// several, preferring sentence-ending punctuation, then whitespace, then a
// hard cut.
func splitOversized(para string) []string {
	if utf8.RuneCountInString(para) <= MaxParagraphChars {
		return []string{para}
	}

	var parts []string
	remaining := para
	for utf8.RuneCountInString(remaining) > MaxParagraphChars {
		split := findSplit(remaining, MaxParagraphChars)
		part := strings.TrimSpace(remaining[:split])
		if part != "" {
			parts = append(parts, part)
		}
		remaining = strings.TrimSpace(remaining[split:])
	}
	if remaining != "" {
		parts = append(parts, remaining)
	}
	return parts
}

// findSplit returns the byte index at which to cut, aiming for at most
// maxChars runes, searching backwards for the best boundary.
func findSplit(text string, maxChars int) int {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return len(text)
	}
	candidate := runes[:maxChars]

	// Sentence-ending punctuation followed by a space.
	for i := len(candidate) - 2; i > 0; i-- {
		r := candidate[i]
		if (r == '.' || r == '!' || r == '?') && unicode.IsSpace(candidate[i+1]) {
			return len(string(candidate[:i+1]))
		}
	}

	// Whitespace word boundary.
	for i := len(candidate) - 1; i > 0; i-- {
		if unicode.IsSpace(candidate[i]) {
			return len(string(candidate[:i]))
		}
	}

	// Hard cut.
	return len(string(candidate))
}
