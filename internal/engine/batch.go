package engine

import "strings"

// ParagraphDelimiter separates paragraphs inside a batch payload. A bare
// newline is too fragile to round-trip through the model (it gets treated
// as formatting), so newline separators are swapped for this marker before
// the payload enters the pipeline and swapped back after.
const ParagraphDelimiter = "|||PARA|||"

// batchAdjustment records which reconciliation, if any, a batch round trip
// needed.
type batchAdjustment int

const (
	adjustNone batchAdjustment = iota
	adjustMerged
	adjustPadded
)

// encodeBatch joins source paragraphs into one delimiter-separated payload.
func encodeBatch(paragraphs []string) string {
	return strings.Join(paragraphs, "\n"+ParagraphDelimiter+"\n")
}

// splitBatch recovers translated segments from a pipeline output. Each
// segment is cleaned of delimiter remnants and internal newlines; empty
// segments are dropped.
func splitBatch(payload string) []string {
	parts := strings.Split(payload, ParagraphDelimiter)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		s := normalizeSegment(p)
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// reconcile forces the translated segment count to match the source
// paragraph count. Excess trailing segments are merged into the last
// expected slot; missing trailing slots are filled with the corresponding
// original source paragraphs so no slot is ever left empty.
func reconcile(segments, originals []string) ([]string, batchAdjustment) {
	want := len(originals)
	switch {
	case len(segments) == want:
		return segments, adjustNone

	case len(segments) > want:
		merged := make([]string, want)
		copy(merged, segments[:want-1])
		merged[want-1] = strings.Join(segments[want-1:], " ")
		return merged, adjustMerged

	default:
		padded := make([]string, 0, want)
		padded = append(padded, segments...)
		for i := len(segments); i < want; i++ {
			padded = append(padded, originals[i])
		}
		return padded, adjustPadded
	}
}

// normalizeSegment strips delimiter remnants and flattens internal newlines.
// Downstream document assembly is line-oriented; a stray newline inside one
// logical paragraph would corrupt structure.
func normalizeSegment(s string) string {
	s = strings.ReplaceAll(s, ParagraphDelimiter, " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
