package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Entry size limits for extracted glossary terms. Longer entries are almost
// always the model echoing a sentence instead of a term.
const (
	maxGlossaryKeyLen   = 100
	maxGlossaryValueLen = 200
)

// Glossary accumulates source term → target term mappings across the run.
// It is seeded from the profile and extended by extraction calls; it never
// shrinks. The engine dispatches strictly sequentially, so no locking.
type Glossary struct {
	terms map[string]string
}

// NewGlossary creates a glossary pre-populated with the profile seed.
func NewGlossary(seed map[string]string) *Glossary {
	terms := make(map[string]string, len(seed))
	for src, tgt := range seed {
		if validGlossaryPair(src, tgt) {
			terms[src] = tgt
		}
	}
	return &Glossary{terms: terms}
}

// Merge unions extracted pairs into the glossary, last write winning for a
// term seen again. Junk entries (underscore keys, oversized strings,
// non-string values) are dropped. Returns the number of pairs applied.
func (g *Glossary) Merge(extracted map[string]any) int {
	applied := 0
	for src, v := range extracted {
		tgt, ok := v.(string)
		if !ok || !validGlossaryPair(src, tgt) {
			continue
		}
		g.terms[src] = tgt
		applied++
	}
	return applied
}

// Len returns the number of terms.
func (g *Glossary) Len() int { return len(g.terms) }

// Lookup returns the established translation for a source term.
func (g *Glossary) Lookup(src string) (string, bool) {
	tgt, ok := g.terms[src]
	return tgt, ok
}

// Render formats the glossary for a prompt section, sorted by source term
// and capped at limit pairs. Returns "" when empty.
func (g *Glossary) Render(limit int) string {
	if len(g.terms) == 0 {
		return ""
	}
	keys := make([]string, 0, len(g.terms))
	for src := range g.terms {
		keys = append(keys, src)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	lines := make([]string, 0, len(keys))
	for _, src := range keys {
		lines = append(lines, fmt.Sprintf("  %s → %s", src, g.terms[src]))
	}
	return strings.Join(lines, "\n")
}

// Snapshot returns a copy of the current mapping.
func (g *Glossary) Snapshot() map[string]string {
	out := make(map[string]string, len(g.terms))
	for src, tgt := range g.terms {
		out[src] = tgt
	}
	return out
}

func validGlossaryPair(src, tgt string) bool {
	return src != "" && tgt != "" &&
		!strings.HasPrefix(src, "_") &&
		len(src) < maxGlossaryKeyLen &&
		len(tgt) < maxGlossaryValueLen
}
