package engine

import "strings"

// RollingContext holds the short narrative summary fed into translate
// prompts for cross-chapter continuity. Updates replace the whole summary;
// narrative state drifts forward, it does not accumulate.
type RollingContext struct {
	summary string
}

// Replace discards the previous summary in favor of s.
func (c *RollingContext) Replace(s string) {
	c.summary = strings.TrimSpace(s)
}

// Summary returns the current summary, "" before the first update.
func (c *RollingContext) Summary() string { return c.summary }
