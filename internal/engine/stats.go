package engine

import (
	"fmt"
	"strings"

	"github.com/valpere/knyhotran/internal/gateway"
)

// Stats accumulates run-wide accounting for the lifetime of one Engine.
type Stats struct {
	Requests         int64
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64

	UnitsDispatched  int64
	Pass1OnlyCount   int64
	Full3PassCount   int64
	ReviewsClean     int64
	ReviewsFixed     int64
	BatchAdjustments int64

	GlossaryExtractionFailures int64
}

// addUsage merges one gateway call's token counters.
func (s *Stats) addUsage(u gateway.Usage) {
	s.Requests++
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
	s.CacheReadTokens += u.CacheReadTokens
	s.CacheWriteTokens += u.CacheWriteTokens
}

// ModelPricing is USD per million tokens, per billing category.
type ModelPricing struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

var modelPricing = map[string]ModelPricing{
	"claude-opus-4-20250514":   {Input: 15.0, Output: 75.0, CacheRead: 1.5, CacheWrite: 18.75},
	"claude-sonnet-4-20250514": {Input: 3.0, Output: 15.0, CacheRead: 0.30, CacheWrite: 3.75},
}

// PricingFor returns the pricing table entry for model, falling back to
// Sonnet pricing for unknown models.
func PricingFor(model string) ModelPricing {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	return modelPricing["claude-sonnet-4-20250514"]
}

// Cost estimates the run's spend in USD for the given model, and what the
// same run would have cost without prompt caching. Tokens that hit the
// cache do not bill as regular input.
func (s *Stats) Cost(model string) (actual, withoutCache float64) {
	p := PricingFor(model)

	uncachedInput := s.InputTokens - s.CacheReadTokens - s.CacheWriteTokens
	if uncachedInput < 0 {
		uncachedInput = 0
	}
	actual = float64(uncachedInput)/1e6*p.Input +
		float64(s.OutputTokens)/1e6*p.Output +
		float64(s.CacheReadTokens)/1e6*p.CacheRead +
		float64(s.CacheWriteTokens)/1e6*p.CacheWrite

	withoutCache = float64(s.InputTokens)/1e6*p.Input +
		float64(s.OutputTokens)/1e6*p.Output
	return actual, withoutCache
}

// CacheHitRate returns the fraction of input tokens served from the prompt
// cache.
func (s *Stats) CacheHitRate() float64 {
	if s.InputTokens == 0 {
		return 0
	}
	return float64(s.CacheReadTokens) / float64(s.InputTokens)
}

// Report renders the end-of-run summary printed by the CLI.
func (s *Stats) Report(model, profileName string, glossaryTerms int) string {
	cost, costNoCache := s.Cost(model)
	saved := costNoCache - cost

	var sb strings.Builder
	rule := strings.Repeat("═", 55)
	fmt.Fprintf(&sb, "%s\n", rule)
	fmt.Fprintf(&sb, "  TRANSLATION COMPLETE — %s\n", profileName)
	fmt.Fprintf(&sb, "%s\n", rule)
	fmt.Fprintf(&sb, "  Model: %s\n", model)
	fmt.Fprintf(&sb, "  Units translated: %d\n", s.UnitsDispatched)
	fmt.Fprintf(&sb, "  API calls: %d\n", s.Requests)
	fmt.Fprintf(&sb, "  Tokens: %d input / %d output\n", s.InputTokens, s.OutputTokens)
	if s.CacheReadTokens > 0 {
		fmt.Fprintf(&sb, "  Prompt cache hit rate: %.0f%%\n", s.CacheHitRate()*100)
		fmt.Fprintf(&sb, "  Cache savings: $%.2f\n", saved)
	}
	fmt.Fprintf(&sb, "  Pass 1 only: %d │ Full 3-pass: %d\n", s.Pass1OnlyCount, s.Full3PassCount)
	fmt.Fprintf(&sb, "  Reviews OK: %d │ Reviews with fixes: %d\n", s.ReviewsClean, s.ReviewsFixed)
	if s.BatchAdjustments > 0 {
		fmt.Fprintf(&sb, "  Batch reconciliations: %d\n", s.BatchAdjustments)
	}
	fmt.Fprintf(&sb, "  Glossary terms: %d\n", glossaryTerms)
	if s.GlossaryExtractionFailures > 0 {
		fmt.Fprintf(&sb, "  Glossary extraction failures: %d\n", s.GlossaryExtractionFailures)
	}
	fmt.Fprintf(&sb, "  Total cost: $%.2f\n", cost)
	if saved > 1 {
		fmt.Fprintf(&sb, "  (Without prompt caching: $%.2f)\n", costNoCache)
	}
	fmt.Fprintf(&sb, "%s", rule)
	return sb.String()
}
