// Package engine implements the 3-pass literary translation pipeline:
// translate → review → refine, with smart per-unit dispatch, batched
// payloads, and two pieces of cross-chapter shared state (rolling narrative
// context and an auto-expanding glossary).
//
// An Engine must be driven strictly sequentially. Glossary and rolling
// context are read-modify-write state consumed by every translate prompt;
// dispatching units concurrently against one Engine would let a unit
// translate against a half-updated glossary and silently destroy book-wide
// consistency.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/valpere/knyhotran/internal/gateway"
	"github.com/valpere/knyhotran/internal/profile"
)

// maxGlossaryWarnings caps how many consecutive malformed extraction
// responses are logged before further identical warnings are suppressed.
const maxGlossaryWarnings = 5

// Options are the caller-level knobs that do not belong in the profile.
type Options struct {
	SourceLanguage string
	TargetLanguage string
	Model          string

	// SkipReview makes pass 1 output final regardless of length. This is
	// a cost-reduction run mode, deliberately a caller toggle and never a
	// profile field.
	SkipReview bool

	// RetryBudget bounds rate-limit retries per gateway call. Zero uses
	// the gateway policy default.
	RetryBudget int
}

// Engine owns the shared run state and drives the pipeline for each unit.
type Engine struct {
	gw      *gateway.Gateway
	prof    *profile.Profile
	opts    Options
	prompts *promptBuilder

	glossary *Glossary
	rolling  *RollingContext
	stats    *Stats

	// unitCount numbers dispatched units; refresh intervals key off it.
	unitCount int

	// consecutiveGlossaryFailures tracks malformed extraction responses
	// in a row, for warning suppression. Reset on any successful parse.
	consecutiveGlossaryFailures int

	log *zap.SugaredLogger
}

// New builds an Engine around a gateway and a loaded profile.
func New(gw *gateway.Gateway, prof *profile.Profile, opts Options, log *zap.SugaredLogger) *Engine {
	if opts.Model == "" {
		opts.Model = gateway.DefaultModel
	}
	return &Engine{
		gw:       gw,
		prof:     prof,
		opts:     opts,
		prompts:  newPromptBuilder(opts.SourceLanguage, opts.TargetLanguage, prof.StyleText(), prof.ProtectedNouns),
		glossary: NewGlossary(prof.GlossarySeed),
		rolling:  &RollingContext{},
		stats:    &Stats{},
		log:      log,
	}
}

// Translate processes one text unit and returns its translation with
// internal line breaks stripped. A unit containing embedded newlines is a
// batch of paragraphs; the returned string then carries one line per source
// paragraph.
//
// Dispatch: short single units (below the profile's MinReviewChars) run
// pass 1 only; everything else runs the full 3-pass pipeline. A batched
// payload is reviewed when the payload as a whole is long enough, even when
// every member paragraph is short. Review cost is amortized across the
// batch, so the asymmetry against lone short paragraphs is deliberate.
//
// Context and glossary refreshes fire between units, after this unit's
// passes complete, never interleaved with them.
func (e *Engine) Translate(ctx context.Context, text string) (string, error) {
	e.unitCount++
	e.stats.UnitsDispatched++

	trimmed := strings.TrimSpace(text)
	isBatch := strings.Contains(trimmed, "\n")

	var out string
	var err error
	switch {
	case isBatch:
		out, err = e.translateBatch(ctx, trimmed)
	case utf8.RuneCountInString(text) < e.prof.MinReviewChars || e.opts.SkipReview:
		out, err = e.translatePass1Only(ctx, text)
	default:
		out, err = e.translateThreePass(ctx, text)
	}
	if err != nil {
		return "", fmt.Errorf("unit %d: %w", e.unitCount, err)
	}

	e.refreshSharedState(ctx, text, out)
	return out, nil
}

// Stats returns a snapshot of the run statistics.
func (e *Engine) Stats() Stats { return *e.stats }

// GlossarySnapshot returns a copy of the accumulated glossary.
func (e *Engine) GlossarySnapshot() map[string]string { return e.glossary.Snapshot() }

// GlossaryLen returns the number of accumulated glossary terms.
func (e *Engine) GlossaryLen() int { return e.glossary.Len() }

// ContextSummary returns the current rolling narrative summary.
func (e *Engine) ContextSummary() string { return e.rolling.Summary() }

func (e *Engine) translatePass1Only(ctx context.Context, text string) (string, error) {
	e.stats.Pass1OnlyCount++
	e.log.Debugw("dispatch", "unit", e.unitCount, "chars", utf8.RuneCountInString(text), "route", "pass1")

	translation, err := e.passTranslate(ctx, text, "")
	if err != nil {
		return "", err
	}
	return flattenLines(translation), nil
}

func (e *Engine) translateThreePass(ctx context.Context, text string) (string, error) {
	e.stats.Full3PassCount++
	e.log.Debugw("dispatch", "unit", e.unitCount, "chars", utf8.RuneCountInString(text), "route", "3pass")

	out, err := e.runPipeline(ctx, text, "", true)
	if err != nil {
		return "", err
	}
	return flattenLines(out), nil
}

func (e *Engine) translateBatch(ctx context.Context, text string) (string, error) {
	paragraphs := strings.Split(text, "\n")
	e.stats.Full3PassCount++
	e.log.Debugw("dispatch",
		"unit", e.unitCount,
		"route", "batch",
		"paragraphs", len(paragraphs),
		"chars", utf8.RuneCountInString(text),
	)

	payload := encodeBatch(paragraphs)
	note := batchInstruction(len(paragraphs))

	// Review eligibility follows the ORIGINAL payload length, not the
	// delimited one.
	reviewEligible := !e.opts.SkipReview && utf8.RuneCountInString(text) >= e.prof.MinReviewChars

	out, err := e.runPipeline(ctx, payload, note, reviewEligible)
	if err != nil {
		return "", err
	}

	segments := splitBatch(out)
	final, adjustment := reconcile(segments, paragraphs)
	switch adjustment {
	case adjustMerged:
		e.stats.BatchAdjustments++
		e.log.Infow("batch over-split, merged trailing segments",
			"unit", e.unitCount, "got", len(segments), "want", len(paragraphs))
	case adjustPadded:
		e.stats.BatchAdjustments++
		e.log.Warnw("batch under-split, padded missing slots with source paragraphs",
			"unit", e.unitCount, "got", len(segments), "want", len(paragraphs))
	}

	return strings.Join(final, "\n"), nil
}

// refreshSharedState fires the interval-driven context and glossary update
// calls. Failures here never fail the unit: the old state simply survives
// one more interval.
func (e *Engine) refreshSharedState(ctx context.Context, original, translation string) {
	if e.unitCount%e.prof.ContextUpdateInterval == 0 {
		e.refreshContext(ctx, original, translation)
	}
	if e.unitCount%e.prof.GlossaryUpdateInterval == 0 {
		e.refreshGlossary(ctx, original, translation)
	}
}

func (e *Engine) refreshContext(ctx context.Context, original, translation string) {
	out, usage, err := e.gw.Call(ctx, gateway.Request{
		System:      e.prompts.contextSystem(),
		User:        e.prompts.contextUser(e.rolling.Summary(), original, translation),
		Temperature: contextTemperature,
		MaxTokens:   contextMaxTokens,
		RetryBudget: e.opts.RetryBudget,
	})
	e.stats.addUsage(usage)
	if err != nil {
		e.log.Warnw("context update failed, keeping previous summary", "unit", e.unitCount, "error", err)
		return
	}
	e.rolling.Replace(out)
	e.log.Debugw("rolling context replaced", "unit", e.unitCount, "chars", len(out))
}

func (e *Engine) refreshGlossary(ctx context.Context, original, translation string) {
	out, usage, err := e.gw.Call(ctx, gateway.Request{
		System:      e.prompts.glossarySystem(),
		User:        e.prompts.glossaryUser(original, translation),
		Temperature: glossaryTemperature,
		MaxTokens:   glossaryMaxTokens,
		RetryBudget: e.opts.RetryBudget,
	})
	e.stats.addUsage(usage)
	if err != nil {
		e.noteGlossaryFailure("glossary extraction call failed", err)
		return
	}

	extracted, err := parseGlossaryResponse(out)
	if err != nil {
		e.noteGlossaryFailure("glossary extraction returned malformed JSON", err)
		return
	}

	e.consecutiveGlossaryFailures = 0
	if added := e.glossary.Merge(extracted); added > 0 {
		e.log.Infow("glossary extended", "added", added, "total", e.glossary.Len())
	}
}

// noteGlossaryFailure logs a malformed-extraction warning with a suppression
// cap: after maxGlossaryWarnings consecutive failures, one suppression
// notice is emitted and further identical warnings stay silent until a
// successful extraction resets the streak.
func (e *Engine) noteGlossaryFailure(msg string, err error) {
	e.consecutiveGlossaryFailures++
	e.stats.GlossaryExtractionFailures++
	switch {
	case e.consecutiveGlossaryFailures <= maxGlossaryWarnings:
		e.log.Warnw(msg, "unit", e.unitCount, "error", err)
	case e.consecutiveGlossaryFailures == maxGlossaryWarnings+1:
		e.log.Warnw("suppressing further glossary extraction warnings")
	}
}

// parseGlossaryResponse decodes the extraction call's JSON object, shaving
// markdown fences the model sometimes adds despite instructions.
func parseGlossaryResponse(response string) (map[string]any, error) {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```") {
		if _, rest, ok := strings.Cut(s, "\n"); ok {
			s = rest
		}
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	var terms map[string]any
	if err := json.Unmarshal([]byte(s), &terms); err != nil {
		return nil, err
	}
	return terms, nil
}

// flattenLines strips internal line breaks from a single logical
// paragraph's translation. Document assembly is line-oriented, so embedded
// newlines from the model must not reappear inside one unit.
func flattenLines(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
