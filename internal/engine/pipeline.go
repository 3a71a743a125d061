package engine

import (
	"context"
	"strings"

	"github.com/valpere/knyhotran/internal/gateway"
	"github.com/valpere/knyhotran/internal/postprocess"
)

// Per-call output bounds. Pass calls may return whole translated blocks;
// state-refresh calls return short structured answers.
const (
	passMaxTokens     = 8192
	contextMaxTokens  = 512
	glossaryMaxTokens = 1024
)

// Fixed temperatures for the state-refresh calls. These are not literary
// output, so they are not profile-tunable.
const (
	contextTemperature  = 0.3
	glossaryTemperature = 0.1
)

// verdict is the parsed outcome of the review pass: either "no issues" or a
// concrete issue list. Parsing happens immediately so nothing downstream
// branches on the raw sentinel string.
type verdict struct {
	ok     bool
	issues string
}

// parseVerdict interprets a raw review response. The sentinel must match
// exactly (case-sensitive, surrounding whitespace ignored). An empty or
// whitespace-only response counts as "no issues": a model that answers
// nothing is assumed to have found nothing.
func parseVerdict(response string) verdict {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" || trimmed == reviewOKSentinel {
		return verdict{ok: true}
	}
	return verdict{issues: trimmed}
}

// passTranslate runs pass 1 and returns the cleaned draft translation.
func (e *Engine) passTranslate(ctx context.Context, text, batchNote string) (string, error) {
	out, usage, err := e.gw.Call(ctx, gateway.Request{
		System:      e.prompts.translateSystem(e.glossary.Render(maxGlossaryPromptTerms), e.rolling.Summary(), batchNote),
		User:        e.prompts.translateUser(text),
		Temperature: e.prof.Temperature.Translate,
		MaxTokens:   passMaxTokens,
		RetryBudget: e.opts.RetryBudget,
		CacheSystem: true,
	})
	e.stats.addUsage(usage)
	if err != nil {
		return "", err
	}
	return postprocess.Clean(out), nil
}

// passReview runs pass 2 and returns the parsed verdict.
func (e *Engine) passReview(ctx context.Context, original, translation string, isBatch bool) (verdict, error) {
	out, usage, err := e.gw.Call(ctx, gateway.Request{
		System:      e.prompts.reviewSystem(e.glossary.Render(maxGlossaryPromptTerms), batchReviewNote(isBatch)),
		User:        e.prompts.reviewUser(original, translation),
		Temperature: e.prof.Temperature.Review,
		MaxTokens:   passMaxTokens,
		RetryBudget: e.opts.RetryBudget,
		CacheSystem: true,
	})
	e.stats.addUsage(usage)
	if err != nil {
		return verdict{}, err
	}
	return parseVerdict(out), nil
}

// passRefine runs pass 3 against the review's issue list and returns the
// cleaned corrected translation.
func (e *Engine) passRefine(ctx context.Context, original, translation, issues, batchNote string) (string, error) {
	out, usage, err := e.gw.Call(ctx, gateway.Request{
		System:      e.prompts.refineSystem(e.glossary.Render(maxGlossaryPromptTerms), batchNote),
		User:        e.prompts.refineUser(original, translation, issues),
		Temperature: e.prof.Temperature.Refine,
		MaxTokens:   passMaxTokens,
		RetryBudget: e.opts.RetryBudget,
		CacheSystem: true,
	})
	e.stats.addUsage(usage)
	if err != nil {
		return "", err
	}
	return postprocess.Clean(out), nil
}

// runPipeline executes translate → review → (conditionally) refine for one
// payload. reviewEligible carries the caller's length/skip decision; batch
// payloads pass their delimiter note through batchNote.
func (e *Engine) runPipeline(ctx context.Context, payload, batchNote string, reviewEligible bool) (string, error) {
	translation, err := e.passTranslate(ctx, payload, batchNote)
	if err != nil {
		return "", err
	}

	if !reviewEligible {
		return translation, nil
	}

	v, err := e.passReview(ctx, payload, translation, batchNote != "")
	if err != nil {
		return "", err
	}
	if v.ok {
		e.stats.ReviewsClean++
		return translation, nil
	}

	e.stats.ReviewsFixed++
	refined, err := e.passRefine(ctx, payload, translation, v.issues, batchNote)
	if err != nil {
		return "", err
	}
	return refined, nil
}
