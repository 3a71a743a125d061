package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/valpere/knyhotran/internal/gateway"
	"github.com/valpere/knyhotran/internal/profile"
)

// fakeTransport answers each pipeline call with a canned response, routed by
// the system prompt. Calls are recorded in dispatch order.
type fakeTransport struct {
	calls []gateway.Request

	translateResponse string
	reviewResponse    string
	refineResponse    string
	contextResponse   string
	glossaryResponse  string

	translateErr error
}

func (f *fakeTransport) Complete(ctx context.Context, req gateway.Request) (string, gateway.Usage, error) {
	f.calls = append(f.calls, req)
	usage := gateway.Usage{InputTokens: 1000, OutputTokens: 200, CacheReadTokens: 600, CacheWriteTokens: 100}

	switch classify(req.System) {
	case "translate":
		if f.translateErr != nil {
			return "", gateway.Usage{}, f.translateErr
		}
		return f.translateResponse, usage, nil
	case "review":
		return f.reviewResponse, usage, nil
	case "refine":
		return f.refineResponse, usage, nil
	case "context":
		return f.contextResponse, usage, nil
	case "glossary":
		return f.glossaryResponse, usage, nil
	}
	return "", gateway.Usage{}, errors.New("unrecognized system prompt")
}

func classify(system string) string {
	switch {
	case strings.Contains(system, "expert literary translator"):
		return "translate"
	case strings.Contains(system, "literary translation editor"):
		return "review"
	case strings.Contains(system, "final revision"):
		return "refine"
	case strings.Contains(system, "rolling narrative summary"):
		return "context"
	case strings.Contains(system, "Extract important translated term pairs"):
		return "glossary"
	}
	return "unknown"
}

func (f *fakeTransport) routes() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = classify(c.System)
	}
	return out
}

func newTestEngine(ft *fakeTransport, prof *profile.Profile, opts Options) *Engine {
	log := zap.NewNop().Sugar()
	// One non-rate-limit attempt: a transport error surfaces immediately
	// instead of sleeping through the production backoff sequence.
	policy := gateway.RetryPolicy{
		MaxAttempts:   1,
		OtherAttempts: 1,
		BaseDelay:     time.Millisecond,
		Multiplier:    2.0,
		MaxDelay:      time.Millisecond,
	}
	gw := gateway.New(ft, policy, log)
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = "German"
	}
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "Ukrainian"
	}
	return New(gw, prof, opts, log)
}

// longText is comfortably above the default 300-char review threshold.
var longText = strings.Repeat("Корабель плив на схід крізь ранковий туман. ", 10)

func TestTranslateShortUnitRunsPass1Only(t *testing.T) {
	ft := &fakeTransport{translateResponse: "Короткий переклад."}
	e := newTestEngine(ft, profile.Default(), Options{})

	out, err := e.Translate(context.Background(), "Ein kurzer Satz.")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Короткий переклад." {
		t.Errorf("out = %q", out)
	}
	if got := ft.routes(); len(got) != 1 || got[0] != "translate" {
		t.Errorf("routes = %v, want [translate]", got)
	}

	s := e.Stats()
	if s.Pass1OnlyCount != 1 || s.Full3PassCount != 0 {
		t.Errorf("dispatch counters = %d/%d, want 1/0", s.Pass1OnlyCount, s.Full3PassCount)
	}
	if s.Requests != 1 {
		t.Errorf("Requests = %d, want 1", s.Requests)
	}
}

func TestTranslateLongUnitCleanReview(t *testing.T) {
	ft := &fakeTransport{
		translateResponse: "Довгий чернетковий переклад.",
		reviewResponse:    "QUALITY_OK",
	}
	e := newTestEngine(ft, profile.Default(), Options{})

	out, err := e.Translate(context.Background(), longText)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Довгий чернетковий переклад." {
		t.Errorf("clean review must keep the draft, got %q", out)
	}
	if got := ft.routes(); len(got) != 2 || got[1] != "review" {
		t.Errorf("routes = %v, want [translate review]", got)
	}

	s := e.Stats()
	if s.ReviewsClean != 1 || s.ReviewsFixed != 0 {
		t.Errorf("review counters = %d/%d, want 1/0", s.ReviewsClean, s.ReviewsFixed)
	}
	if s.Full3PassCount != 1 {
		t.Errorf("Full3PassCount = %d, want 1", s.Full3PassCount)
	}
}

func TestTranslateLongUnitRefinedAfterIssues(t *testing.T) {
	ft := &fakeTransport{
		translateResponse: "Чернетка з помилкою.",
		reviewResponse:    "1. LOCATION: перше речення\nPROBLEM: неточність\nSEVERITY: moderate\nFIX: виправлення",
		refineResponse:    "Виправлений фінальний переклад.",
	}
	e := newTestEngine(ft, profile.Default(), Options{})

	out, err := e.Translate(context.Background(), longText)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Виправлений фінальний переклад." {
		t.Errorf("out = %q, want the refined text", out)
	}
	if got := ft.routes(); len(got) != 3 || got[2] != "refine" {
		t.Errorf("routes = %v, want [translate review refine]", got)
	}
	if s := e.Stats(); s.ReviewsFixed != 1 {
		t.Errorf("ReviewsFixed = %d, want 1", s.ReviewsFixed)
	}

	// The refine user prompt must carry the review's issue list verbatim.
	last := ft.calls[2]
	if !strings.Contains(last.User, "неточність") {
		t.Error("refine prompt does not include the review issues")
	}
}

func TestEmptyReviewResponseCountsClean(t *testing.T) {
	ft := &fakeTransport{
		translateResponse: "Переклад.",
		reviewResponse:    "  \n ",
	}
	e := newTestEngine(ft, profile.Default(), Options{})

	out, err := e.Translate(context.Background(), longText)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Переклад." {
		t.Errorf("out = %q", out)
	}
	if len(ft.calls) != 2 {
		t.Errorf("%d calls, want 2 (no refine on empty review)", len(ft.calls))
	}
	if s := e.Stats(); s.ReviewsClean != 1 {
		t.Errorf("ReviewsClean = %d, want 1", s.ReviewsClean)
	}
}

func TestSkipReviewForcesPass1(t *testing.T) {
	ft := &fakeTransport{translateResponse: "Переклад без перевірки."}
	e := newTestEngine(ft, profile.Default(), Options{SkipReview: true})

	if _, err := e.Translate(context.Background(), longText); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(ft.calls) != 1 {
		t.Errorf("%d calls, want 1", len(ft.calls))
	}
	if s := e.Stats(); s.Pass1OnlyCount != 1 {
		t.Errorf("Pass1OnlyCount = %d, want 1", s.Pass1OnlyCount)
	}
}

func TestTranslateBatchRoundTrip(t *testing.T) {
	ft := &fakeTransport{
		translateResponse: "Один.\n|||PARA|||\nДва.\n|||PARA|||\nТри.",
	}
	e := newTestEngine(ft, profile.Default(), Options{})

	out, err := e.Translate(context.Background(), "Eins.\nZwei.\nDrei.")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Один.\nДва.\nТри." {
		t.Errorf("out = %q", out)
	}

	// A short batch skips review but still counts as a full-pipeline unit.
	if len(ft.calls) != 1 {
		t.Fatalf("%d calls, want 1", len(ft.calls))
	}
	if !strings.Contains(ft.calls[0].User, ParagraphDelimiter) {
		t.Error("batch payload not delimiter-encoded")
	}
	if !strings.Contains(ft.calls[0].System, "3 paragraphs") {
		t.Error("system prompt missing the batch instruction")
	}

	s := e.Stats()
	if s.Full3PassCount != 1 || s.BatchAdjustments != 0 {
		t.Errorf("counters = full:%d adjust:%d, want 1/0", s.Full3PassCount, s.BatchAdjustments)
	}
}

func TestTranslateBatchMergesExcessSegments(t *testing.T) {
	ft := &fakeTransport{
		translateResponse: "Один.\n|||PARA|||\nДва.\n|||PARA|||\nТри.\n|||PARA|||\nЗайвий.",
	}
	e := newTestEngine(ft, profile.Default(), Options{})

	out, err := e.Translate(context.Background(), "Eins.\nZwei.\nDrei.")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("%d output lines, want 3", len(lines))
	}
	if lines[2] != "Три. Зайвий." {
		t.Errorf("last line = %q, want merged trailing segments", lines[2])
	}
	if s := e.Stats(); s.BatchAdjustments != 1 {
		t.Errorf("BatchAdjustments = %d, want 1", s.BatchAdjustments)
	}
}

func TestTranslateBatchPadsMissingSegments(t *testing.T) {
	ft := &fakeTransport{
		translateResponse: "Один.\n|||PARA|||\nДва.",
	}
	e := newTestEngine(ft, profile.Default(), Options{})

	out, err := e.Translate(context.Background(), "Eins.\nZwei.\nDrei.")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("%d output lines, want 3", len(lines))
	}
	// The missing slot falls back to the source paragraph so document
	// alignment survives.
	if lines[2] != "Drei." {
		t.Errorf("padded line = %q, want source paragraph", lines[2])
	}
	if s := e.Stats(); s.BatchAdjustments != 1 {
		t.Errorf("BatchAdjustments = %d, want 1", s.BatchAdjustments)
	}
}

func TestLongBatchIsReviewed(t *testing.T) {
	para := strings.Repeat("Вітер гнав хмари над степом. ", 8)
	ft := &fakeTransport{
		translateResponse: "Перший.\n|||PARA|||\nДругий.",
		reviewResponse:    "QUALITY_OK",
	}
	e := newTestEngine(ft, profile.Default(), Options{})

	if _, err := e.Translate(context.Background(), para+"\n"+para); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := ft.routes(); len(got) != 2 || got[1] != "review" {
		t.Errorf("routes = %v, want [translate review]", got)
	}
}

func TestContextRefreshReplacesSummary(t *testing.T) {
	prof := profile.Default()
	prof.ContextUpdateInterval = 1
	prof.GlossaryUpdateInterval = 1000

	ft := &fakeTransport{
		translateResponse: "Переклад.",
		contextResponse:   "Герої дісталися воріт міста.",
	}
	e := newTestEngine(ft, prof, Options{})

	if _, err := e.Translate(context.Background(), "Ein Satz."); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := e.ContextSummary(); got != "Герої дісталися воріт міста." {
		t.Errorf("ContextSummary() = %q", got)
	}

	// The next refresh replaces, never appends.
	ft.contextResponse = "Битва почалася."
	if _, err := e.Translate(context.Background(), "Noch ein Satz."); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := e.ContextSummary(); got != "Битва почалася." {
		t.Errorf("ContextSummary() after second refresh = %q", got)
	}
}

func TestGlossaryRefreshMergesTerms(t *testing.T) {
	prof := profile.Default()
	prof.ContextUpdateInterval = 1000
	prof.GlossaryUpdateInterval = 1
	prof.GlossarySeed = map[string]string{"Aria": "Арія"}

	ft := &fakeTransport{
		translateResponse: "Переклад.",
		glossaryResponse:  "```json\n{\"Drachenfels\": \"Драхенфельс\", \"_meta\": \"junk\"}\n```",
	}
	e := newTestEngine(ft, prof, Options{})

	if _, err := e.Translate(context.Background(), "Ein Satz."); err != nil {
		t.Fatalf("Translate: %v", err)
	}

	snap := e.GlossarySnapshot()
	if len(snap) != 2 {
		t.Fatalf("glossary has %d terms, want 2: %v", len(snap), snap)
	}
	if snap["Drachenfels"] != "Драхенфельс" {
		t.Errorf("extracted term missing: %v", snap)
	}
	if snap["Aria"] != "Арія" {
		t.Errorf("seed term lost: %v", snap)
	}
}

func TestGlossaryWarningSuppression(t *testing.T) {
	prof := profile.Default()
	prof.ContextUpdateInterval = 1000
	prof.GlossaryUpdateInterval = 1

	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()

	ft := &fakeTransport{
		translateResponse: "Переклад.",
		glossaryResponse:  "Sorry, I cannot produce JSON here.",
	}
	policy := gateway.RetryPolicy{MaxAttempts: 1, OtherAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond}
	gw := gateway.New(ft, policy, zap.NewNop().Sugar())
	e := New(gw, prof, Options{SourceLanguage: "German", TargetLanguage: "Ukrainian"}, log)

	for i := 0; i < 7; i++ {
		out, err := e.Translate(context.Background(), "Ein Satz.")
		if err != nil {
			t.Fatalf("unit %d: %v", i+1, err)
		}
		if out == "" {
			t.Fatalf("unit %d returned empty output", i+1)
		}
	}

	malformed := logs.FilterMessage("glossary extraction returned malformed JSON").Len()
	if malformed != maxGlossaryWarnings {
		t.Errorf("%d malformed-JSON warnings, want %d", malformed, maxGlossaryWarnings)
	}
	suppressed := logs.FilterMessage("suppressing further glossary extraction warnings").Len()
	if suppressed != 1 {
		t.Errorf("%d suppression notices, want exactly 1", suppressed)
	}

	s := e.Stats()
	if s.GlossaryExtractionFailures != 7 {
		t.Errorf("GlossaryExtractionFailures = %d, want 7", s.GlossaryExtractionFailures)
	}
	if e.GlossaryLen() != 0 {
		t.Errorf("glossary gained %d terms from malformed responses", e.GlossaryLen())
	}

	// A successful extraction resets the streak: the next failure warns again.
	ft.glossaryResponse = `{"Aria": "Арія"}`
	if _, err := e.Translate(context.Background(), "Ein Satz."); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	ft.glossaryResponse = "still not JSON"
	if _, err := e.Translate(context.Background(), "Ein Satz."); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := logs.FilterMessage("glossary extraction returned malformed JSON").Len(); got != maxGlossaryWarnings+1 {
		t.Errorf("warnings after reset = %d, want %d", got, maxGlossaryWarnings+1)
	}
}

func TestTranslateErrorNamesUnit(t *testing.T) {
	ft := &fakeTransport{translateErr: errors.New("boom")}
	e := newTestEngine(ft, profile.Default(), Options{})

	// Advance the unit counter past 1 with a working call first.
	ft.translateErr = nil
	ft.translateResponse = "ok"
	if _, err := e.Translate(context.Background(), "Eins."); err != nil {
		t.Fatalf("Translate: %v", err)
	}

	ft.translateErr = errors.New("boom")
	_, err := e.Translate(context.Background(), "Zwei.")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unit 2:") {
		t.Errorf("error %q does not name the failing unit", err)
	}
}

func TestParseGlossaryResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantKeys int
		wantErr  bool
	}{
		{"bare object", `{"a": "b"}`, 1, false},
		{"fenced", "```json\n{\"a\": \"b\", \"c\": \"d\"}\n```", 2, false},
		{"fenced without language", "```\n{\"a\": \"b\"}\n```", 1, false},
		{"prose", "I could not find any terms.", 0, true},
		{"array not object", `["a", "b"]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGlossaryResponse(tt.response)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(got) != tt.wantKeys {
				t.Errorf("%d keys, want %d", len(got), tt.wantKeys)
			}
		})
	}
}

func TestFlattenLines(t *testing.T) {
	if got := flattenLines("  перший рядок\nдругий рядок \n"); got != "перший рядок другий рядок" {
		t.Errorf("flattenLines() = %q", got)
	}
}
