/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/knyhotran/internal/detector"
	"github.com/valpere/knyhotran/internal/engine"
	"github.com/valpere/knyhotran/internal/gateway"
	"github.com/valpere/knyhotran/internal/loader"
	"github.com/valpere/knyhotran/internal/profile"
	"github.com/valpere/knyhotran/internal/store"
	"github.com/valpere/knyhotran/internal/validator"
)

var (
	inputFile  string
	outputFile string
	sourceLang string
	targetLang string

	profilePath string
	modelName   string
	blockSize   int
	skipReview  bool
	maxRetries  int

	dbPath      string
	noCache     bool
	runValidate bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a book with the 3-pass literary pipeline",
	Long: `Translate a plain-text book file with the 3-pass literary pipeline.

Each paragraph routes to the cheapest adequate depth: short paragraphs get a
single translate pass, long ones the full translate → review → refine
sequence. With --block-size, consecutive paragraphs are packed into one
model call and unpacked afterwards, which amortizes the prompt cost.

Every N paragraphs the rolling narrative context is re-summarized and new
glossary terms are extracted, so character names, terminology, and tone stay
consistent across chapters. A failed paragraph never aborts the run; its
source text is kept and the failure is reported in the final summary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		// The only fail-fast configuration check: no credential, no run.
		apiKey := viper.GetString("api_key")
		if apiKey == "" {
			return fmt.Errorf("Anthropic API key not configured (set ANTHROPIC_API_KEY)")
		}

		ctx := context.Background()

		prof := profile.Default()
		if profilePath != "" {
			var err error
			prof, err = profile.Load(profilePath)
			if err != nil {
				return err
			}
		}

		doc, err := loader.LoadFile(inputFile)
		if err != nil {
			return err
		}
		if len(doc.Paragraphs) == 0 {
			return fmt.Errorf("no translatable paragraphs in %s", inputFile)
		}

		srcName := resolveSourceLanguage(prof, doc)
		tgtName := detector.LanguageName(targetLang)
		fmt.Fprintf(os.Stderr, "Translating %s → %s, profile %s, %d paragraphs\n",
			srcName, tgtName, prof.Name, len(doc.Paragraphs))

		var db *store.Store
		if !noCache && dbPath != "" {
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
			db, err = store.New(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
		}

		transport := gateway.NewAnthropicTransport(apiKey, viper.GetString("base_url"), modelName)
		policy := gateway.DefaultRetryPolicy()
		if maxRetries > 0 {
			policy.MaxAttempts = maxRetries
		}
		gw := gateway.New(transport, policy, logger)

		eng := engine.New(gw, prof, engine.Options{
			SourceLanguage: srcName,
			TargetLanguage: tgtName,
			Model:          modelName,
			SkipReview:     skipReview,
			RetryBudget:    maxRetries,
		}, logger)

		var runID string
		if db != nil {
			runID, err = db.CreateRun(ctx, inputFile, srcName, tgtName, prof.Name, modelName)
			if err != nil {
				return err
			}
		}

		translated, failedUnits := runBook(ctx, eng, db, doc, prof.Name, srcName, tgtName)

		if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := loader.WriteFile(outputFile, translated); err != nil {
			return err
		}

		if runValidate {
			spotCheckOutput(translated)
		}

		stats := eng.Stats()
		if db != nil {
			finishRun(ctx, db, runID, inputFile, stats, int64(failedUnits), eng)
		}

		fmt.Println(stats.Report(modelName, prof.Name, eng.GlossaryLen()))
		if failedUnits > 0 {
			fmt.Printf("Units failed (source text kept): %d\n", failedUnits)
		}
		fmt.Printf("Output written to %s\n", outputFile)
		return nil
	},
}

// runBook drives the engine over the document's blocks sequentially.
// Per-unit failures keep the source text in place and the loop moving: a
// 200-paragraph book with 3 bad paragraphs still completes the other 197.
func runBook(ctx context.Context, eng *engine.Engine, db *store.Store, doc *loader.Document, profileName, srcName, tgtName string) (translated []string, failedUnits int) {
	blocks := doc.Blocks(blockSize)
	translated = make([]string, 0, len(doc.Paragraphs))

	for i, block := range blocks {
		if cached, ok := lookupBlock(ctx, db, block, profileName, srcName, tgtName); ok {
			fmt.Fprintf(os.Stderr, "  #%d/%d from translation memory\n", i+1, len(blocks))
			translated = append(translated, cached...)
			continue
		}

		fmt.Fprintf(os.Stderr, "  #%d/%d (%d paragraph(s))\n", i+1, len(blocks), len(block))

		out, err := eng.Translate(ctx, strings.Join(block, "\n"))
		if err != nil {
			logger.Errorw("unit failed, keeping source text", "block", i+1, "error", err)
			failedUnits++
			translated = append(translated, block...)
			continue
		}

		parts := strings.Split(out, "\n")
		if len(parts) != len(block) {
			// The engine reconciles batch counts; this guards the
			// single-unit path against an empty response.
			logger.Warnw("unexpected output line count", "block", i+1, "got", len(parts), "want", len(block))
			for len(parts) < len(block) {
				parts = append(parts, block[len(parts)])
			}
			parts = parts[:len(block)]
		}

		for j, p := range parts {
			if db != nil {
				if err := db.SaveParagraph(ctx, block[j], srcName, tgtName, profileName, p); err != nil {
					logger.Warnw("failed to save paragraph to memory", "error", err)
				}
			}
		}
		translated = append(translated, parts...)
	}
	return translated, failedUnits
}

// lookupBlock serves a block from translation memory when every paragraph
// in it is already cached.
func lookupBlock(ctx context.Context, db *store.Store, block []string, profileName, srcName, tgtName string) ([]string, bool) {
	if db == nil {
		return nil, false
	}
	cached := make([]string, 0, len(block))
	for _, para := range block {
		text, found, err := db.GetCachedParagraph(ctx, para, srcName, tgtName, profileName)
		if err != nil || !found {
			return nil, false
		}
		cached = append(cached, text)
	}
	return cached, true
}

func finishRun(ctx context.Context, db *store.Store, runID, bookFile string, stats engine.Stats, failedUnits int64, eng *engine.Engine) {
	status := "completed"
	if failedUnits > 0 {
		status = "completed_with_failures"
	}
	rec := store.RunRecord{
		ID:               runID,
		BookFile:         bookFile,
		Status:           status,
		Requests:         stats.Requests,
		InputTokens:      stats.InputTokens,
		OutputTokens:     stats.OutputTokens,
		CacheReadTokens:  stats.CacheReadTokens,
		CacheWriteTokens: stats.CacheWriteTokens,
		Pass1Only:        stats.Pass1OnlyCount,
		Full3Pass:        stats.Full3PassCount,
		ReviewsClean:     stats.ReviewsClean,
		ReviewsFixed:     stats.ReviewsFixed,
		BatchAdjustments: stats.BatchAdjustments,
		UnitsTotal:       stats.UnitsDispatched,
		UnitsFailed:      failedUnits,
		GlossaryTerms:    int64(eng.GlossaryLen()),
	}
	if err := db.FinishRun(ctx, rec); err != nil {
		logger.Warnw("failed to record run statistics", "error", err)
	}
	if err := db.SaveRunGlossary(ctx, runID, eng.GlossarySnapshot()); err != nil {
		logger.Warnw("failed to record run glossary", "error", err)
	}
}

// spotCheckOutput verifies a sample of translated paragraphs is in the
// target language. Only meaningful when --target is an ISO 639-1 code.
func spotCheckOutput(translated []string) {
	if len(targetLang) != 2 {
		fmt.Fprintf(os.Stderr, "Skipping validation: --target %q is not an ISO 639-1 code\n", targetLang)
		return
	}
	fmt.Fprintf(os.Stderr, "Spot-checking output language...\n")
	mismatches := validator.New().SpotCheck(translated, targetLang, 10)
	if len(mismatches) == 0 {
		fmt.Fprintf(os.Stderr, "Spot check passed\n")
		return
	}
	for _, m := range mismatches {
		logger.Warnw("output language mismatch", "paragraph", m.Index, "reason", m.Reason)
	}
}

// resolveSourceLanguage picks the source language name: explicit flag wins,
// then the profile, then detection on the book's opening text.
func resolveSourceLanguage(prof *profile.Profile, doc *loader.Document) string {
	if sourceLang != "" && sourceLang != "auto" {
		return detector.LanguageName(sourceLang)
	}
	if prof.SourceLanguage != "" {
		return prof.SourceLanguage
	}

	sample := strings.Join(doc.Paragraphs, " ")
	if len(sample) > 2000 {
		sample = sample[:2000]
	}
	if name, ok := detector.New().DetectName(sample); ok {
		fmt.Fprintf(os.Stderr, "Detected source language: %s\n", name)
		return name
	}
	return "English"
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input book file (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for the translation (required)")
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", "auto", "Source language code or name")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code or name (required)")

	translateCmd.Flags().StringVar(&profilePath, "profile", "", "Translation profile JSON file")
	translateCmd.Flags().StringVar(&modelName, "model", gateway.DefaultModel, "Model name")
	translateCmd.Flags().IntVar(&blockSize, "block-size", 0, "Pack consecutive paragraphs into blocks of up to this many characters (0 = one paragraph per call)")
	translateCmd.Flags().BoolVar(&skipReview, "skip-review", false, "Skip the review/refine passes entirely (cost reduction)")
	translateCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Retry budget for rate-limited calls (0 = default policy)")

	translateCmd.Flags().StringVar(&dbPath, "db", "./data/knyhotran.db", "Database path for translation memory and run records")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable translation memory")
	translateCmd.Flags().BoolVar(&runValidate, "validate", false, "Spot-check output language after translation")

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("output")
	translateCmd.MarkFlagRequired("target")
}
