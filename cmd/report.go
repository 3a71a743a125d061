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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/knyhotran/internal/engine"
	"github.com/valpere/knyhotran/internal/store"
)

var (
	reportDBPath string
	reportRunID  string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a markdown cost/quality report for a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(reportDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		ctx := context.Background()
		var run store.RunRecord
		if reportRunID != "" {
			run, err = db.GetRun(ctx, reportRunID)
		} else {
			run, err = db.LatestRun(ctx)
		}
		if err != nil {
			return err
		}

		report := renderReport(run)

		if reportOutput == "" {
			fmt.Print(report)
			return nil
		}
		if err := os.WriteFile(reportOutput, []byte(report), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", reportOutput)
		return nil
	},
}

func renderReport(run store.RunRecord) string {
	stats := engine.Stats{
		Requests:         run.Requests,
		InputTokens:      run.InputTokens,
		OutputTokens:     run.OutputTokens,
		CacheReadTokens:  run.CacheReadTokens,
		CacheWriteTokens: run.CacheWriteTokens,
	}
	cost, costNoCache := stats.Cost(run.Model)

	var sb strings.Builder
	sb.WriteString("# Translation Report\n\n")
	fmt.Fprintf(&sb, "**Generated:** %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "**Book:** %s\n", run.BookFile)
	fmt.Fprintf(&sb, "**Languages:** %s → %s\n", run.SourceLang, run.TargetLang)
	fmt.Fprintf(&sb, "**Profile:** %s\n", run.ProfileName)
	fmt.Fprintf(&sb, "**Model:** %s\n", run.Model)
	fmt.Fprintf(&sb, "**Status:** %s\n\n", run.Status)

	sb.WriteString("## Pipeline\n\n")
	fmt.Fprintf(&sb, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Units translated | %d |\n", run.UnitsTotal)
	fmt.Fprintf(&sb, "| Units failed | %d |\n", run.UnitsFailed)
	fmt.Fprintf(&sb, "| Pass 1 only | %d |\n", run.Pass1Only)
	fmt.Fprintf(&sb, "| Full 3-pass | %d |\n", run.Full3Pass)
	fmt.Fprintf(&sb, "| Reviews clean | %d |\n", run.ReviewsClean)
	fmt.Fprintf(&sb, "| Reviews with fixes | %d |\n", run.ReviewsFixed)
	fmt.Fprintf(&sb, "| Batch reconciliations | %d |\n", run.BatchAdjustments)
	fmt.Fprintf(&sb, "| Glossary terms | %d |\n\n", run.GlossaryTerms)

	sb.WriteString("## Cost\n\n")
	fmt.Fprintf(&sb, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| API calls | %d |\n", run.Requests)
	fmt.Fprintf(&sb, "| Input tokens | %d |\n", run.InputTokens)
	fmt.Fprintf(&sb, "| Output tokens | %d |\n", run.OutputTokens)
	fmt.Fprintf(&sb, "| Cache read tokens | %d |\n", run.CacheReadTokens)
	fmt.Fprintf(&sb, "| Cache write tokens | %d |\n", run.CacheWriteTokens)
	fmt.Fprintf(&sb, "| Estimated cost | $%.2f |\n", cost)
	fmt.Fprintf(&sb, "| Without prompt caching | $%.2f |\n", costNoCache)
	fmt.Fprintf(&sb, "| Cache savings | $%.2f |\n", costNoCache-cost)
	return sb.String()
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportDBPath, "db", "./data/knyhotran.db", "Database path")
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "Run ID (default: latest run)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file (default: stdout)")
}
