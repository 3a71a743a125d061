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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/knyhotran/internal/detector"
	"github.com/valpere/knyhotran/internal/engine"
	"github.com/valpere/knyhotran/internal/loader"
)

var analyzeSamples int

// estimatedCharsPerToken is the rough plain-prose ratio used for the cost
// projection; the 3-pass overhead factor covers review/refine input reuse.
const (
	estimatedCharsPerToken = 4
	threePassOverhead      = 2.5
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <book-file>",
	Short: "Analyze a book before translation",
	Long: `Analyze a plain-text book: paragraph and word counts, detected source
language, sample paragraphs, and a rough per-model cost projection for a
full 3-pass run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loader.LoadFile(args[0])
		if err != nil {
			return err
		}
		if len(doc.Paragraphs) == 0 {
			return fmt.Errorf("no translatable paragraphs in %s", args[0])
		}

		fmt.Printf("File: %s\n", args[0])
		fmt.Printf("Paragraphs: %d\n", len(doc.Paragraphs))
		fmt.Printf("Words: %d\n", doc.WordCount())
		fmt.Printf("Characters: %d\n", doc.CharCount())

		sample := strings.Join(doc.Paragraphs, " ")
		if len(sample) > 2000 {
			sample = sample[:2000]
		}
		if name, ok := detector.New().DetectName(sample); ok {
			fmt.Printf("Detected language: %s\n", name)
		} else {
			fmt.Printf("Detected language: (undetermined)\n")
		}

		fmt.Printf("\nSample paragraphs:\n")
		for _, idx := range sampleIndexes(len(doc.Paragraphs), analyzeSamples) {
			p := doc.Paragraphs[idx]
			if len(p) > 160 {
				p = p[:157] + "..."
			}
			fmt.Printf("  [%d] %s\n", idx+1, p)
		}

		fmt.Printf("\nEstimated full 3-pass cost (with prompt caching):\n")
		tokens := float64(doc.CharCount()) / estimatedCharsPerToken * threePassOverhead
		for _, model := range []string{"claude-sonnet-4-20250514", "claude-opus-4-20250514"} {
			p := engine.PricingFor(model)
			// Most input tokens bill at the cache-read rate once the
			// static prompt head is warm.
			cost := tokens/1e6*p.CacheRead + tokens/1e6*p.Output
			fmt.Printf("  %-28s ~$%.2f\n", model, cost)
		}
		return nil
	},
}

// sampleIndexes returns up to n indexes evenly spaced across total.
func sampleIndexes(total, n int) []int {
	if n <= 0 || total == 0 {
		return nil
	}
	if n > total {
		n = total
	}
	step := total / n
	if step < 1 {
		step = 1
	}
	var out []int
	for i := 0; i < total && len(out) < n; i += step {
		out = append(out, i)
	}
	return out
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().IntVar(&analyzeSamples, "samples", 5, "Number of sample paragraphs to show")
}
