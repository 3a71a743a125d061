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
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/knyhotran/internal/store"
)

var (
	glossaryDBPath string
	glossaryRunID  string
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Inspect the glossary accumulated by a run",
	Long: `List and export the terminology glossary a translation run accumulated.

The exported JSON is directly usable as the "glossary_seed" of a profile,
so a sequel can start with the vocabulary its predecessor established.`,
}

// resolveRun returns the requested run, defaulting to the latest.
func resolveRun(ctx context.Context, db *store.Store) (store.RunRecord, error) {
	if glossaryRunID != "" {
		return db.GetRun(ctx, glossaryRunID)
	}
	return db.LatestRun(ctx)
}

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a run's glossary terms",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		ctx := context.Background()
		run, err := resolveRun(ctx, db)
		if err != nil {
			return err
		}

		glossary, err := db.RunGlossary(ctx, run.ID)
		if err != nil {
			return err
		}
		if len(glossary) == 0 {
			fmt.Printf("Run %s has no glossary terms.\n", run.ID)
			return nil
		}

		terms := make([]string, 0, len(glossary))
		for src := range glossary {
			terms = append(terms, src)
		}
		sort.Strings(terms)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "SOURCE TERM\tTARGET TERM\n")
		for _, src := range terms {
			fmt.Fprintf(w, "%s\t%s\n", src, glossary[src])
		}
		return w.Flush()
	},
}

var glossaryExportPath string

var glossaryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run's glossary as profile seed JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		ctx := context.Background()
		run, err := resolveRun(ctx, db)
		if err != nil {
			return err
		}

		glossary, err := db.RunGlossary(ctx, run.ID)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(glossary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode glossary: %w", err)
		}
		data = append(data, '\n')

		if glossaryExportPath == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(glossaryExportPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write glossary file: %w", err)
		}
		fmt.Printf("Exported %d terms to %s\n", len(glossary), glossaryExportPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryCmd.PersistentFlags().StringVar(&glossaryDBPath, "db", "./data/knyhotran.db", "Database path")
	glossaryCmd.PersistentFlags().StringVar(&glossaryRunID, "run", "", "Run ID (default: latest run)")

	glossaryExportCmd.Flags().StringVarP(&glossaryExportPath, "output", "o", "", "Output file (default: stdout)")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryExportCmd)
}
