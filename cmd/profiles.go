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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/knyhotran/internal/profile"
)

var profilesDir string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect translation profiles",
	Long: `List and show genre translation profiles.

A profile is a JSON file controlling style instructions, protected nouns,
the seed glossary, per-pass temperatures, and refresh intervals.`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles in a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := os.ReadDir(profilesDir)
		if err != nil {
			return fmt.Errorf("failed to read profiles directory: %w", err)
		}

		var files []string
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".json") {
				continue
			}
			files = append(files, name)
		}
		sort.Strings(files)

		if len(files) == 0 {
			fmt.Printf("No profiles in %s.\n", profilesDir)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tNAME\tSOURCE\tNOUNS\tSEED\tREVIEW≥\tT(translate)")
		for _, f := range files {
			p, err := profile.Load(filepath.Join(profilesDir, f))
			if err != nil {
				fmt.Fprintf(w, "%s\t(invalid: %v)\t\t\t\t\t\n", f, err)
				continue
			}
			src := p.SourceLanguage
			if src == "" {
				src = "(auto)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.2f\n",
				f, p.Name, src, len(p.ProtectedNouns), len(p.GlossarySeed),
				p.MinReviewChars, p.Temperature.Translate)
		}
		return w.Flush()
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <profile-file>",
	Short: "Show a profile's resolved settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profile.Load(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Name: %s\n", p.Name)
		if p.Description != "" {
			fmt.Printf("Description: %s\n", p.Description)
		}
		if p.SourceLanguage != "" {
			fmt.Printf("Source language: %s\n", p.SourceLanguage)
		}
		fmt.Printf("Temperatures: translate=%.2f review=%.2f refine=%.2f\n",
			p.Temperature.Translate, p.Temperature.Review, p.Temperature.Refine)
		fmt.Printf("Min review chars: %d\n", p.MinReviewChars)
		fmt.Printf("Context update interval: %d\n", p.ContextUpdateInterval)
		fmt.Printf("Glossary update interval: %d\n", p.GlossaryUpdateInterval)
		fmt.Printf("Protected nouns: %d\n", len(p.ProtectedNouns))
		fmt.Printf("Glossary seed: %d terms\n", len(p.GlossarySeed))
		fmt.Printf("\nStyle instructions:\n%s\n", p.StyleText())
		return nil
	},
}

var initProfileName string

var profilesInitCmd = &cobra.Command{
	Use:   "init <output-file>",
	Short: "Write a new profile with default settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}

		p := profile.Default()
		if initProfileName != "" {
			p.Name = initProfileName
		} else {
			p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		data = append(data, '\n')

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create profile directory: %w", err)
			}
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write profile: %w", err)
		}
		fmt.Printf("Created %s. Edit style_instructions, protected_nouns, and glossary_seed for your book.\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.PersistentFlags().StringVar(&profilesDir, "dir", "./profiles", "Profiles directory")
	profilesInitCmd.Flags().StringVar(&initProfileName, "name", "", "Profile name (default: derived from the file name)")
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	profilesCmd.AddCommand(profilesInitCmd)
}
