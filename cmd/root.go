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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "0.1.0"

var (
	cfgFile string
	verbose bool

	// logger is shared by all subcommands; initialized in PersistentPreRunE.
	logger *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "knyhotran",
	Short: "3-pass literary book translator",
	Long: `A CLI application that translates book-length texts with a 3-pass
literary pipeline (translate → review → refine) against the Anthropic API,
keeping terminology and narrative tone consistent across the whole book
through a rolling context summary and an auto-expanding glossary.

Credentials: set ANTHROPIC_API_KEY, or api_key in the config file.

Use "knyhotran translate --help" for translation options.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return initLogger()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.knyhotran.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".knyhotran")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("KNYHOTRAN")
	viper.AutomaticEnv()
	// The Anthropic key is conventionally set under its own name.
	_ = viper.BindEnv("api_key", "ANTHROPIC_API_KEY", "KNYHOTRAN_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one is not.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if cfgFile == "" && (notFound || os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func initLogger() error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	logger = l.Sugar()
	return nil
}
