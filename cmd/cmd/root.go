// Package cmd implements the CLI command tree, grounded on the
// teacher's cmd/cmd/root.go: a cobra root command, a persistent --config
// flag, viper + godotenv config loading through loadConfig at the top of
// each subcommand, and one file per subcommand family added to rootCmd
// from its own init().
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"neoalexandria/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "neoalexandria",
	Short: "neoalexandria manages a personal knowledge base of ingested web resources",
	Long: `neoalexandria ingests web resources, enriches them (summary, subject
tags, classification, dense/sparse embeddings, citations), and serves a
hybrid lexical/semantic/sparse search over the result. It also computes
a knowledge graph over citations and embeddings for neighbor discovery,
collection-based recommendation, and citation importance ranking.`,
}

// Execute runs the root command. Called by cmd/neoalexandria/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./.neoalexandria.yaml or $HOME/.neoalexandria.yaml)")
}

// loadConfig is called at the top of every subcommand's RunE instead of
// through cobra.OnInitialize, since config.Load's once-loaded global
// cache already makes repeated calls cheap and this keeps each command's
// error handling (cobra.CheckErr vs returned error) local and explicit.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
