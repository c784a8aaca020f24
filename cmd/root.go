package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quizrag",
	Short: "Retrieval-augmented quiz generation",
	Long:  "quizrag ingests teaching material, retrieves the passages relevant to a request and asks an LLM to write validated quiz questions from them.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("env-file", "", "Load environment from this file instead of ./.env")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides QUIZRAG_DB env var)")
	rootCmd.PersistentFlags().String("store", "", "Store backend: memory, sqlite or postgres (overrides QUIZRAG_STORE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}
