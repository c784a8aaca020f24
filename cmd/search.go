package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/quizrag/internal/ui/theme"
)

var searchCmd = &cobra.Command{
	Use:   "search <document-id> <query>",
	Short: "Show the chunks of a document most similar to a query",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", args[0], err)
		}
		query := strings.Join(args[1:], " ")
		topK, _ := cmd.Flags().GetInt("top-k")
		var threshold *float64
		if cmd.Flags().Changed("threshold") {
			v, _ := cmd.Flags().GetFloat64("threshold")
			threshold = &v
		}

		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.Close()

		hits, err := d.retriever.Retrieve(cmd.Context(), docID, query, topK, threshold)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println("No chunks above the similarity threshold.")
			return nil
		}

		fmt.Printf("%-6s  %-8s  %s\n", "Chunk", "Score", "Text")
		fmt.Println(theme.Rule(80))
		for _, h := range hits {
			text := strings.ReplaceAll(h.Text, "\n", " ")
			fmt.Printf("%-6d  %-8.4f  %s\n", h.ID, h.Similarity, truncate(text, 62))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("top-k", 0, "Maximum chunks to return (0 uses QUIZRAG_RETRIEVAL_TOP_K)")
	searchCmd.Flags().Float64("threshold", 0, "Minimum similarity (unset uses QUIZRAG_SIMILARITY_THRESHOLD)")
}
