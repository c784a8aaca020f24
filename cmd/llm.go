package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/quizrag/internal/llm"
	"github.com/abhisek/quizrag/internal/store"
	"github.com/abhisek/quizrag/internal/ui/theme"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded LLM usage",
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated LLM token usage and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.Close()

		events, ok := d.store.(store.EventRepo)
		if !ok {
			return fmt.Errorf("store %q does not record LLM events", d.cfg.Store)
		}
		usage, err := events.LLMUsageByModel(cmd.Context())
		if err != nil {
			return fmt.Errorf("query model usage: %w", err)
		}
		if len(usage) == 0 {
			fmt.Println("No LLM usage recorded yet.")
			return nil
		}

		fmt.Println("Usage and Estimated Cost (USD)")
		fmt.Println(theme.Rule(88))
		fmt.Printf("%-32s  %6s  %6s  %10s  %10s  %8s  %9s\n",
			"Model", "Calls", "Failed", "Input", "Output", "Avg Ms", "Cost")
		fmt.Println(theme.Rule(88))

		var totalCalls int
		var totalIn, totalOut int64
		var totalCost float64
		var unknownModels []string
		for _, mu := range usage {
			totalCalls += mu.Requests
			totalIn += mu.InputTokens
			totalOut += mu.OutputTokens

			costCol := "?"
			if cost := llm.LookupCost(mu.Model); cost != nil {
				c := cost.Cost(int(mu.InputTokens), int(mu.OutputTokens))
				totalCost += c
				costCol = formatCost(c)
			} else {
				unknownModels = append(unknownModels, mu.Model)
			}
			fmt.Printf("%-32s  %6d  %6d  %10d  %10d  %8.0f  %9s\n",
				truncate(mu.Model, 32), mu.Requests, mu.Failures,
				mu.InputTokens, mu.OutputTokens, mu.AvgLatencyMs, costCol)
		}

		fmt.Println(theme.Rule(88))
		label := "TOTAL"
		if len(unknownModels) > 0 {
			label = "TOTAL (partial)"
		}
		fmt.Printf("%-32s  %6d  %6s  %10d  %10d  %8s  %9s\n",
			label, totalCalls, "", totalIn, totalOut, "", formatCost(totalCost))

		if len(unknownModels) > 0 {
			fmt.Printf("\nPricing unavailable for: %s\n", strings.Join(unknownModels, ", "))
		}
		return nil
	},
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmCmd.AddCommand(llmStatsCmd)
}
