package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/quizrag/internal/quizgen"
	"github.com/abhisek/quizrag/internal/ui/theme"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate quiz questions from stored material",
}

var generateBasicCmd = &cobra.Command{
	Use:   "basic",
	Short: "Generate questions of several types from one document",
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetInt64("doc")
		subject, _ := cmd.Flags().GetString("subject")
		rawTypes, _ := cmd.Flags().GetStringToInt("types")

		types := make(map[quizgen.QuestionType]int, len(rawTypes))
		for k, n := range rawTypes {
			t, err := quizgen.ParseQuestionType(k)
			if err != nil {
				return err
			}
			types[t] = n
		}

		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.service.GenerateBasic(cmd.Context(), quizgen.BasicRequest{
			Subject:    subject,
			DocumentID: docID,
			Types:      types,
			Params:     modelParams(cmd),
		})
		if err != nil {
			return err
		}
		return printResult(cmd, res, res)
	},
}

var generateSingleCmd = &cobra.Command{
	Use:   "single",
	Short: "Generate one question type from a stored template and retrieved context",
	RunE: func(cmd *cobra.Command, args []string) error {
		tplID, _ := cmd.Flags().GetInt64("template")
		docs, _ := cmd.Flags().GetInt64Slice("doc")
		qtype, err := typeFlag(cmd)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")

		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.service.GenerateSingle(cmd.Context(), quizgen.SingleRequest{
			TemplateID:   tplID,
			DocumentIDs:  docs,
			QuestionType: qtype,
			Count:        count,
			Params:       modelParams(cmd),
		})
		if err != nil {
			return err
		}
		return printResult(cmd, res, &res.Result)
	},
}

var generateTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Fill a stored template with whole documents and generate mixed questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		tplID, _ := cmd.Flags().GetInt64("template")
		docs, _ := cmd.Flags().GetInt64Slice("doc")
		count, _ := cmd.Flags().GetInt("count")

		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.service.GenerateFromTemplate(cmd.Context(), quizgen.TemplateRequest{
			TemplateID:  tplID,
			DocumentIDs: docs,
			Count:       count,
			Params:      modelParams(cmd),
		})
		if err != nil {
			return err
		}
		if !jsonOutput(cmd) {
			fmt.Printf("Template %q asks for: %s\n\n", res.TemplateName, strings.Join(res.DetectedTypes, ", "))
		}
		return printResult(cmd, res, &res.Result)
	},
}

var generatePromptCmd = &cobra.Command{
	Use:   "prompt <text>",
	Short: "Generate questions straight from a free-form prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qtype, err := typeFlag(cmd)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")

		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.service.GenerateFromPrompt(cmd.Context(), quizgen.PromptRequest{
			Prompt:       strings.Join(args, " "),
			QuestionType: qtype,
			Count:        count,
			Params:       modelParams(cmd),
		})
		if err != nil {
			return err
		}
		return printResult(cmd, res, &res.Result)
	},
}

func init() {
	generateCmd.PersistentFlags().Bool("json", false, "Print the raw JSON result")
	generateCmd.PersistentFlags().Float64("temperature", -1, "Sampling temperature (negative keeps the default)")
	generateCmd.PersistentFlags().Int("max-tokens", 0, "Response token limit (0 keeps the default)")
	generateCmd.PersistentFlags().String("model", "", "Model override")

	generateBasicCmd.Flags().Int64("doc", 0, "Document ID (required)")
	generateBasicCmd.Flags().String("subject", "", "Subject used to steer retrieval")
	generateBasicCmd.Flags().StringToInt("types", nil, "Counts per type, e.g. single_choice=3,cloze=2 (required)")
	_ = generateBasicCmd.MarkFlagRequired("doc")
	_ = generateBasicCmd.MarkFlagRequired("types")

	for _, c := range []*cobra.Command{generateSingleCmd, generateTemplateCmd} {
		c.Flags().Int64("template", 0, "Template ID (required)")
		c.Flags().Int64Slice("doc", nil, "Document IDs (repeatable, required)")
		_ = c.MarkFlagRequired("template")
		_ = c.MarkFlagRequired("doc")
	}
	for _, c := range []*cobra.Command{generateSingleCmd, generateTemplateCmd, generatePromptCmd} {
		c.Flags().Int("count", 5, "Number of questions")
	}
	for _, c := range []*cobra.Command{generateSingleCmd, generatePromptCmd} {
		c.Flags().String("type", "", "Question type (e.g. single_choice, cloze, mixed)")
	}

	generateCmd.AddCommand(generateBasicCmd)
	generateCmd.AddCommand(generateSingleCmd)
	generateCmd.AddCommand(generateTemplateCmd)
	generateCmd.AddCommand(generatePromptCmd)
}

func typeFlag(cmd *cobra.Command) (quizgen.QuestionType, error) {
	v, _ := cmd.Flags().GetString("type")
	if v == "" {
		return "", nil
	}
	return quizgen.ParseQuestionType(v)
}

func modelParams(cmd *cobra.Command) quizgen.ModelParams {
	var p quizgen.ModelParams
	if t, _ := cmd.Flags().GetFloat64("temperature"); t >= 0 {
		p.Temperature = &t
	}
	p.MaxTokens, _ = cmd.Flags().GetInt("max-tokens")
	p.Model, _ = cmd.Flags().GetString("model")
	return p
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// printResult writes full as JSON with --json, otherwise a readable listing
// of res.
func printResult(cmd *cobra.Command, full any, res *quizgen.Result) error {
	if jsonOutput(cmd) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(full)
	}

	for i, it := range res.Items {
		fmt.Println(theme.Heading.Render(fmt.Sprintf("── Question %d/%d", i+1, len(res.Items))), theme.Tag.Render(string(it.Type)))
		fmt.Println(it.Prompt)
		for j, o := range it.Options {
			fmt.Printf("  %c) %s\n", 'A'+j, o)
		}
		if it.QuestionData != nil {
			for j, l := range it.QuestionData.LeftItems {
				fmt.Printf("  %d. %s\n", j+1, l)
			}
			for j, r := range it.QuestionData.RightItems {
				fmt.Printf("  %c. %s\n", 'a'+j, r)
			}
		}
		for _, s := range it.Items {
			fmt.Printf("  - %s\n", s)
		}
		for _, s := range it.Symbols {
			fmt.Printf("  • %s\n", s)
		}
		fmt.Println("Answer:", theme.Answer.Render(fmt.Sprint(it.Answer)))
		if it.Explanation != "" {
			fmt.Printf("Explanation: %s\n", it.Explanation)
		}
		fmt.Println(theme.Hint.Render(fmt.Sprintf("Source: document %d, chunk %d", it.Source.DocumentID, it.Source.ChunkID)))
		fmt.Println()
	}

	fmt.Println(theme.Heading.Render(fmt.Sprintf("── %d of %d questions in %.1fs ──", res.Count, res.Requested, res.GenerationTime)))
	if res.Warning != "" {
		fmt.Println(theme.Warning.Render("Warning: " + res.Warning))
	}
	return nil
}
