package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/quizrag/internal/templates"
	"github.com/abhisek/quizrag/internal/ui/theme"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the prompt templates loaded from QUIZRAG_TEMPLATES",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.Close()

		tpls, err := d.templates.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(tpls) == 0 {
			fmt.Println("No templates loaded. Point QUIZRAG_TEMPLATES at a YAML file.")
			return nil
		}

		fmt.Printf("%-4s  %-24s  %-12s  %-22s  %s\n", "ID", "Name", "Subject", "Type", "Detected")
		fmt.Println(theme.Rule(90))
		for _, t := range tpls {
			qtype := t.QuestionType
			if qtype == "" {
				qtype = "-"
			}
			detected := strings.Join(templates.DetectTypes(t.Content), ",")
			fmt.Printf("%-4d  %-24s  %-12s  %-22s  %s\n",
				t.ID, truncate(t.Name, 24), truncate(t.Subject, 12), qtype, detected)
		}
		return nil
	},
}
