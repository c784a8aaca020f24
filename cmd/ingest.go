package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk, embed and store teaching material",
}

var ingestFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Ingest a single text file as one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		title, _ := cmd.Flags().GetString("title")
		blocks, _ := cmd.Flags().GetBool("blocks")

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.Close()

		create := d.ingester.CreateDocument
		if blocks {
			create = d.ingester.CreateDocumentBlocks
		}
		res, err := create(cmd.Context(), subject, title, string(raw))
		if err != nil {
			return err
		}
		fmt.Printf("Document %d (%s): %d chunks in %s\n", res.DocumentID, res.Title, res.Chunks, res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

var ingestDirCmd = &cobra.Command{
	Use:   "dir <directory>",
	Short: "Ingest every .txt and .md file in a directory, skipping titles already stored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")

		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.Close()

		rep, err := d.ingester.ImportDir(cmd.Context(), args[0], subject)
		if err != nil {
			return err
		}
		for _, r := range rep.Imported {
			fmt.Printf("  + %-40s  doc %d, %d chunks\n", truncate(r.Title, 40), r.DocumentID, r.Chunks)
		}
		for _, s := range rep.Skipped {
			fmt.Printf("  = %s (already stored)\n", s)
		}
		for _, f := range rep.Failed {
			fmt.Printf("  ! %s\n", f)
		}
		fmt.Printf("\n%d imported, %d skipped, %d failed\n", len(rep.Imported), len(rep.Skipped), len(rep.Failed))
		if len(rep.Failed) > 0 {
			return fmt.Errorf("%d file(s) failed to import", len(rep.Failed))
		}
		return nil
	},
}

func init() {
	ingestCmd.PersistentFlags().String("subject", "", "Subject the documents belong to")
	ingestFileCmd.Flags().String("title", "", "Document title (defaults to the file name)")
	ingestFileCmd.Flags().Bool("blocks", false, "Split into overlapping fixed-size blocks instead of packing sentences")

	ingestCmd.AddCommand(ingestFileCmd)
	ingestCmd.AddCommand(ingestDirCmd)
}
