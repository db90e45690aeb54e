package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"watchrag/internal/service"
)

var ingestMode string

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths or globs...]",
	Short: "Index catalogue CSV and FAQ text files",
	Long: `Registers each file as a document, extracts its records and indexes them
in batches. Globs such as "data/**/*.csv" are expanded. Upload mode accepts
CSV catalogues only and marks documents Loaded; admin mode also accepts .txt
files and marks them Processed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "admin", "ingestion path: admin or upload")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	mode, err := service.ParseMode(ingestMode)
	if err != nil {
		return err
	}
	paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no input files matched")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, path := range paths {
		report, err := a.svc.Ingest(ctx, path, mode, newBatchProgress(filepath.Base(path)))
		if err != nil {
			failed++
			cmd.PrintErrf("%s: %v\n", path, err)
			continue
		}
		cmd.Printf("%s: document %d %s, %d records in %d batches",
			report.Document.FileName, report.Document.ID, report.Document.Status, report.Count, report.Batches)
		if report.Skipped > 0 {
			cmd.Printf(", %d rows skipped", report.Skipped)
		}
		cmd.Println()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

// expandInputs resolves globs and keeps literal paths, deduplicated and sorted
// per argument.
func expandInputs(args []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err != nil {
				return nil, fmt.Errorf("%s: %w", arg, err)
			}
			matches = []string{arg}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}
