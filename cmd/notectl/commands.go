package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/recipe-pipeline/internal/api/dto"
)

var noteExtensions = map[string]struct{}{
	".html": {},
	".htm":  {},
	".enex": {},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// collectNotes reads note files; directories contribute their note files,
// non-recursively, in name order
func collectNotes(paths []string) ([]dto.NoteInput, error) {
	var notes []dto.NoteInput
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("file does not exist: %s", path)
			}
			return nil, fmt.Errorf("inspect file: %w", err)
		}

		files := []string{path}
		if info.IsDir() {
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, fmt.Errorf("read directory: %w", err)
			}
			files = files[:0]
			for _, e := range entries {
				if _, ok := noteExtensions[strings.ToLower(filepath.Ext(e.Name()))]; ok && !e.IsDir() {
					files = append(files, filepath.Join(path, e.Name()))
				}
			}
		}

		for _, file := range files {
			content, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("read note: %w", err)
			}
			notes = append(notes, dto.NoteInput{Content: string(content), Source: filepath.Base(file)})
		}
	}

	if len(notes) == 0 {
		return nil, errors.New("no note files found")
	}
	return notes, nil
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var importID string

	cmd := &cobra.Command{
		Use:   "import <file-or-dir>...",
		Short: "Queue HTML notes for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := collectNotes(args)
			if err != nil {
				return err
			}

			resp, err := ctx.client().CreateImport(cmd.Context(), dto.CreateImportRequest{
				ImportID: importID,
				Notes:    notes,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ctx.json {
				return printJSON(out, resp)
			}

			rows := make([][]string, len(resp.Notes))
			for i, n := range resp.Notes {
				rows[i] = []string{n.Source, n.NoteID, n.JobID}
			}
			fmt.Fprintf(out, "Import %s: %d note(s) queued\n", resp.ImportID, len(resp.Notes))
			fmt.Fprintln(out, renderTable([]string{"Source", "Note", "Job"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&importID, "import-id", "", "Group the notes under this import id")
	return cmd
}

func newNotesCommand(ctx *commandContext) *cobra.Command {
	var req dto.ListNotesRequest

	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List imported notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().ListNotes(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ctx.json {
				return printJSON(out, resp)
			}

			if len(resp.Notes) == 0 {
				fmt.Fprintln(out, "No notes found")
				return nil
			}

			rows := make([][]string, len(resp.Notes))
			for i, n := range resp.Notes {
				rows[i] = []string{n.NoteID, n.Title, n.Category, n.Status, n.ImportID}
			}
			fmt.Fprintln(out, renderTable([]string{"Note", "Title", "Category", "Status", "Import"}, rows, nil))
			if resp.NextCursor != "" {
				fmt.Fprintf(out, "More notes: --cursor %s\n", resp.NextCursor)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.ImportID, "import-id", "", "Only notes of this import")
	cmd.Flags().StringVar(&req.Status, "status", "", "Only notes in this status")
	cmd.Flags().IntVar(&req.PageSize, "limit", 0, "Page size")
	cmd.Flags().StringVar(&req.Cursor, "cursor", "", "Continue after a previous page")
	return cmd
}

func newProgressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <note-id>...",
		Short: "Show how many units of each note have completed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			results := make([]dto.ProgressResponse, 0, len(args))
			for _, noteID := range args {
				p, err := client.Progress(cmd.Context(), noteID)
				if err != nil {
					return fmt.Errorf("note %s: %w", noteID, err)
				}
				results = append(results, p)
			}

			out := cmd.OutOrStdout()
			if ctx.json {
				return printJSON(out, results)
			}

			rows := make([][]string, len(results))
			for i, p := range results {
				state := "in progress"
				if p.IsComplete {
					state = "complete"
				}
				rows[i] = []string{p.NoteID, strconv.Itoa(p.CompletedUnits), strconv.Itoa(p.TotalUnits), state}
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Note", "Done", "Total", "State"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newActionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the actions registered for each queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.client().Actions(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ctx.json {
				return printJSON(out, catalog)
			}

			queues := make([]string, 0, len(catalog))
			for q := range catalog {
				queues = append(queues, q)
			}
			slices.Sort(queues)

			var rows [][]string
			for _, q := range queues {
				for _, action := range catalog[q] {
					rows = append(rows, []string{q, action})
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Queue", "Action"}, rows, nil))
			return nil
		},
	}
}

func newPatternsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List the most frequent ingredient line patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns, err := ctx.client().Patterns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ctx.json {
				return printJSON(out, patterns)
			}

			rows := make([][]string, len(patterns))
			for i, p := range patterns {
				rows[i] = []string{p.Pattern, strconv.Itoa(p.Occurrences), p.Example}
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Pattern", "Seen", "Example"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of patterns")
	return cmd
}
