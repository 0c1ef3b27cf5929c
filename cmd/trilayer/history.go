package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trilayer/trilayer/internal/history"
)

// modeFlags holds the identity flags shared by list and export. Which
// of them a mode requires depends on how wide the mode's scope is.
type modeFlags struct {
	mode       string
	client     string
	worker     string
	projectDir string
}

func (f *modeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "current",
		"Browsing mode: current|project|environment|global")
	cmd.Flags().StringVar(&f.client, "client", "", "AI client application name")
	cmd.Flags().StringVar(&f.worker, "worker", "", "Worker environment label")
	cmd.Flags().StringVar(&f.projectDir, "project-dir", "", "Project directory")
}

// records fetches one page of history for the selected mode, after
// checking the mode has the identity flags it needs.
func (f *modeFlags) records(limit, offset int) ([]history.ConversationRecord, error) {
	switch f.mode {
	case "current":
		if f.client == "" || f.worker == "" || f.projectDir == "" {
			return nil, fmt.Errorf("mode current requires --client, --worker, and --project-dir")
		}
		return manager.CurrentIsolationHistory(f.client, f.worker, f.projectDir, limit, offset)
	case "project":
		if f.client == "" || f.worker == "" {
			return nil, fmt.Errorf("mode project requires --client and --worker")
		}
		return manager.ProjectBrowsingHistory(f.client, f.worker, limit, offset)
	case "environment":
		if f.client == "" {
			return nil, fmt.Errorf("mode environment requires --client")
		}
		return manager.EnvironmentBrowsingHistory(f.client, limit, offset)
	case "global":
		return manager.GlobalBrowsingHistory(limit, offset)
	default:
		return nil, fmt.Errorf("unknown mode %q (want current|project|environment|global)", f.mode)
	}
}

// trilayer list
func listCmd() *cobra.Command {
	var flags modeFlags
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversation history at one of the four browsing scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := flags.records(limit, offset)
			if err != nil {
				return err
			}
			printRecords(records)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 100, "Max records")
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	return cmd
}

// trilayer search
func searchCmd() *cobra.Command {
	var (
		client     string
		worker     string
		project    string
		projectDir string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Free-text search across prompts, feedback, and logs",
		Long: `Search conversation history. With --project-dir the search is scoped
to the exact isolation; otherwise --client, --worker, and --project
narrow the scope as AND filters and may be combined freely.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]

			var (
				records []history.ConversationRecord
				err     error
			)
			if projectDir != "" {
				if client == "" || worker == "" {
					return fmt.Errorf("--project-dir requires --client and --worker")
				}
				records, err = manager.SearchCurrentIsolation(client, worker, projectDir, query, limit)
			} else {
				records, err = manager.SearchByFilters(query, client, worker, project, limit)
			}
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No matching conversations")
				return nil
			}
			printRecords(records)
			return nil
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "Filter by AI client")
	cmd.Flags().StringVar(&worker, "worker", "", "Filter by worker")
	cmd.Flags().StringVar(&project, "project", "", "Filter by project name")
	cmd.Flags().StringVar(&projectDir, "project-dir", "", "Scope to the exact isolation of this directory")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")
	return cmd
}

// trilayer export
func exportCmd() *cobra.Command {
	var flags modeFlags
	var (
		format string
		out    string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export conversation history to JSON, CSV, or Markdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := flags.records(limit, offset)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				err = manager.ExportJSON(records, out)
			case "csv":
				err = manager.ExportCSV(records, out)
			case "markdown", "md":
				err = manager.ExportMarkdown(records, out)
			default:
				return fmt.Errorf("unknown format %q (want json|csv|markdown)", format)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Exported %d conversation(s) to %s\n",
				len(records), color.CyanString(out))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "json", "Export format: json|csv|markdown")
	cmd.Flags().StringVar(&out, "out", "", "Destination file (required)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max records")
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// trilayer delete
func deleteCmd() *cobra.Command {
	var (
		client     string
		worker     string
		projectDir string
	)

	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a conversation and its images from the current isolation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := manager.Delete(client, worker, projectDir, args[0])
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Printf("No conversation %s in this isolation\n", args[0])
				return nil
			}
			fmt.Printf("Deleted %s\n", color.RedString(args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "AI client application name")
	cmd.Flags().StringVar(&worker, "worker", "", "Worker environment label")
	cmd.Flags().StringVar(&projectDir, "project-dir", "", "Project directory")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("worker")
	_ = cmd.MarkFlagRequired("project-dir")
	return cmd
}
