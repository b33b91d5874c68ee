package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"shelfarr/internal/api"
	"shelfarr/internal/ipc"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Create, inspect and manage acquisition jobs",
	}

	jobCmd.AddCommand(newJobAddCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobActionCommand(ctx, "retry", "Retry a failed job", func(c *ipc.Client, id string) (*ipc.JobResponse, error) {
		return c.JobRetry(id)
	}))
	jobCmd.AddCommand(newJobActionCommand(ctx, "cancel", "Cancel a job", func(c *ipc.Client, id string) (*ipc.JobResponse, error) {
		return c.JobCancel(id)
	}))
	jobCmd.AddCommand(newJobActionCommand(ctx, "advance", "Run one workflow step for a job now", func(c *ipc.Client, id string) (*ipc.JobResponse, error) {
		return c.JobAdvance(id)
	}))
	jobCmd.AddCommand(newJobActionCommand(ctx, "publish", "Retry the library rescan for a completed job", func(c *ipc.Client, id string) (*ipc.JobResponse, error) {
		return c.JobRetryPublish(id)
	}))
	jobCmd.AddCommand(newJobImportCommand(ctx))
	jobCmd.AddCommand(newJobPruneCommand(ctx))

	return jobCmd
}

func newJobAddCommand(ctx *commandContext) *cobra.Command {
	var (
		requestID string
		kind      string
		authors   []string
		narrators []string
		terms     []string
		coverURL  string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Queue a new audiobook or ebook request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(requestID) == "" {
				requestID = uuid.NewString()
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobAdd(ipc.JobAddRequest{
					RequestID:   requestID,
					MediaKind:   kind,
					Title:       args[0],
					Authors:     authors,
					Narrators:   narrators,
					SearchTerms: terms,
					CoverURL:    coverURL,
				})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued (%s)\n", resp.Item.ID, formatStatusLabel(resp.Item.Status))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&requestID, "request-id", "", "Caller request identifier (default: random)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "audio", "Media kind: audio or ebook")
	cmd.Flags().StringSliceVarP(&authors, "author", "a", nil, "Author (repeatable)")
	cmd.Flags().StringSliceVar(&narrators, "narrator", nil, "Narrator (repeatable)")
	cmd.Flags().StringSliceVar(&terms, "term", nil, "Search term override (repeatable)")
	cmd.Flags().StringVar(&coverURL, "cover-url", "", "Cover image URL")
	return cmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(statuses)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Items)
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
					{header: "ID"},
					{header: "Kind"},
					{header: "Title", maxWidth: 40},
					{header: "Author", maxWidth: 24},
					{header: "Status"},
					{header: "Retries", right: true},
					{header: "Updated"},
				}, buildJobListRows(resp.Items)))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobShow(args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Item)
				}
				printJobDetails(cmd.OutOrStdout(), resp.Item)
				return nil
			})
		},
	}
}

func newJobActionCommand(ctx *commandContext, use, short string, action func(*ipc.Client, string) (*ipc.JobResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := action(client, args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s: %s\n", resp.Item.ID, formatStatusLabel(resp.Item.Status))
				if resp.Item.LastError != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Last error: %s\n", resp.Item.LastError)
				}
				return nil
			})
		},
	}
}

func newJobImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <id> <path>",
		Short: "Post-process a local file or directory for a job",
		Long:  "Post-process a local file or directory for a job. The path must be inside paths.import_root.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobImport(args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Item)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %s: %s\n", resp.Item.ID, formatStatusLabel(resp.Item.Status))
				if resp.Item.DestinationPath != "" {
					fmt.Fprintf(out, "Placed at %s\n", resp.Item.DestinationPath)
				}
				return nil
			})
		},
	}
}

func newJobPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete completed and cancelled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobPrune(olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", resp.Removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Only remove jobs last updated before this age")
	return cmd
}

func buildJobListRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		title := strings.TrimSpace(job.Title)
		if title == "" {
			title = strings.Join(job.SearchTerms, " ")
		}
		rows = append(rows, []string{
			job.ID,
			job.MediaKind,
			title,
			strings.Join(job.Authors, ", "),
			formatStatusLabel(job.Status),
			strconv.Itoa(job.RetryCount),
			formatDisplayTime(job.UpdatedAt),
		})
	}
	return rows
}

func printJobDetails(out io.Writer, job api.Job) {
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "%-18s %s\n", label+":", value)
	}
	field("ID", job.ID)
	field("Request", job.RequestID)
	field("Kind", job.MediaKind)
	field("Title", job.Title)
	field("Authors", strings.Join(job.Authors, ", "))
	field("Narrators", strings.Join(job.Narrators, ", "))
	field("Search terms", strings.Join(job.SearchTerms, " | "))
	field("Status", formatStatusLabel(job.Status))
	field("Retries", strconv.Itoa(job.RetryCount))
	field("Indexer ref", job.IndexerRef)
	field("Torrent", job.TorrentRef)
	field("Content path", job.ContentPath)
	if job.SeedStartedAt != "" {
		field("Seeding since", formatDisplayTime(job.SeedStartedAt))
		field("Seeded", (time.Duration(job.SeedElapsedSeconds) * time.Second).String())
	}
	field("Destination", job.DestinationPath)
	field("Publish pending", publishPendingLabel(job))
	field("Published", formatDisplayTime(job.PublishedAt))
	field("Next search", formatDisplayTime(job.NextSearchAt))
	field("Last error", job.LastError)
	field("Created", formatDisplayTime(job.CreatedAt))
	field("Updated", formatDisplayTime(job.UpdatedAt))
}

func publishPendingLabel(job api.Job) string {
	if !job.PublishPending {
		return ""
	}
	return yesNo(true)
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	t := api.ParseJobTime(value)
	if t.IsZero() {
		return value
	}
	return t.Local().Format("2006-01-02 15:04")
}
