package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"slidewright/internal/api"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "add <file.pdf>",
		Short: "Upload a PDF to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			return ctx.withClient(func(client *api.Client) error {
				doc, err := client.UploadDocument(cmd.Context(), path, title)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, doc)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Uploaded %s as document %s\n", doc.Filename, doc.ID)
				fmt.Fprintf(out, "Next: slidewright extract %s\n", doc.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to the file name)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				docs, err := client.ListDocuments(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, docs)
				}
				out := cmd.OutOrStdout()
				if len(docs) == 0 {
					fmt.Fprintln(out, "No documents")
					return nil
				}
				rows := make([][]string, 0, len(docs))
				for _, doc := range docs {
					rows = append(rows, []string{
						doc.ID,
						truncate(doc.Title, 48),
						documentStatus(doc),
						pageCount(doc.Metadata.PageCount),
						relativeTime(doc.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Status", "Pages", "Updated"},
					rows,
					3,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by processing status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a document and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				doc, err := client.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				tasks, err := client.ListTasks(cmd.Context(), doc.ID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, struct {
						Document *api.Document `json:"document"`
						Tasks    []api.Task    `json:"tasks"`
					}{doc, tasks})
				}

				out := cmd.OutOrStdout()
				pairs := [][2]string{
					{"ID", doc.ID},
					{"Title", doc.Title},
					{"File", doc.Filename},
					{"Status", documentStatus(*doc)},
					{"Author", orDash(doc.Metadata.Author)},
					{"Pages", pageCount(doc.Metadata.PageCount)},
					{"Created", relativeTime(doc.CreatedAt)},
					{"Updated", relativeTime(doc.UpdatedAt)},
				}
				if doc.ErrorMessage != "" {
					pairs = append(pairs, [2]string{"Error", doc.ErrorMessage})
				}
				fmt.Fprintln(out, renderKeyValues(pairs))
				if len(tasks) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTasks(tasks))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <document-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a document, its tasks and its decks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.DeleteDocument(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %s\n", args[0])
				return nil
			})
		},
	}
}

func renderTasks(tasks []api.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		status := task.Status
		if task.ErrorKind != "" {
			status += " (" + task.ErrorKind + ")"
		}
		rows = append(rows, []string{
			task.ID,
			task.Type,
			status,
			formatProgress(task.Progress),
			strconv.Itoa(task.Attempts),
			relativeTime(task.UpdatedAt),
		})
	}
	return renderTable(
		[]string{"Task", "Stage", "Status", "Progress", "Attempts", "Updated"},
		rows,
		3, 4,
	)
}

func pageCount(n int) string {
	if n <= 0 {
		return "-"
	}
	return strconv.Itoa(n)
}
