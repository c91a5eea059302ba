package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"slidewright/internal/api"
	"slidewright/internal/fileutil"
	"slidewright/internal/store"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Show a task's status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				var (
					task *api.Task
					err  error
				)
				if wait {
					task, err = waitForTask(cmd.Context(), client, args[0], pollInterval, cmd.ErrOrStderr())
				} else {
					task, err = client.GetTask(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, task)
				}
				printTaskSummary(cmd.OutOrStdout(), task)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the task to finish")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "result <document-id> <extraction|analysis|slides>",
		Short: "Show the latest result of a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseArtifactKind(strings.ToLower(args[1]))
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				artifact, err := client.GetResult(cmd.Context(), args[0], string(kind))
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, artifact)
				}
				printArtifact(cmd.OutOrStdout(), artifact)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download <document-id> [destination]",
		Short: "Download the latest rendered deck",
		Long: `Download the latest rendered deck. The destination may be a file path or an
existing directory; it defaults to the current directory using the deck's
suggested file name.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := "."
			if len(args) == 2 {
				dest = args[1]
			}
			return ctx.withClient(func(client *api.Client) error {
				var (
					filename string
					written  int64
				)
				tmp, err := os.CreateTemp("", "slidewright-download-*")
				if err != nil {
					return fmt.Errorf("create temp file: %w", err)
				}
				defer os.Remove(tmp.Name())
				written, filename, err = client.DownloadSlides(cmd.Context(), args[0], tmp)
				if closeErr := tmp.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					return err
				}

				target := resolveDownloadTarget(dest, filename, args[0])
				if err := fileutil.CopyFileVerified(tmp.Name(), target); err != nil {
					return fmt.Errorf("save deck: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", target, formatBytes(written))
				return nil
			})
		},
	}
}

// resolveDownloadTarget places the deck inside dest when dest is a
// directory and treats dest as the file path otherwise.
func resolveDownloadTarget(dest, filename, documentID string) string {
	if filename == "" {
		filename = documentID + ".pptx"
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return filepath.Join(dest, filename)
	}
	if strings.HasSuffix(dest, string(os.PathSeparator)) {
		return filepath.Join(dest, filename)
	}
	return dest
}

func printArtifact(out io.Writer, artifact *api.Artifact) {
	pairs := [][2]string{
		{"Result", artifact.ID},
		{"Kind", artifact.Kind},
		{"Task", artifact.TaskID},
		{"Created", relativeTime(artifact.CreatedAt)},
	}
	switch {
	case artifact.Extraction != nil:
		ex := artifact.Extraction
		pairs = append(pairs,
			[2]string{"Title", orDash(ex.Title)},
			[2]string{"Author", orDash(ex.Metadata.Author)},
			[2]string{"Pages", pageCount(ex.Metadata.PageCount)},
			[2]string{"Characters", strconv.Itoa(len([]rune(ex.Text)))},
			[2]string{"Figures", strconv.Itoa(len(ex.Figures))},
		)
	case artifact.Analysis != nil:
		an := artifact.Analysis
		pairs = append(pairs,
			[2]string{"Model", orDash(an.Model)},
			[2]string{"Style", an.SummaryStyle},
			[2]string{"Key points", strconv.Itoa(len(an.KeyPoints))},
			[2]string{"Outline slides", strconv.Itoa(len(an.Outline))},
			[2]string{"Cached", yesNo(an.Cached)},
		)
	case artifact.Slides != nil:
		sl := artifact.Slides
		pairs = append(pairs,
			[2]string{"Template", sl.Template},
			[2]string{"Format", sl.Format},
			[2]string{"Slides", strconv.Itoa(sl.SlideCount)},
			[2]string{"Size", formatBytes(sl.SizeBytes)},
			[2]string{"Path", sl.Path},
		)
	}
	fmt.Fprintln(out, renderKeyValues(pairs))

	if an := artifact.Analysis; an != nil && an.Summary != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, an.Summary)
	}
}
