package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"slidewright/internal/api"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List slide templates known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				templates, err := client.Templates(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, templates)
				}
				rows := make([][]string, 0, len(templates))
				for _, tpl := range templates {
					source := "custom"
					if tpl.Builtin {
						source = "builtin"
					}
					rows = append(rows, []string{
						tpl.Name,
						source,
						fmt.Sprintf("%s %dpt / %s %dpt", tpl.TitleFont, tpl.TitleSize, tpl.BodyFont, tpl.BodySize),
						orDash(tpl.Description),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Name", "Source", "Fonts", "Description"},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, scheduler and stage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				wf := status.Workflow
				pairs := [][2]string{
					{"Daemon", yesNo(status.Running)},
					{"PID", strconv.Itoa(status.PID)},
					{"Database", status.DatabasePath},
					{"Decks", status.OutputDir},
					{"Scheduler", yesNo(wf.Running)},
					{"Capacity", fmt.Sprintf("%d/%d in use", wf.Active, wf.Capacity)},
					{"Documents", formatDocumentCounts(wf.Documents)},
				}
				if wf.LastError != "" {
					pairs = append(pairs, [2]string{"Last error", wf.LastError})
				}
				fmt.Fprintln(out, renderKeyValues(pairs))

				if len(wf.StageHealth) > 0 {
					rows := make([][]string, 0, len(wf.StageHealth))
					for _, h := range wf.StageHealth {
						rows = append(rows, []string{h.Name, yesNo(h.Ready), orDash(h.Detail)})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable([]string{"Stage", "Ready", "Detail"}, rows))
				}
				if len(wf.Tasks) > 0 {
					rows := make([][]string, 0, len(wf.Tasks))
					for _, t := range wf.Tasks {
						rows = append(rows, []string{
							t.TaskID, t.DocumentID, t.Type,
							formatProgress(t.Progress), strconv.Itoa(t.Attempt), relativeTime(t.StartedAt),
						})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable(
						[]string{"Task", "Document", "Stage", "Progress", "Attempt", "Started"},
						rows,
						3, 4,
					))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func formatDocumentCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}
