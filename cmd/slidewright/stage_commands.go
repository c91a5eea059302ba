package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"slidewright/internal/api"
	"slidewright/internal/store"
)

// configKeyAnnotation links a stage flag to its key in the stage config.
const configKeyAnnotation = "slidewright/config-key"

// pollInterval is how often --wait polls the daemon.
var pollInterval = time.Second

func newStageCommands(ctx *commandContext) []*cobra.Command {
	extractCmd := newStageCommand(ctx, "extract", "Extract text, metadata and figures from an uploaded PDF")

	analyzeCmd := newStageCommand(ctx, "analyze", "Summarize an extracted document and outline its slides")
	af := analyzeCmd.Flags()
	af.String("model", "", "LLM model override")
	af.Float64("temperature", 0.3, "Sampling temperature (0-1)")
	af.Int("summary-length", 500, "Target summary length in words (100-2000)")
	af.String("summary-style", "academic", "Summary style: academic, simple or bullet_points")
	af.String("language", "en", "Output language code")
	af.StringSlice("focus", nil, "Focus areas for the summary (repeatable)")
	af.Int("key-points", 5, "Number of key points (1-20)")
	af.Int("max-slides", 10, "Maximum outline slides")
	bindConfigKeys(af, map[string]string{
		"model":          "model",
		"temperature":    "temperature",
		"summary-length": "summary_length",
		"summary-style":  "summary_style",
		"language":       "language",
		"focus":          "focus_areas",
		"key-points":     "num_key_points",
		"max-slides":     "max_slides",
	})

	renderCmd := newStageCommand(ctx, "render", "Render an analyzed document into a slide deck")
	rf := renderCmd.Flags()
	rf.String("template", "academic", "Template name (see `slidewright templates`)")
	rf.String("style", "plain", "Heading style: plain, title_case or uppercase")
	rf.String("format", "pptx", "Deck format: pptx or pdf")
	rf.Bool("include-figures", true, "Add figure slides")
	rf.Bool("include-notes", true, "Add speaker notes")
	rf.Int("max-slides", 0, "Cap the number of content slides (0 keeps the outline)")
	bindConfigKeys(rf, map[string]string{
		"template":        "template",
		"style":           "style",
		"format":          "format",
		"include-figures": "include_figures",
		"include-notes":   "include_notes",
		"max-slides":      "max_slides",
	})

	return []*cobra.Command{extractCmd, analyzeCmd, renderCmd}
}

func bindConfigKeys(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		_ = flags.SetAnnotation(name, configKeyAnnotation, []string{key})
	}
}

func newStageCommand(ctx *commandContext, stage, short string) *cobra.Command {
	var rawOptions string
	var wait bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   stage + " <document-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageConfig, err := buildStageConfig(cmd.Flags(), rawOptions)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				task, err := client.RequestStage(cmd.Context(), args[0], stage, stageConfig)
				if err != nil {
					return err
				}
				if wait {
					var progress io.Writer = cmd.ErrOrStderr()
					if jsonOut {
						progress = io.Discard
					}
					task, err = waitForTask(cmd.Context(), client, task.ID, pollInterval, progress)
					if err != nil {
						return err
					}
				}
				if jsonOut {
					return writeJSON(cmd, task)
				}
				printTaskSummary(cmd.OutOrStdout(), task)
				if task.Status == "failed" {
					return fmt.Errorf("%s failed: %s", stage, task.ErrorMessage)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rawOptions, "options", "", "Raw JSON object of stage options; flags override its keys")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the task to finish")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// buildStageConfig merges --options with every annotated flag the user set
// explicitly. Unset flags are left out so the daemon's configured defaults
// apply.
func buildStageConfig(flags *pflag.FlagSet, rawOptions string) (json.RawMessage, error) {
	values := map[string]any{}
	if rawOptions != "" {
		if err := json.Unmarshal([]byte(rawOptions), &values); err != nil {
			return nil, fmt.Errorf("--options must be a JSON object: %w", err)
		}
		if values == nil {
			return nil, errors.New("--options must be a JSON object")
		}
	}

	var flagErr error
	flags.Visit(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || flagErr != nil {
			return
		}
		value, err := flagValue(flags, f)
		if err != nil {
			flagErr = err
			return
		}
		values[keys[0]] = value
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if len(values) == 0 {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode stage options: %w", err)
	}
	return data, nil
}

func flagValue(flags *pflag.FlagSet, f *pflag.Flag) (any, error) {
	switch f.Value.Type() {
	case "string":
		return flags.GetString(f.Name)
	case "int":
		return flags.GetInt(f.Name)
	case "float64":
		return flags.GetFloat64(f.Name)
	case "bool":
		return flags.GetBool(f.Name)
	case "stringSlice":
		return flags.GetStringSlice(f.Name)
	default:
		return nil, fmt.Errorf("flag --%s has unsupported type %s", f.Name, f.Value.Type())
	}
}

// waitForTask polls until the task reaches a terminal status, writing a line
// to progress whenever the status or percentage changes.
func waitForTask(ctx context.Context, client *api.Client, taskID string, interval time.Duration, progress io.Writer) (*api.Task, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastLine := ""
	for {
		task, err := client.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		line := fmt.Sprintf("%s %s %s", task.Type, task.Status, formatProgress(task.Progress))
		if line != lastLine {
			fmt.Fprintln(progress, line)
			lastLine = line
		}
		if task.Status == "completed" || task.Status == "failed" {
			return task, waitForDocumentSettled(ctx, client, task.DocumentID, interval)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitForDocumentSettled waits for the document to leave its in-progress
// status, which is written just after the task itself settles. Without it a
// follow-up stage request can race the status update.
func waitForDocumentSettled(ctx context.Context, client *api.Client, documentID string, interval time.Duration) error {
	for {
		doc, err := client.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if !store.DocumentStatus(doc.ProcessingStatus).IsInProgress() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval / 4):
		}
	}
}

func printTaskSummary(out io.Writer, task *api.Task) {
	pairs := [][2]string{
		{"Task", task.ID},
		{"Document", task.DocumentID},
		{"Stage", task.Type},
		{"Status", task.Status},
		{"Progress", formatProgress(task.Progress)},
	}
	if task.ResultID != "" {
		pairs = append(pairs, [2]string{"Result", task.ResultID})
	}
	if task.ErrorKind != "" {
		pairs = append(pairs, [2]string{"Error", task.ErrorKind + ": " + task.ErrorMessage})
	}
	fmt.Fprintln(out, renderKeyValues(pairs))
}
